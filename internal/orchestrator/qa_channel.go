package orchestrator

import (
	"context"
	"fmt"

	"github.com/aristath/agentflow/internal/agent"
)

// Question carries an agent's mid-turn question to the orchestrator's
// answer callback.
type Question struct {
	TaskID     string
	Content    string
	responseCh chan Answer
}

// Answer is the orchestrator's response.
type Answer struct {
	Content string
	Error   error
}

// AnswerFunc answers an agent's question using whatever run-level
// context the caller holds (the full plan, prior decisions, the user).
type AnswerFunc func(ctx context.Context, taskID string, question string) (string, error)

// QAChannel lets acting agents ask the orchestrator questions without
// blocking the answer side. Questions queue in a buffered channel and a
// single handler goroutine serves them in order.
type QAChannel struct {
	questionCh chan Question
	answerFn   AnswerFunc
	done       chan struct{}
}

// NewQAChannel builds a channel with the given buffer size. Size the
// buffer at roughly twice the expected number of concurrent flows.
func NewQAChannel(bufferSize int, answerFn AnswerFunc) *QAChannel {
	return &QAChannel{
		questionCh: make(chan Question, bufferSize),
		answerFn:   answerFn,
		done:       make(chan struct{}),
	}
}

// Start launches the handler goroutine. It serves questions until the
// context is cancelled.
func (q *QAChannel) Start(ctx context.Context) {
	go q.serve(ctx)
}

func (q *QAChannel) serve(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case question := <-q.questionCh:
			content, err := q.answerFn(ctx, question.TaskID, question.Content)

			select {
			case <-ctx.Done():
				question.responseCh <- Answer{Error: ctx.Err()}
				return
			default:
				question.responseCh <- Answer{Content: content, Error: err}
			}
		}
	}
}

// Ask submits a question and blocks for the answer. Cancellation is
// honored at both the send and the receive stage.
func (q *QAChannel) Ask(ctx context.Context, taskID string, question string) (string, error) {
	responseCh := make(chan Answer, 1)

	select {
	case q.questionCh <- Question{TaskID: taskID, Content: question, responseCh: responseCh}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case answer := <-responseCh:
		if answer.Error != nil {
			return "", answer.Error
		}
		return answer.Content, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop blocks until the handler goroutine has exited.
func (q *QAChannel) Stop() {
	<-q.done
}

// Tool exposes the channel to agents as the ask_orchestrator tool.
func (q *QAChannel) Tool() agent.Tool {
	return agent.Tool{
		Name:        "ask_orchestrator",
		Description: "Ask the orchestrator a question about the plan. Args: question (string), task_id (string, optional).",
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			question, _ := args["question"].(string)
			if question == "" {
				return "", fmt.Errorf("ask_orchestrator requires a question")
			}
			taskID, _ := args["task_id"].(string)
			return q.Ask(ctx, taskID, question)
		},
	}
}
