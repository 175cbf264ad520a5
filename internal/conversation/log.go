// Package conversation implements the chat history operations behind the
// UI buttons: submit, undo, retry, clear and vote.
//
// All functions on Log are value operations. They never write into the
// backing array of the log they receive, so a caller can keep the previous
// log around (for example to answer a concurrent read) without copying it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ashureev/needle/internal/domain"
)

// Log is an ordered conversation history. A settled log has an even length
// and alternates user and assistant messages.
type Log []domain.Message

// ReplyFunc produces the assistant answer for text given the prior history.
// It is the only operation that may block on network I/O.
type ReplyFunc func(ctx context.Context, text string, history []domain.Message) (string, error)

// Settled reports whether every user message in the log has been answered.
func (l Log) Settled() bool {
	return len(l)%2 == 0
}

// AppendUserTurn asks reply for an answer to text and returns the log
// extended with the user message and the answer. On failure the original
// log is returned together with a *GenerationError.
func AppendUserTurn(ctx context.Context, log Log, text string, reply ReplyFunc) (Log, error) {
	answer, err := generate(ctx, log, text, reply)
	if err != nil {
		return log, err
	}

	out := make(Log, 0, len(log)+2)
	out = append(out, log...)
	out = append(out, domain.UserMessage(text), domain.AssistantMessage(answer))
	return out, nil
}

// Undo drops the last completed turn. Logs shorter than two messages are
// returned as is with WarnUndoNotEnough.
func Undo(log Log) (Log, Warning) {
	if len(log) < 2 {
		return log, WarnUndoNotEnough
	}
	return slices.Clip(log[:len(log)-2]), ""
}

// Retry regenerates the last assistant answer from the user message that
// precedes it. The user message is kept, only the answer is replaced.
func Retry(ctx context.Context, log Log, reply ReplyFunc) (Log, Warning, error) {
	if len(log) < 2 {
		return log, WarnRetryNotEnough, nil
	}

	text := log[len(log)-2].Content
	history := slices.Clip(log[:len(log)-1])

	answer, err := generate(ctx, history, text, reply)
	if err != nil {
		return log, "", err
	}

	out := make(Log, 0, len(log))
	out = append(out, history...)
	out = append(out, domain.AssistantMessage(answer))
	return out, "", nil
}

// Clear returns an empty log. Clearing an empty log also yields
// WarnAlreadyEmpty.
func Clear(log Log) (Log, Warning) {
	if len(log) == 0 {
		return Log{}, WarnAlreadyEmpty
	}
	return Log{}, ""
}

// Vote resolves the prompt/response pair for the message at index.
// It requires 0 < index < len(log).
func Vote(log Log, index int, liked bool) (domain.Feedback, error) {
	if index <= 0 || index >= len(log) {
		return domain.Feedback{}, fmt.Errorf("%w: index %d, history length %d", ErrVoteOutOfRange, index, len(log))
	}
	return domain.Feedback{
		MessageIndex: index,
		Liked:        liked,
		Prompt:       log[index-1].Content,
		Response:     log[index].Content,
	}, nil
}

func generate(ctx context.Context, history Log, text string, reply ReplyFunc) (string, error) {
	if reply == nil {
		return "", &GenerationError{Err: errors.New("no reply backend configured")}
	}
	if err := ctx.Err(); err != nil {
		return "", &GenerationError{Err: err}
	}

	answer, err := reply(ctx, text, history)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return "", err
		}
		return "", &GenerationError{Err: err}
	}
	return answer, nil
}
