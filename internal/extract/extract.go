// Package extract turns free-form model replies into typed values. A request
// is retried with a correction prompt until a validator accepts the reply or
// the attempt budget runs out, in which case the caller's default is returned.
package extract

import (
	"context"
	"errors"
	"time"
	"unicode"

	"github.com/ShayCichocki/hydra/internal/llm"
)

// DefaultMaxAttempts is used when a Request leaves MaxAttempts unset.
const DefaultMaxAttempts = 3

// MinMeaningful is the fewest letters and digits a reply must carry before a
// validator is consulted.
const MinMeaningful = 3

// Validator parses a raw reply into T. Failures should be *ParseError.
type Validator[T any] func(raw string) (T, error)

// Attempt describes one model call made by Extract.
type Attempt struct {
	Number   int
	Prompt   string
	Response string
	Err      error
	Duration time.Duration
}

// Observer is notified after every attempt.
type Observer func(Attempt)

// Request configures a single extraction.
type Request[T any] struct {
	Conversation Conversation
	Validate     Validator[T]
	// Correction is appended as a user turn after each rejected reply.
	Correction string
	// MaxAttempts bounds the number of model calls. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// Default is returned when every attempt fails.
	Default  T
	Observer Observer
}

// Outcome is the result of Extract.
type Outcome[T any] struct {
	Value T
	// OK is false when Value is the request default.
	OK       bool
	Attempts int
	// Conversation is the final transcript, including the accepted reply.
	Conversation Conversation
	LastResponse string
	// Err is the last failure seen, or the context error on cancellation.
	Err error
}

// Extract asks client for a reply that req.Validate accepts. It stops at the
// first accepted reply. A model error counts as a failed attempt and adds
// nothing to the conversation. Extract never returns an error value; failure
// is reported through Outcome.OK.
func Extract[T any](ctx context.Context, client llm.Client, req Request[T]) Outcome[T] {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	correction := req.Correction
	if correction == "" {
		correction = CorrectionGeneric
	}

	out := Outcome[T]{Value: req.Default, Conversation: req.Conversation}
	if req.Validate == nil {
		out.Err = errors.New("extract: request has no validator")
		return out
	}

	conv := req.Conversation
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}
		out.Attempts = attempt

		start := time.Now()
		raw, err := client.Chat(ctx, conv.Messages())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			out.Err = err
			notify(req.Observer, Attempt{Number: attempt, Prompt: conv.LastUser(), Err: err, Duration: time.Since(start)})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		out.LastResponse = raw

		value, verr := validate(req.Validate, raw)
		notify(req.Observer, Attempt{Number: attempt, Prompt: conv.LastUser(), Response: raw, Err: verr, Duration: time.Since(start)})
		if verr == nil {
			out.Value = value
			out.OK = true
			out.Err = nil
			out.Conversation = conv.Append(llm.AssistantMessage(raw))
			return out
		}
		out.Err = verr

		if attempt < maxAttempts {
			conv = conv.Append(llm.AssistantMessage(raw), llm.UserMessage(correction))
		} else {
			conv = conv.Append(llm.AssistantMessage(raw))
		}
	}

	out.Value = req.Default
	out.Conversation = conv
	return out
}

func validate[T any](v Validator[T], raw string) (T, error) {
	if !Meaningful(raw) {
		var zero T
		return zero, Failf(raw, "response too short")
	}
	return v(raw)
}

func notify(obs Observer, a Attempt) {
	if obs != nil {
		obs(a)
	}
}

// Meaningful reports whether s has at least MinMeaningful letters or digits.
func Meaningful(s string) bool {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
			if n >= MinMeaningful {
				return true
			}
		}
	}
	return false
}
