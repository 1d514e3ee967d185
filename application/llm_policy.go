package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"data-sculptor/config"
	"data-sculptor/domain"
)

// FallbackReply is returned to the user when the language model cannot answer.
const FallbackReply = "Sorry, I could not generate an answer right now. Please try again in a moment."

// CallPolicy bounds every LLM call with a per-attempt timeout and retries transient
// failures with exponential backoff.
type CallPolicy struct {
	Timeout time.Duration
	// MaxRetries is the number of calls made after the first one fails.
	MaxRetries int
	Backoff    time.Duration
}

// NewCallPolicy reads the call policy from the LLM configuration.
func NewCallPolicy(cfg config.LLMConfig) CallPolicy {
	return CallPolicy{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries, Backoff: cfg.Backoff}
}

// Complete calls client until it succeeds, fails permanently, or runs out of attempts.
//
// A transient failure or an attempt timeout is retried after a backoff that doubles on
// every attempt. A context-length rejection drops the oldest history message and is
// retried at once; the last message, the current user turn, is never dropped.
func (p CallPolicy) Complete(ctx context.Context, client domain.LLMClient, req domain.CompletionRequest) (domain.Completion, error) {
	attempts := max(p.MaxRetries, 0) + 1
	req.Messages = append([]domain.ChatMessage(nil), req.Messages...)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := p.attempt(ctx, client, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return domain.Completion{}, ctx.Err()
		}
		lastErr = err

		switch {
		case errors.Is(err, domain.ErrContextTooLong):
			if len(req.Messages) <= 1 {
				return domain.Completion{}, err
			}
			log.Printf("llm: prompt too long, dropping oldest of %d messages", len(req.Messages))
			req.Messages = req.Messages[1:]
			continue
		case errors.Is(err, domain.ErrCollaboratorTransient), errors.Is(err, context.DeadlineExceeded):
		default:
			return domain.Completion{}, err
		}

		if attempt == attempts-1 {
			break
		}
		wait := p.Backoff << attempt
		log.Printf("llm: attempt %d/%d failed: %v; retrying in %s", attempt+1, attempts, err, wait)
		if err := sleep(ctx, wait); err != nil {
			return domain.Completion{}, err
		}
	}
	return domain.Completion{}, fmt.Errorf("llm call failed after %d attempts: %w", attempts, lastErr)
}

func (p CallPolicy) attempt(ctx context.Context, client domain.LLMClient, req domain.CompletionRequest) (domain.Completion, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return client.Complete(ctx, req)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
