package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"data-sculptor/domain"
)

// classify wraps err with the domain error the retry policy understands, based on
// the HTTP status of the provider response when there is one.
func classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isContextLengthError(err):
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrContextTooLong, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrCollaboratorTransient, err)
	case status == 0 && isNetworkError(err):
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrCollaboratorTransient, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

func isContextLengthError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "context_length_exceeded") ||
		strings.Contains(s, "maximum context length") ||
		strings.Contains(s, "prompt is too long") ||
		strings.Contains(s, "input is too long")
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
