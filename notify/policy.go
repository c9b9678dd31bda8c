package notify

import (
	"fmt"
	"log/slog"
)

// Policy states whether a notification failure may abort the surrounding
// operation. Database state must never be rolled back because an email could
// not be sent, so almost every call site uses BestEffort; Required exists for
// the few paths where the caller wants the failure surfaced after its own
// writes have already been persisted.
type Policy int

const (
	BestEffort Policy = iota
	Required
)

// Dispatch runs a notification call under the given policy. BestEffort logs
// the failure and reports success; Required returns the wrapped error.
func Dispatch(log *slog.Logger, policy Policy, op string, call func() error) error {
	err := call()
	if err == nil {
		return nil
	}
	if policy == Required {
		return fmt.Errorf("notify: %s: %w", op, err)
	}
	log.Error("notification failed", "op", op, "error", err)
	return nil
}
