package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
)

const maxPollFailures = 3

// StatusPoller polls a provider document until it reaches a terminal state.
type StatusPoller struct {
	checker  StatusChecker
	interval time.Duration
}

func NewStatusPoller(checker StatusChecker, interval time.Duration) *StatusPoller {
	return &StatusPoller{checker: checker, interval: interval}
}

// Watch checks immediately and then on every tick, calling fn with each
// observed status. It returns nil on a terminal status, ctx.Err() on
// cancellation, or an error after repeated lookup failures.
func (p *StatusPoller) Watch(ctx context.Context, documentID string, fn func(model.StatusUpdate)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		status, err := p.checker.Status(ctx, documentID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			logger.Warn(ctx, "signing status lookup failed", "document_id", documentID, "attempt", failures, "error", err)
			if failures >= maxPollFailures {
				return fmt.Errorf("signing status for %s: %w", documentID, err)
			}
		default:
			failures = 0
			update := model.StatusUpdate{
				DocumentID: documentID,
				Status:     status.Normalized(),
				Message:    status.Message,
			}
			fn(update)
			if update.Status.Terminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
