package history

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"relay-deposit/pkg/client"
)

// DefaultMaxAge bounds how old a record may be to still be refreshed
const DefaultMaxAge = 24 * time.Hour

// StatusSource reports router status for a request id
type StatusSource interface {
	GetStatus(ctx context.Context, requestID string) (*client.StatusResponse, error)
}

// Tracker settles submitted deposits by asking the router for their status
type Tracker struct {
	manager *Manager
	source  StatusSource
	MaxAge  time.Duration
}

// NewTracker creates a tracker for the records of manager
func NewTracker(manager *Manager, source StatusSource) *Tracker {
	return &Tracker{
		manager: manager,
		source:  source,
		MaxAge:  DefaultMaxAge,
	}
}

// Refresh re-queries every recent non-terminal record and returns how many were updated.
// Status lookups that fail are skipped and retried on the next refresh.
func (t *Tracker) Refresh(ctx context.Context) (int, error) {
	updated := 0
	for _, record := range t.manager.List() {
		if record.Status.IsTerminal() || record.RequestID == "" {
			continue
		}
		if t.MaxAge > 0 && t.manager.now().Sub(record.Created) >= t.MaxAge {
			continue
		}

		if err := ctx.Err(); err != nil {
			return updated, err
		}

		if _, _, err := t.Check(ctx, record.ID); err != nil {
			logrus.WithError(err).WithField("deposit", record.ID).Debug("status refresh failed")
			continue
		}
		updated++
	}
	return updated, nil
}

// Check refreshes a single record. It returns the updated record and whether it is now terminal.
func (t *Tracker) Check(ctx context.Context, id string) (*DepositRecord, bool, error) {
	record, err := t.manager.Get(id)
	if err != nil {
		return nil, false, err
	}

	status, err := t.source.GetStatus(ctx, record.RequestID)
	if err != nil {
		return record, false, err
	}

	record, err = t.manager.ApplyRelayStatus(record.ID, status)
	if err != nil {
		return nil, false, err
	}

	logrus.WithFields(logrus.Fields{
		"deposit":    record.ID,
		"request_id": record.RequestID,
		"status":     status.Status,
	}).Debug("deposit status refreshed")

	return record, record.Status.IsTerminal(), nil
}

// Wait checks a record every interval until it is terminal or ctx is done
func (t *Tracker) Wait(ctx context.Context, id string, interval time.Duration) (*DepositRecord, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		record, terminal, err := t.Check(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("deposit", id).Debug("status check failed")
		} else if terminal {
			return record, nil
		}

		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}
