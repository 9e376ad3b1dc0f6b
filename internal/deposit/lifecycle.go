package deposit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Lifecycle drives a deposit record through its state machine. RunAttempt is
// the single owner of record creation and guarantees a terminal status on
// every exit path.
type Lifecycle struct {
	store  Store
	logger *logrus.Logger
}

func NewLifecycle(store Store, logger *logrus.Logger) *Lifecycle {
	return &Lifecycle{
		store:  store,
		logger: logger.WithField("pkg", "deposit.Lifecycle").Logger,
	}
}

// RunAttempt creates the record, runs the signing attempt, and moves the
// record to broadcast or canceled. attempt returns the source-chain txid on
// success. The record is created before any wallet interaction so a crash
// mid-signing is still attributable to a known attempt.
func (l *Lifecycle) RunAttempt(
	ctx context.Context,
	fields CreateFields,
	attempt func(ctx context.Context) (string, error),
) (recordID string, txID string, err error) {
	recordID, err = l.store.Create(ctx, fields)
	if err != nil {
		return "", "", fmt.Errorf("failed to create deposit record: %w", err)
	}

	txID, err = attempt(ctx)
	if err != nil {
		l.MarkCanceled(ctx, recordID)
		return recordID, "", err
	}

	if er := l.MarkBroadcast(ctx, recordID, txID); er != nil {
		// The transaction is already on the wire; the dangling record is
		// left for external reconciliation.
		l.logger.WithError(er).WithFields(logrus.Fields{
			"record": recordID,
			"txid":   txID,
		}).Error("failed to mark deposit broadcast")
	}
	return recordID, txID, nil
}

// MarkBroadcast records the obtained transaction id, retrying once on a
// transient store failure.
func (l *Lifecycle) MarkBroadcast(ctx context.Context, id, txID string) error {
	err := l.store.UpdateStatus(ctx, id, StatusBroadcast, &txID)
	if err == nil {
		return nil
	}
	if retryErr := l.store.UpdateStatus(ctx, id, StatusBroadcast, &txID); retryErr == nil {
		return nil
	}
	return fmt.Errorf("failed to update deposit status: %w", err)
}

// MarkCanceled moves the record to canceled. Its own failure is logged, not
// re-raised: the attempt has already failed for the user and a dangling
// created record is an accepted degraded state.
func (l *Lifecycle) MarkCanceled(ctx context.Context, id string) {
	if err := l.store.UpdateStatus(ctx, id, StatusCanceled, nil); err != nil {
		l.logger.WithError(err).WithField("record", id).Error("failed to mark deposit canceled")
	}
}
