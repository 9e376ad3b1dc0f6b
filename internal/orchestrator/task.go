package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeDepositExecute is the queue task carrying one deposit attempt.
const TypeDepositExecute = "deposit:execute"

// QueueName is the asynq queue both binaries agree on.
const QueueName = "deposits"

// NewDepositTask packs a deposit request into a queue task.
func NewDepositTask(req Request) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deposit task: %w", err)
	}
	return asynq.NewTask(TypeDepositExecute, payload, asynq.Queue(QueueName)), nil
}

// HandleDepositTask is the asynq handler executing one attempt. Attempts are
// never retried by the queue: signing and broadcast are not idempotent, and
// every preparation failure kind requires user correction first.
func (o *Orchestrator) HandleDepositTask(ctx context.Context, t *asynq.Task) error {
	var req Request
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal deposit task: %v: %w", err, asynq.SkipRetry)
	}

	res, err := o.Execute(ctx, req)
	if err != nil {
		o.logger.WithError(err).WithField("sender", req.SenderAddress).
			Errorf("deposit attempt failed: %s", UserMessage(err))
		return fmt.Errorf("deposit attempt failed: %v: %w", err, asynq.SkipRetry)
	}

	o.logger.WithFields(map[string]any{
		"record": res.RecordID,
		"txid":   res.TxID,
	}).Info("deposit attempt completed")
	return nil
}
