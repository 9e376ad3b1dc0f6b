package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daobridge/deposit/internal/wallet"
)

func TestNewDepositTask(t *testing.T) {
	task, err := NewDepositTask(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, TypeDepositExecute, task.Type())

	var req Request
	require.NoError(t, json.Unmarshal(task.Payload(), &req))
	assert.Equal(t, baseRequest(), req)
}

func TestHandleDepositTask_NeverRetries(t *testing.T) {
	explorerSrv := explorerServer(t, 10_000_000, "unused")
	defer explorerSrv.Close()

	orch, store := newTestOrchestrator(t, "http://unused", explorerSrv.URL, wallet.NewRegistry(nil, nil))

	t.Run("bad payload", func(t *testing.T) {
		err := orch.HandleDepositTask(context.Background(), asynq.NewTask(TypeDepositExecute, []byte("not json")))
		require.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("failed attempt", func(t *testing.T) {
		task, err := NewDepositTask(baseRequest())
		require.NoError(t, err)

		err = orch.HandleDepositTask(context.Background(), task)
		require.ErrorIs(t, err, asynq.SkipRetry)
		assert.Zero(t, store.count())
	})
}
