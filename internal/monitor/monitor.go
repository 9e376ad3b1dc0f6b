package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/daobridge/deposit/internal/broadcast"
)

// Status is a chain-state observation for a watched transaction.
type Status string

const (
	StatusPending          Status = "pending"
	StatusConfirmed        Status = "confirmed"
	StatusRejectedByChain  Status = "rejected_by_chain"
	StatusRejectedByPolicy Status = "rejected_by_policy"
	StatusReplaced         Status = "replaced"
	StatusDroppedExpired   Status = "dropped_expired"
	StatusDroppedConflict  Status = "dropped_conflict"
	StatusDroppedUnknown   Status = "dropped_unknown"
)

// IsTerminal reports whether a status ends the watch.
func IsTerminal(s Status) bool {
	switch s {
	case StatusConfirmed,
		StatusRejectedByChain,
		StatusRejectedByPolicy,
		StatusReplaced,
		StatusDroppedExpired,
		StatusDroppedConflict,
		StatusDroppedUnknown:
		return true
	}
	return false
}

// StatusUpdate is one observed transition, forwarded verbatim from the push
// channel or synthesized by the fallback poll.
type StatusUpdate struct {
	TxID        string `json:"transactionId"`
	Status      Status `json:"status"`
	BlockHeight int64  `json:"blockHeight,omitempty"`
	BlockTime   int64  `json:"blockTime,omitempty"`
}

// StatusPoller is the explorer status endpoint consumed by the fallback
// observer. broadcast.Client implements it.
type StatusPoller interface {
	TxStatus(ctx context.Context, txID string) (broadcast.TxStatus, error)
}

const defaultPollDelay = 30 * time.Second

// Monitor watches broadcast transactions until a terminal state. Two
// independent observers feed one terminal-state check: a push subscription
// keyed by txid, and a one-shot delayed poll that only covers a missed push
// notification. Monitor failures degrade status reporting; they never mean
// the deposit failed.
type Monitor struct {
	wsURL     string
	poller    StatusPoller
	pollDelay time.Duration
	logger    *logrus.Logger
}

func New(wsURL string, poller StatusPoller, logger *logrus.Logger) *Monitor {
	return &Monitor{
		wsURL:     wsURL,
		poller:    poller,
		pollDelay: defaultPollDelay,
		logger:    logger.WithField("pkg", "monitor.Monitor").Logger,
	}
}

// SetPollDelay overrides the fallback poll delay.
func (m *Monitor) SetPollDelay(d time.Duration) {
	m.pollDelay = d
}

// Watch starts a single-shot watch for txID. The returned channel delivers
// every observed transition and is closed after a terminal status (or when
// ctx ends).
func (m *Monitor) Watch(ctx context.Context, txID string) <-chan StatusUpdate {
	w := &watcher{
		updates: make(chan StatusUpdate, 8),
		done:    make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			w.finish()
		case <-w.done:
		}
	}()

	go m.pushObserver(ctx, txID, w)
	go m.fallbackObserver(ctx, txID, w)
	return w.updates
}

type watcher struct {
	mu       sync.Mutex
	finished bool
	updates  chan StatusUpdate
	done     chan struct{}
}

// deliver forwards one update and applies the terminal-state check shared by
// both observers. Returns false once the watch is over.
func (w *watcher) deliver(u StatusUpdate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return false
	}

	select {
	case w.updates <- u:
	default:
		// Consumer is behind; terminal delivery matters more than every
		// intermediate pending update.
		if !IsTerminal(u.Status) {
			break
		}
		<-w.updates
		w.updates <- u
	}

	if IsTerminal(u.Status) {
		w.finished = true
		close(w.done)
		close(w.updates)
		return false
	}
	return true
}

func (w *watcher) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return
	}
	w.finished = true
	close(w.done)
	close(w.updates)
}

type subscribeRequest struct {
	Subscribe string `json:"subscribe"`
	TxID      string `json:"txId"`
}

func (m *Monitor) pushObserver(ctx context.Context, txID string, w *watcher) {
	log := m.logger.WithField("txid", txID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		log.WithError(err).Warn("push channel unavailable, status monitoring degraded")
		return
	}

	go func() {
		<-w.done
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(subscribeRequest{Subscribe: "tx", TxID: txID}); err != nil {
		log.WithError(err).Warn("push subscription failed, status monitoring degraded")
		w.finishPushOnly(conn)
		return
	}

	for {
		var update StatusUpdate
		if err := conn.ReadJSON(&update); err != nil {
			select {
			case <-w.done:
			default:
				log.WithError(err).Warn("push channel closed, status monitoring degraded")
			}
			return
		}
		if update.TxID != "" && update.TxID != txID {
			continue
		}
		if !w.deliver(update) {
			return
		}
	}
}

// finishPushOnly tears down the push connection without ending the watch;
// the fallback poll stays armed.
func (w *watcher) finishPushOnly(conn *websocket.Conn) {
	_ = conn.Close()
}

// fallbackObserver fires once after the poll delay to catch a missed push
// notification. It does not re-arm.
func (m *Monitor) fallbackObserver(ctx context.Context, txID string, w *watcher) {
	timer := time.NewTimer(m.pollDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-w.done:
		return
	case <-timer.C:
	}

	status, err := m.poller.TxStatus(ctx, txID)
	if err != nil {
		m.logger.WithError(err).WithField("txid", txID).Warn("fallback poll failed, status monitoring degraded")
		return
	}
	if !status.Confirmed {
		return
	}

	w.deliver(StatusUpdate{
		TxID:        txID,
		Status:      StatusConfirmed,
		BlockHeight: status.BlockHeight,
		BlockTime:   status.BlockTime,
	})
}
