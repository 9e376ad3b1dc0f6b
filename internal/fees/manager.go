package fees

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Tier identifies one of the three fee-rate/confirmation-time tradeoffs.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Rate is one tier of a fee schedule.
type Rate struct {
	SatsPerVByte     uint64 `json:"satsPerVByte"`
	EstimatedFeeSats uint64 `json:"estimatedFeeSats"`
	ETA              string `json:"eta"`
}

// Schedule is a full three-tier fee-rate schedule.
type Schedule struct {
	Low       Rate      `json:"low"`
	Medium    Rate      `json:"medium"`
	High      Rate      `json:"high"`
	FetchedAt time.Time `json:"fetchedAt"`
	Fallback  bool      `json:"fallback"`
}

// Rate returns the rate for the given tier, defaulting to medium.
func (s Schedule) Rate(tier Tier) Rate {
	switch tier {
	case TierLow:
		return s.Low
	case TierHigh:
		return s.High
	default:
		return s.Medium
	}
}

const (
	refreshInterval = 5 * time.Minute
	fetchTimeout    = 10 * time.Second

	// Rough vsize of a 2-in/3-out funding transaction with an OP_RETURN
	// output, used only for the user-facing fee estimate.
	estimatedVBytes = 350
)

// Fallback rates used when the upstream estimator is unreachable. Fee
// staleness costs confirmation time, not funds, so the flow never aborts
// on estimator failure.
var fallbackRates = map[Tier]uint64{
	TierLow:    1,
	TierMedium: 3,
	TierHigh:   5,
}

type recommendedResponse struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
}

// Manager fetches and caches the fee-rate schedule.
type Manager struct {
	url    string
	http   *http.Client
	logger *logrus.Logger

	mu      sync.RWMutex
	current Schedule

	onFetchError func()
}

func NewManager(url string, logger *logrus.Logger) *Manager {
	m := &Manager{
		url:    url,
		http:   &http.Client{Timeout: fetchTimeout},
		logger: logger.WithField("pkg", "fees.Manager").Logger,
	}
	m.current = fallbackSchedule()
	return m
}

// SetFetchErrorHook registers a callback invoked on every upstream fetch
// failure (used for metrics).
func (m *Manager) SetFetchErrorHook(fn func()) {
	m.onFetchError = fn
}

// Current returns the last schedule obtained by any refresh. Suitable for
// display; signing attempts must call ForSigning instead.
func (m *Manager) Current() Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Refresh fetches the recommended rates, falling back to the conservative
// hardcoded schedule on any failure. It never returns an error.
func (m *Manager) Refresh(ctx context.Context) Schedule {
	sched, err := m.fetch(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("fee source unavailable, using fallback schedule")
		if m.onFetchError != nil {
			m.onFetchError()
		}
		sched = fallbackSchedule()
	}

	m.mu.Lock()
	m.current = sched
	m.mu.Unlock()
	return sched
}

// ForSigning re-fetches the schedule immediately before a signing attempt so
// a transaction is never prepared against rates from a stale passive refresh.
func (m *Manager) ForSigning(ctx context.Context) Schedule {
	return m.Refresh(ctx)
}

// Run refreshes the schedule on a fixed interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	m.Refresh(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

func (m *Manager) fetch(ctx context.Context) (Schedule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url+"/fees/recommended", nil)
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to build request: %w", err)
	}

	res, err := m.http.Do(req)
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to fetch recommended fees: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Schedule{}, fmt.Errorf("fee source returned status %d", res.StatusCode)
	}

	var rec recommendedResponse
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		return Schedule{}, fmt.Errorf("failed to decode fee response: %w", err)
	}

	return Schedule{
		Low:       makeRate(rec.HourFee, "~1 hour"),
		Medium:    makeRate(rec.HalfHourFee, "~30 min"),
		High:      makeRate(rec.FastestFee, "~10 min"),
		FetchedAt: time.Now(),
	}, nil
}

func makeRate(satsPerVByte uint64, eta string) Rate {
	return Rate{
		SatsPerVByte:     satsPerVByte,
		EstimatedFeeSats: satsPerVByte * estimatedVBytes,
		ETA:              eta,
	}
}

func fallbackSchedule() Schedule {
	return Schedule{
		Low:       makeRate(fallbackRates[TierLow], "~1 hour"),
		Medium:    makeRate(fallbackRates[TierMedium], "~30 min"),
		High:      makeRate(fallbackRates[TierHigh], "~10 min"),
		FetchedAt: time.Now(),
		Fallback:  true,
	}
}
