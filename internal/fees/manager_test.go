package fees

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fees/recommended", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fastestFee":50,"halfHourFee":25,"hourFee":10}`))
	}))
	defer srv.Close()

	m := NewManager(srv.URL, logrus.New())
	sched := m.Refresh(context.Background())

	assert.False(t, sched.Fallback)
	assert.Equal(t, uint64(10), sched.Low.SatsPerVByte)
	assert.Equal(t, uint64(25), sched.Medium.SatsPerVByte)
	assert.Equal(t, uint64(50), sched.High.SatsPerVByte)
	assert.False(t, sched.FetchedAt.IsZero())

	// Monotonic ordering across the tiers.
	assert.LessOrEqual(t, sched.Low.SatsPerVByte, sched.Medium.SatsPerVByte)
	assert.LessOrEqual(t, sched.Medium.SatsPerVByte, sched.High.SatsPerVByte)

	// Per-tier fee estimate is rate-proportional.
	assert.Equal(t, uint64(25*estimatedVBytes), sched.Medium.EstimatedFeeSats)

	// The refreshed schedule becomes the cached one.
	assert.Equal(t, sched.Medium, m.Current().Medium)
}

func TestManager_Refresh_FallbackOnOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hookCalls := 0
	m := NewManager(srv.URL, logrus.New())
	m.SetFetchErrorHook(func() { hookCalls++ })

	sched := m.Refresh(context.Background())

	assert.True(t, sched.Fallback)
	assert.Equal(t, uint64(1), sched.Low.SatsPerVByte)
	assert.Equal(t, uint64(3), sched.Medium.SatsPerVByte)
	assert.Equal(t, uint64(5), sched.High.SatsPerVByte)
	assert.Equal(t, 1, hookCalls)
}

func TestManager_Refresh_FallbackOnBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	m := NewManager(srv.URL, logrus.New())
	sched := m.Refresh(context.Background())
	assert.True(t, sched.Fallback)
}

func TestManager_ForSigning_Refetches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"fastestFee":9,"halfHourFee":6,"hourFee":2}`))
	}))
	defer srv.Close()

	m := NewManager(srv.URL, logrus.New())
	m.Refresh(context.Background())

	sched := m.ForSigning(context.Background())
	assert.Equal(t, 2, calls, "signing never reuses a passive refresh")
	assert.Equal(t, uint64(6), sched.Medium.SatsPerVByte)
}

func TestSchedule_Rate(t *testing.T) {
	sched := Schedule{
		Low:    Rate{SatsPerVByte: 2},
		Medium: Rate{SatsPerVByte: 6},
		High:   Rate{SatsPerVByte: 9},
	}

	assert.Equal(t, uint64(2), sched.Rate(TierLow).SatsPerVByte)
	assert.Equal(t, uint64(6), sched.Rate(TierMedium).SatsPerVByte)
	assert.Equal(t, uint64(9), sched.Rate(TierHigh).SatsPerVByte)
	assert.Equal(t, uint64(6), sched.Rate(Tier("bogus")).SatsPerVByte, "unknown tier defaults to medium")
}

func TestNewManager_StartsOnFallback(t *testing.T) {
	m := NewManager("http://unused", logrus.New())
	sched := m.Current()
	assert.True(t, sched.Fallback)
	assert.Equal(t, uint64(3), sched.Medium.SatsPerVByte)
}
