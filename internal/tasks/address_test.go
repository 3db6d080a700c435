package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/service"
)

func probeWorld(t *testing.T, serverIP, detectURI string) *service.World {
	t.Helper()
	cfg := &config.Config{ServerIP: serverIP, IPDetectURI: detectURI}
	return service.NewWorld(cfg, nil, nil, nil, nil, &config.BannedList{})
}

func TestAddressProbeFixedAddress(t *testing.T) {
	w := probeWorld(t, "198.51.100.7", "")
	w.SetStartedAt(time.Now().Add(-time.Hour))

	p := NewAddressProbe(w)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, "198.51.100.7", w.ServerIP())
	assert.WithinDuration(t, time.Now(), w.StartedAt(), time.Minute)
}

func TestAddressProbeDetects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		fmt.Fprint(rw, " 203.0.113.99\n")
	}))
	defer ts.Close()

	w := probeWorld(t, "auto", ts.URL)
	p := NewAddressProbe(w)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, "203.0.113.99", w.ServerIP())
}

func TestAddressProbeRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(rw, "203.0.113.99")
	}))
	defer ts.Close()

	w := probeWorld(t, "", ts.URL)
	p := NewAddressProbe(w)
	p.retryStart = time.Millisecond
	require.NoError(t, p.Run(context.Background()))

	assert.GreaterOrEqual(t, calls.Load(), int32(3))
	assert.Equal(t, "203.0.113.99", w.ServerIP())
}

func TestAddressProbeRejectsGarbage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		fmt.Fprint(rw, "<html>guess again</html>")
	}))
	defer ts.Close()

	w := probeWorld(t, "auto", ts.URL)
	p := NewAddressProbe(w)

	_, err := p.resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an address")
}

func TestAddressProbeCancelledWhileRetrying(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	w := probeWorld(t, "auto", ts.URL)
	p := NewAddressProbe(w)
	p.retryStart = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("probe did not stop on cancel")
	}
	assert.Equal(t, "auto", w.ServerIP())
}

func TestAddressProbeRequeryKeepsUptime(t *testing.T) {
	w := probeWorld(t, "198.51.100.7", "")
	was := time.Now().Add(-time.Hour)
	w.SetStartedAt(was)

	p := NewAddressProbe(w)
	require.NoError(t, p.Requery(context.Background()))

	assert.Equal(t, "198.51.100.7", w.ServerIP())
	assert.Equal(t, was, w.StartedAt())
}
