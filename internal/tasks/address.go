// Package tasks runs the periodic maintenance of a server process:
// the public-address probe, the daily chat rollover and the global
// rank recompute. Each task is a Run loop that ends with its context,
// made to sit in the process run group next to the listeners.
package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/service"
)

const (
	probeTimeout    = 10 * time.Second
	probeRetryStart = time.Second
	probeRetryMax   = 120 * time.Second
)

// AddressProbe resolves the public address games are told to connect
// to. A fixed serverIP in the configuration is taken as-is; "auto" or
// an empty value makes the probe ask the configured IP-detect page.
type AddressProbe struct {
	world      *service.World
	client     *http.Client
	retryStart time.Duration
	retryMax   time.Duration
}

func NewAddressProbe(w *service.World) *AddressProbe {
	return &AddressProbe{
		world:      w,
		client:     &http.Client{Timeout: probeTimeout},
		retryStart: probeRetryStart,
		retryMax:   probeRetryMax,
	}
}

// Run resolves the address and applies it, doubling the retry delay
// after each failure until it succeeds or the context ends. Uptime
// restarts on success so it counts from when games could first be
// handed a reachable address.
func (p *AddressProbe) Run(ctx context.Context) error {
	return p.run(ctx, true)
}

// Requery re-resolves the address without restarting the uptime
// clock. The admin service triggers it when the address looks stale.
func (p *AddressProbe) Requery(ctx context.Context) error {
	return p.run(ctx, false)
}

func (p *AddressProbe) run(ctx context.Context, resetStart bool) error {
	delay := p.retryStart
	for {
		ip, err := p.resolve(ctx)
		if err == nil {
			p.apply(ip, resetStart)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay = min(2*delay, p.retryMax)
		slog.Warn("server address probe failed",
			"error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (p *AddressProbe) apply(ip string, resetStart bool) {
	p.world.Lock()
	p.world.SetServerIP(ip)
	if resetStart {
		p.world.SetStartedAt(time.Now())
	}
	p.world.Unlock()
	slog.Info("server address set", "ip", ip, "version", config.Version)
}

func (p *AddressProbe) resolve(ctx context.Context) (string, error) {
	cfg := p.world.Config()
	if cfg.ServerIP != "" && cfg.ServerIP != "auto" {
		return cfg.ServerIP, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.IPDetectURI, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip-detect page returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("ip-detect page returned %q, not an address", ip)
	}
	return ip, nil
}
