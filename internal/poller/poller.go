// Package poller drives the upstream device poll cycle: fetch changed
// devices, detect risk transitions against the state store, and hand
// each transition to the relay pipeline.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/franksrp-ld/ssf/internal/logging"
	"github.com/franksrp-ld/ssf/internal/lookout"
	"github.com/franksrp-ld/ssf/internal/metrics"
	"github.com/franksrp-ld/ssf/internal/risk"
)

// DeviceLister fetches devices changed since a point in time.
type DeviceLister interface {
	ListDevices(ctx context.Context, since time.Time) (*lookout.DeviceListResponse, error)
}

// TransitionSink receives detected risk transitions.
type TransitionSink interface {
	HandleTransition(ctx context.Context, t risk.Transition) error
}

// Config configures the poll cadence.
type Config struct {
	Enabled      bool
	Interval     time.Duration
	SinceMinutes int
}

// Poller periodically queries the upstream API and reports risk
// transitions. A cycle never lets a failure escape; everything is
// classified into the heartbeat.
type Poller struct {
	devices   DeviceLister
	store     risk.Store
	sink      TransitionSink
	logger    *logging.Logger
	cfg       Config
	heartbeat *Heartbeat

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(devices DeviceLister, store risk.Store, sink TransitionSink, logger *logging.Logger, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.SinceMinutes <= 0 {
		cfg.SinceMinutes = 5
	}

	return &Poller{
		devices:   devices,
		store:     store,
		sink:      sink,
		logger:    logger,
		cfg:       cfg,
		heartbeat: NewHeartbeat(cfg.SinceMinutes, cfg.Interval),
	}
}

// Heartbeat exposes the poll heartbeat for the status endpoint.
func (p *Poller) Heartbeat() *Heartbeat {
	return p.heartbeat
}

// Start runs one poll immediately and then on a fixed interval. When
// the upstream credential is not configured no timer is armed; the
// heartbeat reports the disabled state instead.
func (p *Poller) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		p.heartbeat.recordDisabled()
		p.logger.Warn("lookout app key not set; polling is disabled")
		return nil
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.logger.Info("starting lookout polling",
		"interval", p.cfg.Interval.String(),
		"window_minutes", p.cfg.SinceMinutes,
	)

	p.wg.Add(1)
	go p.run(ctx)

	return nil
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("lookout polling stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce performs one full poll cycle. A cycle is "ok" once the
// device listing is retrieved and processed; individual delivery
// failures downstream do not fail the cycle.
func (p *Poller) PollOnce(ctx context.Context) {
	since := time.Now().Add(-time.Duration(p.cfg.SinceMinutes) * time.Minute)

	list, err := p.devices.ListDevices(ctx, since)
	if err != nil {
		p.heartbeat.recordError(err)
		metrics.PollsTotal.WithLabelValues(ResultError).Inc()
		p.logger.Error("poll cycle failed", "error", err)
		return
	}

	metrics.DevicesSeenTotal.Add(float64(len(list.Devices)))
	p.logger.Debug("received devices from lookout",
		"devices", len(list.Devices),
		"count", list.Count,
	)

	for _, d := range list.Devices {
		p.processDevice(ctx, d)
	}

	p.heartbeat.recordOK()
	metrics.PollsTotal.WithLabelValues(ResultOK).Inc()
}

func (p *Poller) processDevice(ctx context.Context, d lookout.Device) {
	if d.Email == "" || d.SecurityStatus == "" {
		p.logger.Debug("skipping device with missing email or security_status",
			"guid", d.GUID,
			"email", d.Email,
			"security_status", d.SecurityStatus,
		)
		return
	}

	current := risk.LevelFromSecurityStatus(d.SecurityStatus)

	previous, err := p.store.Get(ctx, d.Email)
	if err != nil {
		p.logger.Error("risk store read failed", "subject", d.Email, "error", err)
		return
	}
	if previous == current {
		return
	}

	// Advance the stored level before attempting delivery so a failed
	// delivery is not re-reported on every subsequent cycle.
	if err := p.store.Set(ctx, d.Email, current); err != nil {
		p.logger.Error("risk store write failed", "subject", d.Email, "error", err)
		return
	}
	metrics.TransitionsTotal.Inc()

	t := risk.Transition{
		Subject:    d.Email,
		Previous:   previous,
		Current:    current,
		Reason:     fmt.Sprintf("Lookout security_status=%s for %s", d.SecurityStatus, d.Email),
		OccurredAt: observedAt(d.UpdatedTime),
	}

	if err := p.sink.HandleTransition(ctx, t); err != nil {
		p.logger.Error("failed to relay risk transition",
			"subject", d.Email,
			"security_status", d.SecurityStatus,
			"current_level", current.String(),
			"error", err,
		)
		return
	}

	p.logger.Info("relayed risk transition",
		"subject", d.Email,
		"security_status", d.SecurityStatus,
		"previous_level", previous.String(),
		"current_level", current.String(),
	)
}

func observedAt(updatedTime string) time.Time {
	if updatedTime != "" {
		if ts, err := time.Parse(time.RFC3339, updatedTime); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}
