// Package poll drives the pull-based state refresh: Haven has no push
// channel, so the daemon periodically re-fetches every location's
// device list and logs observed state transitions.
package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/havend/internal/haven"
)

// Poller periodically forces a device refresh for every discovered
// location. Refresh failures inside the registry are logged there and
// never stop the loop.
type Poller struct {
	client   *haven.Client
	interval time.Duration

	lastOn map[int64]bool
}

// New creates a poller. A zero interval defaults to one minute.
func New(client *haven.Client, interval time.Duration) *Poller {
	if interval == 0 {
		interval = time.Minute
	}
	return &Poller{
		client:   client,
		interval: interval,
		lastOn:   make(map[int64]bool),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.interval).Msg("Starting device state poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First sweep immediately so state is fresh right after startup.
	p.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	total := 0
	for _, loc := range p.client.Locations() {
		loc.RefreshDevices(ctx, true)
		for id, light := range loc.Lights(ctx) {
			total++
			p.observe(id, light)
		}
	}
	log.Debug().Int("devices", total).Msg("Poll sweep completed")
}

// observe logs on/off transitions between sweeps.
func (p *Poller) observe(id int64, light *haven.Light) {
	isOn := light.IsOn()
	prev, seen := p.lastOn[id]
	p.lastOn[id] = isOn

	if seen && prev != isOn {
		log.Info().
			Int64("device", id).
			Str("name", light.Name()).
			Bool("on", isOn).
			Msg("Device state changed")
	}
}
