package haven

import (
	"context"
	"math"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind distinguishes the vendor device flavors. It is fixed at creation
// and rides along in every command payload.
type Kind string

const (
	KindZone   Kind = "Zone"
	KindDevice Kind = "Device"
	KindGroup  Kind = "Group"
)

// defaultBrightness is assumed when upstream omits the brightness field.
const defaultBrightness = 10

// Light is a controllable Haven device: an individual zone or a group
// of zones. Identity (id, kind, location) is immutable; the cached
// state fields are updated in place on discovery and optimistically on
// successful commands, so pointers handed out to callers stay valid
// across refreshes.
type Light struct {
	client     *Client
	id         int64
	locationID int64
	kind       Kind

	mu         sync.RWMutex
	name       string
	isOn       bool
	brightness int // vendor 0-10 scale
	colorID    *int
}

// ID returns the device id, unique within its location.
func (l *Light) ID() int64 { return l.id }

// LocationID returns the id of the owning location.
func (l *Light) LocationID() int64 { return l.locationID }

// Kind returns the device kind.
func (l *Light) Kind() Kind { return l.kind }

// Name returns the device name as last reported by upstream.
func (l *Light) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.name
}

// IsOn reports the cached power state.
func (l *Light) IsOn() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isOn
}

// Brightness returns the cached brightness on the vendor 0-10 scale.
func (l *Light) Brightness() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.brightness
}

// DisplayBrightness returns the cached brightness on the 0-255 scale.
func (l *Light) DisplayBrightness() int {
	return DisplayBrightness(l.Brightness())
}

// ColorID returns the cached color id; ok is false when none is known.
func (l *Light) ColorID() (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.colorID == nil {
		return 0, false
	}
	return *l.colorID, true
}

// TurnOn powers the device on and updates the cached state on success.
func (l *Light) TurnOn(ctx context.Context) error {
	if err := l.command(ctx, "/Commands/On", commandPayload{ID: l.id, Type: string(l.kind)}); err != nil {
		return err
	}
	l.mu.Lock()
	l.isOn = true
	l.mu.Unlock()
	return nil
}

// TurnOff powers the device off and updates the cached state on success.
func (l *Light) TurnOff(ctx context.Context) error {
	if err := l.command(ctx, "/Commands/Off", commandPayload{ID: l.id, Type: string(l.kind)}); err != nil {
		return err
	}
	l.mu.Lock()
	l.isOn = false
	l.mu.Unlock()
	return nil
}

// SetBrightness sets the brightness on the vendor 0-10 scale, clamping
// out-of-range values. A successful brightness command implies the
// device is lit, so the cached power state is forced on.
func (l *Light) SetBrightness(ctx context.Context, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 10 {
		level = 10
	}

	if err := l.command(ctx, "/Commands/Brightness", commandPayload{ID: l.id, Type: string(l.kind), Brightness: &level}); err != nil {
		return err
	}
	l.mu.Lock()
	l.brightness = level
	l.isOn = true
	l.mu.Unlock()
	return nil
}

// SetColor selects a vendor palette color or effect by id.
func (l *Light) SetColor(ctx context.Context, colorID int) error {
	if err := l.command(ctx, "/Commands/SetColor", commandPayload{ID: l.id, Type: string(l.kind), ColorID: &colorID}); err != nil {
		return err
	}
	l.mu.Lock()
	l.colorID = &colorID
	l.mu.Unlock()
	return nil
}

func (l *Light) command(ctx context.Context, path string, payload commandPayload) error {
	_, err := l.client.request(ctx, http.MethodPost, path, requestOptions{
		authRequired: true,
		prodAPI:      true,
		body:         payload,
	})
	if err != nil {
		return err
	}
	log.Debug().
		Int64("device", l.id).
		Str("kind", string(l.kind)).
		Str("command", path).
		Msg("Command accepted")
	return nil
}

// updateFromZone refreshes the mutable fields from a zone list item.
func (l *Light) updateFromZone(item zoneItem) {
	l.applyState(item.Name, item.IsOn, item.BrightnessID, item.ColorID)
}

// updateFromGroup refreshes the mutable fields from a group list item.
func (l *Light) updateFromGroup(item groupItem) {
	l.applyState(item.GroupName, item.IsOn, item.BrightnessID, item.ColorID)
}

func (l *Light) applyState(name string, isOn bool, brightness, colorID *int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name != "" {
		l.name = name
	}
	l.isOn = isOn
	if brightness != nil {
		l.brightness = *brightness
	} else {
		l.brightness = defaultBrightness
	}
	if colorID != nil {
		id := *colorID
		l.colorID = &id
	}
}

// DisplayBrightness converts a vendor 0-10 brightness to the 0-255
// display scale.
func DisplayBrightness(level int) int {
	return int(math.Round(float64(level) * 25.5))
}

// VendorBrightness converts a 0-255 display brightness to the vendor
// 0-10 scale. Any non-zero display value maps to at least level 1, so a
// dim-but-lit request can never be turned into "off".
func VendorBrightness(display int) int {
	if display < 0 {
		display = 0
	}
	if display > 255 {
		display = 255
	}
	level := int(math.Round(float64(display) / 25.5))
	if level == 0 && display > 0 {
		level = 1
	}
	return level
}
