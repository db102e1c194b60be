package haven

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// refreshDebounce bounds how often a location re-fetches its device
// list. Forced refreshes bypass it.
const refreshDebounce = 5 * time.Second

// Location is a Haven site owning a set of controllable devices.
// Devices are merged from two upstream collections (individual zones
// and groups) and updated in place across refreshes so device identity
// is stable for the lifetime of the process.
type Location struct {
	client *Client
	id     int64

	mu          sync.RWMutex
	ownerName   string
	realName    string // first locationName observed in a zone list, never overwritten
	lights      map[int64]*Light
	lastRefresh time.Time
}

func newLocation(client *Client, id int64, ownerName string) *Location {
	return &Location{
		client:    client,
		id:        id,
		ownerName: ownerName,
		lights:    make(map[int64]*Light),
	}
}

// ID returns the stable location id.
func (loc *Location) ID() int64 { return loc.id }

// Name resolves the display name: the real location name reported by
// the device listing, then the account owner's name, then the raw id.
func (loc *Location) Name() string {
	loc.mu.RLock()
	defer loc.mu.RUnlock()
	switch {
	case loc.realName != "":
		return loc.realName
	case loc.ownerName != "":
		return loc.ownerName
	default:
		return strconv.FormatInt(loc.id, 10)
	}
}

// RefreshDevices re-fetches the location's zones and groups, updating
// known devices in place and inserting newly discovered ones. The two
// fetches are independent: if one fails it is logged and the other
// still applies, so the device set reflects whatever succeeded.
//
// Unless force is set, calls within 5 seconds of the last refresh are
// no-ops.
func (loc *Location) RefreshDevices(ctx context.Context, force bool) {
	loc.mu.Lock()
	if !force && time.Since(loc.lastRefresh) < refreshDebounce {
		loc.mu.Unlock()
		return
	}
	loc.mu.Unlock()

	if err := loc.fetchZones(ctx); err != nil {
		log.Error().Err(err).Int64("location", loc.id).Msg("Failed to refresh zones")
	}
	if err := loc.fetchGroups(ctx); err != nil {
		log.Error().Err(err).Int64("location", loc.id).Msg("Failed to refresh groups")
	}

	loc.mu.Lock()
	loc.lastRefresh = time.Now()
	loc.mu.Unlock()
}

func (loc *Location) fetchZones(ctx context.Context) error {
	raw, err := loc.client.request(ctx, http.MethodGet,
		fmt.Sprintf("/LightAndZones/OrderedList/%d", loc.id),
		requestOptions{authRequired: true, prodAPI: true})
	if err != nil {
		return err
	}

	var list listEnvelope[zoneItem]
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("%w: decoding zone list: %w", ErrAPI, err)
	}

	for _, item := range list.Items {
		if item.LocationName != "" {
			loc.setRealName(item.LocationName)
		}
		if !item.IsZone {
			continue
		}
		loc.upsertZone(item)
	}
	return nil
}

func (loc *Location) fetchGroups(ctx context.Context) error {
	raw, err := loc.client.request(ctx, http.MethodGet,
		fmt.Sprintf("/Group/AllGroupsByLocation/%d", loc.id),
		requestOptions{authRequired: true, prodAPI: true})
	if err != nil {
		return err
	}

	var list listEnvelope[groupItem]
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("%w: decoding group list: %w", ErrAPI, err)
	}

	for _, item := range list.Items {
		loc.upsertGroup(item)
	}
	return nil
}

// setRealName records the first observed location name. Later
// observations never overwrite it.
func (loc *Location) setRealName(name string) {
	loc.mu.Lock()
	defer loc.mu.Unlock()
	if loc.realName == "" {
		loc.realName = name
	}
}

func (loc *Location) upsertZone(item zoneItem) {
	kind := KindZone
	if item.Type != "" {
		kind = Kind(item.Type)
	}

	loc.mu.Lock()
	light, ok := loc.lights[item.ID]
	if !ok {
		light = &Light{
			client:     loc.client,
			id:         item.ID,
			locationID: loc.id,
			kind:       kind,
		}
		loc.lights[item.ID] = light
	}
	loc.mu.Unlock()

	light.updateFromZone(item)
	if !ok {
		log.Debug().Int64("device", item.ID).Str("name", item.Name).Str("kind", string(kind)).Msg("Discovered device")
	}
}

func (loc *Location) upsertGroup(item groupItem) {
	loc.mu.Lock()
	light, ok := loc.lights[item.GroupID]
	if !ok {
		light = &Light{
			client:     loc.client,
			id:         item.GroupID,
			locationID: loc.id,
			kind:       KindGroup,
		}
		loc.lights[item.GroupID] = light
	}
	loc.mu.Unlock()

	light.updateFromGroup(item)
	if !ok {
		log.Debug().Int64("device", item.GroupID).Str("name", item.GroupName).Str("kind", string(KindGroup)).Msg("Discovered group")
	}
}

// Lights returns the location's device set, refreshing it first if no
// devices are known yet. The returned map is a snapshot; the *Light
// values inside it are live.
func (loc *Location) Lights(ctx context.Context) map[int64]*Light {
	loc.mu.RLock()
	empty := len(loc.lights) == 0
	loc.mu.RUnlock()

	if empty {
		loc.RefreshDevices(ctx, false)
	}

	loc.mu.RLock()
	defer loc.mu.RUnlock()
	out := make(map[int64]*Light, len(loc.lights))
	for id, light := range loc.lights {
		out[id] = light
	}
	return out
}

// Light returns a device by id, without triggering a refresh.
func (loc *Location) Light(id int64) (*Light, bool) {
	loc.mu.RLock()
	defer loc.mu.RUnlock()
	light, ok := loc.lights[id]
	return light, ok
}

// DiscoverLocations fetches the caller's account info and registers its
// default location. Upstream only ever reports a single default
// location, so the result holds at most one new entry; locations seen
// in earlier calls are preserved, not replaced.
func (c *Client) DiscoverLocations(ctx context.Context) (map[int64]*Location, error) {
	if !c.creds.IsAuthenticated() {
		return nil, fmt.Errorf("%w: authentication required", ErrAuthentication)
	}

	raw, err := c.request(ctx, http.MethodGet, "/user/GetUserInfo", requestOptions{authRequired: true, prodAPI: true})
	if err != nil {
		return nil, err
	}

	var info userInfoResponse
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: decoding user info: %w", ErrAPI, err)
	}

	if info.DefaultLocationID != nil {
		id := *info.DefaultLocationID
		owner := strings.TrimSpace(info.FirstName + " " + info.LastName)

		c.mu.Lock()
		if existing, ok := c.locations[id]; ok {
			existing.mu.Lock()
			existing.ownerName = owner
			existing.mu.Unlock()
		} else {
			c.locations[id] = newLocation(c, id, owner)
			log.Info().Int64("location", id).Str("owner", owner).Msg("Discovered location")
		}
		c.mu.Unlock()
	}

	return c.Locations(), nil
}

// Locations returns a snapshot of the discovered locations.
func (c *Client) Locations() map[int64]*Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]*Location, len(c.locations))
	for id, loc := range c.locations {
		out[id] = loc
	}
	return out
}

// Location returns a discovered location by id.
func (c *Client) Location(id int64) (*Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.locations[id]
	return loc, ok
}

// Light finds a device by id across all discovered locations.
func (c *Client) Light(id int64) (*Light, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, loc := range c.locations {
		if light, ok := loc.Light(id); ok {
			return light, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown device %d", ErrDevice, id)
}
