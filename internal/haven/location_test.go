package haven

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// locationFixture serves configurable zone and group listings.
type locationFixture struct {
	mu         sync.Mutex
	zones      []map[string]any
	groups     []map[string]any
	zoneCalls  int
	groupCalls int
	failZones  bool
	failGroups bool
	wrapInData bool
}

func (f *locationFixture) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/LightAndZones/OrderedList/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.zoneCalls++
		if f.failZones {
			http.Error(w, "zones unavailable", http.StatusInternalServerError)
			return
		}
		f.writeList(w, f.zones)
	})
	mux.HandleFunc("/Group/AllGroupsByLocation/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.groupCalls++
		if f.failGroups {
			http.Error(w, "groups unavailable", http.StatusInternalServerError)
			return
		}
		f.writeList(w, f.groups)
	})
	return mux
}

func (f *locationFixture) writeList(w http.ResponseWriter, items []map[string]any) {
	if f.wrapInData {
		json.NewEncoder(w).Encode(map[string]any{"data": items})
		return
	}
	json.NewEncoder(w).Encode(items)
}

func (f *locationFixture) calls() (zones, groups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zoneCalls, f.groupCalls
}

func zoneRow(id int64, name string, isOn bool, brightness int) map[string]any {
	return map[string]any{
		"id":                id,
		"name":              name,
		"isOn":              isOn,
		"lightBrightnessId": brightness,
		"isZone":            true,
		"locationName":      "Crescenti Oasis",
	}
}

func groupRow(id int64, name string, isOn bool, brightness int) map[string]any {
	return map[string]any{
		"groupId":      id,
		"groupName":    name,
		"isOn":         isOn,
		"brightnessId": brightness,
	}
}

func fixtureLocation(f *locationFixture, t *testing.T) (*Location, func()) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	c := authedClient(srv.URL)
	return newLocation(c, 28513, "Ada Lovelace"), srv.Close
}

func TestRefreshDevicesMergesZonesAndGroups(t *testing.T) {
	f := &locationFixture{
		zones: []map[string]any{
			zoneRow(100, "Porch", true, 7),
			{"id": 900, "name": "Header Row", "isZone": false},
		},
		groups: []map[string]any{
			groupRow(200, "Backyard", false, 4),
		},
	}
	loc, done := fixtureLocation(f, t)
	defer done()

	loc.RefreshDevices(context.Background(), true)

	lights := loc.Lights(context.Background())
	if len(lights) != 2 {
		t.Fatalf("got %d devices, want 2 (non-zone rows skipped)", len(lights))
	}

	porch := lights[100]
	if porch == nil || porch.Kind() != KindZone || !porch.IsOn() || porch.Brightness() != 7 {
		t.Errorf("zone not projected correctly: %+v", porch)
	}
	backyard := lights[200]
	if backyard == nil || backyard.Kind() != KindGroup || backyard.IsOn() || backyard.Brightness() != 4 {
		t.Errorf("group not projected correctly: %+v", backyard)
	}
	if backyard.Name() != "Backyard" {
		t.Errorf("group name = %q", backyard.Name())
	}
}

func TestRefreshDevicesUpsertIsIdempotent(t *testing.T) {
	f := &locationFixture{
		zones:  []map[string]any{zoneRow(100, "Porch", true, 7)},
		groups: []map[string]any{groupRow(200, "Backyard", false, 4)},
	}
	loc, done := fixtureLocation(f, t)
	defer done()

	loc.RefreshDevices(context.Background(), true)
	first := loc.Lights(context.Background())

	loc.RefreshDevices(context.Background(), true)
	second := loc.Lights(context.Background())

	if len(first) != len(second) {
		t.Fatalf("device set drifted: %d -> %d", len(first), len(second))
	}
	for id, light := range first {
		// Identity must be preserved: same *Light, same state.
		if second[id] != light {
			t.Errorf("device %d was replaced instead of updated in place", id)
		}
	}
	if p := second[100]; !p.IsOn() || p.Brightness() != 7 || p.Name() != "Porch" {
		t.Errorf("device state drifted after identical refresh: %+v", p)
	}
}

func TestRefreshDevicesUpdatesInPlace(t *testing.T) {
	f := &locationFixture{
		zones: []map[string]any{zoneRow(100, "Porch", true, 7)},
	}
	loc, done := fixtureLocation(f, t)
	defer done()

	loc.RefreshDevices(context.Background(), true)
	light, _ := loc.Light(100)

	f.mu.Lock()
	f.zones = []map[string]any{zoneRow(100, "Front Porch", false, 2)}
	f.mu.Unlock()

	loc.RefreshDevices(context.Background(), true)

	updated, _ := loc.Light(100)
	if updated != light {
		t.Fatal("refresh replaced the device instead of updating it")
	}
	if light.Name() != "Front Porch" || light.IsOn() || light.Brightness() != 2 {
		t.Errorf("mutable fields not updated: name=%q on=%v bri=%d", light.Name(), light.IsOn(), light.Brightness())
	}
}

func TestRefreshDevicesDebounce(t *testing.T) {
	f := &locationFixture{zones: []map[string]any{zoneRow(100, "Porch", true, 7)}}
	loc, done := fixtureLocation(f, t)
	defer done()

	loc.RefreshDevices(context.Background(), false)
	loc.RefreshDevices(context.Background(), false) // within 5s, debounced

	if zones, groups := f.calls(); zones != 1 || groups != 1 {
		t.Errorf("debounced refresh still fetched: zones=%d groups=%d, want 1/1", zones, groups)
	}

	loc.RefreshDevices(context.Background(), true) // force bypasses the debounce

	if zones, _ := f.calls(); zones != 2 {
		t.Errorf("forced refresh did not fetch: zones=%d, want 2", zones)
	}
}

func TestRefreshDevicesPartialFailure(t *testing.T) {
	f := &locationFixture{
		zones:      []map[string]any{zoneRow(100, "Porch", true, 7)},
		groups:     []map[string]any{groupRow(200, "Backyard", false, 4)},
		failGroups: true,
	}
	loc, done := fixtureLocation(f, t)
	defer done()

	loc.RefreshDevices(context.Background(), true)

	lights := loc.Lights(context.Background())
	if len(lights) != 1 || lights[100] == nil {
		t.Fatalf("zone fetch result lost when group fetch failed: %d devices", len(lights))
	}
}

func TestRefreshDevicesWrappedResponses(t *testing.T) {
	f := &locationFixture{
		zones:      []map[string]any{zoneRow(100, "Porch", true, 7)},
		groups:     []map[string]any{groupRow(200, "Backyard", false, 4)},
		wrapInData: true,
	}
	loc, done := fixtureLocation(f, t)
	defer done()

	loc.RefreshDevices(context.Background(), true)

	if lights := loc.Lights(context.Background()); len(lights) != 2 {
		t.Errorf("data-wrapped listings not parsed: %d devices", len(lights))
	}
}

func TestLightsTriggersInitialRefresh(t *testing.T) {
	f := &locationFixture{zones: []map[string]any{zoneRow(100, "Porch", true, 7)}}
	loc, done := fixtureLocation(f, t)
	defer done()

	lights := loc.Lights(context.Background())
	if len(lights) != 1 {
		t.Fatalf("empty registry did not self-populate: %d devices", len(lights))
	}
	if zones, _ := f.calls(); zones != 1 {
		t.Errorf("Lights() fetched %d times, want 1", zones)
	}

	// A second call serves from the registry without fetching.
	loc.Lights(context.Background())
	if zones, _ := f.calls(); zones != 1 {
		t.Errorf("Lights() refetched despite populated registry")
	}
}

func TestLocationNameResolution(t *testing.T) {
	c := testClient("http://unreachable.invalid")

	// Tier 3: no data at all, raw id
	loc := newLocation(c, 28513, "")
	if loc.Name() != "28513" {
		t.Errorf("Name() = %q, want raw id fallback", loc.Name())
	}

	// Tier 2: owner name
	loc = newLocation(c, 28513, "Ada Lovelace")
	if loc.Name() != "Ada Lovelace" {
		t.Errorf("Name() = %q, want owner name", loc.Name())
	}

	// Tier 1: real name from the zone listing, first observation wins
	loc.setRealName("Crescenti Oasis")
	if loc.Name() != "Crescenti Oasis" {
		t.Errorf("Name() = %q, want real location name", loc.Name())
	}
	loc.setRealName("Renamed Later")
	if loc.Name() != "Crescenti Oasis" {
		t.Errorf("first-observed name was overwritten: %q", loc.Name())
	}
}

func TestDiscoverLocations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/GetUserInfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"defaultLocationId": 28513,
			"firstName":         "Ada",
			"lastName":          "Lovelace",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := authedClient(srv.URL)
	locations, err := c.DiscoverLocations(context.Background())
	if err != nil {
		t.Fatalf("DiscoverLocations: %v", err)
	}
	if len(locations) != 1 {
		t.Fatalf("got %d locations, want 1", len(locations))
	}

	loc := locations[28513]
	if loc == nil {
		t.Fatal("default location missing")
	}
	if loc.Name() != "Ada Lovelace" {
		t.Errorf("owner name not used: %q", loc.Name())
	}

	// Re-discovery must preserve the existing Location object.
	again, err := c.DiscoverLocations(context.Background())
	if err != nil {
		t.Fatalf("DiscoverLocations (second): %v", err)
	}
	if again[28513] != loc {
		t.Error("re-discovery replaced the location object")
	}
}

func TestDiscoverLocationsNoDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/GetUserInfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"firstName": "Ada"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := authedClient(srv.URL)
	locations, err := c.DiscoverLocations(context.Background())
	if err != nil {
		t.Fatalf("DiscoverLocations: %v", err)
	}
	if len(locations) != 0 {
		t.Errorf("got %d locations without a default id, want 0", len(locations))
	}
}

func TestDiscoverLocationsRequiresAuth(t *testing.T) {
	c := testClient("http://unreachable.invalid")
	_, err := c.DiscoverLocations(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("want ErrAuthentication, got %v", err)
	}
}

func TestClientLightLookup(t *testing.T) {
	f := &locationFixture{zones: []map[string]any{zoneRow(100, "Porch", true, 7)}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c := authedClient(srv.URL)
	c.mu.Lock()
	c.locations[28513] = newLocation(c, 28513, "Ada")
	c.mu.Unlock()

	loc, _ := c.Location(28513)
	loc.RefreshDevices(context.Background(), true)

	light, err := c.Light(100)
	if err != nil {
		t.Fatalf("Light: %v", err)
	}
	if light.Name() != "Porch" {
		t.Errorf("wrong device resolved: %q", light.Name())
	}

	if _, err := c.Light(999); !errors.Is(err, ErrDevice) {
		t.Errorf("unknown device: want ErrDevice, got %v", err)
	}
}
