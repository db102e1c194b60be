package poll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/havend/internal/haven"
)

// togglingCloud flips the porch light state on every listing, so each
// sweep observes a transition.
type togglingCloud struct {
	mu    sync.Mutex
	isOn  bool
	lists int
}

func (f *togglingCloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/Auth/Authenticate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": "tok", "refreshToken": "ref", "id": 7})
	})
	mux.HandleFunc("/user/GetUserInfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"defaultLocationId": 28513})
	})
	mux.HandleFunc("/LightAndZones/OrderedList/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.isOn = !f.isOn
		f.lists++
		isOn := f.isOn
		f.mu.Unlock()
		json.NewEncoder(w).Encode([]map[string]any{{
			"id":                100,
			"name":              "Porch",
			"isOn":              isOn,
			"lightBrightnessId": 7,
			"isZone":            true,
		}})
	})
	mux.HandleFunc("/Group/AllGroupsByLocation/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	})
	return mux
}

func (f *togglingCloud) listings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func pollerClient(t *testing.T, url string) *haven.Client {
	t.Helper()
	client := haven.NewClient(url, url, 0)
	ctx := context.Background()
	if ok, err := client.Authenticate(ctx, "user@example.com", "hunter2"); err != nil || !ok {
		t.Fatalf("Authenticate: ok=%v err=%v", ok, err)
	}
	if _, err := client.DiscoverLocations(ctx); err != nil {
		t.Fatalf("DiscoverLocations: %v", err)
	}
	return client
}

func TestSweepForcesRefresh(t *testing.T) {
	cloud := &togglingCloud{}
	srv := httptest.NewServer(cloud.handler())
	defer srv.Close()

	p := New(pollerClient(t, srv.URL), time.Minute)

	// Back-to-back sweeps must both hit upstream: forced refreshes
	// bypass the registry's debounce.
	p.sweep(context.Background())
	p.sweep(context.Background())

	if n := cloud.listings(); n != 2 {
		t.Errorf("upstream listed %d times, want 2", n)
	}
}

func TestObserveTracksTransitions(t *testing.T) {
	cloud := &togglingCloud{}
	srv := httptest.NewServer(cloud.handler())
	defer srv.Close()

	client := pollerClient(t, srv.URL)
	p := New(client, time.Minute)

	p.sweep(context.Background())
	if on, seen := p.lastOn[100], true; !seen || !on {
		t.Fatalf("first sweep did not record state: on=%v", on)
	}

	// Upstream toggles each listing, so the next sweep flips the record.
	p.sweep(context.Background())
	if p.lastOn[100] {
		t.Error("transition not tracked across sweeps")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cloud := &togglingCloud{}
	srv := httptest.NewServer(cloud.handler())
	defer srv.Close()

	p := New(pollerClient(t, srv.URL), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
