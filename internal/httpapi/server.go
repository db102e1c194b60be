// Package httpapi exposes the local HTTP control surface for havend:
// discovery endpoints for locations and devices, and command endpoints
// that translate host-side values (0-255 brightness, RGB, Kelvin,
// effect names) into Haven vendor commands.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/havend/internal/haven"
)

// Server is the local control API server.
type Server struct {
	addr       string
	client     *haven.Client
	httpServer *http.Server
}

// NewServer creates a new control API server.
func NewServer(host string, port int, client *haven.Client) *Server {
	return &Server{
		addr:   fmt.Sprintf("%s:%d", host, port),
		client: client,
	}
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.withRequestLog(s.routes()),
	}

	log.Info().Str("addr", s.addr).Msg("Starting control API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /locations", s.handleLocations)
	mux.HandleFunc("GET /locations/{id}/devices", s.handleLocationDevices)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("POST /devices/{id}/on", s.handleTurnOn)
	mux.HandleFunc("POST /devices/{id}/off", s.handleTurnOff)
	mux.HandleFunc("POST /devices/{id}/brightness", s.handleBrightness)
	mux.HandleFunc("POST /devices/{id}/color", s.handleColor)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	return mux
}

// withRequestLog tags every request with an id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type locationJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Devices int    `json:"devices"`
}

type deviceJSON struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	LocationID int64  `json:"location_id"`
	IsOn       bool   `json:"is_on"`
	Brightness int    `json:"brightness"` // 0-255 display scale
	ColorID    *int   `json:"color_id,omitempty"`
}

func deviceToJSON(l *haven.Light) deviceJSON {
	d := deviceJSON{
		ID:         l.ID(),
		Name:       l.Name(),
		Kind:       string(l.Kind()),
		LocationID: l.LocationID(),
		IsOn:       l.IsOn(),
		Brightness: l.DisplayBrightness(),
	}
	if id, ok := l.ColorID(); ok {
		d.ColorID = &id
	}
	return d
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"authenticated": s.client.IsAuthenticated(),
	})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	out := []locationJSON{}
	for _, loc := range s.client.Locations() {
		out = append(out, locationJSON{
			ID:      loc.ID(),
			Name:    loc.Name(),
			Devices: len(loc.Lights(r.Context())),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLocationDevices(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location id")
		return
	}
	loc, ok := s.client.Location(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown location")
		return
	}

	out := []deviceJSON{}
	for _, light := range loc.Lights(r.Context()) {
		out = append(out, deviceToJSON(light))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	out := []deviceJSON{}
	for _, loc := range s.client.Locations() {
		for _, light := range loc.Lights(r.Context()) {
			out = append(out, deviceToJSON(light))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "on", func(ctx context.Context, light *haven.Light) error {
		return light.TurnOn(ctx)
	})
}

func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "off", func(ctx context.Context, light *haven.Light) error {
		return light.TurnOff(ctx)
	})
}

type brightnessRequest struct {
	Brightness int `json:"brightness"` // 0-255 display scale
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	var req brightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Brightness < 0 || req.Brightness > 255 {
		writeError(w, http.StatusBadRequest, "brightness must be in [0, 255]")
		return
	}

	level := haven.VendorBrightness(req.Brightness)
	s.runCommand(w, r, "brightness", func(ctx context.Context, light *haven.Light) error {
		return light.SetBrightness(ctx, level)
	})
}

// colorRequest selects a color one of four ways, checked in order:
// an explicit vendor color id, a named effect, a Kelvin white
// temperature, or an RGB triplet snapped to the nearest palette entry.
type colorRequest struct {
	ColorID *int      `json:"color_id,omitempty"`
	Effect  *string   `json:"effect,omitempty"`
	Kelvin  *int      `json:"kelvin,omitempty"`
	RGB     *[3]uint8 `json:"rgb,omitempty"`
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var colorID int
	switch {
	case req.ColorID != nil:
		colorID = *req.ColorID
	case req.Effect != nil:
		id, ok := haven.EffectColorID(*req.Effect)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown effect %q", *req.Effect))
			return
		}
		colorID = id
	case req.Kelvin != nil:
		colorID = haven.ClosestKelvinID(*req.Kelvin)
	case req.RGB != nil:
		colorID = haven.ClosestColorID(req.RGB[0], req.RGB[1], req.RGB[2])
	default:
		writeError(w, http.StatusBadRequest, "one of color_id, effect, kelvin, rgb is required")
		return
	}

	s.runCommand(w, r, "color", func(ctx context.Context, light *haven.Light) error {
		return light.SetColor(ctx, colorID)
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	for _, loc := range s.client.Locations() {
		loc.RefreshDevices(r.Context(), true)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runCommand resolves the device and executes a command against it.
// Command failures are logged and reported; they never bring the
// daemon down.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, *haven.Light) error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	light, err := s.client.Light(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := fn(r.Context(), light); err != nil {
		log.Error().Err(err).Int64("device", id).Str("command", name).Msg("Command failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, deviceToJSON(light))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
