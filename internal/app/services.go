package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/havend/internal/config"
	"github.com/dokzlo13/havend/internal/haven"
	"github.com/dokzlo13/havend/internal/httpapi"
	"github.com/dokzlo13/havend/internal/poll"
	"github.com/dokzlo13/havend/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB        *storage.DB
	CredStore *storage.CredentialStore

	// Haven cloud client
	Haven *haven.Client

	// Background services
	Poller *poll.Poller
	API    *httpapi.Server
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = db

	// Initialize credential store
	s.CredStore = storage.NewCredentialStore(db.DB)

	// Initialize Haven client
	s.Haven = haven.NewClient(
		cfg.Haven.AuthBase,
		cfg.Haven.ProdBase,
		cfg.Haven.Timeout.Duration(),
	)

	// Initialize poller
	if cfg.Poll.Enabled {
		s.Poller = poll.New(s.Haven, cfg.Poll.Interval.Duration())
	}

	// Initialize control API server
	if cfg.API.Enabled {
		s.API = httpapi.NewServer(cfg.API.Host, cfg.API.Port, s.Haven)
	}

	return s, nil
}

// Start establishes the Haven session, performs initial discovery, and
// launches the background services.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.establishSession(ctx); err != nil {
		return err
	}

	locations, err := s.Haven.DiscoverLocations(ctx)
	if err != nil {
		return fmt.Errorf("location discovery failed: %w", err)
	}
	if len(locations) == 0 {
		log.Warn().Msg("No locations discovered for this account")
	}
	for _, loc := range locations {
		loc.RefreshDevices(ctx, true)
		log.Info().
			Int64("location", loc.ID()).
			Str("name", loc.Name()).
			Int("devices", len(loc.Lights(ctx))).
			Msg("Location ready")
	}

	if s.Poller != nil {
		go func() {
			if err := s.Poller.Run(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("Poller error")
			}
		}()
	}

	if s.API != nil {
		go func() {
			if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				log.Error().Err(err).Msg("Control API server error")
				if onFatalError != nil {
					onFatalError(err)
				}
			}
		}()
	}

	return nil
}

// establishSession resumes a persisted session via token refresh when
// possible, and falls back to password authentication otherwise. The
// resulting token triple is persisted for the next restart.
func (s *Services) establishSession(ctx context.Context) error {
	token, refreshToken, userID, ok, err := s.CredStore.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stored credentials")
	} else if ok {
		s.Haven.Credentials().Restore(token, refreshToken, userID)
		if s.Haven.Refresh(ctx) {
			log.Info().Msg("Resumed session from stored credentials")
			return s.persistCredentials()
		}
		log.Warn().Msg("Stored session expired, falling back to password authentication")
	}

	authenticated, err := s.Haven.Authenticate(ctx, s.cfg.Haven.Email, s.cfg.Haven.Password)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if !authenticated {
		return fmt.Errorf("authentication rejected for %s", s.cfg.Haven.Email)
	}

	return s.persistCredentials()
}

func (s *Services) persistCredentials() error {
	token, refreshToken, userID := s.Haven.Credentials().Snapshot()
	if err := s.CredStore.Save(token, refreshToken, userID); err != nil {
		// Persistence is best-effort: the in-memory session still works.
		log.Warn().Err(err).Msg("Failed to persist credentials")
	}
	return nil
}

// Stop releases all resources.
func (s *Services) Stop() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
