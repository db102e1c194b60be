package storage

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CredentialStore persists the Haven session token triple. There is at
// most one stored session; Save overwrites it as a whole.
type CredentialStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewCredentialStore creates a credential store on an opened database.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Load returns the stored token triple. ok is false when no session has
// been persisted yet.
func (s *CredentialStore) Load() (token, refreshToken string, userID int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow(`
		SELECT token, refresh_token, user_id FROM credentials WHERE id = 1
	`).Scan(&token, &refreshToken, &userID)

	if err == sql.ErrNoRows {
		return "", "", 0, false, nil
	}
	if err != nil {
		return "", "", 0, false, err
	}

	return token, refreshToken, userID, true, nil
}

// Save stores the token triple, replacing any previous session.
func (s *CredentialStore) Save(token, refreshToken string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Unix()

	_, err := s.db.Exec(`
		INSERT INTO credentials (id, token, refresh_token, user_id, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			refresh_token = excluded.refresh_token,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at
	`, token, refreshToken, userID, now)

	if err == nil {
		log.Debug().Int64("user_id", userID).Msg("Credentials persisted")
	}

	return err
}

// Clear removes the stored session.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`)
	return err
}
