package tokenstore

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// ErrNoCredentials is returned when no credential pair is stored.
var ErrNoCredentials = errors.New("no credentials stored")

// Horizon is the fixed client-side expiry applied to every saved pair. It is
// independent of the server-side token lifetime; only the server can truly
// invalidate a token, so Read returns pairs past the horizon and leaves
// enforcement to the caller.
const Horizon = 7 * 24 * time.Hour

// Pair is the current access/refresh credential pair.
type Pair struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the pair is past its client-side horizon.
func (p *Pair) Expired() bool {
	return time.Now().After(p.ExpiresAt)
}

// Store persists the credential pair on the local filesystem. It has no
// network access; it is the only component that touches the underlying file.
type Store struct {
	baseDir string
}

// New creates a credential store rooted at baseDir.
// If baseDir is empty, uses ~/.crmsync/
func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".crmsync")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("token store initialized")

	return &Store{baseDir: baseDir}, nil
}

// Save persists both tokens with the fixed expiry horizon, overwriting any
// existing pair.
func (s *Store) Save(access, refresh string) error {
	pair := Pair{
		Access:    access,
		Refresh:   refresh,
		ExpiresAt: time.Now().UTC().Add(Horizon),
	}

	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write to temp file first, then rename for an atomic replace.
	path := s.path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	log.Debug().
		Str("fingerprint", Fingerprint(access)).
		Time("expiresAt", pair.ExpiresAt).
		Msg("credentials saved")

	return nil
}

// Read returns the stored pair, regardless of expiry.
// Returns ErrNoCredentials when nothing is stored.
func (s *Store) Read() (*Pair, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	if pair.Access == "" || pair.Refresh == "" {
		return nil, ErrNoCredentials
	}

	return &pair, nil
}

// Clear removes the stored pair. Succeeds when none was present.
func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	log.Debug().Msg("credentials cleared")

	return nil
}

// AccessToken returns the current access token, if any. It satisfies the API
// client's token source without exposing the refresh token.
func (s *Store) AccessToken() (string, bool) {
	pair, err := s.Read()
	if err != nil {
		return "", false
	}
	return pair.Access, true
}

func (s *Store) path() string {
	return filepath.Join(s.baseDir, "credentials.json")
}

// Fingerprint returns a short identifier for a token that is safe to log:
// the Base58-encoded SHA256 of the token value.
func Fingerprint(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:8])
}
