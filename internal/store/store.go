// Package store persists per-account token records. It is the durable
// mirror of the account registry's live state and runs entirely inside
// the trusted process boundary: files live in a directory private to the
// running user, and record contents are never logged.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kinboard/internal/oauth"
)

// DefaultDir is the default storage directory, relative to the user's
// home directory.
const DefaultDir = ".config/kinboard/accounts"

// Record is the persisted state of one account: the full token set plus
// the metadata the rest of the app needs to render it.
type Record struct {
	// AccountID is the provider's stable identifier for the user.
	AccountID string `json:"account_id"`

	// DisplayName is the provider-reported name.
	DisplayName string `json:"display_name,omitempty"`

	// Email is the account's primary email address.
	Email string `json:"email,omitempty"`

	// AvatarURL is the account's avatar, if any.
	AvatarURL string `json:"avatar_url,omitempty"`

	// Metadata holds user-supplied fields such as nickname and aliases.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Tokens is the account's current token set.
	Tokens *oauth.TokenSet `json:"tokens"`

	// NeedsReauth marks an account whose refresh failed; it stays listed
	// until the user re-authenticates.
	NeedsReauth bool `json:"needs_reauth,omitempty"`

	// UpdatedAt is when the record was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Config configures the store.
type Config struct {
	// Dir is the storage directory. Defaults to ~/.config/kinboard/accounts.
	Dir string

	// FileMode enables file persistence. If false, records are held in
	// memory only (used by tests and ephemeral setups).
	FileMode bool
}

// Store provides durable, mutex-serialized storage of account records.
// Each write lands atomically (temp file + rename) so a reader never
// observes a torn record.
type Store struct {
	mu       sync.RWMutex
	dir      string
	fileMode bool
	records  map[string]*Record // keyed by account id
}

// New creates a store. In file mode the storage directory is created
// with owner-only permissions.
func New(cfg Config) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultDir)
	}

	s := &Store{
		dir:      dir,
		fileMode: cfg.FileMode,
		records:  make(map[string]*Record),
	}

	if cfg.FileMode {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create account storage directory: %w", err)
		}
	}

	return s, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a record, replacing any previous one for the same account
// id. The on-disk write is atomic.
func (s *Store) Save(rec *Record) error {
	if rec == nil || rec.AccountID == "" {
		return errors.New("record must carry an account id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := cloneRecord(rec)
	saved.UpdatedAt = time.Now()
	s.records[rec.AccountID] = saved

	if s.fileMode {
		if err := s.writeRecordFile(saved); err != nil {
			slog.Warn("account record persistence failed",
				"account_id", rec.AccountID,
				"error", err.Error(),
			)
			return fmt.Errorf("failed to persist account record: %w", err)
		}
		slog.Debug("account record stored",
			"account_id", rec.AccountID,
			"has_refresh_token", saved.Tokens != nil && saved.Tokens.RefreshToken != "",
		)
	}

	return nil
}

// Get returns the record for an account id, or false if none exists. In
// file mode a cache miss falls through to disk, so records written by
// another process are visible.
func (s *Store) Get(accountID string) (*Record, bool) {
	s.mu.RLock()
	if rec, ok := s.records[accountID]; ok {
		s.mu.RUnlock()
		return cloneRecord(rec), true
	}
	s.mu.RUnlock()

	if !s.fileMode {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[accountID]; ok {
		return cloneRecord(rec), true
	}

	rec, err := s.readRecordFile(s.recordKey(accountID))
	if err != nil {
		return nil, false
	}
	s.records[accountID] = rec
	return cloneRecord(rec), true
}

// Delete removes an account's record. Idempotent: deleting a missing
// record is not an error.
func (s *Store) Delete(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, accountID)

	if s.fileMode {
		path := s.recordPath(s.recordKey(accountID))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete account record: %w", err)
		}
		slog.Debug("account record deleted", "account_id", accountID)
	}

	return nil
}

// List returns all persisted records. In file mode the directory is
// scanned so records from other processes are included.
func (s *Store) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileMode {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read account storage directory: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			key := entry.Name()[:len(entry.Name())-len(".json")]
			rec, err := s.readRecordFile(key)
			if err != nil {
				slog.Warn("skipping unreadable account record",
					"file", entry.Name(),
					"error", err.Error(),
				)
				continue
			}
			s.records[rec.AccountID] = rec
		}
	}

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Invalidate drops all cached records so the next read goes to disk.
// Called by the directory watcher when another process mutates the store.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
}

// recordKey generates a filesystem-safe key for an account id.
func (s *Store) recordKey(accountID string) string {
	hash := sha256.Sum256([]byte(accountID))
	return hex.EncodeToString(hash[:16])
}

func (s *Store) recordPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// writeRecordFile persists a record with write-to-temp-then-rename so a
// concurrent reader never sees a partial file.
func (s *Store) writeRecordFile(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	path := s.recordPath(s.recordKey(rec.AccountID))

	tmp, err := os.CreateTemp(s.dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to restrict temp file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move record into place: %w", err)
	}

	return nil
}

func (s *Store) readRecordFile(key string) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if rec.AccountID == "" {
		return nil, errors.New("record missing account id")
	}

	return &rec, nil
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	if rec.Tokens != nil {
		tokens := *rec.Tokens
		out.Tokens = &tokens
	}
	return &out
}
