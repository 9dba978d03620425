package interview

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Store persists interview sessions.
type Store interface {
	// Save writes one session record.
	Save(session *Session) error

	// Load reads one session by id. Returns os.ErrNotExist when absent.
	Load(id string) (*Session, error)

	// Latest returns the most recently updated session, or nil when the
	// store is empty.
	Latest() (*Session, error)
}

// FileStore keeps one JSON file per session in a directory.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a file-backed session store.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "session-store").Logger(),
	}
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the session atomically via a temp file rename.
func (s *FileStore) Save(session *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := s.path(session.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path(session.ID)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}

	s.logger.Debug().Str("sessionID", session.ID).Int("answers", len(session.Answers)).Msg("Session saved")
	return nil
}

// Load reads one session by id.
func (s *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &session, nil
}

// Latest returns the most recently updated session on disk.
func (s *FileStore) Latest() (*Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var latest *Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		session, err := s.Load(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable session file")
			continue
		}
		if latest == nil || session.UpdatedAt.After(latest.UpdatedAt) {
			latest = session
		}
	}
	return latest, nil
}

// defaultPersistDelays spaces persistence retries: first retry after 2s,
// second after 4 more.
var defaultPersistDelays = []time.Duration{2 * time.Second, 4 * time.Second}

// saveWithRetry attempts a save up to len(delays)+1 times.
func saveWithRetry(store Store, session *Session, delays []time.Duration, logger zerolog.Logger) error {
	var err error
	for attempt := 0; attempt <= len(delays); attempt++ {
		if attempt > 0 {
			time.Sleep(delays[attempt-1])
		}
		if err = store.Save(session); err == nil {
			if attempt > 0 {
				logger.Info().Int("attempt", attempt+1).Str("sessionID", session.ID).Msg("Session save succeeded after retry")
			}
			return nil
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Str("sessionID", session.ID).Msg("Session save failed")
	}
	return err
}
