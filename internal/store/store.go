// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// profileNameRe restricts profile names to filesystem-safe tokens.
var profileNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// FileSessionStore persists browser session state (cookies) as JSON files
// under a single directory, one file per named profile. Consumed only at
// task boundaries.
type FileSessionStore struct {
	dir    string
	logger *zap.Logger
}

var _ schemas.SessionStore = (*FileSessionStore)(nil)

// NewFileSessionStore creates the store, ensuring the directory exists.
func NewFileSessionStore(dir string, logger *zap.Logger) (*FileSessionStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}
	return &FileSessionStore{
		dir:    dir,
		logger: logger.Named("session_store"),
	}, nil
}

func (s *FileSessionStore) path(name string) (string, error) {
	if !profileNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid session profile name %q", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Save writes the profile's state, replacing any previous content.
func (s *FileSessionStore) Save(ctx context.Context, state schemas.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(state.Name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}

	s.logger.Info("Session state saved.", zap.String("profile", state.Name), zap.Int("cookies", len(state.Cookies)))
	return nil
}

// Load reads a named profile, returning schemas.ErrSessionNotFound when the
// profile has never been saved.
func (s *FileSessionStore) Load(ctx context.Context, name string) (schemas.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return schemas.SessionState{}, err
	}
	path, err := s.path(name)
	if err != nil {
		return schemas.SessionState{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.SessionState{}, schemas.ErrSessionNotFound
		}
		return schemas.SessionState{}, fmt.Errorf("failed to read session state: %w", err)
	}

	var state schemas.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return schemas.SessionState{}, fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	s.logger.Info("Session state loaded.", zap.String("profile", name), zap.Int("cookies", len(state.Cookies)))
	return state, nil
}
