// internal/store/store_test.go
package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func newTestStore(t *testing.T) *FileSessionStore {
	t.Helper()
	s, err := NewFileSessionStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestFileSessionStore_SaveLoadRoundtrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestStore(t)

	state := schemas.SessionState{
		Name: "shopping",
		Cookies: []schemas.CookieRecord{
			{Name: "sid", Value: "abc123", Domain: "example.com", Path: "/", Secure: true, HTTPOnly: true},
			{Name: "theme", Value: "dark", Domain: "example.com", Path: "/"},
		},
	}
	require.NoError(t, s.Save(context.Background(), state))

	loaded, err := s.Load(context.Background(), "shopping")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestFileSessionStore_LoadUnknownProfile(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "never-saved")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrSessionNotFound)
}

func TestFileSessionStore_RejectsUnsafeProfileNames(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"../escape", "a/b", "", "sp ace"} {
		_, err := s.Load(context.Background(), name)
		assert.Error(t, err, name)
	}
	err := s.Save(context.Background(), schemas.SessionState{Name: "../escape"})
	assert.Error(t, err)
}

func TestFileSessionStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save(context.Background(), schemas.SessionState{Name: "p", Cookies: []schemas.CookieRecord{{Name: "old"}}}))
	require.NoError(t, s.Save(context.Background(), schemas.SessionState{Name: "p", Cookies: []schemas.CookieRecord{{Name: "new"}}}))

	loaded, err := s.Load(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "new", loaded.Cookies[0].Name)
}

func TestNewFileSessionStore_RequiresDir(t *testing.T) {
	_, err := NewFileSessionStore("", zap.NewNop())
	require.Error(t, err)
}
