package qrclient

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionStores(t *testing.T) {
	stores := map[string]func(t *testing.T) SessionStore{
		"memory": func(t *testing.T) SessionStore {
			return &MemorySessionStore{}
		},
		"file": func(t *testing.T) SessionStore {
			return &FileSessionStore{Path: filepath.Join(t.TempDir(), "session.json")}
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("empty store", func(t *testing.T) {
				store := newStore(t)

				_, err := store.Get()

				require.ErrorIs(t, err, ErrNoSession)
			})

			t.Run("set and get", func(t *testing.T) {
				store := newStore(t)
				session := Session{
					AccessToken:  "access",
					RefreshToken: "refresh",
					ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
				}

				require.NoError(t, store.Set(session))

				got, err := store.Get()
				require.NoError(t, err)
				require.Equal(t, session.AccessToken, got.AccessToken)
				require.Equal(t, session.RefreshToken, got.RefreshToken)
				require.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
			})

			t.Run("expired session", func(t *testing.T) {
				store := newStore(t)
				require.NoError(t, store.Set(Session{
					AccessToken: "stale",
					ExpiresAt:   time.Now().Add(-time.Minute),
				}))

				_, err := store.Get()

				require.ErrorIs(t, err, ErrSessionExpired, "dead tokens must not be handed out")
			})

			t.Run("clear", func(t *testing.T) {
				store := newStore(t)
				require.NoError(t, store.Set(Session{
					AccessToken: "access",
					ExpiresAt:   time.Now().Add(time.Hour),
				}))

				require.NoError(t, store.Clear())
				require.NoError(t, store.Clear(), "clearing twice should be fine")

				_, err := store.Get()
				require.ErrorIs(t, err, ErrNoSession)
			})
		})
	}
}
