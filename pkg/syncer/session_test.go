package syncer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/vitalsync/server/pkg/apierrors"
	"github.com/vitalsync/server/pkg/crypto"
	"github.com/vitalsync/server/pkg/garmin"
	"github.com/vitalsync/server/pkg/testing/mocks"
	"github.com/vitalsync/server/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVault(t *testing.T) *crypto.Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := crypto.NewVault(key)
	require.NoError(t, err)
	return v
}

func testSession() *garmin.Session {
	return &garmin.Session{
		OAuth1Token:  "oauth1-token",
		OAuth1Secret: "oauth1-secret",
		OAuth2:       &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"},
	}
}

func encryptSession(t *testing.T, v *crypto.Vault, s *garmin.Session) string {
	t.Helper()
	data, err := s.Marshal()
	require.NoError(t, err)
	blob, err := v.Encrypt(data)
	require.NoError(t, err)
	return blob
}

func TestRestoreNotConnected(t *testing.T) {
	db := &mocks.MockDatabase{
		GetGarminConfigFunc: func(ctx context.Context, userID string) (*types.GarminConfig, error) {
			return &types.GarminConfig{Connected: false}, nil
		},
	}
	sm := &SessionManager{DB: db, Vault: testVault(t), Logger: testLogger()}

	_, err := sm.Restore(context.Background(), "user-1")
	assert.ErrorIs(t, err, apierrors.ErrNotConnected)
}

func TestRestoreNeverConnected(t *testing.T) {
	// A user with no settings document loads as a zero config, which must
	// surface as not-connected rather than an internal error.
	db := &mocks.MockDatabase{
		GetGarminConfigFunc: func(ctx context.Context, userID string) (*types.GarminConfig, error) {
			return &types.GarminConfig{}, nil
		},
	}
	sm := &SessionManager{DB: db, Vault: testVault(t), Logger: testLogger()}

	_, err := sm.Restore(context.Background(), "user-1")
	assert.ErrorIs(t, err, apierrors.ErrNotConnected)
}

func TestRestoreUndecryptableSession(t *testing.T) {
	db := &mocks.MockDatabase{
		GetGarminConfigFunc: func(ctx context.Context, userID string) (*types.GarminConfig, error) {
			return &types.GarminConfig{Connected: true, EncryptedSession: "not-a-real-blob"}, nil
		},
	}
	sm := &SessionManager{DB: db, Vault: testVault(t), Logger: testLogger()}

	_, err := sm.Restore(context.Background(), "user-1")
	assert.ErrorIs(t, err, apierrors.ErrSessionExpired)
}

func TestRestoreUsesStoredDisplayName(t *testing.T) {
	vault := testVault(t)
	db := &mocks.MockDatabase{
		GetGarminConfigFunc: func(ctx context.Context, userID string) (*types.GarminConfig, error) {
			return &types.GarminConfig{
				Connected:        true,
				EncryptedSession: encryptSession(t, vault, testSession()),
				DisplayName:      "stored-name",
			}, nil
		},
	}
	provider := &mocks.MockProvider{
		FullNameFunc: func(ctx context.Context) (string, error) {
			t.Fatal("profile lookup should be skipped when a name is stored")
			return "", nil
		},
	}
	sm := &SessionManager{
		DB:     db,
		Vault:  vault,
		Logger: testLogger(),
		Dial:   func(s *garmin.Session) Provider { provider.Sess = s; return provider },
	}

	_, err := sm.Restore(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "stored-name", provider.DisplayName)
	assert.Empty(t, db.ConfigUpdates)
}

func TestRestoreResolvesDisplayNameFromSocialProfile(t *testing.T) {
	vault := testVault(t)
	db := &mocks.MockDatabase{
		GetGarminConfigFunc: func(ctx context.Context, userID string) (*types.GarminConfig, error) {
			return &types.GarminConfig{
				Connected:        true,
				EncryptedSession: encryptSession(t, vault, testSession()),
			}, nil
		},
	}
	provider := &mocks.MockProvider{
		SocialProfileFunc: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"displayName": "runner-42"}, nil
		},
	}
	sm := &SessionManager{
		DB:     db,
		Vault:  vault,
		Logger: testLogger(),
		Dial:   func(s *garmin.Session) Provider { provider.Sess = s; return provider },
	}

	_, err := sm.Restore(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "runner-42", provider.DisplayName)

	// Resolved name is written back so later restores skip the lookups.
	require.Len(t, db.ConfigUpdates, 1)
	assert.Equal(t, "runner-42", db.ConfigUpdates[0]["displayName"])
}

func TestRestoreProceedsWithUnresolvedDisplayName(t *testing.T) {
	vault := testVault(t)
	db := &mocks.MockDatabase{
		GetGarminConfigFunc: func(ctx context.Context, userID string) (*types.GarminConfig, error) {
			return &types.GarminConfig{
				Connected:        true,
				EncryptedSession: encryptSession(t, vault, testSession()),
			}, nil
		},
	}
	provider := &mocks.MockProvider{}
	sm := &SessionManager{
		DB:     db,
		Vault:  vault,
		Logger: testLogger(),
		Dial:   func(s *garmin.Session) Provider { provider.Sess = s; return provider },
	}

	_, err := sm.Restore(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, provider.DisplayName)
	assert.Empty(t, db.ConfigUpdates)
}

func TestPersistReencryptsSession(t *testing.T) {
	vault := testVault(t)
	db := &mocks.MockDatabase{}
	provider := &mocks.MockProvider{Sess: testSession()}
	sm := &SessionManager{DB: db, Vault: vault, Logger: testLogger()}

	err := sm.Persist(context.Background(), "user-1", provider)
	require.NoError(t, err)

	require.Len(t, db.ConfigUpdates, 1)
	update := db.ConfigUpdates[0]
	assert.Contains(t, update, "lastSyncAt")

	blob, ok := update["garthSession"].(string)
	require.True(t, ok)
	plaintext, err := vault.Decrypt(blob)
	require.NoError(t, err)
	restored, err := garmin.RestoreSession(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "oauth1-token", restored.OAuth1Token)
	assert.Equal(t, "access", restored.OAuth2.AccessToken)
}
