package syncer

import (
	"context"
	"fmt"
	"log/slog"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/apierrors"
	"github.com/vitalsync/server/pkg/crypto"
	"github.com/vitalsync/server/pkg/garmin"
)

// SessionManager restores and persists a user's provider session. The
// provider may rotate tokens silently on use, so Persist must run after
// every successful use of a session, including partial failures —
// refreshed tokens are never lost.
type SessionManager struct {
	DB     shared.Database
	Vault  *crypto.Vault
	Logger *slog.Logger

	// Dial builds a provider client around a restored session. Tests
	// substitute a mock here.
	Dial func(*garmin.Session) Provider
}

// Restore loads the user's connection document, decrypts and
// deserializes the session, and resolves the account display identifier
// through its fallback chain. Returns ErrNotConnected when there is no
// active connection so callers can prompt re-authentication instead of
// retrying.
func (m *SessionManager) Restore(ctx context.Context, userID string) (Provider, error) {
	cfg, err := m.DB.GetGarminConfig(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load garmin config: %w", err)
	}
	if !cfg.Connected || cfg.EncryptedSession == "" {
		return nil, apierrors.ErrNotConnected
	}

	sessionJSON, err := m.Vault.Decrypt(cfg.EncryptedSession)
	if err != nil {
		// Undecryptable session: the stored credential is unusable and
		// the user must log in again.
		return nil, fmt.Errorf("%w: %v", apierrors.ErrSessionExpired, err)
	}
	session, err := garmin.RestoreSession(sessionJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrSessionExpired, err)
	}

	p := m.Dial(session)
	m.resolveDisplayName(ctx, userID, cfg.DisplayName, p)
	return p, nil
}

// resolveDisplayName resolves the identifier addressing the provider's
// per-account paths: stored value, then profile lookup, then social
// profile, then explicit unresolved (sync proceeds best-effort). A newly
// resolved name is written back so later restores skip the lookups.
func (m *SessionManager) resolveDisplayName(ctx context.Context, userID, stored string, p Provider) {
	if stored != "" {
		p.SetDisplayName(stored)
		return
	}
	if p.Session().DisplayName != "" {
		return
	}

	name := Fetch("get_full_name", func() (string, error) { return p.FullName(ctx) }).
		OrDefault(m.Logger, "")
	if name == "" {
		profile := Fetch("get_social_profile", func() (map[string]any, error) { return p.SocialProfile(ctx) }).
			OrDefault(m.Logger, nil)
		if s, ok := profile["displayName"].(string); ok {
			name = s
		}
	}
	if name == "" {
		m.Logger.Warn("Display name unresolved, syncing best-effort", "user_id", userID)
		return
	}

	p.SetDisplayName(name)
	if err := m.DB.UpdateGarminConfig(ctx, userID, map[string]any{"displayName": name}); err != nil {
		m.Logger.Warn("Failed to cache display name", "user_id", userID, "error", err)
	}
}

// Persist re-encrypts the provider's current session state and stamps
// lastSyncAt.
func (m *SessionManager) Persist(ctx context.Context, userID string, p Provider) error {
	sessionJSON, err := p.Session().Marshal()
	if err != nil {
		return fmt.Errorf("serialize session: %w", err)
	}
	encrypted, err := m.Vault.Encrypt(sessionJSON)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	return m.DB.UpdateGarminConfig(ctx, userID, map[string]any{
		"garthSession": encrypted,
		"lastSyncAt":   shared.ServerTimestamp,
	})
}
