package garmin

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

// Session is the serializable credential bundle for Garmin Connect.
// It is an explicit value threaded through every call rather than
// process-global state, so per-user isolation is visible at call sites.
// The OAuth2 half rotates silently on use; callers must re-persist the
// session after any successful sequence of calls.
type Session struct {
	OAuth1Token  string        `json:"oauth1_token"`
	OAuth1Secret string        `json:"oauth1_secret"`
	OAuth2       *oauth2.Token `json:"oauth2"`
	DisplayName  string        `json:"display_name,omitempty"`
}

// Marshal serializes the session for encrypted storage.
func (s *Session) Marshal() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return string(b), nil
}

// RestoreSession deserializes a session previously produced by Marshal.
func RestoreSession(data string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if s.OAuth1Token == "" || s.OAuth2 == nil {
		return nil, fmt.Errorf("restore session: incomplete token set")
	}
	return &s, nil
}
