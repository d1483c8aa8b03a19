// Package garmin is an API client for the Garmin Connect wellness API.
// Authentication follows the mobile-app flow: an SSO login yields a
// long-lived OAuth1 token which is exchanged for short-lived OAuth2
// bearer tokens as needed.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://connectapi.garmin.com"
	ssoURL         = "https://sso.garmin.com/sso/embed"
)

// Client is an API client bound to one user's Session.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
}

// NewClient wraps an existing session.
func NewClient(session *Session) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
	}
}

// NewClientWithBase is used by tests to point at a stub server.
func NewClientWithBase(session *Session, baseURL string) *Client {
	c := NewClient(session)
	c.baseURL = baseURL
	return c
}

// Session returns the current session, including any tokens rotated
// since the client was created. Callers persist this after use.
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates with email/password and returns a client holding a
// fresh session. Used only by the login flow; all other paths restore a
// stored session.
func Login(ctx context.Context, email, password string) (*Client, error) {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	return c, c.login(ctx, ssoURL, email, password)
}

// LoginWithBase is the test hook for Login.
func LoginWithBase(ctx context.Context, baseURL, email, password string) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	return c, c.login(ctx, baseURL+"/sso/embed", email, password)
}

func (c *Client) login(ctx context.Context, endpoint, email, password string) error {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusPreconditionFailed || bytes.Contains(body, []byte("MFA")) {
			return fmt.Errorf("garmin MFA required: %s", string(body))
		}
		return fmt.Errorf("garmin login failed (status %d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		OAuth1Token  string `json:"oauth1_token"`
		OAuth1Secret string `json:"oauth1_secret"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	c.session = &Session{
		OAuth1Token:  out.OAuth1Token,
		OAuth1Secret: out.OAuth1Secret,
		OAuth2: &oauth2.Token{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
		},
	}
	return nil
}

// exchange trades the OAuth1 token for a fresh OAuth2 bearer token and
// rotates it into the session.
func (c *Client) exchange(ctx context.Context) error {
	form := url.Values{}
	form.Set("oauth_token", c.session.OAuth1Token)
	form.Set("oauth_token_secret", c.session.OAuth1Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth-service/oauth/exchange/user/2.0", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token exchange failed (status %d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode exchange response: %w", err)
	}

	c.session.OAuth2 = &oauth2.Token{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	return nil
}

// getJSON performs an authenticated GET, refreshing the bearer token on
// expiry or a 401, and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.session == nil || c.session.OAuth2 == nil {
		return fmt.Errorf("no session")
	}
	if !c.session.OAuth2.Valid() {
		if err := c.exchange(ctx); err != nil {
			return err
		}
	}

	resp, err := c.doGet(ctx, path)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.exchange(ctx); err != nil {
			return err
		}
		if resp, err = c.doGet(ctx, path); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session.OAuth2.AccessToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// displayPath builds a per-account path; several wellness endpoints are
// addressed by the account's display name rather than a numeric ID.
func (c *Client) displayPath(format string) (string, error) {
	if c.session.DisplayName == "" {
		return "", fmt.Errorf("display name not resolved")
	}
	return fmt.Sprintf(format, url.PathEscape(c.session.DisplayName)), nil
}

// SetDisplayName records the resolved account display identifier on the
// session so per-account paths can be addressed.
func (c *Client) SetDisplayName(name string) {
	c.session.DisplayName = name
}

// --- Profile lookups ---

// FullName fetches the account holder's name from personal information.
func (c *Client) FullName(ctx context.Context) (string, error) {
	var out struct {
		UserInfo struct {
			FullName string `json:"fullName"`
		} `json:"userInfo"`
	}
	if err := c.getJSON(ctx, "/userprofile-service/userprofile/personal-information", &out); err != nil {
		return "", err
	}
	return out.UserInfo.FullName, nil
}

// SocialProfile fetches the public profile, which carries displayName.
func (c *Client) SocialProfile(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, "/userprofile-service/socialProfile", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Daily metric getters ---

func (c *Client) GetStats(ctx context.Context, date string) (map[string]any, error) {
	path, err := c.displayPath("/usersummary-service/usersummary/daily/%s")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = c.getJSON(ctx, path+"?calendarDate="+date, &out)
	return out, err
}

func (c *Client) GetHeartRates(ctx context.Context, date string) (map[string]any, error) {
	path, err := c.displayPath("/wellness-service/wellness/dailyHeartRate/%s")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = c.getJSON(ctx, path+"?date="+date, &out)
	return out, err
}

func (c *Client) GetSleep(ctx context.Context, date string) (map[string]any, error) {
	path, err := c.displayPath("/wellness-service/wellness/dailySleepData/%s")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = c.getJSON(ctx, path+"?date="+date+"&nonSleepBufferMinutes=60", &out)
	return out, err
}

func (c *Client) GetStress(ctx context.Context, date string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/wellness-service/wellness/dailyStress/"+date, &out)
	return out, err
}

func (c *Client) GetBodyComposition(ctx context.Context, date string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/weight-service/weight/dateRange?startDate="+date+"&endDate="+date, &out)
	return out, err
}

func (c *Client) GetHRV(ctx context.Context, date string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/hrv-service/hrv/"+date, &out)
	return out, err
}

func (c *Client) GetSpO2(ctx context.Context, date string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/wellness-service/wellness/daily/spo2/"+date, &out)
	return out, err
}

func (c *Client) GetRespiration(ctx context.Context, date string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/wellness-service/wellness/daily/respiration/"+date, &out)
	return out, err
}

func (c *Client) GetTrainingReadiness(ctx context.Context, date string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/metrics-service/metrics/trainingreadiness/"+date, &out)
	return out, err
}

// --- Activities ---

// ListActivities returns up to limit activity payloads starting at the
// given offset, newest first.
func (c *Client) ListActivities(ctx context.Context, start, limit int) ([]map[string]any, error) {
	var out []map[string]any
	path := fmt.Sprintf("/activitylist-service/activities/search/activities?start=%d&limit=%d", start, limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
