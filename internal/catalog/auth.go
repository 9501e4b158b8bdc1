package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/archectl/internal/addons"
)

const (
	// RedirectURI is where the OAuth provider sends the browser after login
	RedirectURI = "archerage.addonsmanager://auth-callback"

	// DefaultProvider is the OAuth provider used to log in
	DefaultProvider = "discord"

	defaultUsername = "Discord User"
	sessionFileName = "session.json"

	// refreshLeeway refreshes tokens slightly before they expire
	refreshLeeway = time.Minute
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrInvalidCallback = errors.New("invalid login callback")
)

// AuthorizeURL returns the URL that starts an OAuth login with provider.
func (c *Client) AuthorizeURL(provider string) string {
	if provider == "" {
		provider = DefaultProvider
	}
	query := url.Values{}
	query.Set("provider", provider)
	query.Set("redirect_to", RedirectURI)
	return c.baseURL + "/auth/v1/authorize?" + query.Encode()
}

// Callback holds the tokens carried by a login redirect
type Callback struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// ParseCallback extracts the tokens from a login redirect URL. Tokens are
// read from the fragment, falling back to the query string.
func ParseCallback(raw string) (*Callback, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	params, err := url.ParseQuery(u.Fragment)
	if err != nil || (params.Get("access_token") == "" && params.Get("error") == "") {
		params = u.Query()
	}

	if desc := params.Get("error_description"); desc != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCallback, desc)
	}
	if e := params.Get("error"); e != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCallback, e)
	}

	cb := &Callback{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
	}
	if cb.AccessToken == "" || cb.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing tokens", ErrInvalidCallback)
	}
	if secs, err := strconv.Atoi(params.Get("expires_in")); err == nil && secs > 0 {
		cb.ExpiresIn = time.Duration(secs) * time.Second
	}

	return cb, nil
}

// authUser is the answer of the user endpoint
type authUser struct {
	ID           string         `json:"id"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u authUser) username() string {
	for _, key := range []string{"full_name", "name"} {
		if s, ok := u.UserMetadata[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return defaultUsername
}

// Login turns a login callback into a session with a resolved user.
func (c *Client) Login(ctx context.Context, cb *Callback) (*addons.Session, error) {
	sess := &addons.Session{
		AccessToken:  cb.AccessToken,
		RefreshToken: cb.RefreshToken,
	}
	if cb.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(cb.ExpiresIn)
	}

	user, err := c.FetchUser(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	sess.User = user
	return sess, nil
}

// FetchUser resolves the account behind accessToken, including the role
// stored on its profile. A missing profile leaves the role empty.
func (c *Client) FetchUser(ctx context.Context, accessToken string) (*addons.User, error) {
	if accessToken == "" {
		return nil, ErrNotLoggedIn
	}

	req, err := c.request(ctx, http.MethodGet, "/auth/v1/user", nil, nil, accessToken)
	if err != nil {
		return nil, err
	}

	var au authUser
	if _, err := c.do(req, &au); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	id, err := uuid.Parse(au.ID)
	if err != nil {
		return nil, fmt.Errorf("backend returned invalid user id %q: %w", au.ID, err)
	}

	user := &addons.User{ID: id.String(), Username: au.username()}

	sess := &addons.Session{AccessToken: accessToken, User: user}
	profile, err := c.FetchProfile(ctx, sess)
	switch {
	case err == nil:
		user.Role = profile.Role
	case errors.Is(err, ErrNoProfile):
		c.log.Debug("User has no profile", "user", user.ID)
	default:
		return nil, err
	}

	return user, nil
}

// RefreshSession exchanges the refresh token for a new access token. The
// user identity is carried over.
func (c *Client) RefreshSession(ctx context.Context, sess *addons.Session) (*addons.Session, error) {
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrNotLoggedIn
	}

	query := url.Values{}
	query.Set("grant_type", "refresh_token")
	body := map[string]string{"refresh_token": sess.RefreshToken}

	req, err := c.request(ctx, http.MethodPost, "/auth/v1/token", query, body, "")
	if err != nil {
		return nil, err
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if _, err := c.do(req, &tok); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("failed to refresh session: empty access token")
	}

	refreshed := &addons.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		User:         sess.User,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = sess.RefreshToken
	}
	if tok.ExpiresIn > 0 {
		refreshed.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return refreshed, nil
}

// NeedsRefresh reports whether the session's access token is about to expire.
func NeedsRefresh(sess *addons.Session, now time.Time) bool {
	if sess == nil || sess.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(refreshLeeway).After(sess.ExpiresAt)
}

// SessionPath returns the session file inside dir.
func SessionPath(dir string) string {
	return filepath.Join(dir, sessionFileName)
}

// LoadSession reads the saved session from dir. A missing file is a guest
// and returns nil without error.
func LoadSession(dir string) (*addons.Session, error) {
	data, err := os.ReadFile(SessionPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess addons.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if !sess.LoggedIn() {
		return nil, nil
	}
	return &sess, nil
}

// SaveSession writes sess to dir, readable only by the current user.
func SaveSession(dir string, sess *addons.Session) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(SessionPath(dir), data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// ClearSession removes the saved session. Clearing a missing session is
// not an error.
func ClearSession(dir string) error {
	if err := os.Remove(SessionPath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
