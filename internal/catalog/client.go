// Package catalog talks to the addon catalog backend: the addon table, user
// profiles and the auth endpoints.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/archectl/internal/addons"
)

var (
	ErrUnauthorized = errors.New("not authorized")
	ErrNoProfile    = errors.New("profile not found")
	ErrNoAPIKey     = errors.New("api key not configured")
)

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Is makes 401 and 403 answers match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Options configures a Client
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// CacheDir enables the on-disk catalog cache when set.
	CacheDir string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// Client is the backend client
type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	log      *log.Logger
	cache    *cache
	cacheTTL time.Duration
}

// New creates a backend client
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		client:   client,
		log:      logger,
		cacheTTL: opts.CacheTTL,
	}
	if opts.CacheDir != "" {
		c.cache = newCache(opts.CacheDir)
	}
	return c
}

// request builds a backend request. token is the user's access token, or ""
// to authenticate with the anonymous key.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, token string) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", addons.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do sends req and decodes a JSON answer into out when out is not nil.
func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	c.log.Debug("Backend request", "method", req.Method, "path", req.URL.Path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return resp, nil
}

// errorMessage extracts the message of a PostgREST or GoTrue error body.
func errorMessage(body []byte) string {
	var e struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, m := range []string{e.Message, e.Msg, e.ErrorDescription, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// FetchAddons fetches every catalog row, newest upload first.
func (c *Client) FetchAddons(ctx context.Context) ([]addons.AddonRecord, error) {
	records, _, _, err := c.fetchAddons(ctx, "")
	return records, err
}

// fetchAddons fetches the catalog. With a non-empty etag a 304 answer
// returns notModified and no records.
func (c *Client) fetchAddons(ctx context.Context, etag string) (records []addons.AddonRecord, newETag string, notModified bool, err error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "UploadDate.desc")

	req, err := c.request(ctx, http.MethodGet, "/rest/v1/addons", query, nil, "")
	if err != nil {
		return nil, "", false, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	var rows []addonRow
	resp, err := c.do(req, &rows)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, true, nil
	}

	records = make([]addons.AddonRecord, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		records = append(records, row.record())
	}

	c.log.Debug("Fetched catalog", "addons", len(records))
	return records, resp.Header.Get("ETag"), false, nil
}

// IncrementDownloads bumps the download counter of an addon.
func (c *Client) IncrementDownloads(ctx context.Context, addonID string) error {
	body := map[string]json.RawMessage{"addon_id": numericOrString(addonID)}

	req, err := c.request(ctx, http.MethodPost, "/rest/v1/rpc/increment_addon_downloads", nil, body, "")
	if err != nil {
		return err
	}
	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}
	return nil
}

// ProfileManifest returns the installed-addons list stored on the
// session user's profile.
func (c *Client) ProfileManifest(sess *addons.Session) addons.ManifestStore {
	return &ProfileMirror{client: c, sess: sess}
}
