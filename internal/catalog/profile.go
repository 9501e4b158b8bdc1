package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bnema/archectl/internal/addons"
)

// Profile is a user's row in the profiles table
type Profile struct {
	ID               string
	Username         string
	Role             string
	DownloadedAddons addons.Manifest
}

// FetchProfile reads the profile of the session user.
func (c *Client) FetchProfile(ctx context.Context, sess *addons.Session) (*Profile, error) {
	if !sess.LoggedIn() {
		return nil, ErrUnauthorized
	}

	query := url.Values{}
	query.Set("select", "id,username,role,downloaded_addons")
	query.Set("id", "eq."+sess.UserID())

	req, err := c.request(ctx, http.MethodGet, "/rest/v1/profiles", query, nil, sess.AccessToken)
	if err != nil {
		return nil, err
	}

	var rows []profileRow
	if _, err := c.do(req, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoProfile
	}

	row := rows[0]
	return &Profile{
		ID:               row.ID,
		Username:         row.Username,
		Role:             row.Role,
		DownloadedAddons: decodeDownloaded(row.DownloadedAddons),
	}, nil
}

// UpdateDownloadedAddons overwrites the installed list stored on the
// session user's profile.
func (c *Client) UpdateDownloadedAddons(ctx context.Context, sess *addons.Session, m addons.Manifest) error {
	if !sess.LoggedIn() {
		return ErrUnauthorized
	}

	list := m.Normalize()
	encoded, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode installed list: %w", err)
	}

	query := url.Values{}
	query.Set("id", "eq."+sess.UserID())
	body := map[string]string{"downloaded_addons": string(encoded)}

	req, err := c.request(ctx, http.MethodPatch, "/rest/v1/profiles", query, body, sess.AccessToken)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	c.log.Debug("Updated profile installed list", "user", sess.UserID(), "addons", len(list))
	return nil
}

// decodeDownloaded parses the downloaded_addons column. The column holds a
// JSON document as a string, though some rows carry the array directly.
// Anything unreadable is an empty list.
func decodeDownloaded(raw json.RawMessage) addons.Manifest {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return addons.Manifest{}
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return addons.Manifest{}
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return addons.Manifest{}
		}
	}

	var m addons.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return addons.Manifest{}
	}
	return m.Normalize()
}

// ProfileMirror is the installed list stored on a user's profile
type ProfileMirror struct {
	client *Client
	sess   *addons.Session
}

// Load reads the profile's installed list.
func (p *ProfileMirror) Load(ctx context.Context) (addons.Manifest, error) {
	profile, err := p.client.FetchProfile(ctx, p.sess)
	if err != nil {
		return nil, err
	}
	return profile.DownloadedAddons, nil
}

// Save overwrites the profile's installed list.
func (p *ProfileMirror) Save(ctx context.Context, m addons.Manifest) error {
	return p.client.UpdateDownloadedAddons(ctx, p.sess, m)
}
