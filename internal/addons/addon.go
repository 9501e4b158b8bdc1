package addons

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status is the publication state of a catalog addon
type Status string

const (
	StatusReady            Status = "ready-to-use"
	StatusUnderDevelopment Status = "under-development"
	StatusIncompatible     Status = "incompatible"
)

// AddonRecord is an addon as listed in the remote catalog
type AddonRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	DownloadURL string    `json:"download_url"`
	Category    string    `json:"category"`
	Downloads   int64     `json:"downloads"`
	Status      Status    `json:"status"`
	Warning     bool      `json:"warning"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	UploadDate  time.Time `json:"upload_date"`
	// Owner is the user id of the publishing developer.
	Owner string `json:"owner,omitempty"`
}

// FolderName is the folder rec's archive unpacks into: the last segment of
// the download URL without its .zip suffix, or the addon name when there
// is no URL.
func FolderName(rec AddonRecord) string {
	raw := strings.TrimSpace(rec.DownloadURL)
	if raw == "" {
		return rec.Name
	}

	base := path.Base(raw)
	if u, err := url.Parse(raw); err == nil {
		base = path.Base(u.Path)
	} else if dec, err := url.PathUnescape(base); err == nil {
		base = dec
	}

	if len(base) > 4 && strings.EqualFold(base[len(base)-4:], ".zip") {
		base = base[:len(base)-4]
	}
	if base == "" || base == "." || base == "/" {
		return rec.Name
	}
	return base
}

// ManifestEntry records the installed version of one addon
type ManifestEntry struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// UnmarshalJSON accepts numeric ids, which older profile records contain.
func (e *ManifestEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      json.RawMessage `json:"id"`
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := scalarString(raw.ID)
	if err != nil {
		return fmt.Errorf("manifest entry id: %w", err)
	}
	version, err := scalarString(raw.Version)
	if err != nil {
		return fmt.Errorf("manifest entry version: %w", err)
	}

	e.ID = id
	e.Version = version
	return nil
}

// scalarString decodes a JSON string or number into its string form.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// Manifest is the list of installed addons. Ids are unique.
type Manifest []ManifestEntry

// Find returns the entry for id.
func (m Manifest) Find(id string) (ManifestEntry, bool) {
	for _, e := range m {
		if e.ID == id {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// Has reports whether id is in the manifest.
func (m Manifest) Has(id string) bool {
	_, ok := m.Find(id)
	return ok
}

// Upsert sets the version for id, updating in place when present.
func (m Manifest) Upsert(id, version string) Manifest {
	for i := range m {
		if m[i].ID == id {
			m[i].Version = version
			return m
		}
	}
	return append(m, ManifestEntry{ID: id, Version: version})
}

// Remove drops every entry for id.
func (m Manifest) Remove(id string) Manifest {
	out := make(Manifest, 0, len(m))
	for _, e := range m {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// Normalize collapses duplicate ids, keeping the last version seen, and
// never returns nil.
func (m Manifest) Normalize() Manifest {
	out := make(Manifest, 0, len(m))
	for _, e := range m {
		if e.ID == "" {
			continue
		}
		out = out.Upsert(e.ID, e.Version)
	}
	return out
}

// Clone returns an independent copy.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	copy(out, m)
	return out
}

// Equal compares two manifests as sets of {id, version} pairs.
func (m Manifest) Equal(other Manifest) bool {
	a, b := m.Normalize(), other.Normalize()
	if len(a) != len(b) {
		return false
	}
	for _, e := range a {
		o, ok := b.Find(e.ID)
		if !ok || o.Version != e.Version {
			return false
		}
	}
	return true
}

// IDs returns the sorted ids in the manifest.
func (m Manifest) IDs() []string {
	ids := make([]string, 0, len(m))
	for _, e := range m {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}

// User is an authenticated catalog account
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsDeveloper reports whether the account may publish addons.
func (u *User) IsDeveloper() bool {
	return u != nil && strings.EqualFold(u.Role, "dev")
}

// Session carries the identity an operation runs as. A nil Session or a
// Session without a User is a guest.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	User         *User     `json:"user,omitempty"`
}

// LoggedIn reports whether a user identity is attached.
func (s *Session) LoggedIn() bool {
	return s != nil && s.User != nil && s.User.ID != ""
}

// UserID returns the user id, or "" for guests.
func (s *Session) UserID() string {
	if !s.LoggedIn() {
		return ""
	}
	return s.User.ID
}
