package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/archectl/internal/addons"
)

// addonRow is a row of the addons table
type addonRow struct {
	ID          flexString `json:"ID"`
	Name        string     `json:"Name"`
	Description string     `json:"Description"`
	Version     flexString `json:"Version"`
	Author      string     `json:"Author"`
	Category    string     `json:"Category"`
	FileURL     string     `json:"FileURL"`
	Downloads   int64      `json:"Downloads"`
	Warning     bool       `json:"Warning"`
	Status      string     `json:"Status"`
	UploadDate  string     `json:"UploadDate"`
	UserID      string     `json:"UserID"`
}

func (r addonRow) record() addons.AddonRecord {
	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = CategoryOther
	}
	status := addons.Status(r.Status)
	if status == "" {
		status = addons.StatusReady
	}

	return addons.AddonRecord{
		ID:          string(r.ID),
		Name:        r.Name,
		Version:     string(r.Version),
		DownloadURL: r.FileURL,
		Category:    category,
		Downloads:   r.Downloads,
		Status:      status,
		Warning:     r.Warning,
		Description: r.Description,
		Author:      r.Author,
		UploadDate:  parseTimestamp(r.UploadDate),
		Owner:       r.UserID,
	}
}

// profileRow is a row of the profiles table
type profileRow struct {
	ID               string          `json:"id"`
	Username         string          `json:"username"`
	Role             string          `json:"role"`
	DownloadedAddons json.RawMessage `json:"downloaded_addons"`
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Categories offered by the catalog
const (
	CategoryUI      = "UI"
	CategoryCombat  = "Combat"
	CategorySocial  = "Social"
	CategoryUtility = "Utility"
	CategoryEconomy = "Economy"
	CategoryOther   = "Other"
)

// Categories lists every catalog category in display order.
var Categories = []string{
	CategoryUI,
	CategoryCombat,
	CategorySocial,
	CategoryUtility,
	CategoryEconomy,
	CategoryOther,
}

const (
	// CacheVersion is incremented when the cache format changes
	CacheVersion = 2

	// NewAddonThreshold is how long after upload an addon is considered new
	NewAddonThreshold = 7 * 24 * time.Hour
)

// IsNew returns true if the addon was uploaded recently
func IsNew(rec addons.AddonRecord, now time.Time) bool {
	if rec.UploadDate.IsZero() {
		return false
	}
	return now.Sub(rec.UploadDate) < NewAddonThreshold
}

// numericOrString encodes id as a JSON number when it is one.
func numericOrString(id string) json.RawMessage {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.RawMessage(id)
	}
	b, _ := json.Marshal(id)
	return b
}
