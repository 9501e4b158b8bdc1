package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bnema/archectl/internal/addons"
)

var (
	ErrNotDeveloper       = errors.New("a developer account is required")
	ErrNotOwner           = errors.New("addon is published by another account")
	ErrInvalidPublication = errors.New("invalid publication")
)

// Publication is the metadata a developer submits with an archive
type Publication struct {
	Name        string
	Description string
	Version     string
	Category    string
	Status      addons.Status
}

func (p Publication) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPublication)
	}
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidPublication)
	}
	if !slices.Contains(Categories, p.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidPublication, p.Category)
	}
	switch p.Status {
	case addons.StatusReady, addons.StatusUnderDevelopment, addons.StatusIncompatible:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPublication, p.Status)
	}
	return nil
}

// PublishResult is a published catalog row and the scan of its archive
type PublishResult struct {
	Addon addons.AddonRecord
	Scan  *addons.ScanReport
}

// publishRow holds the columns a developer writes. Downloads and
// ThumbnailURL are only sent on insert.
type publishRow struct {
	Name         string  `json:"Name"`
	Description  string  `json:"Description"`
	Version      string  `json:"Version"`
	Author       string  `json:"Author"`
	Category     string  `json:"Category"`
	UploadDate   string  `json:"UploadDate"`
	FileSize     string  `json:"FileSize,omitempty"`
	Status       string  `json:"Status"`
	UserID       string  `json:"UserID"`
	FileURL      string  `json:"FileURL"`
	Warning      bool    `json:"Warning"`
	Downloads    *int64  `json:"Downloads,omitempty"`
	ThumbnailURL *string `json:"ThumbnailURL,omitempty"`
}

// archive is a zip read from disk for publishing
type archive struct {
	name string
	data []byte
	scan *addons.ScanReport
}

func readArchive(archivePath string) (*archive, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", addons.ErrArchiveFormat, err)
	}
	report, err := addons.ScanArchive(zr)
	if err != nil {
		return nil, err
	}
	return &archive{name: safeFileName(filepath.Base(archivePath)), data: data, scan: report}, nil
}

func requireDeveloper(sess *addons.Session) error {
	if !sess.LoggedIn() {
		return ErrUnauthorized
	}
	if !sess.User.IsDeveloper() {
		return ErrNotDeveloper
	}
	return nil
}

func requireOwner(sess *addons.Session, rec addons.AddonRecord) error {
	if err := requireDeveloper(sess); err != nil {
		return err
	}
	if rec.Owner != sess.UserID() {
		return fmt.Errorf("%w: %s", ErrNotOwner, rec.Name)
	}
	return nil
}

// Publish uploads archivePath and adds it to the catalog. The archive is
// scanned first; a flagged archive is published with its warning set.
func (c *Client) Publish(ctx context.Context, sess *addons.Session, pub Publication, archivePath string) (*PublishResult, error) {
	if err := requireDeveloper(sess); err != nil {
		return nil, err
	}
	if err := pub.validate(); err != nil {
		return nil, err
	}
	arc, err := readArchive(archivePath)
	if err != nil {
		return nil, err
	}

	objectPath := storageFolder(pub.Name, sess.UserID()) + "/" + arc.name
	if err := c.uploadObject(ctx, sess, objectPath, arc.data, false); err != nil {
		return nil, err
	}

	var zero int64
	noThumbnails := "[]"
	row := c.publishRow(sess, pub, arc, c.PublicURL(objectPath))
	row.Downloads = &zero
	row.ThumbnailURL = &noThumbnails

	rec, err := c.writeAddonRow(ctx, sess, http.MethodPost, nil, row)
	if err != nil {
		return nil, err
	}

	c.log.Info("Published addon", "addon", rec.ID, "name", rec.Name, "version", rec.Version, "warning", rec.Warning)
	return &PublishResult{Addon: rec, Scan: arc.scan}, nil
}

// UpdatePublication rewrites a published addon's metadata. A non-empty
// archivePath replaces its archive; otherwise the current archive and its
// warning are kept.
func (c *Client) UpdatePublication(ctx context.Context, sess *addons.Session, rec addons.AddonRecord, pub Publication, archivePath string) (*PublishResult, error) {
	if err := requireOwner(sess, rec); err != nil {
		return nil, err
	}
	if err := pub.validate(); err != nil {
		return nil, err
	}

	arc := &archive{}
	fileURL := rec.DownloadURL
	if archivePath != "" {
		var err error
		if arc, err = readArchive(archivePath); err != nil {
			return nil, err
		}
		objectPath := storageFolder(pub.Name, sess.UserID()) + "/" + arc.name
		if err := c.uploadObject(ctx, sess, objectPath, arc.data, true); err != nil {
			return nil, err
		}
		fileURL = c.PublicURL(objectPath)

		if old := c.objectPathOf(rec.DownloadURL); old != "" && old != objectPath {
			if err := c.removeObjects(ctx, sess, []string{old}); err != nil {
				c.log.Warn("Failed to remove replaced archive", "path", old, "error", err)
			}
		}
	}

	row := c.publishRow(sess, pub, arc, fileURL)
	if archivePath == "" {
		row.Warning = rec.Warning
	}

	query := url.Values{}
	query.Set("ID", "eq."+rec.ID)
	updated, err := c.writeAddonRow(ctx, sess, http.MethodPatch, query, row)
	if err != nil {
		return nil, err
	}

	c.log.Info("Updated publication", "addon", updated.ID, "version", updated.Version)
	return &PublishResult{Addon: updated, Scan: arc.scan}, nil
}

// Unpublish removes a published addon: its archives, its catalog row and
// its entry in every user's installed list.
func (c *Client) Unpublish(ctx context.Context, sess *addons.Session, rec addons.AddonRecord) error {
	if err := requireOwner(sess, rec); err != nil {
		return err
	}

	paths, err := c.listObjects(ctx, sess, storageFolder(rec.Name, sess.UserID()))
	if err != nil {
		return err
	}
	if err := c.removeObjects(ctx, sess, paths); err != nil {
		return err
	}

	query := url.Values{}
	query.Set("ID", "eq."+rec.ID)
	req, err := c.request(ctx, http.MethodDelete, "/rest/v1/addons", query, nil, sess.AccessToken)
	if err != nil {
		return err
	}
	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to delete addon: %w", err)
	}

	body := map[string]json.RawMessage{"deleted_addon_id": numericOrString(rec.ID)}
	req, err = c.request(ctx, http.MethodPost, "/rest/v1/rpc/remove_addon_from_all_profiles", nil, body, sess.AccessToken)
	if err != nil {
		return err
	}
	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to remove addon from profiles: %w", err)
	}

	c.log.Info("Unpublished addon", "addon", rec.ID, "archives", len(paths))
	return nil
}

// Published returns the catalog addons of the session user.
func Published(records []addons.AddonRecord, sess *addons.Session) []addons.AddonRecord {
	var out []addons.AddonRecord
	for _, rec := range records {
		if sess.LoggedIn() && rec.Owner == sess.UserID() {
			out = append(out, rec)
		}
	}
	return out
}

func (c *Client) publishRow(sess *addons.Session, pub Publication, arc *archive, fileURL string) publishRow {
	return publishRow{
		Name:        strings.TrimSpace(pub.Name),
		Description: pub.Description,
		Version:     strings.TrimSpace(pub.Version),
		Author:      sess.User.Username,
		Category:    pub.Category,
		UploadDate:  time.Now().UTC().Format(time.RFC3339),
		FileSize:    fileSize(arc.data),
		Status:      string(pub.Status),
		UserID:      sess.UserID(),
		FileURL:     fileURL,
		Warning:     arc.scan != nil && arc.scan.Flagged(),
	}
}

func fileSize(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return humanize.Bytes(uint64(len(data)))
}

// writeAddonRow inserts or patches an addons row and returns it as stored.
func (c *Client) writeAddonRow(ctx context.Context, sess *addons.Session, method string, query url.Values, row publishRow) (addons.AddonRecord, error) {
	req, err := c.request(ctx, method, "/rest/v1/addons", query, row, sess.AccessToken)
	if err != nil {
		return addons.AddonRecord{}, err
	}
	req.Header.Set("Prefer", "return=representation")

	var rows []addonRow
	if _, err := c.do(req, &rows); err != nil {
		return addons.AddonRecord{}, fmt.Errorf("failed to save addon: %w", err)
	}
	if len(rows) == 0 {
		return addons.AddonRecord{}, fmt.Errorf("failed to save addon: %w", addons.ErrNotFound)
	}
	return rows[0].record(), nil
}
