package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/bnema/archectl/internal/addons"
)

// storageBucket holds published archives, one folder per addon.
const storageBucket = "addons"

var (
	unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	unsafeFileChars   = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// storageFolder is the bucket folder of a developer's addon.
func storageFolder(addonName, userID string) string {
	name := strings.TrimSpace(addonName)
	if name == "" {
		name = "addon"
	}
	return unsafeFolderChars.ReplaceAllString(name, "_") + "_" + userID
}

func safeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

func escapeObjectPath(objectPath string) string {
	parts := strings.Split(objectPath, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// PublicURL is the download URL of a bucket object.
func (c *Client) PublicURL(objectPath string) string {
	return c.baseURL + "/storage/v1/object/public/" + storageBucket + "/" + escapeObjectPath(objectPath)
}

// objectPathOf returns the bucket path behind a public URL, or "" when the
// URL points elsewhere.
func (c *Client) objectPathOf(publicURL string) string {
	prefix := c.baseURL + "/storage/v1/object/public/" + storageBucket + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return ""
	}
	p, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil {
		return ""
	}
	return p
}

// uploadObject stores data at objectPath. With upsert an existing object is
// replaced, otherwise the upload fails.
func (c *Client) uploadObject(ctx context.Context, sess *addons.Session, objectPath string, data []byte, upsert bool) error {
	path := "/storage/v1/object/" + storageBucket + "/" + escapeObjectPath(objectPath)
	req, err := c.request(ctx, http.MethodPost, path, nil, nil, sess.AccessToken)
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/zip")
	if upsert {
		req.Header.Set("x-upsert", "true")
	}

	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	c.log.Debug("Uploaded archive", "path", objectPath, "size", len(data))
	return nil
}

// listObjects returns the paths of the objects in folder.
func (c *Client) listObjects(ctx context.Context, sess *addons.Session, folder string) ([]string, error) {
	body := map[string]any{"prefix": folder, "limit": 100}
	req, err := c.request(ctx, http.MethodPost, "/storage/v1/object/list/"+storageBucket, nil, body, sess.AccessToken)
	if err != nil {
		return nil, err
	}

	var objects []struct {
		Name string `json:"name"`
	}
	if _, err := c.do(req, &objects); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	paths := make([]string, 0, len(objects))
	for _, o := range objects {
		if o.Name != "" {
			paths = append(paths, folder+"/"+o.Name)
		}
	}
	return paths, nil
}

func (c *Client) removeObjects(ctx context.Context, sess *addons.Session, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	body := map[string][]string{"prefixes": paths}
	req, err := c.request(ctx, http.MethodDelete, "/storage/v1/object/"+storageBucket, nil, body, sess.AccessToken)
	if err != nil {
		return err
	}
	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to remove archives: %w", err)
	}
	return nil
}
