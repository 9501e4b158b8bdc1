package addons

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UserAgent is sent with every request archectl makes.
const UserAgent = "archectl/1.0 (ArcheRage addon manager)"

// maxArchiveSize bounds how much of a download is buffered in memory.
const maxArchiveSize = 512 << 20

// DownloadProgress is a callback for download progress updates
type DownloadProgress func(downloaded, total int64)

// fetchArchive downloads url into memory.
func (m *Manager) fetchArchive(ctx context.Context, url string, onProgress DownloadProgress) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", UserAgent)

	m.log.Debug("Starting download", "url", url)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrDownload, resp.StatusCode)
	}

	var buf bytes.Buffer
	body := io.LimitReader(resp.Body, maxArchiveSize+1)

	var written int64
	if onProgress != nil {
		written, err = copyWithProgress(&buf, body, resp.ContentLength, onProgress)
	} else {
		written, err = io.Copy(&buf, body)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if written > maxArchiveSize {
		return nil, fmt.Errorf("%w: archive larger than %d bytes", ErrDownload, maxArchiveSize)
	}

	m.log.Debug("Download complete", "bytes", written)
	return buf.Bytes(), nil
}

// copyWithProgress copies from src to dst while reporting progress
func copyWithProgress(dst io.Writer, src io.Reader, total int64, onProgress DownloadProgress) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	var lastReport int64

	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)

			// Report progress every 64KB
			if written-lastReport > 64*1024 {
				onProgress(written, total)
				lastReport = written
			}

			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}

	onProgress(written, total)
	return written, nil
}
