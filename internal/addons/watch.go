package addons

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchManifest calls onChange whenever the manifest file is created,
// written, removed or renamed. Bursts of events within debounce collapse
// into one call. It blocks until ctx is done.
func WatchManifest(ctx context.Context, lm *LocalManifest, debounce time.Duration, onChange func()) error {
	dir := filepath.Dir(lm.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	// The file itself may not exist yet, so watch its directory.
	if err := w.Add(dir); err != nil {
		return err
	}

	lm.log.Debug("Watching manifest", "path", lm.Path())

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ManifestFileName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			lm.log.Debug("Manifest changed", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			lm.log.Error("Watcher error", "error", err)
		}
	}
}
