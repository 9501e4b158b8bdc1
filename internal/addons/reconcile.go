package addons

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// LocalStore is a manifest store that may not exist yet and supports
// serialized read-modify-write.
type LocalStore interface {
	ManifestStore
	Exists() bool
	Update(ctx context.Context, fn func(Manifest) Manifest) (Manifest, error)
}

// ProfileSource hands out the profile manifest of a session's user.
type ProfileSource interface {
	ProfileManifest(sess *Session) ManifestStore
}

// SyncAction is what a reconciliation did
type SyncAction int

const (
	SyncGuest SyncAction = iota
	SyncInSync
	SyncPushedLocal
	SyncPulledRemote
)

func (a SyncAction) String() string {
	switch a {
	case SyncGuest:
		return "guest session, nothing to sync"
	case SyncInSync:
		return "already in sync"
	case SyncPushedLocal:
		return "pushed local manifest to profile"
	case SyncPulledRemote:
		return "restored local manifest from profile"
	default:
		return "unknown"
	}
}

// SyncResult reports the outcome of Sync
type SyncResult struct {
	Action SyncAction
	Local  Manifest
	Remote Manifest
}

// Reconciler keeps the local manifest and the profile list in agreement.
type Reconciler struct {
	local    LocalStore
	profiles ProfileSource
	log      *log.Logger
}

// NewReconciler creates a reconciler. profiles may be nil when offline.
func NewReconciler(local LocalStore, profiles ProfileSource, logger *log.Logger) *Reconciler {
	return &Reconciler{local: local, profiles: profiles, log: logger}
}

// Sync reconciles for sess. When the local file exists it is authoritative
// and is pushed if it differs from the profile; otherwise the profile list
// is written locally.
func (r *Reconciler) Sync(ctx context.Context, sess *Session) (*SyncResult, error) {
	if !sess.LoggedIn() || r.profiles == nil {
		return &SyncResult{Action: SyncGuest}, nil
	}

	remoteStore := r.profiles.ProfileManifest(sess)
	remote, err := remoteStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %v", ErrRemoteSync, err)
	}
	remote = remote.Normalize()

	if !r.local.Exists() {
		if err := r.local.Save(ctx, remote); err != nil {
			return nil, err
		}
		r.log.Info("Restored local manifest from profile", "user", sess.UserID(), "entries", len(remote))
		return &SyncResult{Action: SyncPulledRemote, Local: remote, Remote: remote}, nil
	}

	local, err := r.local.Load(ctx)
	if err != nil {
		return nil, err
	}

	if local.Equal(remote) {
		r.log.Debug("Manifest in sync", "user", sess.UserID(), "entries", len(local))
		return &SyncResult{Action: SyncInSync, Local: local, Remote: remote}, nil
	}

	if err := remoteStore.Save(ctx, local); err != nil {
		return nil, fmt.Errorf("%w: write profile: %v", ErrRemoteSync, err)
	}
	r.log.Info("Pushed local manifest to profile", "user", sess.UserID(), "entries", len(local))
	return &SyncResult{Action: SyncPushedLocal, Local: local, Remote: local}, nil
}

// Cleanup drops local entries whose id is not in catalog, which must be a
// freshly fetched copy. It never creates the manifest file, and an empty
// catalog is ignored.
func (r *Reconciler) Cleanup(ctx context.Context, catalog []AddonRecord) ([]string, error) {
	if len(catalog) == 0 || !r.local.Exists() {
		return nil, nil
	}

	idx := IndexCatalog(catalog)
	var removed []string

	_, err := r.local.Update(ctx, func(m Manifest) Manifest {
		kept := make(Manifest, 0, len(m))
		for _, e := range m {
			if _, ok := idx[e.ID]; ok {
				kept = append(kept, e)
			} else {
				removed = append(removed, e.ID)
			}
		}
		return kept
	})
	if err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		r.log.Info("Removed addons no longer in catalog from manifest", "ids", removed)
	}
	return removed, nil
}
