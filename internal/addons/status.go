package addons

// InstallState is how an addon relates to the installed list
type InstallState int

const (
	StateNotInstalled InstallState = iota
	StateUpToDate
	StateOutdated
)

func (s InstallState) String() string {
	switch s {
	case StateUpToDate:
		return "up-to-date"
	case StateOutdated:
		return "outdated"
	default:
		return "not-installed"
	}
}

// Index maps catalog ids to records
type Index map[string]AddonRecord

// IndexCatalog builds an Index from catalog rows.
func IndexCatalog(catalog []AddonRecord) Index {
	idx := make(Index, len(catalog))
	for _, rec := range catalog {
		idx[rec.ID] = rec
	}
	return idx
}

// StatusOf classifies an installed entry. Entries missing from the catalog
// count as up to date.
func StatusOf(entry ManifestEntry, idx Index) InstallState {
	rec, ok := idx[entry.ID]
	if !ok || rec.Version == entry.Version {
		return StateUpToDate
	}
	return StateOutdated
}

// StateOf classifies a catalog record against the installed list.
func StateOf(rec AddonRecord, installed Manifest) InstallState {
	entry, ok := installed.Find(rec.ID)
	if !ok {
		return StateNotInstalled
	}
	if entry.Version == rec.Version {
		return StateUpToDate
	}
	return StateOutdated
}

// Stats are the counters shown by `archectl status`
type Stats struct {
	Installed int
	UpToDate  int
	Outdated  int
}

// ComputeStats classifies every installed entry against the catalog.
func ComputeStats(installed Manifest, catalog []AddonRecord) Stats {
	idx := IndexCatalog(catalog)
	stats := Stats{Installed: len(installed)}
	for _, e := range installed {
		if StatusOf(e, idx) == StateOutdated {
			stats.Outdated++
		} else {
			stats.UpToDate++
		}
	}
	return stats
}

// Outdated returns the catalog records whose installed version differs,
// in catalog order.
func Outdated(installed Manifest, catalog []AddonRecord) []AddonRecord {
	var out []AddonRecord
	for _, rec := range catalog {
		if StateOf(rec, installed) == StateOutdated {
			out = append(out, rec)
		}
	}
	return out
}

// EffectiveManifest picks the list used for status and installed checks
// while both a guest list and a user list are around. A non-empty guest
// list wins.
func EffectiveManifest(guestLocal, userRemote Manifest) Manifest {
	if len(guestLocal) > 0 {
		return guestLocal
	}
	return userRemote
}

// IsInstalled reports whether id is installed according to the effective list.
func IsInstalled(id string, guestLocal, userRemote Manifest) bool {
	return EffectiveManifest(guestLocal, userRemote).Has(id)
}
