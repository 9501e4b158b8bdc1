package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/bnema/archectl/internal/addons"
)

// CategoryInstalled is a pseudo category selecting installed addons
const CategoryInstalled = "Installed"

// SortKey orders catalog listings
type SortKey string

const (
	SortName      SortKey = "name"
	SortDownloads SortKey = "downloads"
	SortUpdated   SortKey = "updated"
)

// ParseSortKey validates a sort key given on the command line.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortName, nil
	case SortName, SortDownloads, SortUpdated:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q (want name, downloads or updated)", s)
	}
}

// Filter selects and orders catalog records
type Filter struct {
	// Category matches case-insensitively. "Other" also matches any
	// category outside Categories, and "Installed" selects installed addons.
	Category string
	// Query matches the name, author or description, case-insensitively.
	Query string
	// Status keeps only records with this publication status when set.
	Status        addons.Status
	InstalledOnly bool
	OutdatedOnly  bool
	Sort          SortKey
	Descending    bool
}

// Apply returns the records matching f, ordered by f.Sort. installed is
// the effective installed list.
func (f Filter) Apply(records []addons.AddonRecord, installed addons.Manifest) []addons.AddonRecord {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	category := strings.TrimSpace(f.Category)
	installedOnly := f.InstalledOnly || strings.EqualFold(category, CategoryInstalled)
	if strings.EqualFold(category, CategoryInstalled) || strings.EqualFold(category, "all") {
		category = ""
	}

	out := make([]addons.AddonRecord, 0, len(records))
	for _, rec := range records {
		state := addons.StateOf(rec, installed)
		if installedOnly && state == addons.StateNotInstalled {
			continue
		}
		if f.OutdatedOnly && state != addons.StateOutdated {
			continue
		}
		if category != "" && !matchCategory(rec.Category, category) {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if query != "" && !matchQuery(rec, query) {
			continue
		}
		out = append(out, rec)
	}

	sortRecords(out, f.Sort, f.Descending)
	return out
}

func matchQuery(rec addons.AddonRecord, query string) bool {
	for _, field := range []string{rec.Name, rec.Author, rec.Description} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func matchCategory(recCategory, want string) bool {
	if strings.EqualFold(want, CategoryOther) {
		return !isMainCategory(recCategory)
	}
	return strings.EqualFold(recCategory, want)
}

func isMainCategory(c string) bool {
	return slices.ContainsFunc(Categories, func(m string) bool {
		return m != CategoryOther && strings.EqualFold(m, c)
	})
}

func sortRecords(records []addons.AddonRecord, key SortKey, desc bool) {
	less := func(a, b addons.AddonRecord) bool {
		switch key {
		case SortDownloads:
			if a.Downloads != b.Downloads {
				return a.Downloads > b.Downloads
			}
		case SortUpdated:
			if !a.UploadDate.Equal(b.UploadDate) {
				return a.UploadDate.After(b.UploadDate)
			}
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

// CountByCategory returns how many records fall in each of Categories.
func CountByCategory(records []addons.AddonRecord) map[string]int {
	counts := make(map[string]int, len(Categories))
	for _, rec := range records {
		if isMainCategory(rec.Category) {
			for _, c := range Categories {
				if strings.EqualFold(c, rec.Category) {
					counts[c]++
				}
			}
			continue
		}
		counts[CategoryOther]++
	}
	return counts
}

// Find returns the record with id.
func Find(records []addons.AddonRecord, id string) (addons.AddonRecord, bool) {
	for _, rec := range records {
		if rec.ID == id {
			return rec, true
		}
	}
	return addons.AddonRecord{}, false
}
