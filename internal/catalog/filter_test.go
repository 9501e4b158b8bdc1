package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/archectl/internal/addons"
)

func sampleCatalog() []addons.AddonRecord {
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	return []addons.AddonRecord{
		{ID: "1", Name: "raid Frames", Version: "2", Category: "UI", Downloads: 50, Author: "kira", UploadDate: day(3)},
		{ID: "2", Name: "Loot Helper", Version: "1", Category: "Economy", Downloads: 500, Author: "mo", UploadDate: day(1)},
		{ID: "3", Name: "Chat Tabs", Version: "4", Category: "social", Downloads: 5, Author: "Kira", UploadDate: day(9)},
		{ID: "4", Name: "Fishing", Version: "1", Category: "Hobbies", Downloads: 10, Author: "zed", UploadDate: day(5),
			Description: "Tracks loot from fishing", Status: addons.StatusUnderDevelopment},
	}
}

func ids(records []addons.AddonRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterApply(t *testing.T) {
	installed := addons.Manifest{{ID: "1", Version: "1"}, {ID: "2", Version: "1"}}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"default sorts by name", Filter{}, []string{"3", "4", "2", "1"}},
		{"category case-insensitive", Filter{Category: "Social"}, []string{"3"}},
		{"other catches unknown categories", Filter{Category: "Other"}, []string{"4"}},
		{"all", Filter{Category: "All"}, []string{"3", "4", "2", "1"}},
		{"installed category", Filter{Category: "Installed"}, []string{"2", "1"}},
		{"installed only", Filter{InstalledOnly: true, Sort: SortDownloads}, []string{"2", "1"}},
		{"outdated only", Filter{OutdatedOnly: true}, []string{"1"}},
		{"query matches author", Filter{Query: "KIRA"}, []string{"3", "1"}},
		{"query matches name or description", Filter{Query: "loot"}, []string{"4", "2"}},
		{"status", Filter{Status: addons.StatusUnderDevelopment}, []string{"4"}},
		{"downloads", Filter{Sort: SortDownloads}, []string{"2", "1", "4", "3"}},
		{"updated", Filter{Sort: SortUpdated}, []string{"3", "4", "1", "2"}},
		{"descending name", Filter{Descending: true}, []string{"1", "2", "4", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(sampleCatalog(), installed)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortName, k)

	k, err = ParseSortKey(" Downloads ")
	require.NoError(t, err)
	assert.Equal(t, SortDownloads, k)

	_, err = ParseSortKey("rating")
	assert.Error(t, err)
}

func TestCountByCategory(t *testing.T) {
	counts := CountByCategory(sampleCatalog())
	assert.Equal(t, 1, counts[CategoryUI])
	assert.Equal(t, 1, counts[CategorySocial])
	assert.Equal(t, 1, counts[CategoryEconomy])
	assert.Equal(t, 1, counts[CategoryOther])
	assert.Zero(t, counts[CategoryCombat])
}

func TestFindAndIsNew(t *testing.T) {
	records := sampleCatalog()
	rec, ok := Find(records, "3")
	require.True(t, ok)
	assert.Equal(t, "Chat Tabs", rec.Name)

	_, ok = Find(records, "99")
	assert.False(t, ok)

	now := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	assert.True(t, IsNew(rec, now))
	assert.False(t, IsNew(records[1], now))
	assert.False(t, IsNew(addons.AddonRecord{}, now))
}
