package addons

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	entry := ManifestEntry{ID: "X", Version: "v1"}

	tests := []struct {
		name    string
		catalog []AddonRecord
		want    InstallState
	}{
		{"same version", []AddonRecord{{ID: "X", Version: "v1"}}, StateUpToDate},
		{"different version", []AddonRecord{{ID: "X", Version: "v2"}}, StateOutdated},
		{"missing from catalog", []AddonRecord{{ID: "Y", Version: "v1"}}, StateUpToDate},
		{"empty catalog", nil, StateUpToDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(entry, IndexCatalog(tt.catalog)))
		})
	}
}

func TestStateOf(t *testing.T) {
	installed := Manifest{{ID: "1", Version: "a"}, {ID: "2", Version: "a"}}

	assert.Equal(t, StateUpToDate, StateOf(AddonRecord{ID: "1", Version: "a"}, installed))
	assert.Equal(t, StateOutdated, StateOf(AddonRecord{ID: "2", Version: "b"}, installed))
	assert.Equal(t, StateNotInstalled, StateOf(AddonRecord{ID: "3", Version: "a"}, installed))
}

func TestComputeStatsAndOutdated(t *testing.T) {
	installed := Manifest{
		{ID: "1", Version: "1.0"},
		{ID: "2", Version: "1.0"},
		{ID: "3", Version: "1.0"},
		{ID: "gone", Version: "0.1"},
	}
	catalog := []AddonRecord{
		{ID: "3", Version: "2.0"},
		{ID: "1", Version: "1.0"},
		{ID: "2", Version: "1.1"},
		{ID: "4", Version: "1.0"},
	}

	assert.Equal(t, Stats{Installed: 4, UpToDate: 2, Outdated: 2}, ComputeStats(installed, catalog))

	outdated := Outdated(installed, catalog)
	assert.Equal(t, []AddonRecord{{ID: "3", Version: "2.0"}, {ID: "2", Version: "1.1"}}, outdated)
}

func TestEffectiveManifestPrefersNonEmptyGuestList(t *testing.T) {
	guest := Manifest{{ID: "g", Version: "1"}}
	user := Manifest{{ID: "u", Version: "1"}}

	assert.Equal(t, guest, EffectiveManifest(guest, user))
	assert.Equal(t, user, EffectiveManifest(nil, user))
	assert.Equal(t, user, EffectiveManifest(Manifest{}, user))

	assert.True(t, IsInstalled("g", guest, user))
	assert.False(t, IsInstalled("u", guest, user))
	assert.True(t, IsInstalled("u", nil, user))
}
