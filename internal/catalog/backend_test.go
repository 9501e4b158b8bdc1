package catalog

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

const (
	testKey    = "anon-key"
	testToken  = "user-token"
	testUserID = "6f1c2c1e-8d4a-4a7e-9a55-2b8f4f0d9c11"
)

// fakeBackend mimics the catalog backend endpoints.
type fakeBackend struct {
	mu sync.Mutex

	rows        string
	etag        string
	catalogHits int
	notModified int

	profile    *profileRow
	patches    []string
	increments []json.RawMessage

	failCatalog bool
	userID      string
	metadata    map[string]any

	ratings []ratingRow

	addonWrites     []addonWrite
	uploads         map[string][]byte
	upserts         map[string]bool
	objects         map[string][]string
	removedObjects  []string
	profileRemovals []json.RawMessage

	headers []http.Header
}

// addonWrite is a POST, PATCH or DELETE on the addons table.
type addonWrite struct {
	method string
	id     string
	row    map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rows:    `[]`,
		userID:  testUserID,
		uploads: map[string][]byte{},
		upserts: map[string]bool{},
		objects: map[string][]string{},
	}
}

func (b *fakeBackend) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/addons", b.handleAddons)
	mux.HandleFunc("/rest/v1/rpc/increment_addon_downloads", b.handleIncrement)
	mux.HandleFunc("/rest/v1/profiles", b.handleProfiles)
	mux.HandleFunc("/auth/v1/user", b.handleUser)
	mux.HandleFunc("/auth/v1/token", b.handleToken)
	mux.HandleFunc("/rest/v1/addon_ratings", b.handleRatings)
	mux.HandleFunc("/rest/v1/rpc/remove_addon_from_all_profiles", b.handleRemoveFromProfiles)
	mux.HandleFunc("/storage/v1/object/list/addons", b.handleListObjects)
	mux.HandleFunc("/storage/v1/object/addons", b.handleRemoveObjects)
	mux.HandleFunc("/storage/v1/object/addons/", b.handleUpload)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.headers = append(b.headers, r.Header.Clone())
		b.mu.Unlock()
		if r.Header.Get("apikey") != testKey {
			http.Error(w, `{"message":"no api key"}`, http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *fakeBackend) handleAddons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.handleAddonWrite(w, r)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogHits++

	if b.failCatalog {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}
	if b.etag != "" && r.Header.Get("If-None-Match") == b.etag {
		b.notModified++
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if b.etag != "" {
		w.Header().Set("ETag", b.etag)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, b.rows)
}

func (b *fakeBackend) handleIncrement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AddonID json.RawMessage `json:"addon_id"`
	}
	if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&body) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.increments = append(b.increments, body.AddonID)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if b.profile == nil || r.URL.Query().Get("id") != "eq."+b.profile.ID {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_ = json.NewEncoder(w).Encode([]profileRow{*b.profile})
	case http.MethodPatch:
		var body struct {
			DownloadedAddons string `json:"downloaded_addons"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		b.patches = append(b.patches, body.DownloadedAddons)
		if b.profile != nil {
			encoded, _ := json.Marshal(body.DownloadedAddons)
			b.profile.DownloadedAddons = encoded
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (b *fakeBackend) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		http.Error(w, `{"msg":"invalid JWT"}`, http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":            b.userID,
		"user_metadata": b.metadata,
	})
}

func (b *fakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if r.URL.Query().Get("grant_type") != "refresh_token" || json.NewDecoder(r.Body).Decode(&body) != nil {
		http.Error(w, `{"error_description":"bad grant"}`, http.StatusBadRequest)
		return
	}
	if body.RefreshToken != "refresh-1" {
		http.Error(w, `{"error_description":"Invalid Refresh Token"}`, http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  testToken,
		"refresh_token": "refresh-2",
		"expires_in":    3600,
	})
}

func (b *fakeBackend) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (b *fakeBackend) handleAddonWrite(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	write := addonWrite{method: r.Method, id: strings.TrimPrefix(r.URL.Query().Get("ID"), "eq.")}
	if r.Method != http.MethodDelete {
		if err := json.NewDecoder(r.Body).Decode(&write.row); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}

	b.mu.Lock()
	b.addonWrites = append(b.addonWrites, write)
	b.mu.Unlock()

	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	stored := map[string]any{"ID": 99}
	if write.id != "" {
		stored["ID"] = write.id
	}
	for k, v := range write.row {
		stored[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]map[string]any{stored})
}

func (b *fakeBackend) handleRatings(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		addonID := strings.TrimPrefix(q.Get("addon_id"), "eq.")
		userID := strings.TrimPrefix(q.Get("user_id"), "eq.")
		rows := []ratingRow{}
		for _, row := range b.ratings {
			if (addonID == "" || string(row.AddonID) == addonID) && (userID == "" || row.UserID == userID) {
				rows = append(rows, row)
			}
		}
		_ = json.NewEncoder(w).Encode(rows)
	case http.MethodPost:
		if r.Header.Get("Authorization") != "Bearer "+testToken ||
			!strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates") ||
			r.URL.Query().Get("on_conflict") != "addon_id,user_id" {
			http.Error(w, `{"message":"duplicate key"}`, http.StatusConflict)
			return
		}
		var row ratingRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		for i, existing := range b.ratings {
			if existing.AddonID == row.AddonID && existing.UserID == row.UserID {
				b.ratings[i] = row
				w.WriteHeader(http.StatusCreated)
				return
			}
		}
		b.ratings = append(b.ratings, row)
		w.WriteHeader(http.StatusCreated)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (b *fakeBackend) handleRemoveFromProfiles(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	var body struct {
		DeletedAddonID json.RawMessage `json:"deleted_addon_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.profileRemovals = append(b.profileRemovals, body.DeletedAddonID)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	objectPath := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/addons/")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	upsert := r.Header.Get("x-upsert") == "true"
	if _, exists := b.uploads[objectPath]; exists && !upsert {
		http.Error(w, `{"message":"The resource already exists"}`, http.StatusConflict)
		return
	}
	b.uploads[objectPath] = data
	b.upserts[objectPath] = upsert
	_ = json.NewEncoder(w).Encode(map[string]string{"Key": "addons/" + objectPath})
}

func (b *fakeBackend) handleListObjects(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	var body struct {
		Prefix string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	objects := []map[string]string{}
	for _, name := range b.objects[body.Prefix] {
		objects = append(objects, map[string]string{"name": name})
	}
	_ = json.NewEncoder(w).Encode(objects)
}

func (b *fakeBackend) handleRemoveObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !b.authorized(w, r) {
		return
	}
	var body struct {
		Prefixes []string `json:"prefixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.removedObjects = append(b.removedObjects, body.Prefixes...)
	b.mu.Unlock()
	_, _ = io.WriteString(w, `[]`)
}

func (b *fakeBackend) setProfile(downloaded string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profile = &profileRow{
		ID:               testUserID,
		Username:         "tester",
		Role:             "Dev",
		DownloadedAddons: json.RawMessage(downloaded),
	}
}

func newTestClient(srv *httptest.Server, cacheDir string) *Client {
	return New(Options{
		BaseURL:    srv.URL + "/",
		APIKey:     testKey,
		HTTPClient: srv.Client(),
		CacheDir:   cacheDir,
		Logger:     testLogger(),
	})
}

func (b *fakeBackend) requestHeaders() []http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]http.Header(nil), b.headers...)
}

func (b *fakeBackend) incrementsSeen() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]json.RawMessage(nil), b.increments...)
}

func (b *fakeBackend) patchesSeen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.patches...)
}

// publishState is a copy of what publishing requests wrote.
type publishState struct {
	uploads  map[string][]byte
	upserts  map[string]bool
	removed  []string
	writes   []addonWrite
	removals []json.RawMessage
}

func (b *fakeBackend) published() publishState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := publishState{
		uploads:  map[string][]byte{},
		upserts:  map[string]bool{},
		removed:  append([]string(nil), b.removedObjects...),
		writes:   append([]addonWrite(nil), b.addonWrites...),
		removals: append([]json.RawMessage(nil), b.profileRemovals...),
	}
	for k, v := range b.uploads {
		st.uploads[k] = v
	}
	for k, v := range b.upserts {
		st.upserts[k] = v
	}
	return st
}

func (b *fakeBackend) ratingsSeen() []ratingRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ratingRow(nil), b.ratings...)
}

func (b *fakeBackend) hits() (catalog, notModified int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalogHits, b.notModified
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}
