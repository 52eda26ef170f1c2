package entity

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinaxlabs/organizer/types"
)

// stubStore is a minimal in-memory entity store behind httptest.
type stubStore struct {
	mu       sync.Mutex
	entities map[string]*Entity
	blobs    map[string][]byte
	nextCID  int
	nextID   int

	// failAppends makes that many AppendVersion calls 409 before
	// succeeding.
	failAppends int
	appendCalls int
	createCalls int
	log         []string
}

func newStubStore() *stubStore {
	return &stubStore{
		entities: make(map[string]*Entity),
		blobs:    make(map[string][]byte),
	}
}

func (s *stubStore) addBlob(data []byte) string {
	s.nextCID++
	cid := fmt.Sprintf("cid-%d", s.nextCID)
	s.blobs[cid] = data
	return cid
}

func (s *stubStore) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		ent, ok := s.entities[r.PathValue("id")]
		if !ok {
			http.Error(w, "entity not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(ent)
	})

	mux.HandleFunc("GET /cat/{cid}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		data, ok := s.blobs[r.PathValue("cid")]
		if !ok {
			http.Error(w, "no such cid", http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	})

	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		s.mu.Lock()
		cid := s.addBlob(data)
		s.log = append(s.log, "upload")
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode([]map[string]string{{"cid": cid}})
	})

	mux.HandleFunc("POST /entities", func(w http.ResponseWriter, r *http.Request) {
		var req CreateEntityRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.nextID++
		s.createCalls++
		ent := &Entity{
			ID:         fmt.Sprintf("child-%d", s.nextID),
			Tip:        fmt.Sprintf("tip-%d-1", s.nextID),
			Version:    1,
			Components: req.Components,
			Parent:     req.Parent,
		}
		s.entities[ent.ID] = ent
		s.log = append(s.log, "create "+ent.ID)
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(ent)
	})

	mux.HandleFunc("POST /entities/{id}/versions", func(w http.ResponseWriter, r *http.Request) {
		var req AppendVersionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		defer s.mu.Unlock()

		s.appendCalls++
		s.log = append(s.log, "append "+r.PathValue("id"))
		if s.failAppends > 0 {
			s.failAppends--
			http.Error(w, "tip mismatch", http.StatusConflict)
			return
		}

		ent, ok := s.entities[r.PathValue("id")]
		if !ok {
			http.Error(w, "entity not found", http.StatusNotFound)
			return
		}
		if req.ExpectTip != ent.Tip {
			http.Error(w, "tip mismatch", http.StatusConflict)
			return
		}
		for name := range req.Components {
			ent.Components[name] = req.Components[name]
		}
		for _, name := range req.ComponentsRemove {
			delete(ent.Components, name)
		}
		ent.Version++
		ent.Tip = fmt.Sprintf("%s-v%d", ent.ID, ent.Version)
		_ = json.NewEncoder(w).Encode(VersionResult{Tip: ent.Tip, Version: ent.Version})
	})

	return mux
}

func newStoreClient(t *testing.T, store *stubStore) *Client {
	t.Helper()
	srv := httptest.NewServer(store.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestGetEntity(t *testing.T) {
	store := newStubStore()
	store.entities["dir-1"] = &Entity{
		ID: "dir-1", Tip: "tip-a", Version: 3,
		Components: map[string]string{"a.txt": "cid-a"},
	}
	client := newStoreClient(t, store)

	ent, err := client.GetEntity(t.Context(), "dir-1")
	require.NoError(t, err)
	assert.Equal(t, "tip-a", ent.Tip)
	assert.Equal(t, 3, ent.Version)
	assert.Equal(t, "cid-a", ent.Components["a.txt"])
}

func TestGetEntity_MissingIsPermanent(t *testing.T) {
	client := newStoreClient(t, newStubStore())

	_, err := client.GetEntity(t.Context(), "nope")
	assert.ErrorIs(t, err, types.ErrStorePermanent)
}

func TestCat(t *testing.T) {
	store := newStubStore()
	cid := store.addBlob([]byte("hello"))
	client := newStoreClient(t, store)

	data, err := client.Cat(t.Context(), cid)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUpload(t *testing.T) {
	store := newStubStore()
	client := newStoreClient(t, store)

	cid, err := client.Upload(t.Context(), "note.txt", []byte("contents"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cid, "cid-"))
	assert.Equal(t, "contents", string(store.blobs[cid]))
}

func TestAppendVersion_CASMismatchIsTransient(t *testing.T) {
	store := newStubStore()
	store.entities["dir-1"] = &Entity{
		ID: "dir-1", Tip: "tip-current",
		Components: map[string]string{},
	}
	client := newStoreClient(t, store)

	_, err := client.AppendVersion(t.Context(), "dir-1", &AppendVersionRequest{ExpectTip: "tip-stale"})
	assert.ErrorIs(t, err, types.ErrStoreTransient)
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, time.Second)

	_, err := client.GetEntity(t.Context(), "x")
	assert.ErrorIs(t, err, types.ErrStoreTransient)
}

func TestTipOrManifest(t *testing.T) {
	assert.Equal(t, "t", (&Entity{Tip: "t", ManifestCID: "m"}).TipOrManifest())
	assert.Equal(t, "m", (&Entity{ManifestCID: "m"}).TipOrManifest())
}
