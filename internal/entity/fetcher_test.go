package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinaxlabs/organizer/types"
)

func TestFetchContext_ClassifiesComponents(t *testing.T) {
	store := newStubStore()
	letterCID := store.addBlob([]byte("Dear Martin, ..."))
	refCID := store.addBlob([]byte(`{"ocr": "Jan 2001 family photo", "type": "image/jpeg", "filename": "photo.jpg", "size": 2048}`))
	descCID := store.addBlob([]byte("previous run output"))
	binCID := store.addBlob([]byte{0x00, 0x01})

	store.entities["dir-1"] = &Entity{
		ID: "dir-1", Tip: "tip-1", Version: 2, Path: "/archive/1895",
		Components: map[string]string{
			"letter.txt":         letterCID,
			"photo.jpg.ref.json": refCID,
			DescriptionComponent: descCID,
			".hidden-meta":       binCID,
			"raw.bin":            binCID,
		},
	}

	fetcher := NewFetcher(newStoreClient(t, store))
	dc, err := fetcher.FetchContext(t.Context(), "dir-1")
	require.NoError(t, err)

	assert.Equal(t, "tip-1", dc.Tip)
	assert.Equal(t, 2, dc.Version)
	assert.Equal(t, "/archive/1895", dc.DirectoryPath)
	assert.Len(t, dc.Components, 5)
	assert.Empty(t, dc.Warnings)

	// Only the letter and the ref sidecar enter the prompt.
	require.Len(t, dc.Files, 2)
	byName := map[string]types.FileInput{}
	for _, f := range dc.Files {
		byName[f.Name] = f
	}

	letter := byName["letter.txt"]
	assert.Equal(t, types.FileKindText, letter.Kind)
	assert.Equal(t, "Dear Martin, ...", letter.Content)

	ref := byName["photo.jpg.ref.json"]
	assert.Equal(t, types.FileKindRef, ref.Kind)
	assert.Equal(t, "[Image/Document: photo.jpg]\nJan 2001 family photo", ref.Content)
	assert.Equal(t, "photo.jpg", ref.OriginalName)
	assert.Equal(t, "image/jpeg", ref.Mime)
	assert.Equal(t, int64(2048), ref.Size)
}

func TestFetchContext_RefWithoutOCR(t *testing.T) {
	store := newStubStore()
	refCID := store.addBlob([]byte(`{"type": "image/png", "filename": "scan.png", "size": 10}`))
	store.entities["dir-1"] = &Entity{
		ID: "dir-1", Tip: "t",
		Components: map[string]string{"scan.png.ref.json": refCID},
	}

	fetcher := NewFetcher(newStoreClient(t, store))
	dc, err := fetcher.FetchContext(t.Context(), "dir-1")
	require.NoError(t, err)

	require.Len(t, dc.Files, 1)
	assert.Equal(t, "[Binary file: scan.png]", dc.Files[0].Content)
}

func TestFetchContext_FailedComponentIsWarning(t *testing.T) {
	store := newStubStore()
	okCID := store.addBlob([]byte("fine"))
	store.entities["dir-1"] = &Entity{
		ID: "dir-1", Tip: "t",
		Components: map[string]string{
			"good.txt": okCID,
			"gone.txt": "cid-missing",
		},
	}

	fetcher := NewFetcher(newStoreClient(t, store))
	dc, err := fetcher.FetchContext(t.Context(), "dir-1")
	require.NoError(t, err)

	require.Len(t, dc.Files, 1)
	assert.Equal(t, "good.txt", dc.Files[0].Name)
	require.Len(t, dc.Warnings, 1)
	assert.Contains(t, dc.Warnings[0], "gone.txt")
}

func TestFetchContext_MalformedRefIsWarning(t *testing.T) {
	store := newStubStore()
	badCID := store.addBlob([]byte("not json at all"))
	store.entities["dir-1"] = &Entity{
		ID: "dir-1", Tip: "t",
		Components: map[string]string{"broken.jpg.ref.json": badCID},
	}

	fetcher := NewFetcher(newStoreClient(t, store))
	dc, err := fetcher.FetchContext(t.Context(), "dir-1")
	require.NoError(t, err)

	assert.Empty(t, dc.Files)
	require.Len(t, dc.Warnings, 1)
	assert.Contains(t, dc.Warnings[0], "broken.jpg.ref.json")
}

func TestFetchContext_MissingEntityIsFatal(t *testing.T) {
	fetcher := NewFetcher(newStoreClient(t, newStubStore()))

	_, err := fetcher.FetchContext(t.Context(), "absent")
	assert.ErrorIs(t, err, types.ErrStorePermanent)
}

func TestOrganizableKind(t *testing.T) {
	cases := []struct {
		name string
		want types.FileKind
	}{
		{"letter.txt", types.FileKindText},
		{"README.md", types.FileKindText},
		{"photo.JPG.ref.json", types.FileKindRef},
		{DescriptionComponent, ""},
		{".pinax-meta", ""},
		{"archive.zip", ""},
		{"data.json", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OrganizableKind(tc.name), tc.name)
	}
}
