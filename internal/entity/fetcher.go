package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pinaxlabs/organizer/types"
)

// DescriptionComponent is the component this service writes back after
// a reorganization. It is skipped on fetch so a previous run's output
// never feeds the next run's prompt.
const DescriptionComponent = "reorganization-description.txt"

// fetchConcurrency bounds parallel content fetches per directory.
const fetchConcurrency = 8

// textExtensions are component extensions fetched as inline text.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true,
	".tsv": true, ".log": true, ".html": true, ".htm": true, ".xml": true,
}

// refDescriptor is the parsed body of a .ref.json sidecar.
type refDescriptor struct {
	OCR      string `json:"ocr"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// DirectoryContext is everything the organize pipeline needs about one
// directory entity.
type DirectoryContext struct {
	ID            string
	Tip           string
	Version       int
	DirectoryPath string
	Components    map[string]string
	Files         []types.FileInput
	Warnings      []string
}

// Fetcher assembles a DirectoryContext from the entity store.
type Fetcher struct {
	client *Client
}

func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchContext fetches the entity and the content of every organizable
// component. A failed component fetch becomes a warning, not an error;
// the file is omitted. Only a failed entity fetch is fatal.
func (f *Fetcher) FetchContext(ctx context.Context, id string) (*DirectoryContext, error) {
	ent, err := f.client.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	dc := &DirectoryContext{
		ID:            ent.ID,
		Tip:           ent.TipOrManifest(),
		Version:       ent.Version,
		DirectoryPath: ent.Path,
		Components:    ent.Components,
	}

	names := make([]string, 0, len(ent.Components))
	for name := range ent.Components {
		if OrganizableKind(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var mu sync.Mutex
	files := make([]*types.FileInput, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, name := range names {
		g.Go(func() error {
			file, err := f.fetchComponent(gctx, name, ent.Components[name])
			if err != nil {
				mu.Lock()
				dc.Warnings = append(dc.Warnings,
					fmt.Sprintf("skipped %s: %v", name, err))
				mu.Unlock()
				slog.Warn("component fetch failed", "entity", id, "component", name, "error", err)
				return nil
			}
			files[i] = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, file := range files {
		if file != nil {
			dc.Files = append(dc.Files, *file)
		}
	}
	return dc, nil
}

func (f *Fetcher) fetchComponent(ctx context.Context, name, cid string) (*types.FileInput, error) {
	data, err := f.client.Cat(ctx, cid)
	if err != nil {
		return nil, err
	}

	if OrganizableKind(name) == types.FileKindRef {
		return BuildRefInput(name, data)
	}
	return &types.FileInput{
		Name:    name,
		Kind:    types.FileKindText,
		Content: string(data),
		Size:    int64(len(data)),
	}, nil
}

// BuildRefInput turns a .ref.json sidecar into a ref FileInput. OCR
// text, when present, becomes the content behind a short marker so the
// model knows it is describing a binary.
func BuildRefInput(name string, data []byte) (*types.FileInput, error) {
	var ref refDescriptor
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parse ref descriptor: %w", err)
	}

	display := ref.Filename
	if display == "" {
		display = strings.TrimSuffix(name, ".ref.json")
	}

	content := ""
	if strings.TrimSpace(ref.OCR) != "" {
		content = fmt.Sprintf("[Image/Document: %s]\n%s", display, ref.OCR)
	} else {
		content = fmt.Sprintf("[Binary file: %s]", display)
	}

	return &types.FileInput{
		Name:         name,
		Kind:         types.FileKindRef,
		Content:      content,
		OriginalName: ref.Filename,
		Mime:         ref.Type,
		Size:         ref.Size,
	}, nil
}

// OrganizableKind classifies a component name, or returns "" for
// components that never enter the prompt (previous run output, hidden
// metadata, unknown binaries).
func OrganizableKind(name string) types.FileKind {
	if name == DescriptionComponent || strings.HasPrefix(name, ".") {
		return ""
	}
	if strings.HasSuffix(name, ".ref.json") {
		return types.FileKindRef
	}
	if textExtensions[strings.ToLower(path.Ext(name))] {
		return types.FileKindText
	}
	return ""
}
