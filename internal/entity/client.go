// Package entity talks to the entity store: fetching directory
// contents for organization and publishing grouped results back as new
// child entities.
package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pinaxlabs/organizer/types"
)

// Entity is the store's view of a versioned directory. Components maps
// component names to content addresses.
type Entity struct {
	ID          string            `json:"id"`
	Tip         string            `json:"tip"`
	ManifestCID string            `json:"manifest_cid,omitempty"`
	Version     int               `json:"ver"`
	Components  map[string]string `json:"components"`
	Parent      string            `json:"parent,omitempty"`
	Children    []string          `json:"children,omitempty"`
	Path        string            `json:"path,omitempty"`
}

// TipOrManifest returns the version head. Older store deployments
// report it as manifest_cid instead of tip.
func (e *Entity) TipOrManifest() string {
	if e.Tip != "" {
		return e.Tip
	}
	return e.ManifestCID
}

// CreateEntityRequest creates a child entity from existing components.
type CreateEntityRequest struct {
	Components map[string]string `json:"components"`
	Parent     string            `json:"parent,omitempty"`
	Type       string            `json:"type,omitempty"`
	Note       string            `json:"note,omitempty"`
}

// AppendVersionRequest advances an entity's version chain. ExpectTip is
// a compare-and-swap guard against concurrent writers.
type AppendVersionRequest struct {
	ExpectTip        string            `json:"expect_tip"`
	Components       map[string]string `json:"components,omitempty"`
	ComponentsRemove []string          `json:"components_remove,omitempty"`
	Note             string            `json:"note,omitempty"`
}

// VersionResult is the store's acknowledgement of an appended version.
type VersionResult struct {
	Tip     string `json:"tip"`
	Version int    `json:"ver"`
}

// Client is a REST client for the entity store. Safe for concurrent
// use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a store client. timeout <= 0 defaults to 30s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetEntity fetches an entity by id.
func (c *Client) GetEntity(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	if err := c.getJSON(ctx, "/entities/"+id, &e); err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	if e.ID == "" {
		e.ID = id
	}
	return &e, nil
}

// Cat fetches raw bytes by content address.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cat/"+cid, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cat %s: %v", types.ErrStoreTransient, cid, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, fmt.Errorf("cat %s: %w", cid, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: cat %s: read body: %v", types.ErrStoreTransient, cid, err)
	}
	return data, nil
}

// Upload stores a blob and returns its content address.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload: %v", types.ErrStoreTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}

	var results []struct {
		CID string `json:"cid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("%w: upload: decode response: %v", types.ErrStorePermanent, err)
	}
	if len(results) == 0 || results[0].CID == "" {
		return "", fmt.Errorf("%w: upload returned no cid", types.ErrStorePermanent)
	}
	return results[0].CID, nil
}

// CreateEntity creates a new entity, usually a child grouping.
func (c *Client) CreateEntity(ctx context.Context, req *CreateEntityRequest) (*Entity, error) {
	var e Entity
	if err := c.postJSON(ctx, "/entities", req, &e); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return &e, nil
}

// AppendVersion appends a version to an entity's chain. A CAS mismatch
// surfaces as a store-transient error so callers refetch the tip and
// retry.
func (c *Client) AppendVersion(ctx context.Context, id string, req *AppendVersionRequest) (*VersionResult, error) {
	var res VersionResult
	if err := c.postJSON(ctx, "/entities/"+id+"/versions", req, &res); err != nil {
		return nil, fmt.Errorf("append version to %s: %w", id, err)
	}
	return &res, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", types.ErrStorePermanent, err)
	}
	return nil
}

// classifyStatus maps HTTP statuses onto the store error taxonomy. 409
// is the store's CAS-mismatch signal and must stay retryable.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", types.ErrStoreTransient, resp.StatusCode, readErrorBody(resp))
	default:
		return fmt.Errorf("%w: status %d: %s", types.ErrStorePermanent, resp.StatusCode, readErrorBody(resp))
	}
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	return strings.TrimSpace(string(data))
}
