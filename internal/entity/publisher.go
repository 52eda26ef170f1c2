package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinaxlabs/organizer/internal/util"
	"github.com/pinaxlabs/organizer/types"
)

const (
	// EntityTypePI marks created children as processed items.
	EntityTypePI = "PI"

	casMaxAttempts = 3
	casBaseDelay   = 250 * time.Millisecond
	casMaxDelay    = 5 * time.Second
)

// PublishResult is the outcome of publishing one plan.
type PublishResult struct {
	NewTip        string
	NewVersion    int
	GroupsCreated []types.CreatedGroup
	Warnings      []string
}

// Publisher writes an organize plan back to the entity store: one child
// entity per group, then a single parent version that removes the moved
// components. The parent append is the commit point; children created
// before a crash are deduplicated by the store's content addressing or
// left orphaned.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish creates child entities for every group and appends the parent
// version. Children are created strictly before the parent update. A
// plan with no publishable groups publishes nothing and returns an
// empty result.
func (p *Publisher) Publish(ctx context.Context, parentID string, components map[string]string, plan *types.OrganizePlan) (*PublishResult, error) {
	result := &PublishResult{}

	moved := make(map[string]bool)
	for _, group := range plan.Groups {
		subset := make(map[string]string, len(group.Files))
		for _, name := range group.Files {
			if cid, ok := components[name]; ok {
				subset[name] = cid
			}
		}
		if len(subset) == 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("group %q has no components in the parent, skipped", group.GroupName))
			continue
		}

		child, err := p.createChild(ctx, parentID, group, subset)
		if err != nil {
			return nil, fmt.Errorf("create group %q: %w", group.GroupName, err)
		}

		files := make([]string, 0, len(subset))
		for name := range subset {
			files = append(files, name)
			moved[name] = true
		}
		result.GroupsCreated = append(result.GroupsCreated, types.CreatedGroup{
			GroupName:   group.GroupName,
			ID:          child.ID,
			Files:       files,
			Description: group.Description,
		})
		slog.Info("created group entity",
			"parent", util.ShortID(parentID, 0),
			"group", group.GroupName,
			"child", util.ShortID(child.ID, 0),
			"files", len(files),
		)
	}

	if len(result.GroupsCreated) == 0 {
		return result, nil
	}

	removeList := make([]string, 0, len(moved))
	for name := range moved {
		removeList = append(removeList, name)
	}

	descCID, err := p.client.Upload(ctx, DescriptionComponent, []byte(plan.Description))
	if err != nil {
		return nil, fmt.Errorf("upload reorganization description: %w", err)
	}

	tip, version, err := p.appendParentVersion(ctx, parentID, descCID, removeList, len(result.GroupsCreated))
	if err != nil {
		return nil, err
	}
	result.NewTip = tip
	result.NewVersion = version
	return result, nil
}

// createChild creates one group entity, retrying transient store
// failures.
func (p *Publisher) createChild(ctx context.Context, parentID string, group types.Group, subset map[string]string) (*Entity, error) {
	req := &CreateEntityRequest{
		Components: subset,
		Parent:     parentID,
		Type:       EntityTypePI,
		Note:       fmt.Sprintf("Group: %s", group.GroupName),
	}

	var child *Entity
	err := p.withStoreRetry(ctx, func() error {
		var err error
		child, err = p.client.CreateEntity(ctx, req)
		return err
	})
	return child, err
}

// appendParentVersion commits the reorganization on the parent. The tip
// is refetched on every attempt; a stale expect_tip is exactly the
// failure the retry exists for.
func (p *Publisher) appendParentVersion(ctx context.Context, parentID, descCID string, remove []string, groupCount int) (string, int, error) {
	var tip string
	var version int
	err := p.withStoreRetry(ctx, func() error {
		current, err := p.client.GetEntity(ctx, parentID)
		if err != nil {
			return err
		}
		res, err := p.client.AppendVersion(ctx, parentID, &AppendVersionRequest{
			ExpectTip:        current.TipOrManifest(),
			Components:       map[string]string{DescriptionComponent: descCID},
			ComponentsRemove: remove,
			Note:             fmt.Sprintf("Reorganized into %d group(s)", groupCount),
		})
		if err != nil {
			return err
		}
		tip = res.Tip
		version = res.Version
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("append parent version: %w", err)
	}
	return tip, version, nil
}

// withStoreRetry runs fn up to casMaxAttempts times, backing off on
// store-transient failures (CAS conflicts included).
func (p *Publisher) withStoreRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= casMaxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, types.ErrStoreTransient) {
			return err
		}
		if attempt == casMaxAttempts {
			break
		}
		delay := util.Jitter(util.Backoff(casBaseDelay, attempt, casMaxDelay))
		slog.Warn("store write failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
