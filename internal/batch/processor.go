package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pinaxlabs/organizer/internal/entity"
	"github.com/pinaxlabs/organizer/internal/util"
	"github.com/pinaxlabs/organizer/types"
)

// itemConcurrency bounds parallel item processing within a batch.
const itemConcurrency = 4

// defaultMinFiles is the floor below which a directory is not worth
// organizing.
const defaultMinFiles = 3

// Fetcher loads directory contents from the entity store.
type Fetcher interface {
	FetchContext(ctx context.Context, id string) (*entity.DirectoryContext, error)
}

// Organizer produces a grouping plan for one directory.
type Organizer interface {
	Organize(ctx context.Context, req *types.OrganizeRequest) (*types.OrganizePlan, error)
}

// Publisher writes a plan back to the entity store.
type Publisher interface {
	Publish(ctx context.Context, parentID string, components map[string]string, plan *types.OrganizePlan) (*entity.PublishResult, error)
}

// CallbackSender delivers the aggregated batch result.
type CallbackSender interface {
	Send(ctx context.Context, payload *types.CallbackPayload) error
}

// Manager owns every in-flight batch. Each batch runs on its own
// alarm-driven goroutine; all state mutation for a batch happens on
// that goroutine, so batches need no per-state locking. The manager's
// mutex only guards the active set.
type Manager struct {
	cfg       types.BatchConfig
	store     *Store
	fetcher   Fetcher
	organizer Organizer
	publisher Publisher
	callback  CallbackSender

	mu     sync.Mutex
	active map[string]types.Phase
}

// NewManager wires the batch pipeline.
func NewManager(cfg types.BatchConfig, store *Store, fetcher Fetcher, organizer Organizer, publisher Publisher, callback CallbackSender) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		fetcher:   fetcher,
		organizer: organizer,
		publisher: publisher,
		callback:  callback,
		active:    make(map[string]types.Phase),
	}
}

func batchKey(batchID, chunkID string) string {
	return batchID + "/" + chunkID
}

// Submit registers a new batch and starts its scheduler. A batch with
// the same (batch_id, chunk_id) still in flight is rejected.
func (m *Manager) Submit(ctx context.Context, req *types.ProcessRequest) (*types.ProcessResponse, error) {
	key := batchKey(req.BatchID, req.ChunkID)

	m.mu.Lock()
	if phase, ok := m.active[key]; ok {
		m.mu.Unlock()
		slog.Warn("duplicate batch submission rejected", "batch", req.BatchID, "chunk", req.ChunkID, "phase", phase)
		return &types.ProcessResponse{
			Status:  "already_processing",
			ChunkID: req.ChunkID,
			Total:   len(req.IDs),
			Phase:   phase,
		}, nil
	}
	m.active[key] = types.PhasePending
	m.mu.Unlock()

	state := &types.BatchState{
		BatchID:      req.BatchID,
		ChunkID:      req.ChunkID,
		Phase:        types.PhasePending,
		CustomPrompt: req.CustomPrompt,
		StartedAt:    time.Now().UTC(),
		Items:        make([]types.ItemState, len(req.IDs)),
	}
	for i, id := range req.IDs {
		state.Items[i] = types.ItemState{ID: id, Status: types.ItemPending}
	}

	if err := m.store.Save(state); err != nil {
		m.mu.Lock()
		delete(m.active, key)
		m.mu.Unlock()
		return nil, err
	}

	go m.run(ctx, state)

	slog.Info("batch accepted",
		"batch", util.ShortID(req.BatchID, 0),
		"chunk", req.ChunkID,
		"items", len(req.IDs),
	)
	return &types.ProcessResponse{
		Status:  "accepted",
		ChunkID: req.ChunkID,
		Total:   len(req.IDs),
	}, nil
}

// Resume restarts schedulers for batches persisted before a shutdown.
func (m *Manager) Resume(ctx context.Context) error {
	states, err := m.store.ListUnfinished()
	if err != nil {
		return err
	}
	for _, state := range states {
		key := batchKey(state.BatchID, state.ChunkID)
		m.mu.Lock()
		if _, ok := m.active[key]; ok {
			m.mu.Unlock()
			continue
		}
		m.active[key] = state.Phase
		m.mu.Unlock()

		slog.Info("resuming batch", "batch", state.BatchID, "chunk", state.ChunkID, "phase", state.Phase)
		go m.run(ctx, state)
	}
	return nil
}

// Status reports phase and item counts from persisted state. It never
// mutates anything; reading the store keeps it race-free against the
// batch's own scheduler.
func (m *Manager) Status(batchID, chunkID string) (*types.StatusResponse, error) {
	state, err := m.store.Load(batchID, chunkID)
	if err != nil {
		return nil, err
	}

	counts := state.CountByStatus()
	return &types.StatusResponse{
		Status:    "processing",
		Phase:     state.Phase,
		StartedAt: &state.StartedAt,
		Progress: types.StatusProgress{
			Total:      len(state.Items),
			Pending:    counts[types.ItemPending],
			Fetching:   counts[types.ItemFetching],
			Processing: counts[types.ItemProcessing],
			Publishing: counts[types.ItemPublishing],
			Done:       counts[types.ItemDone],
			Failed:     counts[types.ItemError],
		},
	}, nil
}

// run is the per-batch scheduler. It re-enters at the alarm interval
// until the batch reaches a terminal phase and its state is deleted.
func (m *Manager) run(ctx context.Context, state *types.BatchState) {
	key := batchKey(state.BatchID, state.ChunkID)
	defer func() {
		m.mu.Lock()
		delete(m.active, key)
		m.mu.Unlock()
	}()

	interval := m.cfg.AlarmInterval()
	for {
		if finished := m.step(ctx, state); finished {
			return
		}
		m.mu.Lock()
		m.active[key] = state.Phase
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			slog.Warn("batch scheduler stopped, state persisted for resume",
				"batch", state.BatchID, "chunk", state.ChunkID, "phase", state.Phase)
			return
		case <-time.After(interval):
		}
	}
}

// step advances the batch by one alarm. Returns true when the batch is
// finished and its state removed.
func (m *Manager) step(ctx context.Context, state *types.BatchState) bool {
	switch state.Phase {
	case types.PhasePending:
		state.Phase = types.PhaseProcessing
		m.persist(state)

	case types.PhaseProcessing:
		m.stepProcessing(ctx, state)

	case types.PhasePublishing:
		m.stepPublishing(ctx, state)

	case types.PhaseCallback:
		m.stepCallback(ctx, state)

	case types.PhaseDone, types.PhaseError:
		if err := m.store.Delete(state.BatchID, state.ChunkID); err != nil {
			slog.Error("failed to delete batch state", "batch", state.BatchID, "chunk", state.ChunkID, "error", err)
		}
		slog.Info("batch finished",
			"batch", util.ShortID(state.BatchID, 0),
			"chunk", state.ChunkID,
			"phase", state.Phase,
			"elapsed", time.Since(state.StartedAt),
		)
		return true
	}
	return false
}

// stepProcessing runs fetch+organize for every runnable item in
// parallel, then checks the phase gate.
func (m *Manager) stepProcessing(ctx context.Context, state *types.BatchState) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(itemConcurrency)
	for i := range state.Items {
		item := &state.Items[i]
		if item.Status != types.ItemPending && item.Status != types.ItemFetching {
			continue
		}
		g.Go(func() error {
			m.processItem(gctx, state, item)
			return nil
		})
	}
	_ = g.Wait()

	counts := state.CountByStatus()
	if counts[types.ItemPending]+counts[types.ItemFetching]+counts[types.ItemProcessing] == 0 {
		state.Phase = types.PhasePublishing
	}
	m.persist(state)
}

// processItem drives one directory through fetch and organize. Only
// this item's fields are touched, so items are safe to run in parallel.
func (m *Manager) processItem(ctx context.Context, state *types.BatchState, item *types.ItemState) {
	item.Status = types.ItemFetching
	dc, err := m.fetcher.FetchContext(ctx, item.ID)
	if err != nil {
		m.failItem(item, fmt.Errorf("fetch context: %w", err))
		return
	}
	item.Tip = dc.Tip
	item.DirectoryPath = dc.DirectoryPath
	item.Components = dc.Components
	item.Files = dc.Files

	minFiles := m.cfg.MinFiles
	if minFiles <= 0 {
		minFiles = defaultMinFiles
	}
	if len(item.Files) < minFiles {
		slog.Info("too few files to organize, skipping",
			"item", util.ShortID(item.ID, 0), "files", len(item.Files))
		item.Files = nil
		item.Status = types.ItemDone
		return
	}

	item.Status = types.ItemProcessing
	plan, err := m.organizer.Organize(ctx, &types.OrganizeRequest{
		DirectoryPath: item.DirectoryPath,
		Files:         item.Files,
		CustomPrompt:  state.CustomPrompt,
	})
	if err != nil {
		m.failItem(item, fmt.Errorf("organize: %w", err))
		return
	}

	item.Plan = plan
	item.Ungrouped = plan.Ungrouped
	item.Files = nil // bound persisted state
	item.Status = types.ItemPublishing
}

// failItem applies the per-item retry budget. Below the budget the item
// reverts to pending for the next alarm; at the budget it fails for
// good.
func (m *Manager) failItem(item *types.ItemState, err error) {
	item.RetryCount++
	item.Files = nil
	maxRetries := m.cfg.MaxRetriesPerItem
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if item.RetryCount >= maxRetries {
		item.Status = types.ItemError
		item.Error = err.Error()
		slog.Error("item failed permanently",
			"item", util.ShortID(item.ID, 0), "retries", item.RetryCount, "error", err)
		return
	}
	item.Status = types.ItemPending
	slog.Warn("item failed, will retry",
		"item", util.ShortID(item.ID, 0), "retry", item.RetryCount, "error", err)
}

// stepPublishing publishes items one at a time to avoid bursting the
// entity store with CAS writes.
func (m *Manager) stepPublishing(ctx context.Context, state *types.BatchState) {
	for i := range state.Items {
		item := &state.Items[i]
		if item.Status != types.ItemPublishing {
			continue
		}

		res, err := m.publisher.Publish(ctx, item.ID, item.Components, item.Plan)
		if err != nil {
			item.Status = types.ItemError
			item.Error = fmt.Sprintf("publish: %v", err)
			slog.Error("publish failed", "item", util.ShortID(item.ID, 0), "error", err)
		} else {
			item.NewParentTip = res.NewTip
			item.NewParentVersion = res.NewVersion
			item.GroupsCreated = res.GroupsCreated
			item.Status = types.ItemDone
		}
		m.persist(state)
	}

	if state.CountByStatus()[types.ItemPublishing] == 0 {
		state.Phase = types.PhaseCallback
		m.persist(state)
	}
}

// stepCallback delivers the aggregated payload. After the retry budget
// the batch force-completes; the payload is lost and reconciliation
// happens outside this service.
func (m *Manager) stepCallback(ctx context.Context, state *types.BatchState) {
	payload := BuildPayload(state)
	err := m.callback.Send(ctx, payload)
	if err == nil {
		phase := types.PhaseDone
		if payload.Status == "error" {
			phase = types.PhaseError
		}
		m.complete(state, phase)
		return
	}

	state.CallbackRetryCount++
	maxRetries := m.cfg.MaxCallbackRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if state.CallbackRetryCount >= maxRetries {
		slog.Error("callback abandoned, forcing completion",
			"batch", state.BatchID, "chunk", state.ChunkID, "retries", state.CallbackRetryCount, "error", err)
		state.GlobalError = fmt.Sprintf("callback delivery failed: %v", err)
		m.complete(state, types.PhaseDone)
		return
	}

	m.persist(state)
	delay := util.Jitter(util.Backoff(time.Second, state.CallbackRetryCount, 30*time.Second))
	slog.Warn("callback failed, backing off",
		"batch", state.BatchID, "retry", state.CallbackRetryCount, "delay", delay, "error", err)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (m *Manager) complete(state *types.BatchState, phase types.Phase) {
	now := time.Now().UTC()
	state.CompletedAt = &now
	state.Phase = phase
	m.persist(state)
}

// persist saves state, degrading to a log line on failure. Losing one
// save means at worst redoing work after a restart.
func (m *Manager) persist(state *types.BatchState) {
	if err := m.store.Save(state); err != nil {
		slog.Error("failed to persist batch state",
			"batch", state.BatchID, "chunk", state.ChunkID, "error", err)
	}
}
