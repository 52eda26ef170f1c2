// Package batch runs the asynchronous lifecycle: fetch directories,
// organize each with the LLM, publish the results and report back to
// the orchestrator in a single callback.
package batch

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pinaxlabs/organizer/types"
)

// Store persists BatchState across restarts so interrupted batches can
// resume. One row per (batch_id, chunk_id); the state blob is JSON.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the batch database under basePath. Pass
// ":memory:" for tests.
func NewStore(basePath string) (*Store, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dbPath = filepath.Join(basePath, "batches.db")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		batch_id   TEXT NOT NULL,
		chunk_id   TEXT NOT NULL,
		phase      TEXT NOT NULL,
		state      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (batch_id, chunk_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts the full state blob for one batch.
func (s *Store) Save(state *types.BatchState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal batch state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO batches (batch_id, chunk_id, phase, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, chunk_id) DO UPDATE SET
			phase = excluded.phase,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		state.BatchID, state.ChunkID, string(state.Phase), string(blob),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save batch %s/%s: %w", state.BatchID, state.ChunkID, err)
	}
	return nil
}

// Load returns the persisted state, or types.ErrNotFound.
func (s *Store) Load(batchID, chunkID string) (*types.BatchState, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT state FROM batches WHERE batch_id = ? AND chunk_id = ?`,
		batchID, chunkID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch %s/%s", types.ErrNotFound, batchID, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s/%s: %w", batchID, chunkID, err)
	}

	var state types.BatchState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("unmarshal batch %s/%s: %w", batchID, chunkID, err)
	}
	return &state, nil
}

// Delete removes the state row. Deleting a missing row is not an error.
func (s *Store) Delete(batchID, chunkID string) error {
	if _, err := s.db.Exec(
		`DELETE FROM batches WHERE batch_id = ? AND chunk_id = ?`,
		batchID, chunkID,
	); err != nil {
		return fmt.Errorf("delete batch %s/%s: %w", batchID, chunkID, err)
	}
	return nil
}

// ListUnfinished returns every batch not yet in a terminal phase, for
// resumption after a restart.
func (s *Store) ListUnfinished() ([]*types.BatchState, error) {
	rows, err := s.db.Query(
		`SELECT state FROM batches WHERE phase NOT IN (?, ?)`,
		string(types.PhaseDone), string(types.PhaseError),
	)
	if err != nil {
		return nil, fmt.Errorf("list unfinished batches: %w", err)
	}
	defer rows.Close()

	var states []*types.BatchState
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var state types.BatchState
		if err := json.Unmarshal([]byte(blob), &state); err != nil {
			return nil, fmt.Errorf("unmarshal batch state: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
