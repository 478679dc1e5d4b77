package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
	"github.com/hashicorp/raft"
)

// Raft command operations
const (
	OpApplyBatch      = "apply_batch"
	OpPutSetting      = "put_setting"
	OpDeleteRevisions = "delete_revisions"
)

// StrataFSM implements the Raft Finite State Machine for the CMS state.
// Every flushed unit of work arrives as a single apply_batch entry.
type StrataFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewStrataFSM creates a new FSM instance
func NewStrataFSM(store storage.Store) *StrataFSM {
	return &StrataFSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Apply applies a Raft log entry to the FSM
func (f *StrataFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpApplyBatch:
		var batch storage.Batch
		if err := json.Unmarshal(cmd.Data, &batch); err != nil {
			return err
		}
		return f.store.ApplyBatch(&batch)

	case OpPutSetting:
		var s setting
		if err := json.Unmarshal(cmd.Data, &s); err != nil {
			return err
		}
		return f.store.PutSetting(s.Key, s.Value)

	case OpDeleteRevisions:
		var uids []string
		if err := json.Unmarshal(cmd.Data, &uids); err != nil {
			return err
		}
		return f.store.DeleteRevisions(uids)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM
func (f *StrataFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	contents, err := f.store.ListContents()
	if err != nil {
		return nil, fmt.Errorf("failed to list contents: %v", err)
	}

	revisions, err := f.store.ListRevisions()
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %v", err)
	}

	pages, err := f.store.ListPages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %v", err)
	}

	settings, err := f.store.ListSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %v", err)
	}

	return &StrataSnapshot{
		Contents:  contents,
		Revisions: revisions,
		Pages:     pages,
		Settings:  settings,
	}, nil
}

// Restore restores the FSM from a snapshot. Records are upserted in one
// transaction.
func (f *StrataFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot StrataSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	batch := &storage.Batch{
		Contents:  snapshot.Contents,
		Revisions: snapshot.Revisions,
		Pages:     snapshot.Pages,
		Settings:  snapshot.Settings,
	}
	if err := f.store.ApplyBatch(batch); err != nil {
		return fmt.Errorf("failed to restore snapshot: %v", err)
	}
	return nil
}

// StrataSnapshot represents a point-in-time snapshot of the CMS state
type StrataSnapshot struct {
	Contents  []*types.Content
	Revisions []*types.Revision
	Pages     []*types.Page
	Settings  map[string]string
}

// Persist writes the snapshot to the given SnapshotSink
func (s *StrataSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources
func (s *StrataSnapshot) Release() {}
