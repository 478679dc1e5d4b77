package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

var (
	// ErrNotLeader is returned when a write reaches a node that cannot commit it
	ErrNotLeader = errors.New("not the raft leader")
	// ErrNotBootstrapped is returned when raft has not been started yet
	ErrNotBootstrapped = errors.New("raft not initialized")
)

const defaultApplyTimeout = 5 * time.Second

// Manager owns the replicated CMS state of a node: the bbolt store, the raft
// log feeding it, the editing sessions and the event broker.
type Manager struct {
	nodeID       string
	bindAddr     string
	dataDir      string
	inMemory     bool
	applyTimeout time.Duration

	raft        *raft.Raft
	fsm         *StrataFSM
	store       *storage.BoltStore
	sessions    *SessionManager
	eventBroker *events.Broker
	logger      zerolog.Logger
}

// Config holds configuration for creating a Manager
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// InMemory keeps the raft log, snapshots and transport in memory. The
	// content store is still written to DataDir.
	InMemory     bool
	ApplyTimeout time.Duration
}

// NewManager creates a new Manager instance
func NewManager(cfg *Config) (*Manager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = defaultApplyTimeout
	}

	return &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		inMemory:     cfg.InMemory,
		applyTimeout: timeout,
		fsm:          NewStrataFSM(store),
		store:        store,
		sessions:     NewSessionManager(),
		eventBroker:  eventBroker,
		logger:       log.WithNodeID(cfg.NodeID),
	}, nil
}

func (m *Manager) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.LogOutput = log.Writer("raft")

	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

// Bootstrap starts raft and bootstraps a single voter configuration. A data
// directory that already holds raft state is resumed instead.
func (m *Manager) Bootstrap() error {
	config := m.raftConfig()

	var (
		logStore      raft.LogStore
		stableStore   raft.StableStore
		snapshotStore raft.SnapshotStore
		transport     raft.Transport
	)

	if m.inMemory {
		inmem := raft.NewInmemStore()
		logStore, stableStore = inmem, inmem
		snapshotStore = raft.NewInmemSnapshotStore()
		_, transport = raft.NewInmemTransport(raft.ServerAddress(m.nodeID))
	} else {
		addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve bind address: %v", err)
		}

		tcp, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, log.Writer("raft"))
		if err != nil {
			return fmt.Errorf("failed to create transport: %v", err)
		}
		transport = tcp

		snapshotStore, err = raft.NewFileSnapshotStore(m.dataDir, 2, log.Writer("raft"))
		if err != nil {
			return fmt.Errorf("failed to create snapshot store: %v", err)
		}

		boltLog, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
		if err != nil {
			return fmt.Errorf("failed to create log store: %v", err)
		}
		logStore = boltLog

		boltStable, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
		if err != nil {
			return fmt.Errorf("failed to create stable store: %v", err)
		}
		stableStore = boltStable
	}

	hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
	if err != nil {
		return fmt.Errorf("failed to inspect raft state: %v", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %v", err)
	}
	m.raft = r

	if hasState {
		m.logger.Info().Msg("Resuming existing raft state")
		return nil
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      config.LocalID,
				Address: transport.LocalAddr(),
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %v", err)
	}

	m.logger.Info().Str("bind_addr", string(transport.LocalAddr())).Msg("Raft bootstrapped")
	return nil
}

// WaitForLeader blocks until the node knows a leader or ctx is done
func (m *Manager) WaitForLeader(ctx context.Context) error {
	if m.raft == nil {
		return ErrNotBootstrapped
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if addr, _ := m.raft.LeaderWithID(); addr != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for leader: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsLeader returns true if this manager is the Raft leader
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// NodeID returns the raft server ID of this node
func (m *Manager) NodeID() string {
	return m.nodeID
}

// GetRaftStats returns Raft statistics
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = m.LeaderAddr()

	if future := m.raft.GetConfiguration(); future.Error() == nil {
		stats["peers"] = uint64(len(future.Configuration().Servers))
	}

	return stats
}

// Store returns the local store. Reads go straight to it; writes must go
// through Apply so they reach the raft log.
func (m *Manager) Store() storage.Store {
	return m.store
}

// BoltStore returns the concrete store for maintenance tasks such as backups
func (m *Manager) BoltStore() *storage.BoltStore {
	return m.store
}

// Sessions returns the editing session manager
func (m *Manager) Sessions() *SessionManager {
	return m.sessions
}

// GetEventBroker returns the event broker
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes an event to all subscribers
func (m *Manager) PublishEvent(event *events.Event) {
	if m.eventBroker != nil {
		m.eventBroker.Publish(event)
	}
}

// Apply submits a command to the Raft log and waits until the FSM applied it
func (m *Manager) Apply(cmd Command) error {
	if m.raft == nil {
		return ErrNotBootstrapped
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %v", err)
	}

	future := m.raft.Apply(data, m.applyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return fmt.Errorf("%w (leader: %q)", ErrNotLeader, m.LeaderAddr())
		}
		return fmt.Errorf("failed to apply command: %v", err)
	}

	// Check if apply returned an error
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

// ApplyBatch replicates a flushed unit of work as one raft entry
func (m *Manager) ApplyBatch(b *storage.Batch) error {
	if b == nil || b.Empty() {
		return nil
	}

	data, err := json.Marshal(b)
	if err != nil {
		return err
	}

	if err := m.Apply(Command{Op: OpApplyBatch, Data: data}); err != nil {
		return err
	}

	metrics.FlushRecords.Observe(float64(len(b.Contents) + len(b.Revisions) + len(b.Pages) + len(b.DeleteRevisions) + len(b.Settings) + len(b.Schedules)))
	return nil
}

// PutSetting stores a site setting
func (m *Manager) PutSetting(key, value string) error {
	data, err := json.Marshal(setting{Key: key, Value: value})
	if err != nil {
		return err
	}

	return m.Apply(Command{Op: OpPutSetting, Data: data})
}

// GetSetting reads a setting from the local replica
func (m *Manager) GetSetting(key string) (string, error) {
	return m.store.GetSetting(key)
}

// DeleteRevisions purges revisions
func (m *Manager) DeleteRevisions(uids []string) error {
	if len(uids) == 0 {
		return nil
	}

	data, err := json.Marshal(uids)
	if err != nil {
		return err
	}

	return m.Apply(Command{Op: OpDeleteRevisions, Data: data})
}

// Snapshot forces a raft snapshot
func (m *Manager) Snapshot() error {
	if m.raft == nil {
		return ErrNotBootstrapped
	}
	return m.raft.Snapshot().Error()
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %v", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %v", err)
		}
	}

	return nil
}
