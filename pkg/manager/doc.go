/*
Package manager owns the replicated state of a Strata node.

Every write made by the editor, the reconciler or the CLI is a storage.Batch.
The manager wraps the batch in a single raft log entry; once raft commits it,
StrataFSM applies it to the bbolt store in one transaction. A flushed unit of
work is therefore either fully visible or not visible at all, and replaying
the log rebuilds the same store.

	editor / reconciler
	        │  ApplyBatch(batch)
	        ▼
	┌──────────────┐   apply_batch    ┌──────────────┐   one bolt tx   ┌───────────┐
	│   Manager    │ ───────────────▶ │  raft log    │ ──────────────▶ │ StrataFSM │
	└──────────────┘                  └──────────────┘                 └───────────┘

Reads never go through raft: Store returns the local store.

# Raft modes

A node runs a single-voter configuration. With Config.InMemory the raft log,
snapshots and transport live in memory, which is what tests and throwaway
preview nodes use. Otherwise the log and stable stores are raft-boltdb files
next to the content store and the transport listens on Config.BindAddr.

# Sessions

SessionManager hands out bearer tokens that bind API calls to an editor. The
session user is the owner of every draft created through the session.
Sessions are kept in memory and do not survive a restart.
*/
package manager
