/*
Package storage provides BoltDB-backed persistence for Strata's CMS data.

The storage package implements the Store interface using BoltDB as the
underlying database. Contents, revisions, pages and settings are serialized
as JSON into separate buckets; two index buckets keep lookups by content and
by URL off the full-scan path.

# Architecture

	┌──────────────────── BOLTDB STORAGE ─────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/strata.db                │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  contents              (content UID)         │          │
	│  │  revisions             (revision UID)        │          │
	│  │  pages                 (page UID)            │          │
	│  │  settings              (key → raw string)    │          │
	│  │  revisions_by_content  (content\0revision)   │          │
	│  │  pages_by_url          (root\0url → page)    │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Batches

Editing produces several records at once: a committed content, the history
record its draft became, an updated page. Those records travel together in a
Batch and ApplyBatch writes them in one bolt transaction, so readers never
observe half of a commit. In a cluster the manager wraps each batch in a
single raft log entry and the FSM calls ApplyBatch on every node.

	batch := &storage.Batch{}
	batch.PutContent(content)
	batch.PutRevision(record)
	if err := store.ApplyBatch(batch); err != nil {
		return err
	}

# Lookups

  - GetDraft(contentUID, owner): the pending draft of a user, via revisions_by_content
  - ListRevisionsByContent: history and drafts ordered by revision number
  - GetPageByURL(rootUID, url): site routing, via pages_by_url

Missing records return an error wrapping ErrNotFound:

	if errors.Is(err, storage.ErrNotFound) {
		...
	}

# Maintenance

RebuildIndexes recreates both index buckets from the primary buckets and is
used by strata-migrate after restoring a backup or upgrading the key layout.
Backup streams a consistent copy of the database file through tx.WriteTo.
*/
package storage
