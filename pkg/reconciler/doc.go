/*
Package reconciler runs the periodic housekeeping of a strata node.

Every interval the reconciler scans the local replica and writes what it
changed as one batch through raft:

  - a page whose publishing date has passed goes online
  - a page whose archiving date has passed goes offline
  - revisions left in the to-delete state are purged after a grace period

Applied dates are cleared, so a page switched by its window is not switched
again and an editor may take it back offline by hand. Deleted pages are left
alone.

# Usage

	r := reconciler.NewReconciler(mgr.Store(), mgr, mgr, reconciler.Config{
		Interval:   10 * time.Second,
		PurgeGrace: 24 * time.Hour,
	})
	r.Start()
	defer r.Stop()

Reconcile runs a single cycle and is what tests call directly.
*/
package reconciler
