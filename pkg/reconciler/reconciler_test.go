package reconciler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) PublishEvent(e *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReconcilePublishingWindows(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.ApplyBatch(&storage.Batch{Pages: []*types.Page{
		{UID: "due", URL: "/due", Publishing: at(-time.Minute)},
		{UID: "later", URL: "/later", Publishing: at(time.Hour)},
		{UID: "expired", URL: "/expired", State: types.PageOnline, Archiving: at(-time.Second)},
		{UID: "already", URL: "/already", State: types.PageOnline, Publishing: at(-time.Hour)},
		{UID: "trash", URL: "/trash", State: types.PageDeleted, Publishing: at(-time.Hour)},
	}}))

	rec := &recorder{}
	r := NewReconciler(store, store, rec, Config{Now: func() time.Time { return now }})

	res, err := r.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, []string{"due"}, res.Published)
	assert.Equal(t, []string{"expired"}, res.Archived)

	tests := []struct {
		uid        string
		online     bool
		publishing bool
		archiving  bool
	}{
		{"due", true, false, false},
		{"later", false, true, false},
		{"expired", false, false, false},
		{"already", true, false, false},
		{"trash", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			p, err := store.GetPage(tt.uid)
			require.NoError(t, err)
			assert.Equal(t, tt.online, p.IsOnline())
			assert.Equal(t, tt.publishing, p.Publishing != nil)
			assert.Equal(t, tt.archiving, p.Archiving != nil)
		})
	}

	assert.ElementsMatch(t, []events.EventType{events.EventPagePublished, events.EventPageArchived}, rec.types())

	// a second pass has nothing to do
	res, err = r.Reconcile()
	require.NoError(t, err)
	assert.Empty(t, res.Published)
	assert.Empty(t, res.Archived)
}

// editingStore lets an edit land between the scan and the apply
type editingStore struct {
	*storage.BoltStore
	edit func()
}

func (s *editingStore) ListPages() ([]*types.Page, error) {
	pages, err := s.BoltStore.ListPages()
	if err == nil && s.edit != nil {
		s.edit()
	}
	return pages, err
}

func TestReconcileKeepsConcurrentPageEdits(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.ApplyBatch(&storage.Batch{Pages: []*types.Page{
		{UID: "due", Title: "Draft", URL: "/due", Publishing: at(-time.Minute), Archiving: at(time.Hour)},
		{UID: "gone", URL: "/gone", Publishing: at(-time.Minute)},
	}}))

	es := &editingStore{BoltStore: store, edit: func() {
		p, err := store.GetPage("due")
		require.NoError(t, err)
		p.Title = "Launch"
		p.State = p.State.With(types.PageHidden, true)
		p.Archiving = at(2 * time.Hour)

		q, err := store.GetPage("gone")
		require.NoError(t, err)
		q.State = q.State.With(types.PageDeleted, true)
		require.NoError(t, store.ApplyBatch(&storage.Batch{Pages: []*types.Page{p, q}}))
	}}

	r := NewReconciler(es, store, nil, Config{Now: func() time.Time { return now }})
	res, err := r.Reconcile()
	require.NoError(t, err)
	assert.Contains(t, res.Published, "due")

	p, err := store.GetPage("due")
	require.NoError(t, err)
	assert.Equal(t, "Launch", p.Title)
	assert.True(t, p.IsOnline())
	assert.True(t, p.State.Has(types.PageHidden))
	assert.Nil(t, p.Publishing)
	require.NotNil(t, p.Archiving)
	assert.True(t, p.Archiving.Equal(now.Add(2*time.Hour)))
	assert.True(t, p.ModifiedAt.Equal(now))

	q, err := store.GetPage("gone")
	require.NoError(t, err)
	assert.True(t, q.IsDeleted())
	assert.False(t, q.IsOnline())
	assert.NotNil(t, q.Publishing)
}

func TestReconcilePurgesRevisions(t *testing.T) {
	store := newStore(t)
	old := now.Add(-48 * time.Hour)
	require.NoError(t, store.ApplyBatch(&storage.Batch{Revisions: []*types.Revision{
		{UID: "r1", ContentUID: "c1", Owner: "alice", State: types.RevisionToDelete, ModifiedAt: old},
		{UID: "r2", ContentUID: "c1", Owner: "bob", State: types.RevisionToDelete, ModifiedAt: now.Add(-time.Hour)},
		{UID: "r3", ContentUID: "c1", Owner: "alice", State: types.RevisionCommitted, Revision: 1, ModifiedAt: old},
		{UID: "r4", ContentUID: "c2", Owner: "alice", State: types.RevisionModified, ModifiedAt: old},
	}}))

	rec := &recorder{}
	r := NewReconciler(store, store, rec, Config{PurgeGrace: 24 * time.Hour, Now: func() time.Time { return now }})

	res, err := r.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Purged)

	_, err = store.GetRevision("r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	for _, uid := range []string{"r2", "r3", "r4"} {
		_, err := store.GetRevision(uid)
		assert.NoError(t, err, uid)
	}
	assert.Equal(t, []events.EventType{events.EventRevisionsPurged}, rec.types())
}

func TestReconcilerStartStop(t *testing.T) {
	store := newStore(t)
	r := NewReconciler(store, store, nil, Config{Interval: 10 * time.Millisecond})
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	r.Stop()
}
