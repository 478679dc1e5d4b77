package storage

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestBoltStoreContents(t *testing.T) {
	s := newTestStore(t)

	b := &Batch{}
	b.PutContent(&types.Content{UID: "c1", Type: "Element/Text", Payload: types.Payload{Value: "a"}})
	b.PutContent(&types.Content{UID: "c2", Type: "Article"})
	b.PutContent(&types.Content{UID: "c1", Type: "Element/Text", Payload: types.Payload{Value: "b"}})
	assert.Len(t, b.Contents, 2, "same UID replaces")
	require.NoError(t, s.ApplyBatch(b))

	c, err := s.GetContent("c1")
	require.NoError(t, err)
	assert.Equal(t, "b", c.Payload.Value)

	all, err := s.ListContents()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	articles, err := s.ListContentsByType("Article")
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "c2", articles[0].UID)

	_, err = s.GetContent("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStoreRevisions(t *testing.T) {
	s := newTestStore(t)

	b := &Batch{}
	b.PutRevision(&types.Revision{UID: "r2", ContentUID: "c1", Owner: "bob", State: types.RevisionCommitted, Revision: 2, CreatedAt: t0})
	b.PutRevision(&types.Revision{UID: "r1", ContentUID: "c1", Owner: "alice", State: types.RevisionCommitted, Revision: 1, CreatedAt: t0})
	b.PutRevision(&types.Revision{UID: "d1", ContentUID: "c1", Owner: "alice", State: types.RevisionModified, Revision: 2, CreatedAt: t0.Add(time.Hour)})
	b.PutRevision(&types.Revision{UID: "d2", ContentUID: "c2", Owner: "alice", State: types.RevisionAdded, CreatedAt: t0})
	b.PutRevision(&types.Revision{UID: "x1", ContentUID: "c2", Owner: "bob", State: types.RevisionToDelete, CreatedAt: t0})
	require.NoError(t, s.ApplyBatch(b))

	history, err := s.ListRevisionsByContent("c1")
	require.NoError(t, err)
	var order []string
	for _, r := range history {
		order = append(order, r.UID)
	}
	assert.Equal(t, []string{"r1", "r2", "d1"}, order)

	draft, err := s.GetDraft("c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "d1", draft.UID)

	_, err = s.GetDraft("c1", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetDraft("c2", "bob")
	assert.ErrorIs(t, err, ErrNotFound, "to_delete revisions are not drafts")

	drafts, err := s.ListDraftsByOwner("alice")
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	require.NoError(t, s.DeleteRevisions([]string{"d1", "unknown"}))
	_, err = s.GetRevision("d1")
	assert.ErrorIs(t, err, ErrNotFound)
	history, err = s.ListRevisionsByContent("c1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestBoltStorePages(t *testing.T) {
	s := newTestStore(t)

	root := &types.Page{UID: "root", RootUID: "root", URL: "/", Title: "Home"}
	child := &types.Page{UID: "p1", RootUID: "root", ParentUID: "root", URL: "/about", Title: "About"}
	require.NoError(t, s.ApplyBatch(&Batch{Pages: []*types.Page{root, child}}))

	p, err := s.GetPageByURL("root", "/about")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.UID)

	children, err := s.ListChildPages("root")
	require.NoError(t, err)
	require.Len(t, children, 1)

	child.URL = "/about-us"
	require.NoError(t, s.ApplyBatch(&Batch{Pages: []*types.Page{child}}))

	_, err = s.GetPageByURL("root", "/about")
	assert.ErrorIs(t, err, ErrNotFound, "old URL must be unindexed")
	p, err = s.GetPageByURL("root", "/about-us")
	require.NoError(t, err)
	assert.Equal(t, "About", p.Title)

	_, err = s.GetPageByURL("other-root", "/about-us")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStoreSettings(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSetting("theme")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutSetting("theme", "default"))
	b := &Batch{}
	b.PutSetting("grid", "12")
	require.NoError(t, s.ApplyBatch(b))

	v, err := s.GetSetting("theme")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	all, err := s.ListSettings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "default", "grid": "12"}, all)
}

func TestBatchEmpty(t *testing.T) {
	b := &Batch{}
	assert.True(t, b.Empty())
	b.DeleteRevision("x")
	assert.False(t, b.Empty())

	b = &Batch{}
	b.SchedulePage("p", t0)
	assert.False(t, b.Empty())
}

func TestApplyBatchSchedules(t *testing.T) {
	s := newTestStore(t)
	due := t0.Add(-time.Minute)
	later := t0.Add(time.Hour)
	require.NoError(t, s.ApplyBatch(&Batch{Pages: []*types.Page{
		{UID: "p1", Title: "Edited", URL: "/p1", State: types.PageHidden, Publishing: &due},
		{UID: "p2", URL: "/p2", Publishing: &later},
	}}))

	b := &Batch{}
	b.SchedulePage("p1", t0)
	b.SchedulePage("p2", t0)
	b.SchedulePage("missing", t0)
	require.NoError(t, s.ApplyBatch(b))

	p1, err := s.GetPage("p1")
	require.NoError(t, err)
	assert.Equal(t, "Edited", p1.Title)
	assert.Equal(t, types.PageHidden|types.PageOnline, p1.State)
	assert.Nil(t, p1.Publishing)
	assert.True(t, p1.ModifiedAt.Equal(t0))

	p2, err := s.GetPage("p2")
	require.NoError(t, err)
	assert.False(t, p2.IsOnline())
	assert.NotNil(t, p2.Publishing)

	_, err = s.GetPage("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRebuildIndexes(t *testing.T) {
	s := newTestStore(t)

	b := &Batch{}
	b.PutRevision(&types.Revision{UID: "r1", ContentUID: "c1", State: types.RevisionCommitted})
	b.PutPage(&types.Page{UID: "root", RootUID: "root", URL: "/"})
	b.PutPage(&types.Page{UID: "draft-page", RootUID: "root"})
	require.NoError(t, s.ApplyBatch(b))

	// Corrupt the indexes
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRevisionsByContent); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketRevisionsByContent)
		return err
	}))
	history, err := s.ListRevisionsByContent("c1")
	require.NoError(t, err)
	assert.Empty(t, history)

	stats, err := s.RebuildIndexes(true)
	require.NoError(t, err)
	assert.Equal(t, IndexStats{Revisions: 1, Pages: 1}, stats)
	history, err = s.ListRevisionsByContent("c1")
	require.NoError(t, err)
	assert.Empty(t, history, "dry run must roll back")

	_, err = s.RebuildIndexes(false)
	require.NoError(t, err)
	history, err = s.ListRevisionsByContent("c1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutSetting("k", "v"))

	var buf bytes.Buffer
	n, err := s.Backup(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.NotZero(t, n)
}
