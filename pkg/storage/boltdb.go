package storage

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/cuemby/strata/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketContents  = []byte("contents")
	bucketRevisions = []byte("revisions")
	bucketPages     = []byte("pages")
	bucketSettings  = []byte("settings")

	// Secondary index buckets
	bucketRevisionsByContent = []byte("revisions_by_content")
	bucketPagesByURL         = []byte("pages_by_url")
)

var indexBuckets = [][]byte{bucketRevisionsByContent, bucketPagesByURL}

const keySep = "\x00"

// openTimeout bounds the wait for the file lock held by another process
const openTimeout = 2 * time.Second

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	return OpenBoltStore(filepath.Join(dataDir, "strata.db"))
}

// OpenBoltStore opens the store at an explicit database path
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketContents,
			bucketRevisions,
			bucketPages,
			bucketSettings,
			bucketRevisionsByContent,
			bucketPagesByURL,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.db.Path()
}

func get[T any](tx *bolt.Tx, bucket []byte, key, kind string) (*T, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, key, err)
	}
	return &v, nil
}

func list[T any](tx *bolt.Tx, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if keep == nil || keep(&item) {
			out = append(out, &item)
		}
		return nil
	})
	return out, err
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// Content operations
func (s *BoltStore) GetContent(uid string) (*types.Content, error) {
	var c *types.Content
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		c, err = get[types.Content](tx, bucketContents, uid, "content")
		return err
	})
	return c, err
}

func (s *BoltStore) ListContents() ([]*types.Content, error) {
	return s.listContents(nil)
}

func (s *BoltStore) ListContentsByType(typ string) ([]*types.Content, error) {
	return s.listContents(func(c *types.Content) bool { return c.Type == typ })
}

func (s *BoltStore) listContents(keep func(*types.Content) bool) ([]*types.Content, error) {
	var contents []*types.Content
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		contents, err = list(tx, bucketContents, keep)
		return err
	})
	return contents, err
}

// Revision operations
func (s *BoltStore) GetRevision(uid string) (*types.Revision, error) {
	var r *types.Revision
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		r, err = get[types.Revision](tx, bucketRevisions, uid, "revision")
		return err
	})
	return r, err
}

func (s *BoltStore) ListRevisions() ([]*types.Revision, error) {
	var revisions []*types.Revision
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		revisions, err = list[types.Revision](tx, bucketRevisions, nil)
		return err
	})
	return revisions, err
}

// ListRevisionsByContent returns every revision of a content ordered by
// revision number, then creation time
func (s *BoltStore) ListRevisionsByContent(contentUID string) ([]*types.Revision, error) {
	var revisions []*types.Revision
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		revisions, err = revisionsOf(tx, contentUID)
		return err
	})
	return revisions, err
}

func revisionsOf(tx *bolt.Tx, contentUID string) ([]*types.Revision, error) {
	var revisions []*types.Revision
	prefix := []byte(contentUID + keySep)
	c := tx.Bucket(bucketRevisionsByContent).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		uid := string(k[len(prefix):])
		r, err := get[types.Revision](tx, bucketRevisions, uid, "revision")
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, r)
	}
	slices.SortFunc(revisions, func(a, b *types.Revision) int {
		if n := cmp.Compare(a.Revision, b.Revision); n != 0 {
			return n
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return revisions, nil
}

// GetDraft returns the pending draft of owner for the content
func (s *BoltStore) GetDraft(contentUID, owner string) (*types.Revision, error) {
	var draft *types.Revision
	err := s.db.View(func(tx *bolt.Tx) error {
		revisions, err := revisionsOf(tx, contentUID)
		if err != nil {
			return err
		}
		for _, r := range revisions {
			if r.Owner == owner && r.State.IsDraft() {
				draft = r
				return nil
			}
		}
		return fmt.Errorf("draft of %s for %s: %w", contentUID, owner, ErrNotFound)
	})
	return draft, err
}

func (s *BoltStore) ListDraftsByOwner(owner string) ([]*types.Revision, error) {
	var drafts []*types.Revision
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		drafts, err = list(tx, bucketRevisions, func(r *types.Revision) bool {
			return r.Owner == owner && r.State.IsDraft()
		})
		return err
	})
	return drafts, err
}

// DeleteRevisions removes revisions and their index entries. Missing
// revisions are ignored.
func (s *BoltStore) DeleteRevisions(uids []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteRevisions(tx, uids)
	})
}

func deleteRevisions(tx *bolt.Tx, uids []string) error {
	for _, uid := range uids {
		r, err := get[types.Revision](tx, bucketRevisions, uid, "revision")
		if err != nil {
			continue
		}
		if err := tx.Bucket(bucketRevisionsByContent).Delete([]byte(r.ContentUID + keySep + uid)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRevisions).Delete([]byte(uid)); err != nil {
			return err
		}
	}
	return nil
}

func putRevision(tx *bolt.Tx, r *types.Revision) error {
	if err := put(tx, bucketRevisions, r.UID, r); err != nil {
		return err
	}
	return tx.Bucket(bucketRevisionsByContent).Put([]byte(r.ContentUID+keySep+r.UID), []byte{})
}

// Page operations
func (s *BoltStore) GetPage(uid string) (*types.Page, error) {
	var p *types.Page
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		p, err = get[types.Page](tx, bucketPages, uid, "page")
		return err
	})
	return p, err
}

// GetPageByURL returns the page of the site rooted at rootUID with the given URL
func (s *BoltStore) GetPageByURL(rootUID, url string) (*types.Page, error) {
	var p *types.Page
	err := s.db.View(func(tx *bolt.Tx) error {
		uid := tx.Bucket(bucketPagesByURL).Get([]byte(rootUID + keySep + url))
		if uid == nil {
			return fmt.Errorf("page %s: %w", url, ErrNotFound)
		}
		var err error
		p, err = get[types.Page](tx, bucketPages, string(uid), "page")
		return err
	})
	return p, err
}

func (s *BoltStore) ListPages() ([]*types.Page, error) {
	var pages []*types.Page
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		pages, err = list[types.Page](tx, bucketPages, nil)
		return err
	})
	return pages, err
}

func (s *BoltStore) ListChildPages(parentUID string) ([]*types.Page, error) {
	var pages []*types.Page
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		pages, err = list(tx, bucketPages, func(p *types.Page) bool { return p.ParentUID == parentUID })
		return err
	})
	return pages, err
}

func putPage(tx *bolt.Tx, p *types.Page) error {
	idx := tx.Bucket(bucketPagesByURL)
	if old, err := get[types.Page](tx, bucketPages, p.UID, "page"); err == nil && old.URL != p.URL {
		if err := idx.Delete([]byte(old.RootUID + keySep + old.URL)); err != nil {
			return err
		}
	}
	if err := put(tx, bucketPages, p.UID, p); err != nil {
		return err
	}
	if p.URL == "" {
		return nil
	}
	return idx.Put([]byte(p.RootUID+keySep+p.URL), []byte(p.UID))
}

// schedulePage runs the publishing window against the stored page. A page
// removed since the batch was built is skipped.
func schedulePage(tx *bolt.Tx, sc PageSchedule) error {
	p, err := get[types.Page](tx, bucketPages, sc.PageUID, "page")
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if changed, _, _ := p.ApplySchedule(sc.At); !changed {
		return nil
	}
	return put(tx, bucketPages, p.UID, p)
}

// Settings operations
func (s *BoltStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("setting %s: %w", key, ErrNotFound)
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *BoltStore) PutSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) ListSettings() (map[string]string, error) {
	settings := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).ForEach(func(k, v []byte) error {
			settings[string(k)] = string(v)
			return nil
		})
	})
	return settings, err
}

// ApplyBatch writes the batch in a single transaction. Deletions run last.
func (s *BoltStore) ApplyBatch(b *Batch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, c := range b.Contents {
			if err := put(tx, bucketContents, c.UID, c); err != nil {
				return fmt.Errorf("failed to put content %s: %w", c.UID, err)
			}
		}
		for _, r := range b.Revisions {
			if err := putRevision(tx, r); err != nil {
				return fmt.Errorf("failed to put revision %s: %w", r.UID, err)
			}
		}
		for _, p := range b.Pages {
			if err := putPage(tx, p); err != nil {
				return fmt.Errorf("failed to put page %s: %w", p.UID, err)
			}
		}
		for k, v := range b.Settings {
			if err := tx.Bucket(bucketSettings).Put([]byte(k), []byte(v)); err != nil {
				return fmt.Errorf("failed to put setting %s: %w", k, err)
			}
		}
		for _, sc := range b.Schedules {
			if err := schedulePage(tx, sc); err != nil {
				return fmt.Errorf("failed to schedule page %s: %w", sc.PageUID, err)
			}
		}
		return deleteRevisions(tx, b.DeleteRevisions)
	})
}

// IndexStats counts the entries written by RebuildIndexes
type IndexStats struct {
	Revisions int `json:"revisions"`
	Pages     int `json:"pages"`
}

// RebuildIndexes drops and recreates the secondary index buckets from the
// primary buckets. With dryRun the transaction is rolled back.
func (s *BoltStore) RebuildIndexes(dryRun bool) (IndexStats, error) {
	var stats IndexStats
	tx, err := s.db.Begin(true)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	for _, name := range indexBuckets {
		if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
			return stats, fmt.Errorf("failed to drop index %s: %w", name, err)
		}
		if _, err := tx.CreateBucket(name); err != nil {
			return stats, fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	revisions, err := list[types.Revision](tx, bucketRevisions, nil)
	if err != nil {
		return stats, err
	}
	for _, r := range revisions {
		if err := tx.Bucket(bucketRevisionsByContent).Put([]byte(r.ContentUID+keySep+r.UID), []byte{}); err != nil {
			return stats, err
		}
		stats.Revisions++
	}

	pages, err := list[types.Page](tx, bucketPages, nil)
	if err != nil {
		return stats, err
	}
	for _, p := range pages {
		if p.URL == "" {
			continue
		}
		if err := tx.Bucket(bucketPagesByURL).Put([]byte(p.RootUID+keySep+p.URL), []byte(p.UID)); err != nil {
			return stats, err
		}
		stats.Pages++
	}

	if dryRun {
		return stats, nil
	}
	return stats, tx.Commit()
}

// Backup writes a consistent copy of the database to w
func (s *BoltStore) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		n, err = tx.WriteTo(w)
		return err
	})
	return n, err
}
