package storage

import (
	"errors"

	"github.com/cuemby/strata/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for CMS state storage
type Store interface {
	// Contents
	GetContent(uid string) (*types.Content, error)
	ListContents() ([]*types.Content, error)
	ListContentsByType(typ string) ([]*types.Content, error)

	// Revisions
	GetRevision(uid string) (*types.Revision, error)
	ListRevisions() ([]*types.Revision, error)
	ListRevisionsByContent(contentUID string) ([]*types.Revision, error)
	GetDraft(contentUID, owner string) (*types.Revision, error)
	ListDraftsByOwner(owner string) ([]*types.Revision, error)
	DeleteRevisions(uids []string) error

	// Pages
	GetPage(uid string) (*types.Page, error)
	GetPageByURL(rootUID, url string) (*types.Page, error)
	ListPages() ([]*types.Page, error)
	ListChildPages(parentUID string) ([]*types.Page, error)

	// Settings
	GetSetting(key string) (string, error)
	PutSetting(key, value string) error
	ListSettings() (map[string]string, error)

	// ApplyBatch writes every record of the batch in one transaction
	ApplyBatch(b *Batch) error

	// Utility
	Close() error
}
