package storage

import (
	"time"

	"github.com/cuemby/strata/pkg/types"
)

// Batch collects the records produced by one unit of work. Adding a record
// with a UID already present replaces the earlier one, so a batch holds at
// most one version of each record.
type Batch struct {
	Contents        []*types.Content  `json:"contents,omitempty"`
	Revisions       []*types.Revision `json:"revisions,omitempty"`
	Pages           []*types.Page     `json:"pages,omitempty"`
	DeleteRevisions []string          `json:"delete_revisions,omitempty"`
	Settings        map[string]string `json:"settings,omitempty"`
	Schedules       []PageSchedule    `json:"schedules,omitempty"`
}

// PageSchedule applies the publishing window of a page as of At. It is
// evaluated against the page stored when the batch is applied, so edits made
// after the page was read are kept.
type PageSchedule struct {
	PageUID string    `json:"page_uid"`
	At      time.Time `json:"at"`
}

// Empty reports whether the batch holds nothing to write
func (b *Batch) Empty() bool {
	return len(b.Contents) == 0 && len(b.Revisions) == 0 && len(b.Pages) == 0 &&
		len(b.DeleteRevisions) == 0 && len(b.Settings) == 0 && len(b.Schedules) == 0
}

func (b *Batch) PutContent(c *types.Content) {
	for i, existing := range b.Contents {
		if existing.UID == c.UID {
			b.Contents[i] = c
			return
		}
	}
	b.Contents = append(b.Contents, c)
}

func (b *Batch) PutRevision(r *types.Revision) {
	for i, existing := range b.Revisions {
		if existing.UID == r.UID {
			b.Revisions[i] = r
			return
		}
	}
	b.Revisions = append(b.Revisions, r)
}

func (b *Batch) PutPage(p *types.Page) {
	for i, existing := range b.Pages {
		if existing.UID == p.UID {
			b.Pages[i] = p
			return
		}
	}
	b.Pages = append(b.Pages, p)
}

func (b *Batch) PutSetting(key, value string) {
	if b.Settings == nil {
		b.Settings = make(map[string]string)
	}
	b.Settings[key] = value
}

// DeleteRevision schedules a revision for removal
func (b *Batch) DeleteRevision(uid string) {
	b.DeleteRevisions = append(b.DeleteRevisions, uid)
}

// SchedulePage queues the publishing window of a page, evaluated as of at
func (b *Batch) SchedulePage(uid string, at time.Time) {
	b.Schedules = append(b.Schedules, PageSchedule{PageUID: uid, At: at})
}
