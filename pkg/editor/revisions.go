package editor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// SkippedDraft is a draft CommitAll left pending
type SkippedDraft struct {
	ContentUID string `json:"content_uid"`
	Reason     string `json:"reason"`
}

// CommitReport lists the outcome of CommitAll
type CommitReport struct {
	Committed []string       `json:"committed"`
	Skipped   []SkippedDraft `json:"skipped,omitempty"`
}

// Drafts lists the pending drafts of user, most recently modified first
func (s *Service) Drafts(ctx context.Context, user string) ([]*types.Revision, error) {
	_, end := s.start(ctx, "drafts", user)
	drafts, err := s.store.ListDraftsByOwner(user)
	end(err)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(drafts, func(a, b *types.Revision) int {
		return b.ModifiedAt.Compare(a.ModifiedAt)
	})
	return drafts, nil
}

// draftOf loads a content and the user's draft of it
func (s *Service) draftOf(user, uid string) (*types.Content, *types.Revision, error) {
	c, err := s.store.GetContent(uid)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to find content %s: %w", uid, err)
	}
	if c.State == types.ContentStateDeleted {
		return nil, nil, fmt.Errorf("content %s is deleted: %w", uid, storage.ErrNotFound)
	}
	d, err := s.store.GetDraft(uid, user)
	if err != nil {
		return nil, nil, fmt.Errorf("no draft of %s for %s: %w", uid, user, err)
	}
	return c, d, nil
}

// basePayload returns the committed payload a draft was checked out from.
// When that revision was purged the current payload stands in, so the
// draft wins every key on rebase.
func (s *Service) basePayload(c *types.Content, d *types.Revision) (types.Payload, error) {
	if d.Revision == 0 {
		return s.registry.DefaultPayload(c.Type)
	}
	if d.Revision == c.Revision {
		return c.Payload, nil
	}
	history, err := s.store.ListRevisionsByContent(c.UID)
	if err != nil {
		return types.Payload{}, err
	}
	for _, r := range history {
		if r.Revision == d.Revision && (r.State == types.RevisionCommitted || r.State == types.RevisionDeleted) {
			return r.Payload, nil
		}
	}
	lg := log.WithContentUID(s.logger, c.UID)
	lg.Warn().Int("revision", d.Revision).Msg("Base revision missing, rebasing over current payload")
	return c.Payload, nil
}

// commit publishes one draft into b. The drafts other users hold on the
// same content are rebased onto the new revision.
func (s *Service) commit(b *storage.Batch, c *types.Content, d *types.Revision, comment string) ([]*types.Revision, error) {
	now := s.now()
	before := &types.Content{UID: c.UID, Type: c.Type, Revision: c.Revision, Payload: c.Payload.Clone()}
	if err := content.Commit(c, d, comment, now); err != nil {
		return nil, err
	}
	b.PutContent(c)
	b.PutRevision(d)

	history, err := s.store.ListRevisionsByContent(c.UID)
	if err != nil {
		return nil, err
	}
	var conflicted []*types.Revision
	for _, other := range history {
		if other.UID == d.UID || other.Owner == d.Owner || !other.State.IsDraft() {
			continue
		}
		base, err := s.basePayload(before, other)
		if err != nil {
			return nil, err
		}
		conflicts, err := content.Rebase(c, base, other, now)
		if err != nil {
			return nil, err
		}
		b.PutRevision(other)
		if len(conflicts) > 0 {
			conflicted = append(conflicted, other)
		}
	}

	if s.generator.HasContentScheme(c.Type) {
		if err := s.moveLedPages(b, c); err != nil {
			return nil, err
		}
	}
	return conflicted, nil
}

// moveLedPages regenerates the URL of pages whose main content is c
func (s *Service) moveLedPages(b *storage.Batch, c *types.Content) error {
	pages, err := s.store.ListPages()
	if err != nil {
		return err
	}
	e, err := s.registry.Wrap(c)
	if err != nil {
		return err
	}
	main := mainContent{e: e, load: s.loadCommitted}
	for _, p := range pages {
		if p.MainContent == nil || p.MainContent.UID != c.UID || p.IsDeleted() {
			continue
		}
		url, err := s.generator.Generate(p, main, false)
		if err != nil {
			return err
		}
		if url != p.URL {
			lg := log.WithPageUID(s.logger, p.UID)
			lg.Info().Str("from", p.URL).Str("to", url).Msg("Page moved")
			p.URL = url
			p.ModifiedAt = s.now()
			b.PutPage(p)
		}
	}
	return nil
}

func (s *Service) loadCommitted(ref types.Ref) (*content.Entity, error) {
	c, err := s.store.GetContent(ref.UID)
	if err != nil {
		return nil, err
	}
	return s.registry.Wrap(c)
}

func (s *Service) announceCommit(c *types.Content, d *types.Revision, conflicted []*types.Revision) {
	metrics.CommitsTotal.Inc()
	s.publish(events.EventContentCommitted, fmt.Sprintf("content %s committed at revision %d", c.UID, c.Revision), map[string]string{
		"content_uid":  c.UID,
		"content_type": c.Type,
		"owner":        d.Owner,
		"revision":     fmt.Sprint(c.Revision),
	})
	for _, r := range conflicted {
		metrics.ConflictsTotal.Inc()
		s.publish(events.EventDraftConflicted, fmt.Sprintf("draft of %s conflicts with revision %d", c.UID, c.Revision), map[string]string{
			"content_uid":  c.UID,
			"revision_uid": r.UID,
			"owner":        r.Owner,
		})
	}
}

// Commit publishes the user's draft of a content
func (s *Service) Commit(ctx context.Context, user, uid, comment string) (_ *types.Content, err error) {
	_, end := s.start(ctx, "commit", user)
	defer func() { end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, d, err := s.draftOf(user, uid)
	if err != nil {
		return nil, err
	}

	b := &storage.Batch{}
	conflicted, err := s.commit(b, c, d, comment)
	if err != nil {
		return nil, err
	}
	if err := s.apply(b); err != nil {
		return nil, err
	}

	lg := log.WithUser(log.WithContentUID(s.logger, uid), user)
	lg.Info().Int("revision", c.Revision).Msg("Content committed")
	s.announceCommit(c, d, conflicted)
	return c, nil
}

// CommitAll publishes every committable draft of user in one batch.
// Conflicted and outdated drafts are skipped and reported.
func (s *Service) CommitAll(ctx context.Context, user, comment string) (_ *CommitReport, err error) {
	_, end := s.start(ctx, "commit_all", user)
	defer func() { end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.store.ListDraftsByOwner(user)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(drafts, func(a, b *types.Revision) int { return cmp.Compare(a.ContentUID, b.ContentUID) })

	type committed struct {
		c          *types.Content
		d          *types.Revision
		conflicted []*types.Revision
	}
	var done []committed
	report := &CommitReport{Committed: []string{}}
	b := &storage.Batch{}

	for _, d := range drafts {
		c, err := s.store.GetContent(d.ContentUID)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedDraft{ContentUID: d.ContentUID, Reason: err.Error()})
			continue
		}
		if c.State == types.ContentStateDeleted {
			report.Skipped = append(report.Skipped, SkippedDraft{ContentUID: d.ContentUID, Reason: "content is deleted"})
			continue
		}
		conflicted, err := s.commit(b, c, d, comment)
		if errors.Is(err, content.ErrConflicted) || errors.Is(err, content.ErrStaleDraft) {
			report.Skipped = append(report.Skipped, SkippedDraft{ContentUID: d.ContentUID, Reason: err.Error()})
			continue
		}
		if err != nil {
			return nil, err
		}
		done = append(done, committed{c: c, d: d, conflicted: conflicted})
		report.Committed = append(report.Committed, c.UID)
	}

	if err := s.apply(b); err != nil {
		return nil, err
	}
	for _, x := range done {
		s.announceCommit(x.c, x.d, x.conflicted)
	}
	lg := log.WithUser(s.logger, user)
	lg.Info().Int("committed", len(report.Committed)).Int("skipped", len(report.Skipped)).Msg("Drafts committed")
	return report, nil
}

// Revert abandons the user's draft of a content
func (s *Service) Revert(ctx context.Context, user, uid string) (err error) {
	_, end := s.start(ctx, "revert", user)
	defer func() { end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.store.GetDraft(uid, user)
	if err != nil {
		return fmt.Errorf("no draft of %s for %s: %w", uid, user, err)
	}
	if err := content.Revert(d, s.now()); err != nil {
		return err
	}
	if err := s.apply(&storage.Batch{Revisions: []*types.Revision{d}}); err != nil {
		return err
	}

	s.publish(events.EventDraftReverted, fmt.Sprintf("draft of %s reverted", uid), map[string]string{
		"content_uid":  uid,
		"revision_uid": d.UID,
		"owner":        user,
	})
	return nil
}

// Rebase moves the user's draft onto the current revision of the content and
// returns the keys left in conflict
func (s *Service) Rebase(ctx context.Context, user, uid string) (_ *types.Revision, err error) {
	_, end := s.start(ctx, "rebase", user)
	defer func() { end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, d, err := s.draftOf(user, uid)
	if err != nil {
		return nil, err
	}
	if d.Revision == c.Revision {
		return d, nil
	}
	base, err := s.basePayload(c, d)
	if err != nil {
		return nil, err
	}
	conflicts, err := content.Rebase(c, base, d, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.apply(&storage.Batch{Revisions: []*types.Revision{d}}); err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		metrics.ConflictsTotal.Inc()
		s.publish(events.EventDraftConflicted, fmt.Sprintf("draft of %s conflicts with revision %d", uid, c.Revision), map[string]string{
			"content_uid":  uid,
			"revision_uid": d.UID,
			"owner":        user,
		})
	}
	return d, nil
}

// Resolve settles conflicted keys of the user's draft
func (s *Service) Resolve(ctx context.Context, user, uid string, choices map[string]content.Choice) (_ *types.Revision, err error) {
	_, end := s.start(ctx, "resolve", user)
	defer func() { end(err) }()

	if len(choices) == 0 {
		return nil, invalid("no conflict choice given")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, d, err := s.draftOf(user, uid)
	if err != nil {
		return nil, err
	}
	if err := content.Resolve(c, d, choices, s.now()); err != nil {
		return nil, err
	}
	if err := s.apply(&storage.Batch{Revisions: []*types.Revision{d}}); err != nil {
		return nil, err
	}
	return d, nil
}

// History lists the committed revisions of a content, oldest first
func (s *Service) History(ctx context.Context, uid string) ([]*types.Revision, error) {
	_, end := s.start(ctx, "history", "")
	if _, err := s.store.GetContent(uid); err != nil {
		end(err)
		return nil, fmt.Errorf("unable to find content %s: %w", uid, err)
	}
	revisions, err := s.store.ListRevisionsByContent(uid)
	end(err)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(revisions, func(r *types.Revision) bool {
		return r.State != types.RevisionCommitted && r.State != types.RevisionDeleted
	}), nil
}

// payloadAt returns the payload of a content at a revision. DraftRevision
// selects the user's draft and 0 the default payload of the type.
func (s *Service) payloadAt(user string, c *types.Content, revision int) (types.Payload, error) {
	switch {
	case revision == DraftRevision:
		d, err := s.store.GetDraft(c.UID, user)
		if err != nil {
			return types.Payload{}, fmt.Errorf("no draft of %s for %s: %w", c.UID, user, err)
		}
		return d.Payload, nil
	case revision == 0:
		return s.registry.DefaultPayload(c.Type)
	case revision == c.Revision:
		return c.Payload, nil
	case revision < 0 || revision > c.Revision:
		return types.Payload{}, fmt.Errorf("revision %d of %s: %w", revision, c.UID, storage.ErrNotFound)
	}

	history, err := s.store.ListRevisionsByContent(c.UID)
	if err != nil {
		return types.Payload{}, err
	}
	for _, r := range history {
		if r.Revision == revision && (r.State == types.RevisionCommitted || r.State == types.RevisionDeleted) {
			return r.Payload, nil
		}
	}
	return types.Payload{}, fmt.Errorf("revision %d of %s: %w", revision, c.UID, storage.ErrNotFound)
}

// Diff compares two revisions of a content
func (s *Service) Diff(ctx context.Context, user, uid string, from, to int) (_ []content.Change, err error) {
	_, end := s.start(ctx, "diff", user)
	defer func() { end(err) }()

	c, err := s.store.GetContent(uid)
	if err != nil {
		return nil, fmt.Errorf("unable to find content %s: %w", uid, err)
	}
	a, err := s.payloadAt(user, c, from)
	if err != nil {
		return nil, err
	}
	b, err := s.payloadAt(user, c, to)
	if err != nil {
		return nil, err
	}
	return content.Diff(a, b), nil
}

// Delete tombstones a content. Its history is kept as deleted revisions and
// pending drafts of every user are marked for purge.
func (s *Service) Delete(ctx context.Context, user, uid string) (err error) {
	_, end := s.start(ctx, "delete", user)
	defer func() { end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.GetContent(uid)
	if err != nil {
		return fmt.Errorf("unable to find content %s: %w", uid, err)
	}
	if c.State == types.ContentStateDeleted {
		return nil
	}
	revisions, err := s.store.ListRevisionsByContent(uid)
	if err != nil {
		return err
	}

	content.Tombstone(c, revisions, s.now())
	b := &storage.Batch{Contents: []*types.Content{c}, Revisions: revisions}
	if err := s.apply(b); err != nil {
		return err
	}

	lg := log.WithUser(log.WithContentUID(s.logger, uid), user)
	lg.Info().Msg("Content deleted")
	s.publish(events.EventContentDeleted, fmt.Sprintf("content %s deleted", uid), map[string]string{
		"content_uid":  uid,
		"content_type": c.Type,
		"owner":        user,
	})
	return nil
}
