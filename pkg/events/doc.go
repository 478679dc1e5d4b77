/*
Package events distributes CMS events to in-process subscribers.

The editor, theme service and reconciler publish through the manager once
a change has been applied. Consumers are the public site (cache
invalidation) and the API WatchEvents stream.

# Event types

	draft.updated       a user saved a draft
	draft.conflicted    a rebase left a draft in conflict
	draft.reverted      a draft was thrown away
	content.committed   a draft became a new revision
	content.deleted     a content and its revisions were removed
	page.created        page.updated        page.deleted
	page.published      the reconciler put a page online
	page.archived       the reconciler took a page offline
	revisions.purged    revisions marked for deletion were removed
	theme.changed       the theme, its variables or its grid changed
	session.revoked     an editing session ended

Metadata carries the uids involved, such as "content_uid", "page_uid",
"owner" or "theme".

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe(events.EventContentCommitted, events.EventPageUpdated)
	defer broker.Unsubscribe(sub)

	for e := range sub {
		fmt.Println(e.Type, e.Metadata["content_uid"])
	}

Subscribe with no types receives everything. Publish blocks only while the
broker queue is full; a subscriber whose buffer is full misses the event
rather than stalling the others.
*/
package events
