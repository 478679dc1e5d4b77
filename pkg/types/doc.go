/*
Package types defines the data model shared by every Strata package.

The types here are plain, JSON-serializable structs. They carry no behavior
beyond small helpers; the draft overlay lives in pkg/content, persistence in
pkg/storage and the editing workflow in pkg/editor.

# Core Types

Contents and revisions:

  - Content: a typed, versioned block (text, image, article, content set...)
  - Payload: the overlayable part of a content (label, value, elements, items, params)
  - Ref: a (type, uid) pointer from one content to another
  - Revision: a user's draft of a content, or a committed history record
  - RevisionState: committed, added, modified, conflicted, deleted, to_delete

Site tree:

  - Page: a node of the site tree, holding a root content set with one set per zone
  - PageState: online/hidden/deleted bitmask
  - Layout and Zone: the columns a page is split into

Editing wire format:

  - ContentType: the declaration of a kind of content
  - SerializedContent, ItemRef, DraftInfo: what editors send and receive

# Revision Numbers

Content.Revision counts commits; zero means the content was never committed.
A draft's Revision is the committed revision it was checked out from, and a
committed record's Revision is the number its commit produced:

	content rev 0 ──checkout──▶ draft{state: added, revision: 0}
	                 ──commit──▶ record{state: committed, revision: 1}, content rev 1
	content rev 1 ──checkout──▶ draft{state: modified, revision: 1}

# Page States

PageState is a bitmask so a page can be online and hidden at the same time:

	state := types.PageOnline.With(types.PageHidden, true)
	state.Has(types.PageOnline) // true
	state.Has(types.PageHidden) // true

PageOffline is the zero value; Has(PageOffline) is always false, test with
!state.Has(PageOnline) instead.

# Serialization

All types marshal to JSON for bolt storage and the gRPC JSON codec.
ContentType and Zone also carry yaml tags for the content-type registry and
apply manifests. SerializedContent keeps the field names editors already use
(nodeType, isAContentSet, param) and carries validator tags checked by
pkg/editor before any draft is touched.
*/
package types
