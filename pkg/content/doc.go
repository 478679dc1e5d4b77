/*
Package content implements the draft overlay of Strata contents.

Every content is edited through a per-user draft (a types.Revision). When a
draft is attached to an Entity, reads and writes go to the draft payload; the
committed payload stays untouched until the draft is committed. Content sets
expose their items through a Set view and Cursors that follow the same rule,
so code walking a set sees the user's pending edits without knowing drafts
exist.

# Architecture

	┌──────────────── ENTITY ────────────────┐
	│  UID, Type  ─────────▶ content (always) │
	│                                          │
	│  Label, Value, Elements, Items, Params   │
	│        │                                 │
	│        ├── draft added/modified ──▶ draft.Payload
	│        └── otherwise ─────────────▶ content.Payload
	└──────────────────────────────────────────┘

A conflicted draft does not overlay: until its conflicts are resolved the
entity shows committed data, which is what the site and other editors see.

# Revision Workflow

	            checkout
	content ───────────────▶ added (rev 0) / modified (rev n)
	                               │   │
	             commit ◀──────────┘   │ rebase (content moved on)
	                                   ▼
	                        modified ◀─── resolve ─── conflicted
	                                   │
	                 revert ───────────┴──▶ to_delete (purged later)

	delete content: committed records ─▶ deleted, drafts ─▶ to_delete

The functions Checkout, Commit, Rebase, Resolve, Revert and Tombstone are pure:
they mutate the structs they receive and never touch storage. pkg/editor
loads, calls them and flushes the result as one batch.

Commit requires the draft to be based on the content's current revision;
otherwise ErrStaleDraft is returned and the caller must Rebase first.

# Merging

Rebase performs a three-way merge over the keys label, value, maxentry,
accept, items, elements.<name> and params.<name>. For each key:

	mine == theirs          keep
	mine == base            take theirs
	theirs == base          keep mine
	otherwise               conflict (mine kept, key recorded)

Items merge as a whole list.

# Content Sets

	set, err := entity.Set() // ErrNotASet for non-set types
	_ = set.Push(types.Ref{Type: content.TypeText, UID: uid})
	for i, ref := range set.All() {
		...
	}

	cur := set.Cursor()
	for cur.Valid() {
		ref, _ := cur.Next()
		...
	}

Push, Unshift and Insert honor the accept list and maxentry. Pop, Shift and
Clear rewind every live cursor of the entity.

# Registry

The Registry declares content types: built-in ones (ContentSet,
Element/Text, Element/Image, Element/Link, Paragraph, Article, PageList) plus
any loaded from YAML:

	contentTypes:
	  - name: Quote
	    category: Text
	    elements:
	      text: Element/Text
	      author: Element/Text
	    params:
	      style: plain
*/
package content
