/*
Package editor implements the content-update service behind the editing API.

Every operation runs for one user. Contents are loaded with that user's draft
attached, so reads and writes go through the draft overlay of pkg/content and
other users keep seeing committed data until a commit.

# Updates

Update receives a batch of serialized contents. Each content is processed
once: it is loaded or created, checked out into a draft when the user has
none, and its elements or items are resolved:

  - a uid sent in the same batch is processed recursively and linked
  - a uid found in the store is linked as is
  - an unknown uid leaves the current element or item in place

Composite contents only take the elements named in their accept map. Content
sets drop items whose type they refuse and reject more items than their
maxentry. All new contents and changed drafts are written in one batch, which
the manager replicates as a single raft entry.

# Revision workflow

Commit publishes a draft when it is based on the current revision. Drafts
other users hold on the same content are rebased at once; those with
overlapping changes turn conflicted and must be resolved key by key before
they can be committed. CommitAll commits every committable draft of a user
in one batch and reports the ones it skipped.

# Pages

CreatePage builds the content structure of a page: a root content set with
one zone set per layout zone, committed directly. Inherited zones share the
set of the parent page. UnlinkZone and LinkZone swap a zone set in the
user's draft of the root set.
*/
package editor
