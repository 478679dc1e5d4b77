package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

func TestRenderPageOverlaysDraftsOfUser(t *testing.T) {
	e := newEnv(t)
	page, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "Home", Layout: oneZone, State: types.PageOnline})
	require.NoError(t, err)
	zone := e.zones(page)[0]

	e.update("alice",
		&types.SerializedContent{UID: zone.UID, Type: zone.Type, Items: []types.ItemRef{{NodeType: content.TypeText, UID: "t1"}}},
		text("t1", "Hello"),
	)

	out, err := e.svc.RenderPage(e.ctx, "alice", page, "")
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Home</title>")
	assert.Contains(t, out, "Hello")

	out, err = e.svc.RenderPage(e.ctx, "", page, "")
	require.NoError(t, err)
	assert.NotContains(t, out, "Hello", "visitors only see committed contents")

	// a committed set pointing at a content that is still new skips it
	e.commit("alice", zone.UID)
	out, err = e.svc.RenderPage(e.ctx, "", page, "")
	require.NoError(t, err)
	assert.NotContains(t, out, "Hello")

	e.commit("alice", "t1")
	out, err = e.svc.RenderPage(e.ctx, "", page, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")

	_, err = e.svc.RenderPage(e.ctx, "", nil, "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCommittedLoaderHidesNewContents(t *testing.T) {
	e := newEnv(t)
	e.update("alice", text("t1", "draft"))

	_, err := e.svc.CommittedLoader().Load(e.ctx, types.Ref{Type: content.TypeText, UID: "t1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	e.commit("alice", "t1")
	got, err := e.svc.CommittedLoader().Load(e.ctx, types.Ref{Type: content.TypeText, UID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", got.UID())
}
