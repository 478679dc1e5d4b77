package editor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

var (
	oneZone = types.Layout{Name: "single", Zones: []types.Zone{{Name: "main", Main: true}}}

	twoColumns = types.Layout{Name: "two-columns", Zones: []types.Zone{
		{Name: "main", Main: true, Accept: []string{content.TypeArticle}},
		{Name: "side", Inherited: true},
	}}
)

func (e *env) zones(p *types.Page) []types.Ref {
	e.t.Helper()
	c, err := e.store.GetContent(p.ContentSetUID)
	require.NoError(e.t, err)
	return c.Payload.Items
}

func TestCreatePage(t *testing.T) {
	e := newEnv(t)

	home, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "Home", Layout: twoColumns, State: types.PageOnline})
	require.NoError(t, err)
	assert.Equal(t, "/", home.URL)
	assert.Equal(t, home.UID, home.RootUID)
	assert.True(t, home.IsOnline())

	root, err := e.store.GetContent(home.ContentSetUID)
	require.NoError(t, err)
	assert.Equal(t, 1, root.Revision)
	assert.Equal(t, types.ContentStateCommitted, root.State)
	require.Len(t, root.Payload.Items, 2)

	main, err := e.store.GetContent(root.Payload.Items[0].UID)
	require.NoError(t, err)
	assert.Equal(t, "main", main.Payload.Label)
	assert.Equal(t, []string{content.TypeArticle}, main.Payload.Accept)
	history, err := e.svc.History(e.ctx, main.UID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	news, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "News", ParentUID: home.UID, Layout: twoColumns})
	require.NoError(t, err)
	assert.Equal(t, "/news", news.URL)
	assert.Equal(t, home.UID, news.RootUID)

	homeZones, newsZones := e.zones(home), e.zones(news)
	assert.NotEqual(t, homeZones[0], newsZones[0])
	assert.Equal(t, homeZones[1], newsZones[1], "inherited zone is shared")

	again, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "News", ParentUID: home.UID, Layout: oneZone})
	require.NoError(t, err)
	assert.Equal(t, "/news-1", again.URL)

	assert.Len(t, e.events.ofType(events.EventPageCreated), 3)
}

func TestCreatePageRejects(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		req  CreatePageRequest
	}{
		{"no title", CreatePageRequest{Layout: oneZone}},
		{"no zone", CreatePageRequest{Title: "x", Layout: types.Layout{Name: "empty"}}},
		{"bad state", CreatePageRequest{Title: "x", Layout: oneZone, State: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreatePage(e.ctx, "alice", tt.req)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}

	_, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "x", Layout: oneZone, ParentUID: "missing"})
	assert.Error(t, err)
}

func TestZoneLinking(t *testing.T) {
	e := newEnv(t)
	home, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "Home", Layout: twoColumns})
	require.NoError(t, err)
	news, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "News", ParentUID: home.UID, Layout: twoColumns})
	require.NoError(t, err)
	side := e.zones(news)[1]

	zones, err := e.svc.LinkedZones(e.ctx, "alice", news.UID)
	require.NoError(t, err)
	assert.Equal(t, &LinkedZones{MainZones: []int{0}, LinkedZones: []int{1}}, zones)

	unlinked, err := e.svc.UnlinkZone(e.ctx, "alice", news.UID, side.UID)
	require.NoError(t, err)
	assert.NotEqual(t, side.UID, unlinked.UID)

	clone := e.draft(unlinked.UID, "alice")
	assert.Equal(t, "side", clone.Payload.Label)
	assert.Empty(t, clone.Payload.Items)
	assert.Equal(t, unlinked.UID, e.draft(news.ContentSetUID, "alice").Payload.Items[1].UID)

	zones, err = e.svc.LinkedZones(e.ctx, "alice", news.UID)
	require.NoError(t, err)
	assert.Empty(t, zones.LinkedZones)

	zones, err = e.svc.LinkedZones(e.ctx, "bob", news.UID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, zones.LinkedZones, "unlinking stays in the draft")

	linked, err := e.svc.LinkZone(e.ctx, "alice", news.UID, unlinked.UID)
	require.NoError(t, err)
	assert.Equal(t, side.UID, linked.UID)

	zones, err = e.svc.LinkedZones(e.ctx, "alice", news.UID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, zones.LinkedZones)

	_, err = e.svc.LinkZone(e.ctx, "alice", home.UID, e.zones(home)[1].UID)
	assert.ErrorIs(t, err, ErrInvalidPayload, "root pages have no parent")
	_, err = e.svc.UnlinkZone(e.ctx, "alice", news.UID, "not-a-zone")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	zones, err = e.svc.LinkedZones(e.ctx, "alice", home.UID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, zones.MainZones)
	assert.Empty(t, zones.LinkedZones)
}

func TestUnlinkZoneReachesInheritingDescendants(t *testing.T) {
	e := newEnv(t)
	create := func(title, parent string) *types.Page {
		p, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: title, ParentUID: parent, Layout: twoColumns})
		require.NoError(t, err)
		return p
	}
	home := create("Home", "")
	news := create("News", home.UID)
	story := create("Story", news.UID)
	detail := create("Detail", story.UID)
	local := create("Local", news.UID)
	side := e.zones(home)[1]
	require.Equal(t, side.UID, e.zones(detail)[1].UID)

	own, err := e.svc.UnlinkZone(e.ctx, "alice", local.UID, side.UID)
	require.NoError(t, err)

	unlinked, err := e.svc.UnlinkZone(e.ctx, "alice", news.UID, side.UID)
	require.NoError(t, err)

	for _, p := range []*types.Page{news, story, detail} {
		assert.Equal(t, unlinked.UID, e.draft(p.ContentSetUID, "alice").Payload.Items[1].UID, p.Title)
	}
	assert.Equal(t, own.UID, e.draft(local.ContentSetUID, "alice").Payload.Items[1].UID, "a page with its own zone is left alone")
	assert.Equal(t, side.UID, e.zones(home)[1].UID)
	_, err = e.store.GetDraft(home.ContentSetUID, "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	zones, err := e.svc.LinkedZones(e.ctx, "alice", story.UID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, zones.LinkedZones, "story still shares the zone of news")
}

func TestUpdatePage(t *testing.T) {
	e := newEnv(t)
	home, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "Home", Layout: oneZone})
	require.NoError(t, err)
	news, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "News", ParentUID: home.UID, Layout: oneZone})
	require.NoError(t, err)

	publishing := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	news, err = e.svc.UpdatePage(e.ctx, "alice", news.UID, UpdatePageRequest{
		Title:      str("Latest news"),
		Publishing: &publishing,
	})
	require.NoError(t, err)
	assert.Equal(t, "/latest-news", news.URL)
	require.NotNil(t, news.Publishing)
	assert.True(t, publishing.Equal(*news.Publishing))

	online := types.PageOnline
	news, err = e.svc.UpdatePage(e.ctx, "alice", news.UID, UpdatePageRequest{
		State:      &online,
		Publishing: &time.Time{},
	})
	require.NoError(t, err)
	assert.Nil(t, news.Publishing)
	assert.True(t, news.IsOnline())

	// online pages keep their URL
	news, err = e.svc.UpdatePage(e.ctx, "alice", news.UID, UpdatePageRequest{Title: str("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "/latest-news", news.URL)

	stored, err := e.svc.GetPage(e.ctx, news.UID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
	assert.Len(t, e.events.ofType(events.EventPageUpdated), 3)

	_, err = e.svc.UpdatePage(e.ctx, "alice", news.UID, UpdatePageRequest{Title: str("")})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDeletePageCascades(t *testing.T) {
	e := newEnv(t)
	home, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "Home", Layout: oneZone})
	require.NoError(t, err)
	news, err := e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "News", ParentUID: home.UID, Layout: oneZone, State: types.PageOnline})
	require.NoError(t, err)
	_, err = e.svc.CreatePage(e.ctx, "alice", CreatePageRequest{Title: "Sport", ParentUID: news.UID, Layout: oneZone})
	require.NoError(t, err)

	require.NoError(t, e.svc.DeletePage(e.ctx, "alice", news.UID))

	pages, err := e.svc.ListPages(e.ctx, "")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	deleted := 0
	for _, p := range pages {
		if p.IsDeleted() {
			deleted++
			assert.False(t, p.IsOnline())
		}
	}
	assert.Equal(t, 2, deleted)
	assert.Len(t, e.events.ofType(events.EventPageDeleted), 2)

	_, err = e.svc.UpdatePage(e.ctx, "alice", news.UID, UpdatePageRequest{Title: str("x")})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	children, err := e.svc.ListPages(e.ctx, home.UID)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}
