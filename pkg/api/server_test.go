package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cuemby/strata/api/rpc"
	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/theme"
	"github.com/cuemby/strata/pkg/types"
)

type testServer struct {
	mgr    *manager.Manager
	remote *rpc.StrataClient
	local  *rpc.StrataClient
}

func dial(t *testing.T, lis *bufconn.Listener) *rpc.StrataClient {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		rpc.CallOptions(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return rpc.NewStrataClient(conn)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mgr, err := manager.NewManager(&manager.Config{NodeID: "node-1", DataDir: t.TempDir(), InMemory: true})
	require.NoError(t, err)
	require.NoError(t, mgr.Bootstrap())
	t.Cleanup(func() { mgr.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.WaitForLeader(ctx))
	require.Eventually(t, mgr.IsLeader, 5*time.Second, 20*time.Millisecond)

	ed, err := editor.NewService(editor.Options{
		Store:     mgr.Store(),
		Applier:   mgr,
		Registry:  content.NewRegistry(),
		Publisher: mgr,
	})
	require.NoError(t, err)

	cfg := theme.DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Fonts = []string{"Georgia"}
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Dir, "default", "templates"), 0755))
	themes := theme.NewService(cfg, mgr, mgr)

	srv := NewServer(mgr, ed, themes)
	remote := bufconn.Listen(1 << 20)
	local := bufconn.Listen(1 << 20)
	go srv.Serve(remote)
	go srv.ServeLocal(local)
	t.Cleanup(srv.Stop)

	return &testServer{mgr: mgr, remote: dial(t, remote), local: dial(t, local)}
}

func (ts *testServer) as(t *testing.T, user, role string) context.Context {
	t.Helper()
	s, err := ts.mgr.Sessions().Issue(user, role, time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+s.Token)
}

func TestRemoteRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.remote.ListPages(context.Background(), &rpc.ListPagesRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer nope")
	_, err = ts.remote.ListPages(bad, &rpc.ListPagesRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := ts.remote.ListPages(ts.as(t, "alice", manager.RoleEditor), &rpc.ListPagesRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Pages)
}

func TestSessionManagementRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.remote.IssueToken(ts.as(t, "alice", manager.RoleEditor), &rpc.IssueTokenRequest{User: "bob"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	admin := ts.as(t, "root", manager.RoleAdmin)
	issued, err := ts.remote.IssueToken(admin, &rpc.IssueTokenRequest{User: "bob"})
	require.NoError(t, err)
	assert.Equal(t, manager.RoleEditor, issued.Role)
	assert.NotEmpty(t, issued.Token)

	_, err = ts.remote.IssueToken(admin, &rpc.IssueTokenRequest{User: "bob", Role: "owner"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	revoked, err := ts.remote.RevokeToken(admin, &rpc.RevokeTokenRequest{User: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, revoked.Revoked)

	_, err = ts.remote.RevokeToken(admin, &rpc.RevokeTokenRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestLocalSocketIsReadOnly(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	issued, err := ts.local.IssueToken(ctx, &rpc.IssueTokenRequest{User: "alice"})
	require.NoError(t, err)

	sessions, err := ts.local.ListSessions(ctx, &rpc.ListSessionsRequest{})
	require.NoError(t, err)
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, "alice", sessions.Sessions[0].User)

	info, err := ts.local.GetClusterInfo(ctx, &rpc.GetClusterInfoRequest{})
	require.NoError(t, err)
	assert.Equal(t, "node-1", info.NodeID)
	assert.Equal(t, "Leader", info.State)
	assert.Equal(t, Version, info.Version)

	_, err = ts.local.CreatePage(ctx, &rpc.CreatePageRequest{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	// the issued token works remotely
	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+issued.Token)
	_, err = ts.remote.ListDrafts(authed, &rpc.ListDraftsRequest{})
	assert.NoError(t, err)
}

func TestPagesAndContents(t *testing.T) {
	ts := newTestServer(t)
	ctx := ts.as(t, "alice", manager.RoleEditor)

	layout := types.Layout{Name: "single", Zones: []types.Zone{{Name: "main", Main: true}}}
	created, err := ts.remote.CreatePage(ctx, &rpc.CreatePageRequest{
		Page: editor.CreatePageRequest{Title: "Home", Layout: layout, State: types.PageOnline},
	})
	require.NoError(t, err)
	assert.Equal(t, "/", created.Page.URL)

	got, err := ts.remote.GetPage(ctx, &rpc.GetPageRequest{UID: created.Page.UID})
	require.NoError(t, err)
	assert.Equal(t, "Home", got.Page.Title)

	value := "hello"
	_, err = ts.remote.UpdateContents(ctx, &rpc.UpdateContentsRequest{Contents: []*types.SerializedContent{
		{UID: "greeting", Type: content.TypeText, Value: &value},
	}})
	require.NoError(t, err)

	drafts, err := ts.remote.ListDrafts(ctx, &rpc.ListDraftsRequest{})
	require.NoError(t, err)
	require.Len(t, drafts.Drafts, 1)
	assert.Equal(t, "greeting", drafts.Drafts[0].ContentUID)

	committed, err := ts.remote.Commit(ctx, &rpc.CommitRequest{UID: "greeting", Comment: "first"})
	require.NoError(t, err)
	assert.Equal(t, 1, committed.Content.Revision)

	history, err := ts.remote.GetHistory(ctx, &rpc.GetHistoryRequest{UID: "greeting"})
	require.NoError(t, err)
	assert.Len(t, history.Revisions, 1)

	catalog, err := ts.remote.ListContentTypes(ctx, &rpc.ListContentTypesRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, catalog.Types)
}

func TestErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	ctx := ts.as(t, "alice", manager.RoleEditor)

	_, err := ts.remote.GetPage(ctx, &rpc.GetPageRequest{UID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = ts.remote.UseTheme(ctx, &rpc.ThemeRequest{Name: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = ts.remote.CreateTheme(ctx, &rpc.ThemeRequest{Name: "default"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = ts.remote.CreatePage(ctx, &rpc.CreatePageRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = ts.remote.Revert(ctx, &rpc.DraftRequest{UID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestThemes(t *testing.T) {
	ts := newTestServer(t)
	ctx := ts.as(t, "alice", manager.RoleEditor)

	themes, err := ts.remote.ListThemes(ctx, &rpc.ListThemesRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, themes.Themes)
	assert.Equal(t, "default", themes.Current)

	_, err = ts.remote.CreateTheme(ctx, &rpc.ThemeRequest{Name: "dark"})
	require.NoError(t, err)
	_, err = ts.remote.UseTheme(ctx, &rpc.ThemeRequest{Name: "dark"})
	require.NoError(t, err)

	themes, err = ts.remote.ListThemes(ctx, &rpc.ListThemesRequest{})
	require.NoError(t, err)
	assert.Equal(t, "dark", themes.Current)

	fonts, err := ts.remote.ListFonts(ctx, &rpc.ListFontsRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Georgia"}, fonts.Fonts)
}

func TestWatchEvents(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(ts.as(t, "alice", manager.RoleEditor))
	defer cancel()

	received := make(chan *rpc.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- ts.remote.WatchEvents(ctx, &rpc.WatchEventsRequest{Types: []string{"page.created"}}, func(e *rpc.Event) error {
			received <- e
			return errors.New("stop")
		})
	}()

	layout := types.Layout{Name: "single", Zones: []types.Zone{{Name: "main", Main: true}}}
	require.Eventually(t, func() bool {
		return ts.mgr.GetEventBroker().SubscriberCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err := ts.remote.CreatePage(ctx, &rpc.CreatePageRequest{Page: editor.CreatePageRequest{Title: "Home", Layout: layout}})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "page.created", e.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	assert.EqualError(t, <-done, "stop")
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("page x: %w", storage.ErrNotFound), codes.NotFound},
		{fmt.Errorf("wrapped: %w", content.ErrConflicted), codes.Aborted},
		{editor.ErrNoUser, codes.Unauthenticated},
		{theme.ErrInvalidValue, codes.InvalidArgument},
		{manager.ErrNotLeader, codes.Unavailable},
		{status.Error(codes.Canceled, "gone"), codes.Canceled},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(toStatus(tt.err)))
		})
	}
	assert.NoError(t, toStatus(nil))
}
