package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cuemby/strata/pkg/api"
	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/security"
	"github.com/cuemby/strata/pkg/theme"
	"github.com/cuemby/strata/pkg/types"
)

func startNode(t *testing.T, opts ...grpc.ServerOption) (*manager.Manager, grpc.DialOption) {
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
		Store:    mgr.Store(),
		Applier:  mgr,
		Registry: content.NewRegistry(),
	})
	require.NoError(t, err)

	cfg := theme.DefaultConfig()
	cfg.Dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Dir, "default"), 0755))

	srv := api.NewServer(mgr, ed, theme.NewService(cfg, mgr, mgr), opts...)
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	return mgr, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("127.0.0.1:8090", "")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	md, err := bearerToken("abc").GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", md["authorization"])
	assert.False(t, bearerToken("abc").RequireTransportSecurity())
}

func TestClientRoundTrip(t *testing.T) {
	mgr, dialer := startNode(t)
	session, err := mgr.Sessions().Issue("alice", manager.RoleEditor, time.Hour)
	require.NoError(t, err)

	c, err := NewClient("passthrough:///bufnet", session.Token, dialer)
	require.NoError(t, err)
	defer c.Close()

	page, err := c.CreatePage(editor.CreatePageRequest{
		Title:  "Home",
		Layout: types.Layout{Name: "single", Zones: []types.Zone{{Name: "main", Main: true}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/", page.URL)

	pages, err := c.ListPages("")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, page.UID, pages[0].UID)

	value := "hi"
	require.NoError(t, c.UpdateContents([]*types.SerializedContent{{UID: "t1", Type: content.TypeText, Value: &value}}))
	drafts, err := c.ListDrafts()
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	require.NoError(t, c.Revert("t1"))
	drafts, err = c.ListDrafts()
	require.NoError(t, err)
	assert.Empty(t, drafts)

	themes, current, err := c.ListThemes()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, themes)
	assert.Equal(t, "default", current)

	_, err = c.IssueToken("bob", "", 0)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestClientTLS(t *testing.T) {
	dir := t.TempDir()
	key, err := security.LoadOrCreateKey(filepath.Join(dir, "ca.seal"))
	require.NoError(t, err)
	sealer, err := security.NewSealer(key)
	require.NoError(t, err)

	// The CA lives in settings of a throwaway node; the serving node only
	// needs its certificate.
	caNode, _ := startNode(t)
	ca := security.NewCertAuthority(caNode, sealer)
	require.NoError(t, ca.LoadOrInitialize())
	certDir := filepath.Join(dir, "certs")
	cert, err := security.EnsureServerCert(certDir, ca, "node-1", []string{"bufnet"})
	require.NoError(t, err)

	mgr, dialer := startNode(t, grpc.Creds(credentials.NewTLS(security.ServerTLSConfig(cert))))
	session, err := mgr.Sessions().Issue("alice", manager.RoleEditor, time.Hour)
	require.NoError(t, err)

	_, err = WithCACert(filepath.Join(dir, "missing.crt"))
	assert.Error(t, err)

	creds, err := WithCACert(security.CACertPath(certDir))
	require.NoError(t, err)
	c, err := NewClient("passthrough:///bufnet", session.Token, dialer, creds)
	require.NoError(t, err)
	defer c.Close()

	pages, err := c.ListPages("")
	require.NoError(t, err)
	assert.Empty(t, pages)

	// Plain text clients cannot talk to the TLS listener
	plain, err := NewClient("passthrough:///bufnet", session.Token, dialer)
	require.NoError(t, err)
	defer plain.Close()
	plain.SetTimeout(time.Second)
	_, err = plain.ListPages("")
	assert.Error(t, err)
}
