package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/strata/api/rpc"
	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/security"
	"github.com/cuemby/strata/pkg/theme"
	"github.com/cuemby/strata/pkg/types"
)

// DefaultTimeout bounds every call of a Client
const DefaultTimeout = 10 * time.Second

// Client wraps the strata gRPC client for easy CLI usage
type Client struct {
	conn    *grpc.ClientConn
	client  *rpc.StrataClient
	timeout time.Duration
}

// bearerToken attaches a session token to every call
type bearerToken string

func (t bearerToken) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

// Tokens may travel in clear text when the node runs without tls.enabled,
// on a loopback address or behind a TLS terminating proxy.
func (t bearerToken) RequireTransportSecurity() bool {
	return false
}

// WithCACert verifies the TCP API against the CA certificate a TLS enabled
// node writes to <data-dir>/certs/ca.crt
func WithCACert(caFile string) (grpc.DialOption, error) {
	cfg, err := security.ClientTLSConfig(caFile)
	if err != nil {
		return nil, err
	}
	return grpc.WithTransportCredentials(credentials.NewTLS(cfg)), nil
}

// NewClient creates a client of the TCP API authenticated with a session token
func NewClient(addr, token string, opts ...grpc.DialOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("a session token is required, issue one with 'strata token issue <user>' on the node")
	}
	return dial(addr, append(opts, grpc.WithPerRPCCredentials(bearerToken(token)))...)
}

// NewLocalClient creates a client of the read-only unix socket API. token may
// be empty; when set it names the editor whose drafts are read.
func NewLocalClient(socketPath, token string, opts ...grpc.DialOption) (*Client, error) {
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerToken(token)))
	}
	return dial("unix://"+socketPath, opts...)
}

func dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		rpc.CallOptions(),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return &Client{
		conn:    conn,
		client:  rpc.NewStrataClient(conn),
		timeout: DefaultTimeout,
	}, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// SetTimeout changes the deadline of subsequent calls
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

// Sessions

// IssueToken creates a session for user
func (c *Client) IssueToken(user, role string, ttl time.Duration) (*rpc.IssueTokenResponse, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	return c.client.IssueToken(ctx, &rpc.IssueTokenRequest{User: user, Role: role, TTL: ttl})
}

// RevokeToken ends the session of token
func (c *Client) RevokeToken(token string) (int, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.RevokeToken(ctx, &rpc.RevokeTokenRequest{Token: token})
	if err != nil {
		return 0, err
	}
	return resp.Revoked, nil
}

// RevokeUser ends every session of user
func (c *Client) RevokeUser(user string) (int, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.RevokeToken(ctx, &rpc.RevokeTokenRequest{User: user})
	if err != nil {
		return 0, err
	}
	return resp.Revoked, nil
}

// ListSessions lists active sessions
func (c *Client) ListSessions() ([]rpc.SessionInfo, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.ListSessions(ctx, &rpc.ListSessionsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetClusterInfo returns the raft state of the node
func (c *Client) GetClusterInfo() (*rpc.GetClusterInfoResponse, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	return c.client.GetClusterInfo(ctx, &rpc.GetClusterInfoRequest{})
}

// Contents

// GetContent returns a content as the caller sees it
func (c *Client) GetContent(typ, uid string) (*types.SerializedContent, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetContent(ctx, &rpc.GetContentRequest{Type: typ, UID: uid})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// UpdateContents applies edits to the drafts of the caller
func (c *Client) UpdateContents(contents []*types.SerializedContent) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.UpdateContents(ctx, &rpc.UpdateContentsRequest{Contents: contents})
	return err
}

// RenderContent previews a content with the edits of sc
func (c *Client) RenderContent(mode string, sc *types.SerializedContent, pageUID string) (string, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.RenderContent(ctx, &rpc.RenderContentRequest{Mode: mode, Content: sc, PageUID: pageUID})
	if err != nil {
		return "", err
	}
	return resp.Render, nil
}

// GetParameters returns the params of a content
func (c *Client) GetParameters(typ, uid string) (map[string]any, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetParameters(ctx, &rpc.GetParametersRequest{Type: typ, UID: uid})
	if err != nil {
		return nil, err
	}
	return resp.Params, nil
}

// ListContentTypes lists the content types of category
func (c *Client) ListContentTypes(category string) (*rpc.ListContentTypesResponse, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	return c.client.ListContentTypes(ctx, &rpc.ListContentTypesRequest{Category: category})
}

// ListDrafts lists the drafts of the caller
func (c *Client) ListDrafts() ([]*types.Revision, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.ListDrafts(ctx, &rpc.ListDraftsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Drafts, nil
}

// Commit publishes the draft of uid
func (c *Client) Commit(uid, comment string) (*types.Content, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.Commit(ctx, &rpc.CommitRequest{UID: uid, Comment: comment})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// CommitAll publishes every draft of the caller
func (c *Client) CommitAll(comment string) (*editor.CommitReport, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.CommitAll(ctx, &rpc.CommitAllRequest{Comment: comment})
	if err != nil {
		return nil, err
	}
	return resp.Report, nil
}

// Revert drops the draft of uid
func (c *Client) Revert(uid string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.Revert(ctx, &rpc.DraftRequest{UID: uid})
	return err
}

// Rebase moves the draft of uid onto the committed revision
func (c *Client) Rebase(uid string) (*types.Revision, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.Rebase(ctx, &rpc.DraftRequest{UID: uid})
	if err != nil {
		return nil, err
	}
	return resp.Draft, nil
}

// Resolve settles the conflicts of a draft
func (c *Client) Resolve(uid string, choices map[string]content.Choice) (*types.Revision, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.Resolve(ctx, &rpc.ResolveRequest{UID: uid, Choices: choices})
	if err != nil {
		return nil, err
	}
	return resp.Draft, nil
}

// GetHistory lists the committed revisions of uid
func (c *Client) GetHistory(uid string) ([]*types.Revision, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetHistory(ctx, &rpc.GetHistoryRequest{UID: uid})
	if err != nil {
		return nil, err
	}
	return resp.Revisions, nil
}

// GetDiff compares two revisions of uid
func (c *Client) GetDiff(uid string, from, to int) ([]content.Change, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetDiff(ctx, &rpc.GetDiffRequest{UID: uid, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

// DeleteContent marks a content deleted in the drafts of the caller
func (c *Client) DeleteContent(uid string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.DeleteContent(ctx, &rpc.DeleteContentRequest{UID: uid})
	return err
}

// Pages

// CreatePage creates a page
func (c *Client) CreatePage(req editor.CreatePageRequest) (*types.Page, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.CreatePage(ctx, &rpc.CreatePageRequest{Page: req})
	if err != nil {
		return nil, err
	}
	return resp.Page, nil
}

// GetPage returns a page
func (c *Client) GetPage(uid string) (*types.Page, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetPage(ctx, &rpc.GetPageRequest{UID: uid})
	if err != nil {
		return nil, err
	}
	return resp.Page, nil
}

// ListPages lists the children of parentUID, every page when empty
func (c *Client) ListPages(parentUID string) ([]*types.Page, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.ListPages(ctx, &rpc.ListPagesRequest{ParentUID: parentUID})
	if err != nil {
		return nil, err
	}
	return resp.Pages, nil
}

// UpdatePage changes a page
func (c *Client) UpdatePage(uid string, req editor.UpdatePageRequest) (*types.Page, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.UpdatePage(ctx, &rpc.UpdatePageRequest{UID: uid, Update: req})
	if err != nil {
		return nil, err
	}
	return resp.Page, nil
}

// DeletePage deletes a page and its children
func (c *Client) DeletePage(uid string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.DeletePage(ctx, &rpc.DeletePageRequest{UID: uid})
	return err
}

// UnlinkZone gives a page its own copy of an inherited zone
func (c *Client) UnlinkZone(pageUID, zoneUID string) (*editor.ZoneResult, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.UnlinkZone(ctx, &rpc.ZoneRequest{PageUID: pageUID, ZoneUID: zoneUID})
	if err != nil {
		return nil, err
	}
	return resp.Zone, nil
}

// LinkZone shares the zone of the parent page again
func (c *Client) LinkZone(pageUID, zoneUID string) (*editor.ZoneResult, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.LinkZone(ctx, &rpc.ZoneRequest{PageUID: pageUID, ZoneUID: zoneUID})
	if err != nil {
		return nil, err
	}
	return resp.Zone, nil
}

// GetLinkedZones tells which zones of a page are shared with its parent
func (c *Client) GetLinkedZones(pageUID string) (*editor.LinkedZones, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetLinkedZones(ctx, &rpc.GetLinkedZonesRequest{PageUID: pageUID})
	if err != nil {
		return nil, err
	}
	return resp.Zones, nil
}

// Themes

// ListThemes returns the installed themes and the current one
func (c *Client) ListThemes() ([]string, string, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.ListThemes(ctx, &rpc.ListThemesRequest{})
	if err != nil {
		return nil, "", err
	}
	return resp.Themes, resp.Current, nil
}

// UseTheme activates a theme
func (c *Client) UseTheme(name string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.UseTheme(ctx, &rpc.ThemeRequest{Name: name})
	return err
}

// CreateTheme copies the default theme under name
func (c *Client) CreateTheme(name string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.CreateTheme(ctx, &rpc.ThemeRequest{Name: name})
	return err
}

// GetThemeVariables returns the editable variables of a theme
func (c *Client) GetThemeVariables(name string) ([]theme.Group, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.GetThemeVariables(ctx, &rpc.ThemeRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// SaveThemeVariables updates variables of a theme
func (c *Client) SaveThemeVariables(name string, values map[string]string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.SaveThemeVariables(ctx, &rpc.SaveThemeVariablesRequest{Name: name, Values: values})
	return err
}

// GetGrid returns the grid constants of a theme
func (c *Client) GetGrid(name string) (*rpc.GridResponse, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	return c.client.GetGrid(ctx, &rpc.ThemeRequest{Name: name})
}

// SaveGrid regenerates the grid of a theme
func (c *Client) SaveGrid(name string, columnWidth, gutterWidth int) (*rpc.GridResponse, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	return c.client.SaveGrid(ctx, &rpc.SaveGridRequest{Name: name, ColumnWidth: columnWidth, GutterWidth: gutterWidth})
}

// ListFonts lists the fonts offered to themes
func (c *Client) ListFonts() ([]string, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	resp, err := c.client.ListFonts(ctx, &rpc.ListFontsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Fonts, nil
}

// WatchEvents streams events of the given types until ctx is done
func (c *Client) WatchEvents(ctx context.Context, eventTypes []string, fn func(*rpc.Event) error) error {
	return c.client.WatchEvents(ctx, &rpc.WatchEventsRequest{Types: eventTypes}, fn)
}
