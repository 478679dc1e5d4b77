package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/strata/api/rpc"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/theme"
)

// Server implements the strata gRPC service. The TCP listener requires a
// session token on every call; the unix socket only serves reads and token
// management to local users.
type Server struct {
	manager *manager.Manager
	editor  *editor.Service
	themes  *theme.Service

	grpc   *grpc.Server
	local  *grpc.Server
	logger zerolog.Logger
}

// NewServer creates a new API server. opts apply to the TCP listener only,
// typically grpc.Creds for TLS.
func NewServer(mgr *manager.Manager, ed *editor.Service, themes *theme.Service, opts ...grpc.ServerOption) *Server {
	s := &Server{
		manager: mgr,
		editor:  ed,
		themes:  themes,
		logger:  log.WithComponent("api"),
	}

	sessions := mgr.Sessions()
	s.grpc = grpc.NewServer(append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(MetricsInterceptor(), AuthInterceptor(sessions)),
		grpc.ChainStreamInterceptor(AuthStreamInterceptor(sessions)),
	}, opts...)...)
	s.local = grpc.NewServer(
		grpc.ChainUnaryInterceptor(MetricsInterceptor(), ReadOnlyInterceptor(sessions)),
		grpc.ChainStreamInterceptor(ReadOnlyStreamInterceptor(sessions)),
	)
	rpc.RegisterStrataServer(s.grpc, s)
	rpc.RegisterStrataServer(s.local, s)
	return s
}

// Serve serves the authenticated API on lis
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// ServeLocal serves the read-only API on lis
func (s *Server) ServeLocal(lis net.Listener) error {
	return s.local.Serve(lis)
}

// Start starts the gRPC server
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}

	s.logger.Info().Str("addr", addr).Msg("gRPC API listening")
	return s.Serve(lis)
}

// StartUnixSocket serves the read-only API on a unix socket, replacing a
// stale socket file
func (s *Server) StartUnixSocket(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %v", err)
	}

	lis, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		lis.Close()
		return err
	}

	s.logger.Info().Str("socket", path).Msg("Local API listening")
	return s.ServeLocal(lis)
}

// Stop gracefully stops the gRPC servers
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	s.local.GracefulStop()
}

// Sessions

func (s *Server) IssueToken(ctx context.Context, req *rpc.IssueTokenRequest) (*rpc.IssueTokenResponse, error) {
	session, err := s.manager.Sessions().Issue(req.User, req.Role, req.TTL)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	lg := log.WithUser(s.logger, session.User)
	lg.Info().Str("role", session.Role).Msg("Session issued")
	return &rpc.IssueTokenResponse{
		Token:     session.Token,
		User:      session.User,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Server) RevokeToken(ctx context.Context, req *rpc.RevokeTokenRequest) (*rpc.RevokeTokenResponse, error) {
	sessions := s.manager.Sessions()
	revoked := 0
	switch {
	case req.Token != "":
		if sessions.Revoke(req.Token) {
			revoked = 1
		}
	case req.User != "":
		revoked = sessions.RevokeUser(req.User)
	default:
		return nil, status.Error(codes.InvalidArgument, "a token or a user is required")
	}

	if revoked > 0 {
		s.manager.PublishEvent(&events.Event{
			Type:     events.EventSessionRevoked,
			Message:  fmt.Sprintf("%d sessions revoked", revoked),
			Metadata: map[string]string{"user": req.User},
		})
	}
	return &rpc.RevokeTokenResponse{Revoked: revoked}, nil
}

func (s *Server) ListSessions(ctx context.Context, req *rpc.ListSessionsRequest) (*rpc.ListSessionsResponse, error) {
	sessions := s.manager.Sessions().List()
	resp := &rpc.ListSessionsResponse{Sessions: make([]rpc.SessionInfo, 0, len(sessions))}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, rpc.SessionInfo{
			User:      session.User,
			Role:      session.Role,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
		})
	}
	return resp, nil
}

func (s *Server) GetClusterInfo(ctx context.Context, req *rpc.GetClusterInfoRequest) (*rpc.GetClusterInfoResponse, error) {
	resp := &rpc.GetClusterInfoResponse{
		NodeID:  s.manager.NodeID(),
		Leader:  s.manager.LeaderAddr(),
		Version: Version,
	}
	if stats := s.manager.GetRaftStats(); stats != nil {
		resp.State, _ = stats["state"].(string)
		resp.LastLogIndex, _ = stats["last_log_index"].(uint64)
		resp.AppliedIndex, _ = stats["applied_index"].(uint64)
	}
	return resp, nil
}

// Contents

func (s *Server) GetContent(ctx context.Context, req *rpc.GetContentRequest) (*rpc.GetContentResponse, error) {
	sc, err := s.editor.Find(ctx, req.Type, req.UID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GetContentResponse{Content: sc}, nil
}

func (s *Server) UpdateContents(ctx context.Context, req *rpc.UpdateContentsRequest) (*rpc.UpdateContentsResponse, error) {
	if err := s.editor.Update(ctx, userFromContext(ctx), req.Contents); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.UpdateContentsResponse{}, nil
}

func (s *Server) RenderContent(ctx context.Context, req *rpc.RenderContentRequest) (*rpc.RenderContentResponse, error) {
	out, err := s.editor.RenderContent(ctx, userFromContext(ctx), req.Mode, req.Content, req.PageUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.RenderContentResponse{Render: out}, nil
}

func (s *Server) GetContentsData(ctx context.Context, req *rpc.GetContentsDataRequest) (*rpc.GetContentsDataResponse, error) {
	data, err := s.editor.ContentsData(ctx, userFromContext(ctx), req.Mode, req.Requests, req.PageUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GetContentsDataResponse{Contents: data}, nil
}

func (s *Server) GetParameters(ctx context.Context, req *rpc.GetParametersRequest) (*rpc.GetParametersResponse, error) {
	params, err := s.editor.Parameters(ctx, userFromContext(ctx), req.Type, req.UID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GetParametersResponse{Params: params}, nil
}

func (s *Server) ListContentTypes(ctx context.Context, req *rpc.ListContentTypesRequest) (*rpc.ListContentTypesResponse, error) {
	return &rpc.ListContentTypesResponse{
		Types:      s.editor.ContentsByCategory(req.Category),
		Categories: s.editor.Categories(),
	}, nil
}

func (s *Server) ListDrafts(ctx context.Context, req *rpc.ListDraftsRequest) (*rpc.ListDraftsResponse, error) {
	user := userFromContext(ctx)
	if user == "" {
		return nil, toStatus(editor.ErrNoUser)
	}
	drafts, err := s.editor.Drafts(ctx, user)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ListDraftsResponse{Drafts: drafts}, nil
}

func (s *Server) Commit(ctx context.Context, req *rpc.CommitRequest) (*rpc.CommitResponse, error) {
	c, err := s.editor.Commit(ctx, userFromContext(ctx), req.UID, req.Comment)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CommitResponse{Content: c}, nil
}

func (s *Server) CommitAll(ctx context.Context, req *rpc.CommitAllRequest) (*rpc.CommitAllResponse, error) {
	report, err := s.editor.CommitAll(ctx, userFromContext(ctx), req.Comment)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CommitAllResponse{Report: report}, nil
}

func (s *Server) Revert(ctx context.Context, req *rpc.DraftRequest) (*rpc.Empty, error) {
	if err := s.editor.Revert(ctx, userFromContext(ctx), req.UID); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) Rebase(ctx context.Context, req *rpc.DraftRequest) (*rpc.DraftResponse, error) {
	d, err := s.editor.Rebase(ctx, userFromContext(ctx), req.UID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.DraftResponse{Draft: d}, nil
}

func (s *Server) Resolve(ctx context.Context, req *rpc.ResolveRequest) (*rpc.DraftResponse, error) {
	d, err := s.editor.Resolve(ctx, userFromContext(ctx), req.UID, req.Choices)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.DraftResponse{Draft: d}, nil
}

func (s *Server) GetHistory(ctx context.Context, req *rpc.GetHistoryRequest) (*rpc.GetHistoryResponse, error) {
	history, err := s.editor.History(ctx, req.UID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GetHistoryResponse{Revisions: history}, nil
}

func (s *Server) GetDiff(ctx context.Context, req *rpc.GetDiffRequest) (*rpc.GetDiffResponse, error) {
	changes, err := s.editor.Diff(ctx, userFromContext(ctx), req.UID, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GetDiffResponse{Changes: changes}, nil
}

func (s *Server) DeleteContent(ctx context.Context, req *rpc.DeleteContentRequest) (*rpc.Empty, error) {
	if err := s.editor.Delete(ctx, userFromContext(ctx), req.UID); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

// Pages

func (s *Server) CreatePage(ctx context.Context, req *rpc.CreatePageRequest) (*rpc.PageResponse, error) {
	p, err := s.editor.CreatePage(ctx, userFromContext(ctx), req.Page)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.PageResponse{Page: p}, nil
}

func (s *Server) GetPage(ctx context.Context, req *rpc.GetPageRequest) (*rpc.PageResponse, error) {
	p, err := s.editor.GetPage(ctx, req.UID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.PageResponse{Page: p}, nil
}

func (s *Server) ListPages(ctx context.Context, req *rpc.ListPagesRequest) (*rpc.ListPagesResponse, error) {
	pages, err := s.editor.ListPages(ctx, req.ParentUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ListPagesResponse{Pages: pages}, nil
}

func (s *Server) UpdatePage(ctx context.Context, req *rpc.UpdatePageRequest) (*rpc.PageResponse, error) {
	p, err := s.editor.UpdatePage(ctx, userFromContext(ctx), req.UID, req.Update)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.PageResponse{Page: p}, nil
}

func (s *Server) DeletePage(ctx context.Context, req *rpc.DeletePageRequest) (*rpc.Empty, error) {
	if err := s.editor.DeletePage(ctx, userFromContext(ctx), req.UID); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) UnlinkZone(ctx context.Context, req *rpc.ZoneRequest) (*rpc.ZoneResponse, error) {
	zone, err := s.editor.UnlinkZone(ctx, userFromContext(ctx), req.PageUID, req.ZoneUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ZoneResponse{Zone: zone}, nil
}

func (s *Server) LinkZone(ctx context.Context, req *rpc.ZoneRequest) (*rpc.ZoneResponse, error) {
	zone, err := s.editor.LinkZone(ctx, userFromContext(ctx), req.PageUID, req.ZoneUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ZoneResponse{Zone: zone}, nil
}

func (s *Server) GetLinkedZones(ctx context.Context, req *rpc.GetLinkedZonesRequest) (*rpc.GetLinkedZonesResponse, error) {
	zones, err := s.editor.LinkedZones(ctx, userFromContext(ctx), req.PageUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GetLinkedZonesResponse{Zones: zones}, nil
}

// Themes

func (s *Server) ListThemes(ctx context.Context, req *rpc.ListThemesRequest) (*rpc.ListThemesResponse, error) {
	themes, err := s.themes.Themes()
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ListThemesResponse{Themes: themes, Current: s.themes.Current()}, nil
}

func (s *Server) UseTheme(ctx context.Context, req *rpc.ThemeRequest) (*rpc.Empty, error) {
	if err := s.themes.Use(req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) CreateTheme(ctx context.Context, req *rpc.ThemeRequest) (*rpc.Empty, error) {
	if err := s.themes.Create(req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) GetThemeVariables(ctx context.Context, req *rpc.ThemeRequest) (*rpc.ThemeVariablesResponse, error) {
	groups, err := s.themes.Variables(req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ThemeVariablesResponse{Groups: groups}, nil
}

func (s *Server) SaveThemeVariables(ctx context.Context, req *rpc.SaveThemeVariablesRequest) (*rpc.Empty, error) {
	if err := s.themes.SaveVariables(req.Name, req.Values); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) GetGrid(ctx context.Context, req *rpc.ThemeRequest) (*rpc.GridResponse, error) {
	groups, err := s.themes.GridConstants(req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GridResponse{Columns: s.themes.GridColumns(), Groups: groups}, nil
}

func (s *Server) SaveGrid(ctx context.Context, req *rpc.SaveGridRequest) (*rpc.GridResponse, error) {
	g, err := s.themes.SaveGrid(req.Name, req.ColumnWidth, req.GutterWidth)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.GridResponse{Columns: g.Columns, Grid: &g}, nil
}

func (s *Server) ListFonts(ctx context.Context, req *rpc.ListFontsRequest) (*rpc.ListFontsResponse, error) {
	return &rpc.ListFontsResponse{Fonts: s.themes.Fonts()}, nil
}

// Events

// WatchEvents streams broker events to the caller until it goes away
func (s *Server) WatchEvents(req *rpc.WatchEventsRequest, stream rpc.EventStream) error {
	filter := make([]events.EventType, 0, len(req.Types))
	for _, t := range req.Types {
		filter = append(filter, events.EventType(t))
	}

	broker := s.manager.GetEventBroker()
	sub := broker.Subscribe(filter...)
	defer broker.Unsubscribe(sub)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			if err := stream.Send(&rpc.Event{
				ID:        e.ID,
				Type:      string(e.Type),
				Timestamp: e.Timestamp,
				Message:   e.Message,
				Metadata:  e.Metadata,
			}); err != nil {
				return err
			}
		}
	}
}
