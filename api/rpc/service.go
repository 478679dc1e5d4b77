package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the full gRPC name of the strata API
const ServiceName = "strata.v1.Strata"

// FullMethod returns the gRPC path of a method
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// StrataServer is the server API of a strata node
type StrataServer interface {
	IssueToken(context.Context, *IssueTokenRequest) (*IssueTokenResponse, error)
	RevokeToken(context.Context, *RevokeTokenRequest) (*RevokeTokenResponse, error)
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	GetClusterInfo(context.Context, *GetClusterInfoRequest) (*GetClusterInfoResponse, error)

	GetContent(context.Context, *GetContentRequest) (*GetContentResponse, error)
	UpdateContents(context.Context, *UpdateContentsRequest) (*UpdateContentsResponse, error)
	RenderContent(context.Context, *RenderContentRequest) (*RenderContentResponse, error)
	GetContentsData(context.Context, *GetContentsDataRequest) (*GetContentsDataResponse, error)
	GetParameters(context.Context, *GetParametersRequest) (*GetParametersResponse, error)
	ListContentTypes(context.Context, *ListContentTypesRequest) (*ListContentTypesResponse, error)
	ListDrafts(context.Context, *ListDraftsRequest) (*ListDraftsResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	CommitAll(context.Context, *CommitAllRequest) (*CommitAllResponse, error)
	Revert(context.Context, *DraftRequest) (*Empty, error)
	Rebase(context.Context, *DraftRequest) (*DraftResponse, error)
	Resolve(context.Context, *ResolveRequest) (*DraftResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	GetDiff(context.Context, *GetDiffRequest) (*GetDiffResponse, error)
	DeleteContent(context.Context, *DeleteContentRequest) (*Empty, error)

	CreatePage(context.Context, *CreatePageRequest) (*PageResponse, error)
	GetPage(context.Context, *GetPageRequest) (*PageResponse, error)
	ListPages(context.Context, *ListPagesRequest) (*ListPagesResponse, error)
	UpdatePage(context.Context, *UpdatePageRequest) (*PageResponse, error)
	DeletePage(context.Context, *DeletePageRequest) (*Empty, error)
	UnlinkZone(context.Context, *ZoneRequest) (*ZoneResponse, error)
	LinkZone(context.Context, *ZoneRequest) (*ZoneResponse, error)
	GetLinkedZones(context.Context, *GetLinkedZonesRequest) (*GetLinkedZonesResponse, error)

	ListThemes(context.Context, *ListThemesRequest) (*ListThemesResponse, error)
	UseTheme(context.Context, *ThemeRequest) (*Empty, error)
	CreateTheme(context.Context, *ThemeRequest) (*Empty, error)
	GetThemeVariables(context.Context, *ThemeRequest) (*ThemeVariablesResponse, error)
	SaveThemeVariables(context.Context, *SaveThemeVariablesRequest) (*Empty, error)
	GetGrid(context.Context, *ThemeRequest) (*GridResponse, error)
	SaveGrid(context.Context, *SaveGridRequest) (*GridResponse, error)
	ListFonts(context.Context, *ListFontsRequest) (*ListFontsResponse, error)

	WatchEvents(*WatchEventsRequest, EventStream) error
}

// EventStream is the server side of WatchEvents
type EventStream interface {
	Send(*Event) error
	Context() context.Context
}

func unary[Req, Resp any](name string, call func(StrataServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StrataServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StrataServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *Event) error {
	return s.ServerStream.SendMsg(e)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StrataServer).WatchEvents(in, &eventStream{stream})
}

// ServiceDesc describes the strata service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StrataServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("IssueToken", StrataServer.IssueToken),
		unary("RevokeToken", StrataServer.RevokeToken),
		unary("ListSessions", StrataServer.ListSessions),
		unary("GetClusterInfo", StrataServer.GetClusterInfo),

		unary("GetContent", StrataServer.GetContent),
		unary("UpdateContents", StrataServer.UpdateContents),
		unary("RenderContent", StrataServer.RenderContent),
		unary("GetContentsData", StrataServer.GetContentsData),
		unary("GetParameters", StrataServer.GetParameters),
		unary("ListContentTypes", StrataServer.ListContentTypes),
		unary("ListDrafts", StrataServer.ListDrafts),
		unary("Commit", StrataServer.Commit),
		unary("CommitAll", StrataServer.CommitAll),
		unary("Revert", StrataServer.Revert),
		unary("Rebase", StrataServer.Rebase),
		unary("Resolve", StrataServer.Resolve),
		unary("GetHistory", StrataServer.GetHistory),
		unary("GetDiff", StrataServer.GetDiff),
		unary("DeleteContent", StrataServer.DeleteContent),

		unary("CreatePage", StrataServer.CreatePage),
		unary("GetPage", StrataServer.GetPage),
		unary("ListPages", StrataServer.ListPages),
		unary("UpdatePage", StrataServer.UpdatePage),
		unary("DeletePage", StrataServer.DeletePage),
		unary("UnlinkZone", StrataServer.UnlinkZone),
		unary("LinkZone", StrataServer.LinkZone),
		unary("GetLinkedZones", StrataServer.GetLinkedZones),

		unary("ListThemes", StrataServer.ListThemes),
		unary("UseTheme", StrataServer.UseTheme),
		unary("CreateTheme", StrataServer.CreateTheme),
		unary("GetThemeVariables", StrataServer.GetThemeVariables),
		unary("SaveThemeVariables", StrataServer.SaveThemeVariables),
		unary("GetGrid", StrataServer.GetGrid),
		unary("SaveGrid", StrataServer.SaveGrid),
		unary("ListFonts", StrataServer.ListFonts),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "strata/v1",
}

// RegisterStrataServer registers srv on s
func RegisterStrataServer(s grpc.ServiceRegistrar, srv StrataServer) {
	s.RegisterService(&ServiceDesc, srv)
}
