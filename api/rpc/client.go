package rpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
)

// StrataClient calls the strata API over a connection
type StrataClient struct {
	cc grpc.ClientConnInterface
}

// NewStrataClient creates a client. Connections must use the JSON codec, see
// CallOptions.
func NewStrataClient(cc grpc.ClientConnInterface) *StrataClient {
	return &StrataClient{cc: cc}
}

// CallOptions selects the JSON codec for every call of a connection
func CallOptions() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StrataClient) IssueToken(ctx context.Context, in *IssueTokenRequest, opts ...grpc.CallOption) (*IssueTokenResponse, error) {
	return invoke[IssueTokenResponse](ctx, c.cc, "IssueToken", in, opts...)
}

func (c *StrataClient) RevokeToken(ctx context.Context, in *RevokeTokenRequest, opts ...grpc.CallOption) (*RevokeTokenResponse, error) {
	return invoke[RevokeTokenResponse](ctx, c.cc, "RevokeToken", in, opts...)
}

func (c *StrataClient) ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return invoke[ListSessionsResponse](ctx, c.cc, "ListSessions", in, opts...)
}

func (c *StrataClient) GetClusterInfo(ctx context.Context, in *GetClusterInfoRequest, opts ...grpc.CallOption) (*GetClusterInfoResponse, error) {
	return invoke[GetClusterInfoResponse](ctx, c.cc, "GetClusterInfo", in, opts...)
}

func (c *StrataClient) GetContent(ctx context.Context, in *GetContentRequest, opts ...grpc.CallOption) (*GetContentResponse, error) {
	return invoke[GetContentResponse](ctx, c.cc, "GetContent", in, opts...)
}

func (c *StrataClient) UpdateContents(ctx context.Context, in *UpdateContentsRequest, opts ...grpc.CallOption) (*UpdateContentsResponse, error) {
	return invoke[UpdateContentsResponse](ctx, c.cc, "UpdateContents", in, opts...)
}

func (c *StrataClient) RenderContent(ctx context.Context, in *RenderContentRequest, opts ...grpc.CallOption) (*RenderContentResponse, error) {
	return invoke[RenderContentResponse](ctx, c.cc, "RenderContent", in, opts...)
}

func (c *StrataClient) GetContentsData(ctx context.Context, in *GetContentsDataRequest, opts ...grpc.CallOption) (*GetContentsDataResponse, error) {
	return invoke[GetContentsDataResponse](ctx, c.cc, "GetContentsData", in, opts...)
}

func (c *StrataClient) GetParameters(ctx context.Context, in *GetParametersRequest, opts ...grpc.CallOption) (*GetParametersResponse, error) {
	return invoke[GetParametersResponse](ctx, c.cc, "GetParameters", in, opts...)
}

func (c *StrataClient) ListContentTypes(ctx context.Context, in *ListContentTypesRequest, opts ...grpc.CallOption) (*ListContentTypesResponse, error) {
	return invoke[ListContentTypesResponse](ctx, c.cc, "ListContentTypes", in, opts...)
}

func (c *StrataClient) ListDrafts(ctx context.Context, in *ListDraftsRequest, opts ...grpc.CallOption) (*ListDraftsResponse, error) {
	return invoke[ListDraftsResponse](ctx, c.cc, "ListDrafts", in, opts...)
}

func (c *StrataClient) Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return invoke[CommitResponse](ctx, c.cc, "Commit", in, opts...)
}

func (c *StrataClient) CommitAll(ctx context.Context, in *CommitAllRequest, opts ...grpc.CallOption) (*CommitAllResponse, error) {
	return invoke[CommitAllResponse](ctx, c.cc, "CommitAll", in, opts...)
}

func (c *StrataClient) Revert(ctx context.Context, in *DraftRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "Revert", in, opts...)
}

func (c *StrataClient) Rebase(ctx context.Context, in *DraftRequest, opts ...grpc.CallOption) (*DraftResponse, error) {
	return invoke[DraftResponse](ctx, c.cc, "Rebase", in, opts...)
}

func (c *StrataClient) Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*DraftResponse, error) {
	return invoke[DraftResponse](ctx, c.cc, "Resolve", in, opts...)
}

func (c *StrataClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	return invoke[GetHistoryResponse](ctx, c.cc, "GetHistory", in, opts...)
}

func (c *StrataClient) GetDiff(ctx context.Context, in *GetDiffRequest, opts ...grpc.CallOption) (*GetDiffResponse, error) {
	return invoke[GetDiffResponse](ctx, c.cc, "GetDiff", in, opts...)
}

func (c *StrataClient) DeleteContent(ctx context.Context, in *DeleteContentRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "DeleteContent", in, opts...)
}

func (c *StrataClient) CreatePage(ctx context.Context, in *CreatePageRequest, opts ...grpc.CallOption) (*PageResponse, error) {
	return invoke[PageResponse](ctx, c.cc, "CreatePage", in, opts...)
}

func (c *StrataClient) GetPage(ctx context.Context, in *GetPageRequest, opts ...grpc.CallOption) (*PageResponse, error) {
	return invoke[PageResponse](ctx, c.cc, "GetPage", in, opts...)
}

func (c *StrataClient) ListPages(ctx context.Context, in *ListPagesRequest, opts ...grpc.CallOption) (*ListPagesResponse, error) {
	return invoke[ListPagesResponse](ctx, c.cc, "ListPages", in, opts...)
}

func (c *StrataClient) UpdatePage(ctx context.Context, in *UpdatePageRequest, opts ...grpc.CallOption) (*PageResponse, error) {
	return invoke[PageResponse](ctx, c.cc, "UpdatePage", in, opts...)
}

func (c *StrataClient) DeletePage(ctx context.Context, in *DeletePageRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "DeletePage", in, opts...)
}

func (c *StrataClient) UnlinkZone(ctx context.Context, in *ZoneRequest, opts ...grpc.CallOption) (*ZoneResponse, error) {
	return invoke[ZoneResponse](ctx, c.cc, "UnlinkZone", in, opts...)
}

func (c *StrataClient) LinkZone(ctx context.Context, in *ZoneRequest, opts ...grpc.CallOption) (*ZoneResponse, error) {
	return invoke[ZoneResponse](ctx, c.cc, "LinkZone", in, opts...)
}

func (c *StrataClient) GetLinkedZones(ctx context.Context, in *GetLinkedZonesRequest, opts ...grpc.CallOption) (*GetLinkedZonesResponse, error) {
	return invoke[GetLinkedZonesResponse](ctx, c.cc, "GetLinkedZones", in, opts...)
}

func (c *StrataClient) ListThemes(ctx context.Context, in *ListThemesRequest, opts ...grpc.CallOption) (*ListThemesResponse, error) {
	return invoke[ListThemesResponse](ctx, c.cc, "ListThemes", in, opts...)
}

func (c *StrataClient) UseTheme(ctx context.Context, in *ThemeRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "UseTheme", in, opts...)
}

func (c *StrataClient) CreateTheme(ctx context.Context, in *ThemeRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "CreateTheme", in, opts...)
}

func (c *StrataClient) GetThemeVariables(ctx context.Context, in *ThemeRequest, opts ...grpc.CallOption) (*ThemeVariablesResponse, error) {
	return invoke[ThemeVariablesResponse](ctx, c.cc, "GetThemeVariables", in, opts...)
}

func (c *StrataClient) SaveThemeVariables(ctx context.Context, in *SaveThemeVariablesRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "SaveThemeVariables", in, opts...)
}

func (c *StrataClient) GetGrid(ctx context.Context, in *ThemeRequest, opts ...grpc.CallOption) (*GridResponse, error) {
	return invoke[GridResponse](ctx, c.cc, "GetGrid", in, opts...)
}

func (c *StrataClient) SaveGrid(ctx context.Context, in *SaveGridRequest, opts ...grpc.CallOption) (*GridResponse, error) {
	return invoke[GridResponse](ctx, c.cc, "SaveGrid", in, opts...)
}

func (c *StrataClient) ListFonts(ctx context.Context, in *ListFontsRequest, opts ...grpc.CallOption) (*ListFontsResponse, error) {
	return invoke[ListFontsResponse](ctx, c.cc, "ListFonts", in, opts...)
}

// WatchEvents streams events until ctx is done or the server goes away. fn
// is called for every event; returning an error from it ends the stream.
func (c *StrataClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, fn func(*Event) error, opts ...grpc.CallOption) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("WatchEvents"), opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		e := new(Event)
		if err := stream.RecvMsg(e); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
