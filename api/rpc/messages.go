package rpc

import (
	"time"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/theme"
	"github.com/cuemby/strata/pkg/types"
)

// Empty is the answer of operations returning nothing
type Empty struct{}

// Sessions

type IssueTokenRequest struct {
	User string        `json:"user"`
	Role string        `json:"role,omitempty"`
	TTL  time.Duration `json:"ttl,omitempty"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevokeTokenRequest ends one session by token, or every session of User
type RevokeTokenRequest struct {
	Token string `json:"token,omitempty"`
	User  string `json:"user,omitempty"`
}

type RevokeTokenResponse struct {
	Revoked int `json:"revoked"`
}

type ListSessionsRequest struct{}

// SessionInfo describes a session without its token
type SessionInfo struct {
	User      string    `json:"user"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type GetClusterInfoRequest struct{}

type GetClusterInfoResponse struct {
	NodeID       string `json:"node_id"`
	Leader       string `json:"leader"`
	State        string `json:"state"`
	LastLogIndex uint64 `json:"last_log_index"`
	AppliedIndex uint64 `json:"applied_index"`
	Version      string `json:"version"`
}

// Contents

type GetContentRequest struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

type GetContentResponse struct {
	Content *types.SerializedContent `json:"content"`
}

type UpdateContentsRequest struct {
	Contents []*types.SerializedContent `json:"contents"`
}

type UpdateContentsResponse struct{}

type RenderContentRequest struct {
	Mode    string                   `json:"mode,omitempty"`
	Content *types.SerializedContent `json:"content"`
	PageUID string                   `json:"page_uid,omitempty"`
}

type RenderContentResponse struct {
	Render string `json:"render"`
}

type GetContentsDataRequest struct {
	Mode     string                  `json:"mode,omitempty"`
	Requests []editor.ContentRequest `json:"requests"`
	PageUID  string                  `json:"page_uid,omitempty"`
}

type GetContentsDataResponse struct {
	Contents []editor.ContentData `json:"contents"`
}

type GetParametersRequest struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

type GetParametersResponse struct {
	Params map[string]any `json:"params"`
}

// ListContentTypesRequest lists the types of a category, every type when
// Category is empty or "all"
type ListContentTypesRequest struct {
	Category string `json:"category,omitempty"`
}

type ListContentTypesResponse struct {
	Types      []types.ContentType `json:"types"`
	Categories []string            `json:"categories"`
}

type ListDraftsRequest struct{}

type ListDraftsResponse struct {
	Drafts []*types.Revision `json:"drafts"`
}

type CommitRequest struct {
	UID     string `json:"uid"`
	Comment string `json:"comment,omitempty"`
}

type CommitResponse struct {
	Content *types.Content `json:"content"`
}

type CommitAllRequest struct {
	Comment string `json:"comment,omitempty"`
}

type CommitAllResponse struct {
	Report *editor.CommitReport `json:"report"`
}

// DraftRequest names a draft of the calling user
type DraftRequest struct {
	UID string `json:"uid"`
}

type DraftResponse struct {
	Draft *types.Revision `json:"draft"`
}

type ResolveRequest struct {
	UID     string                    `json:"uid"`
	Choices map[string]content.Choice `json:"choices"`
}

type GetHistoryRequest struct {
	UID string `json:"uid"`
}

type GetHistoryResponse struct {
	Revisions []*types.Revision `json:"revisions"`
}

// GetDiffRequest compares two revisions. -1 is the draft of the caller and
// 0 the default payload of the type.
type GetDiffRequest struct {
	UID  string `json:"uid"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

type GetDiffResponse struct {
	Changes []content.Change `json:"changes"`
}

type DeleteContentRequest struct {
	UID string `json:"uid"`
}

// Pages

type CreatePageRequest struct {
	Page editor.CreatePageRequest `json:"page"`
}

type PageResponse struct {
	Page *types.Page `json:"page"`
}

type GetPageRequest struct {
	UID string `json:"uid"`
}

type ListPagesRequest struct {
	ParentUID string `json:"parent_uid,omitempty"`
}

type ListPagesResponse struct {
	Pages []*types.Page `json:"pages"`
}

type UpdatePageRequest struct {
	UID    string                   `json:"uid"`
	Update editor.UpdatePageRequest `json:"update"`
}

type DeletePageRequest struct {
	UID string `json:"uid"`
}

type ZoneRequest struct {
	PageUID string `json:"page_uid"`
	ZoneUID string `json:"zone_uid"`
}

type ZoneResponse struct {
	Zone *editor.ZoneResult `json:"zone"`
}

type GetLinkedZonesRequest struct {
	PageUID string `json:"page_uid"`
}

type GetLinkedZonesResponse struct {
	Zones *editor.LinkedZones `json:"zones"`
}

// Themes

type ListThemesRequest struct{}

type ListThemesResponse struct {
	Themes  []string `json:"themes"`
	Current string   `json:"current"`
}

// ThemeRequest names a theme, the current one when empty
type ThemeRequest struct {
	Name string `json:"name,omitempty"`
}

type ThemeVariablesResponse struct {
	Groups []theme.Group `json:"groups"`
}

type SaveThemeVariablesRequest struct {
	Name   string            `json:"name,omitempty"`
	Values map[string]string `json:"values"`
}

type SaveGridRequest struct {
	Name        string `json:"name,omitempty"`
	ColumnWidth int    `json:"column_width"`
	GutterWidth int    `json:"gutter_width"`
}

type GridResponse struct {
	Columns int                  `json:"columns"`
	Groups  []theme.Group        `json:"groups,omitempty"`
	Grid    *theme.GridConstants `json:"grid,omitempty"`
}

type ListFontsRequest struct{}

type ListFontsResponse struct {
	Fonts []string `json:"fonts"`
}

// Events

// WatchEventsRequest filters the streamed events, every event when Types is
// empty
type WatchEventsRequest struct {
	Types []string `json:"types,omitempty"`
}

type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
