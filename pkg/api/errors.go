package api

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/render"
	"github.com/cuemby/strata/pkg/rewriting"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/theme"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{storage.ErrNotFound, codes.NotFound},
	{theme.ErrThemeNotFound, codes.NotFound},
	{render.ErrNoTemplate, codes.NotFound},

	{editor.ErrNoUser, codes.Unauthenticated},
	{manager.ErrInvalidSession, codes.Unauthenticated},
	{manager.ErrSessionExpired, codes.Unauthenticated},

	{content.ErrConflicted, codes.Aborted},
	{content.ErrStaleDraft, codes.FailedPrecondition},
	{content.ErrInvalidTransition, codes.FailedPrecondition},
	{content.ErrNotADraft, codes.FailedPrecondition},
	{content.ErrForeignDraft, codes.FailedPrecondition},
	{rewriting.ErrMissingScheme, codes.FailedPrecondition},

	{theme.ErrThemeExists, codes.AlreadyExists},

	{editor.ErrInvalidPayload, codes.InvalidArgument},
	{content.ErrNotASet, codes.InvalidArgument},
	{content.ErrNotAccepted, codes.InvalidArgument},
	{content.ErrSetFull, codes.InvalidArgument},
	{content.ErrUnknownElement, codes.InvalidArgument},
	{content.ErrUnknownType, codes.InvalidArgument},
	{content.ErrUnknownConflict, codes.InvalidArgument},
	{theme.ErrInvalidName, codes.InvalidArgument},
	{theme.ErrInvalidValue, codes.InvalidArgument},

	{manager.ErrNotLeader, codes.Unavailable},
	{manager.ErrNotBootstrapped, codes.Unavailable},
}

// toStatus maps domain errors to gRPC status codes. Order matters: an
// error wrapping several sentinels takes the code of the first one listed.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
