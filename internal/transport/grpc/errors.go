package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"parley/backend/internal/domain"
	"parley/backend/internal/store"
)

const slotTakenMessage = "That time slot is already taken. Pick a different slot."

// toStatus maps a service error onto a gRPC status and logs it at the level
// its cause deserves. notFound is the message returned for store.ErrNotFound.
func toStatus(log *slog.Logger, op string, err error, notFound string, attrs ...any) error {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info(notFound, attrs...)
		return status.Error(codes.NotFound, notFound)
	case errors.Is(err, domain.ErrUnauthorized):
		log.Warn(op+" not permitted", attrs...)
		return status.Error(codes.PermissionDenied, "you are not allowed to perform this action")
	case errors.Is(err, store.ErrConflict):
		log.Info(op+" conflict", attrs...)
		return status.Error(codes.FailedPrecondition, slotTakenMessage)
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Info(op+" rejected", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		log.Info(op+" canceled", attrs...)
		return status.Error(codes.Canceled, "request canceled")
	}
	log.Error(op+" failed", append([]any{slog.Any("err", err)}, attrs...)...)
	return status.Error(codes.Internal, "internal error")
}

func invalidArgument(log *slog.Logger, reason, msg string, attrs ...any) error {
	log.Warn("invalid request", append([]any{slog.String("reason", reason)}, attrs...)...)
	return status.Error(codes.InvalidArgument, msg)
}

func parseUUID(log *slog.Logger, field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, invalidArgument(log, "invalid_uuid", field+" must be a UUID")
	}
	return id, nil
}
