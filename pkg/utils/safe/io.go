package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// MaxResponseBytes caps how much of a collaborator response is read or drained
const MaxResponseBytes = 64 << 10

// Close closes an io.Closer and logs any error. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}

// DrainClose discards at most MaxResponseBytes of body and closes it so the
// underlying connection can be reused
func DrainClose(ctx context.Context, body io.ReadCloser) {
	if body == nil {
		return
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(body, MaxResponseBytes)); err != nil {
		logging.From(ctx).Warn("Failed to drain response body", slog.Any("error", err))
	}
	Close(ctx, body)
}

// ReadLimited reads at most MaxResponseBytes from r
func ReadLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, MaxResponseBytes))
}
