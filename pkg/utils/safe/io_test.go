package safe_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/utils/safe"
)

type trackingBody struct {
	io.Reader
	closed   bool
	closeErr error
}

func (b *trackingBody) Close() error {
	b.closed = true
	return b.closeErr
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	safe.Close(ctx, nil)

	b := &trackingBody{Reader: strings.NewReader(""), closeErr: errors.New("boom")}
	safe.Close(ctx, b)
	gt.Bool(t, b.closed).True()
}

func TestDrainClose(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", 1024))
	b := &trackingBody{Reader: r}

	safe.DrainClose(context.Background(), b)
	gt.Bool(t, b.closed).True()
	gt.Value(t, r.Len()).Equal(0)

	safe.DrainClose(context.Background(), nil)
}

func TestDrainCloseStopsAtLimit(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", safe.MaxResponseBytes+100))
	b := &trackingBody{Reader: r}

	safe.DrainClose(context.Background(), b)
	gt.Bool(t, b.closed).True()
	gt.Value(t, r.Len()).Equal(100)
}

func TestReadLimited(t *testing.T) {
	data, err := safe.ReadLimited(strings.NewReader("ack-123"))
	gt.NoError(t, err)
	gt.Value(t, string(data)).Equal("ack-123")

	data, err = safe.ReadLimited(strings.NewReader(strings.Repeat("y", safe.MaxResponseBytes*2)))
	gt.NoError(t, err)
	gt.Value(t, len(data)).Equal(safe.MaxResponseBytes)
}
