package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/service/calendar"
)

var secret = model.SecretPayload{"token": "dev"}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("lists overlapping events of an assignee", func(t *testing.T) {
		cal := calendar.New()
		cal.Add(model.Event{AssigneeID: "alice", Start: base, End: base.Add(time.Hour)})
		cal.Add(model.Event{AssigneeID: "alice", Start: base.Add(5 * time.Hour), End: base.Add(6 * time.Hour)})
		cal.Add(model.Event{AssigneeID: "bob", Start: base, End: base.Add(time.Hour)})

		events, err := cal.ListEvents(ctx, secret, "alice", model.Window{Start: base, End: base.Add(2 * time.Hour)})
		gt.NoError(t, err).Required()
		gt.Array(t, events).Length(1)
		gt.Value(t, events[0].AssigneeID).Equal("alice")
	})

	t.Run("create then cancel", func(t *testing.T) {
		cal := calendar.New()
		ref, err := cal.CreateEvent(ctx, secret, model.EventSpec{
			Title: "sync", AssigneeID: "alice", Start: base, End: base.Add(30 * time.Minute),
		})
		gt.NoError(t, err).Required()
		gt.Value(t, cal.Len()).Equal(1)

		gt.NoError(t, cal.CancelEvent(ctx, secret, ref)).Required()
		gt.Value(t, cal.Len()).Equal(0)
	})

	t.Run("update replaces existing event", func(t *testing.T) {
		cal := calendar.New()
		ref := cal.Add(model.Event{AssigneeID: "alice", Start: base, End: base.Add(time.Hour)})

		got, err := cal.CreateEvent(ctx, secret, model.EventSpec{
			Ref: ref, AssigneeID: "alice", Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour),
		})
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal(ref)
		gt.Value(t, cal.Len()).Equal(1)
	})

	t.Run("missing credential is a credential error", func(t *testing.T) {
		cal := calendar.New()
		_, err := cal.ListEvents(ctx, nil, "alice", model.Window{Start: base, End: base.Add(time.Hour)})
		gt.Bool(t, goerr.HasTag(err, model.TagCredential)).True()
	})
}
