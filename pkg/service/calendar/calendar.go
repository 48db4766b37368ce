// Package calendar provides an in-process calendar collaborator for
// development and tests. It never talks to a real calendar provider.
package calendar

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

// Memory is a thread-safe calendar keyed by event reference
type Memory struct {
	mu     sync.RWMutex
	events map[string]model.Event
}

var _ interfaces.CalendarClient = &Memory{}

func New() *Memory {
	return &Memory{events: make(map[string]model.Event)}
}

// Add inserts an existing event and returns its reference
func (m *Memory) Add(e model.Event) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Ref == "" {
		e.Ref = "evt-" + uuid.NewString()
	}
	m.events[e.Ref] = e
	return e.Ref
}

// Len returns the number of stored events
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func (m *Memory) ListEvents(ctx context.Context, secret model.SecretPayload, assigneeID string, window model.Window) ([]model.Event, error) {
	if err := authorize(secret); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []model.Event
	for _, e := range m.events {
		if assigneeID != "" && e.AssigneeID != assigneeID {
			continue
		}
		if e.Start.Before(window.End) && window.Start.Before(e.End) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

// CreateEvent stores the event. When spec.Ref names an existing event it is replaced.
func (m *Memory) CreateEvent(ctx context.Context, secret model.SecretPayload, spec model.EventSpec) (string, error) {
	if err := authorize(secret); err != nil {
		return "", err
	}
	if !spec.Start.Before(spec.End) {
		return "", goerr.New("event must end after it starts",
			goerr.V("start", spec.Start), goerr.V("end", spec.End), goerr.T(model.TagPermanent))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ref := spec.Ref
	if ref == "" {
		ref = "evt-" + uuid.NewString()
	} else if _, ok := m.events[ref]; !ok {
		return "", goerr.Wrap(model.ErrNotFound, "event not found", goerr.V("ref", ref), goerr.T(model.TagPermanent))
	}
	m.events[ref] = model.Event{
		Ref:        ref,
		AssigneeID: spec.AssigneeID,
		Title:      spec.Title,
		Start:      spec.Start,
		End:        spec.End,
	}
	return ref, nil
}

// CancelEvent removes an event; cancelling an unknown reference is a no-op
func (m *Memory) CancelEvent(ctx context.Context, secret model.SecretPayload, ref string) error {
	if err := authorize(secret); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, ref)
	return nil
}

func authorize(secret model.SecretPayload) error {
	if len(secret) == 0 {
		return goerr.New("calendar credential is required", goerr.T(model.TagCredential))
	}
	return nil
}
