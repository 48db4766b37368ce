// Package resolver detects scheduling conflicts and ranks candidate slots.
// Everything here is pure; callers supply the existing events.
package resolver

import (
	"math"
	"sort"
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

// Config holds the tunable scoring parameters
type Config struct {
	Step       time.Duration
	MaxResults int

	DistanceWeight     float64
	BoundaryWeight     float64
	WorkingHoursWeight float64

	// WorkStart and WorkEnd are offsets from local midnight
	WorkStart time.Duration
	WorkEnd   time.Duration
	WorkDays  []time.Weekday
	Location  *time.Location
}

// DefaultConfig returns the default tuning
func DefaultConfig() Config {
	return Config{
		Step:               30 * time.Minute,
		MaxResults:         5,
		DistanceWeight:     1.0,
		BoundaryWeight:     0.5,
		WorkingHoursWeight: 2.0,
		WorkStart:          9 * time.Hour,
		WorkEnd:            18 * time.Hour,
		WorkDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		Location: time.UTC,
	}
}

// Constraints describe the slot being searched for
type Constraints struct {
	AssigneeID string
	Duration   time.Duration
	// Earliest is the requested time; candidates closer to it rank higher
	Earliest time.Time
	Buffer   time.Duration
}

type Resolver struct {
	cfg Config
}

type Option func(*Resolver)

func WithConfig(cfg Config) Option {
	return func(r *Resolver) {
		r.cfg = cfg
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.Step <= 0 {
		r.cfg.Step = 30 * time.Minute
	}
	if r.cfg.MaxResults <= 0 {
		r.cfg.MaxResults = 5
	}
	if r.cfg.Location == nil {
		r.cfg.Location = time.UTC
	}
	return r
}

// Config returns the effective configuration
func (r *Resolver) Config() Config {
	return r.cfg
}

// HasConflict reports whether candidate overlaps any event of the assignee
// once each event is widened by buffer on both sides. Intervals are half-open,
// so a candidate touching an event boundary with zero buffer does not conflict.
// An empty assigneeID matches events of every assignee.
func HasConflict(candidate model.Window, events []model.Event, assigneeID string, buffer time.Duration) bool {
	for _, ev := range events {
		if assigneeID != "" && ev.AssigneeID != assigneeID {
			continue
		}
		if candidate.Start.Before(ev.End.Add(buffer)) && ev.Start.Add(-buffer).Before(candidate.End) {
			return true
		}
	}
	return false
}

// FindSlots returns up to MaxResults conflict-free slots inside window, best first
func (r *Resolver) FindSlots(window model.Window, events []model.Event, c Constraints) []model.Slot {
	if c.Duration <= 0 || !window.End.After(window.Start) {
		return nil
	}

	anchor := c.Earliest
	if anchor.IsZero() {
		anchor = window.Start
	}

	var slots []model.Slot
	for start := r.firstStart(window.Start, anchor); !start.Add(c.Duration).After(window.End); start = start.Add(r.cfg.Step) {
		cand := model.Window{Start: start, End: start.Add(c.Duration)}
		if HasConflict(cand, events, c.AssigneeID, c.Buffer) {
			continue
		}
		slots = append(slots, model.Slot{
			Start: cand.Start,
			End:   cand.End,
			Score: r.score(cand, anchor, events, c),
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	if len(slots) > r.cfg.MaxResults {
		slots = slots[:r.cfg.MaxResults]
	}
	return slots
}

// firstStart aligns the scan so the anchor itself is a candidate when it lies in the window
func (r *Resolver) firstStart(windowStart, anchor time.Time) time.Time {
	if anchor.Before(windowStart) {
		return windowStart
	}
	steps := anchor.Sub(windowStart) / r.cfg.Step
	return anchor.Add(-steps * r.cfg.Step)
}

func (r *Resolver) score(cand model.Window, anchor time.Time, events []model.Event, c Constraints) float64 {
	var score float64

	distance := math.Abs(cand.Start.Sub(anchor).Hours())
	score -= r.cfg.DistanceWeight * distance

	if r.adjacent(cand, events, c) {
		score -= r.cfg.BoundaryWeight
	}

	if r.withinWorkingHours(cand) {
		score += r.cfg.WorkingHoursWeight
	}
	return score
}

// adjacent reports whether another event sits within one step of the slot edges
func (r *Resolver) adjacent(cand model.Window, events []model.Event, c Constraints) bool {
	margin := c.Buffer + r.cfg.Step
	widened := model.Window{Start: cand.Start.Add(-margin), End: cand.End.Add(margin)}
	return HasConflict(widened, events, c.AssigneeID, 0)
}

func (r *Resolver) withinWorkingHours(cand model.Window) bool {
	start := cand.Start.In(r.cfg.Location)
	end := cand.End.In(r.cfg.Location)

	if !r.isWorkDay(start.Weekday()) {
		return false
	}
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, r.cfg.Location)
	return !start.Before(midnight.Add(r.cfg.WorkStart)) && !end.After(midnight.Add(r.cfg.WorkEnd))
}

func (r *Resolver) isWorkDay(d time.Weekday) bool {
	for _, wd := range r.cfg.WorkDays {
		if wd == d {
			return true
		}
	}
	return false
}
