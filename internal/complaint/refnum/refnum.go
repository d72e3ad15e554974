// Package refnum allocates date-coded complaint reference numbers of the form
// C<yyyy><mm><dd><seq>, where seq is a per-day counter padded to four digits.
//
// Allocation is a single atomic increment in the backing sequencer. There is
// no count-then-insert step; the unique constraint on the reference number is
// only a backstop.
package refnum

import (
	"context"
	"fmt"
	"time"
)

// Sequencer atomically increments and returns the counter for day.
// day is always midnight in the generator's location.
type Sequencer interface {
	Next(ctx context.Context, day time.Time) (int64, error)
}

// Generator turns sequencer values into reference numbers.
type Generator struct {
	seq Sequencer
	loc *time.Location
}

// New creates a generator. A nil location means UTC.
func New(seq Sequencer, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{seq: seq, loc: loc}
}

// Next allocates the next reference number for the calendar day containing now.
func (g *Generator) Next(ctx context.Context, now time.Time) (string, error) {
	day := Day(now, g.loc)
	n, err := g.seq.Next(ctx, day)
	if err != nil {
		return "", fmt.Errorf("allocate reference sequence: %w", err)
	}
	return Format(day, n), nil
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Format renders a reference number. Sequences past 9999 widen rather than wrap.
func Format(day time.Time, seq int64) string {
	return fmt.Sprintf("C%04d%02d%02d%04d", day.Year(), int(day.Month()), day.Day(), seq)
}
