package signal

import "fmt"

// Op is the kind of a traced bus access.
type Op int

const (
	// OpDirection records a SetDirection call.
	OpDirection Op = iota
	// OpLevel records a SetLevel call.
	OpLevel
	// OpRead records a ReadLevel call and the level it returned.
	OpRead
)

// Event is one recorded bus access.
type Event struct {
	Op        Op
	Signal    Signal
	Direction Direction // OpDirection only
	Level     Level     // OpLevel and OpRead
}

// String renders the event the way the dry-run mode prints it.
func (e Event) String() string {
	switch e.Op {
	case OpDirection:
		return fmt.Sprintf("%-4s -> %s", e.Signal, e.Direction)
	case OpLevel:
		return fmt.Sprintf("%-4s = %s", e.Signal, e.Level)
	case OpRead:
		return fmt.Sprintf("%-4s ? %s", e.Signal, e.Level)
	}
	return "?"
}

// Trace is a Bus that records every access instead of touching hardware.
// It backs the adapter's dry-run mode and the protocol tests.
type Trace struct {
	Events []Event

	// Notify, if set, is called for each event as it happens.
	Notify func(Event)

	// ReadLevelFunc, if set, supplies the level returned by ReadLevel.
	// When nil, reads see the pulled-up idle level.
	ReadLevelFunc func(Signal) Level

	dirs   [numSignals]Direction
	levels [numSignals]Level
}

// NewTrace returns a Trace with all lines tri-stated.
func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) record(e Event) {
	t.Events = append(t.Events, e)
	if t.Notify != nil {
		t.Notify(e)
	}
}

func (t *Trace) SetDirection(s Signal, d Direction) {
	t.dirs[s] = d
	t.record(Event{Op: OpDirection, Signal: s, Direction: d})
}

func (t *Trace) SetLevel(s Signal, l Level) {
	t.levels[s] = l
	t.record(Event{Op: OpLevel, Signal: s, Level: l})
}

func (t *Trace) ReadLevel(s Signal) Level {
	l := High
	if t.ReadLevelFunc != nil {
		l = t.ReadLevelFunc(s)
	}
	t.record(Event{Op: OpRead, Signal: s, Level: l})
	return l
}

// State reports the last direction and driven level set for s
// (Input and Low before any set).
func (t *Trace) State(s Signal) (Direction, Level) {
	return t.dirs[s], t.levels[s]
}

// Reset discards recorded events but keeps line state.
func (t *Trace) Reset() {
	t.Events = nil
}
