package interaction

import (
	"errors"
	"time"
)

var ErrHooksUnavailable = errors.New("input hooks unavailable")

type RawKind int

const (
	RawMouseDown RawKind = iota + 1
	RawMouseUp
	RawScroll
	RawKeyDown
	RawKeyUp
)

// RawEvent is what a Source reports before normalization.
type RawEvent struct {
	Kind RawKind
	// When is the source's event time; zero means "stamp on receipt".
	When        time.Time
	X, Y        int
	HasPosition bool
	Button      string
	Key         string
	// Delta is the vertical wheel movement, positive away from the user.
	Delta float64
}

// Source is a global input hook. Start registers hooks and pushes events
// through emit, which never blocks. Stop unregisters them and must be safe to
// call repeatedly. Position samples the current pointer location.
type Source interface {
	Start(emit func(RawEvent)) error
	Stop()
	Position() (x, y int, err error)
}
