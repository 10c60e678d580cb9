package gohook

// pointerQuery asks the OS where the pointer is right now, so polled
// samples do not depend on the hook having seen a move.
type pointerQuery interface {
	position() (x, y int, err error)
	close()
}
