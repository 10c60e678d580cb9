package recorder

import (
	"errors"
	"fmt"
)

type State int

const (
	Idle State = iota
	// Starting covers opening capture and the producers.
	Starting
	Recording
	Stopping
	Finalized
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason classifies why a session failed or degraded.
type Reason string

const (
	ReasonOutputDir          Reason = "output_dir"
	ReasonCaptureUnavailable Reason = "capture_unavailable"
	ReasonCaptureFailed      Reason = "capture_failed"
	ReasonAudioUnavailable   Reason = "audio_unavailable"
	ReasonHooksUnavailable   Reason = "hooks_unavailable"
	ReasonFrameBudget        Reason = "frame_budget"
	ReasonNoFrames           Reason = "no_frames"
	ReasonFinalize           Reason = "finalize_failed"
)

var (
	ErrSessionActive = errors.New("a recording session is already active")
	ErrNotRecording  = errors.New("no recording in progress")
)

type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the Reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
