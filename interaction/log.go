package interaction

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

type Log struct {
	RecordingData RecordingData `json:"recording_data"`
}

type RecordingData struct {
	StartTime    *string `json:"start_time"`
	EndTime      *string `json:"end_time"`
	Platform     string  `json:"platform"`
	SessionID    string  `json:"session_id,omitempty"`
	TotalFrames  int     `json:"total_frames"`
	TotalEvents  int     `json:"total_events"`
	Interactions []Event `json:"interactions"`
}

// Merge combines event sources into one slice ordered by timestamp, with
// ties kept in arrival order.
func Merge(sources ...[]Event) []Event {
	n := 0
	for _, s := range sources {
		n += len(s)
	}
	out := make([]Event, 0, n)
	for _, s := range sources {
		out = append(out, s...)
	}
	slices.SortStableFunc(out, func(a, b Event) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

// NewLog wraps already merged events in the recording envelope.
func NewLog(events []Event, platform, sessionID string, totalFrames int) *Log {
	if events == nil {
		events = []Event{}
	}
	data := RecordingData{
		Platform:     platform,
		SessionID:    sessionID,
		TotalFrames:  totalFrames,
		TotalEvents:  len(events),
		Interactions: events,
	}
	if len(events) > 0 {
		start := events[0].Timestamp.Format(TimestampLayout)
		end := events[len(events)-1].Timestamp.Format(TimestampLayout)
		data.StartTime, data.EndTime = &start, &end
	}
	return &Log{RecordingData: data}
}

func (l *Log) WriteFile(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode interaction log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write interaction log: %w", err)
	}
	return nil
}

func ReadLog(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode interaction log %s: %w", path, err)
	}
	return &l, nil
}
