package interaction

import (
	"encoding/json"
	"strings"
	"time"
)

// TimestampLayout is ISO-8601 with microseconds and a UTC offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

type Kind string

const (
	MouseMove  Kind = "mouse_move"
	MouseDown  Kind = "mouse_down"
	MouseUp    Kind = "mouse_up"
	Scroll     Kind = "scroll"
	KeyPress   Kind = "keypress"
	KeyRelease Kind = "keyrelease"
)

const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"

	ScrollUp   = "up"
	ScrollDown = "down"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Event is one normalized entry of the interaction log.
type Event struct {
	Timestamp time.Time
	Type      Kind
	Position  *Position
	Button    string
	Direction string
	Amount    *float64
	Key       string
	// Modifiers holds only the modifiers active when the event was emitted.
	Modifiers map[string]bool
	// Seq is the recorder-wide arrival order, used to break timestamp ties.
	Seq uint64
}

type eventJSON struct {
	Timestamp string          `json:"timestamp"`
	Type      Kind            `json:"type"`
	Position  *Position       `json:"position,omitempty"`
	Button    string          `json:"button,omitempty"`
	Direction string          `json:"direction,omitempty"`
	Amount    *float64        `json:"amount,omitempty"`
	Key       string          `json:"key,omitempty"`
	Modifiers map[string]bool `json:"modifiers"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	mods := e.Modifiers
	if mods == nil {
		mods = map[string]bool{}
	}
	return json.Marshal(eventJSON{
		Timestamp: e.Timestamp.Format(TimestampLayout),
		Type:      e.Type,
		Position:  e.Position,
		Button:    e.Button,
		Direction: e.Direction,
		Amount:    e.Amount,
		Key:       e.Key,
		Modifiers: mods,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampLayout, raw.Timestamp)
	if err != nil {
		return err
	}
	*e = Event{
		Timestamp: ts,
		Type:      raw.Type,
		Position:  raw.Position,
		Button:    raw.Button,
		Direction: raw.Direction,
		Amount:    raw.Amount,
		Key:       raw.Key,
		Modifiers: raw.Modifiers,
	}
	return nil
}

// NormalizeButton maps raw button identities onto left, right and middle,
// passing anything else through unchanged.
func NormalizeButton(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "1", "button1", "mouse1", "button.left":
		return ButtonLeft
	case "right", "2", "button2", "mouse2", "button.right":
		return ButtonRight
	case "middle", "center", "wheel", "3", "button3", "mouse3", "button.middle":
		return ButtonMiddle
	case "":
		return "unknown"
	default:
		return raw
	}
}

// Canonical modifier names tracked by the recorder.
var Modifiers = []string{"shift", "ctrl", "alt", "cmd"}

var modifierAliases = map[string]string{
	"shift": "shift", "lshift": "shift", "rshift": "shift",
	"left shift": "shift", "right shift": "shift", "shift_l": "shift", "shift_r": "shift",

	"ctrl": "ctrl", "control": "ctrl", "lctrl": "ctrl", "rctrl": "ctrl",
	"left ctrl": "ctrl", "right ctrl": "ctrl", "ctrl_l": "ctrl", "ctrl_r": "ctrl",
	"control_l": "ctrl", "control_r": "ctrl",

	"alt": "alt", "lalt": "alt", "ralt": "alt", "left alt": "alt", "right alt": "alt",
	"alt_l": "alt", "alt_r": "alt", "alt gr": "alt", "altgr": "alt", "alt_gr": "alt",
	"option": "alt", "loption": "alt", "roption": "alt",

	"cmd": "cmd", "lcmd": "cmd", "rcmd": "cmd", "cmd_l": "cmd", "cmd_r": "cmd",
	"command": "cmd", "super": "cmd", "lsuper": "cmd", "rsuper": "cmd",
	"meta": "cmd", "win": "cmd", "windows": "cmd", "left windows": "cmd", "right windows": "cmd",
}

// ModifierName reports the canonical modifier a key name belongs to.
func ModifierName(key string) (string, bool) {
	name, ok := modifierAliases[strings.ToLower(strings.TrimSpace(key))]
	return name, ok
}
