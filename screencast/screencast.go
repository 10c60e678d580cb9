// Package screencast drives the org.freedesktop.portal.ScreenCast flow:
// create a session, pick sources, start it and open the PipeWire remote
// that carries the granted streams.
package screencast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/internal/apis"
	"go2tv.app/screenrec/internal/request"
	"go2tv.app/screenrec/internal/session"
)

const (
	interfaceName      = apis.CallBaseName + ".ScreenCast"
	createSessionName  = interfaceName + ".CreateSession"
	selectSourcesName  = interfaceName + ".SelectSources"
	startName          = interfaceName + ".Start"
	openPipeWireRemote = interfaceName + ".OpenPipeWireRemote"
)

const (
	SourceTypeMonitor uint32 = 1
	SourceTypeWindow  uint32 = 2
	SourceTypeVirtual uint32 = 4
)

const (
	CursorModeHidden   uint32 = 1
	CursorModeEmbedded uint32 = 2
	CursorModeMetadata uint32 = 4
)

const (
	PersistModeNone       uint32 = 0
	PersistModeRunning    uint32 = 1
	PersistModePersistent uint32 = 2
)

var (
	ErrCancelled = errors.New("screencast request cancelled")
	ErrNoStreams = errors.New("screencast granted no streams")
)

type Stream struct {
	NodeID     uint32
	Position   [2]int32
	Size       [2]int32
	SourceType uint32
}

type SelectSourcesOptions struct {
	Types        uint32
	Multiple     bool
	CursorMode   uint32
	RestoreToken string
	PersistMode  uint32
}

type Session struct {
	portal *apis.Portal
	Path   dbus.ObjectPath

	closeOnce sync.Once
	closeErr  error
}

// Version reports the ScreenCast interface version.
func Version(portal *apis.Portal) (uint32, error) {
	v, err := portal.Property(interfaceName, "version")
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint32)
	if !ok {
		return 0, request.ErrUnexpectedResponse
	}
	return n, nil
}

// AvailableSourceTypes is the SourceType bitmask the compositor supports.
func AvailableSourceTypes(portal *apis.Portal) (uint32, error) {
	v, err := portal.Property(interfaceName, "AvailableSourceTypes")
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint32)
	if !ok {
		return 0, request.ErrUnexpectedResponse
	}
	return n, nil
}

func CreateSession(ctx context.Context, portal *apis.Portal) (*Session, error) {
	token := request.NewToken()
	data := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(token),
		"session_handle_token": dbus.MakeVariant(session.NewToken()),
	}
	status, results, err := request.Do(ctx, portal, createSessionName, token, data)
	if err != nil {
		return nil, fmt.Errorf("screencast create session: %w", err)
	}
	if err := checkStatus(status); err != nil {
		return nil, err
	}

	path, ok := session.Handle(results)
	if !ok {
		return nil, fmt.Errorf("screencast create session: %w", request.ErrUnexpectedResponse)
	}
	return &Session{portal: portal, Path: path}, nil
}

func (s *Session) SelectSources(ctx context.Context, options SelectSourcesOptions) error {
	token := request.NewToken()
	status, _, err := request.Do(ctx, s.portal, selectSourcesName, token, s.Path, selectSourcesOptions(token, options))
	if err != nil {
		return fmt.Errorf("screencast select sources: %w", err)
	}
	return checkStatus(status)
}

// Start shows the compositor's share dialog and returns the granted streams.
func (s *Session) Start(ctx context.Context) ([]Stream, error) {
	token := request.NewToken()
	data := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(token)}
	status, results, err := request.Do(ctx, s.portal, startName, token, s.Path, "", data)
	if err != nil {
		return nil, fmt.Errorf("screencast start: %w", err)
	}
	if err := checkStatus(status); err != nil {
		return nil, err
	}

	v, ok := results["streams"]
	if !ok {
		return nil, ErrNoStreams
	}
	streams := parseStreams(v.Value())
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}
	return streams, nil
}

// OpenPipeWireRemote returns a file descriptor the caller owns.
func (s *Session) OpenPipeWireRemote(ctx context.Context) (int, error) {
	var fd dbus.UnixFD
	err := s.portal.CallStore(ctx, openPipeWireRemote, &fd, s.Path, map[string]dbus.Variant{})
	if err != nil {
		return -1, fmt.Errorf("screencast open pipewire remote: %w", err)
	}
	return int(fd), nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = session.Close(context.Background(), s.portal, s.Path)
	})
	return s.closeErr
}

func checkStatus(status request.ResponseStatus) error {
	switch status {
	case request.Success:
		return nil
	case request.Cancelled:
		return ErrCancelled
	default:
		return fmt.Errorf("screencast request ended with status %d", status)
	}
}

func selectSourcesOptions(token string, options SelectSourcesOptions) map[string]dbus.Variant {
	data := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(token)}
	if options.Types != 0 {
		data["types"] = dbus.MakeVariant(options.Types)
	}
	if options.Multiple {
		data["multiple"] = dbus.MakeVariant(true)
	}
	if options.CursorMode != 0 {
		data["cursor_mode"] = dbus.MakeVariant(options.CursorMode)
	}
	if options.RestoreToken != "" {
		data["restore_token"] = dbus.MakeVariant(options.RestoreToken)
	}
	if options.PersistMode != 0 {
		data["persist_mode"] = dbus.MakeVariant(options.PersistMode)
	}
	return data
}

// parseStreams decodes an a(ua{sv}) value. godbus hands structs back as
// []any, nested either as [][]any or []any depending on the reply.
func parseStreams(value any) []Stream {
	var raw [][]any
	switch rs := value.(type) {
	case [][]any:
		raw = rs
	case []any:
		for _, r := range rs {
			if s, ok := r.([]any); ok {
				raw = append(raw, s)
			}
		}
	default:
		return nil
	}

	streams := make([]Stream, 0, len(raw))
	for _, fields := range raw {
		if len(fields) < 2 {
			continue
		}
		nodeID, ok := fields[0].(uint32)
		if !ok {
			continue
		}
		stream := Stream{NodeID: nodeID}
		if props, ok := fields[1].(map[string]dbus.Variant); ok {
			stream.Position, _ = pair(props["position"])
			stream.Size, _ = pair(props["size"])
			if v, ok := props["source_type"].Value().(uint32); ok {
				stream.SourceType = v
			}
		}
		streams = append(streams, stream)
	}
	return streams
}

func pair(v dbus.Variant) ([2]int32, bool) {
	vals, ok := v.Value().([]any)
	if !ok || len(vals) != 2 {
		return [2]int32{}, false
	}
	a, okA := vals[0].(int32)
	b, okB := vals[1].(int32)
	if !okA || !okB {
		return [2]int32{}, false
	}
	return [2]int32{a, b}, true
}
