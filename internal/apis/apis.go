package apis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	ObjectName        = "org.freedesktop.portal.Desktop"
	ObjectPath        = "/org/freedesktop/portal/desktop"
	CallBaseName      = "org.freedesktop.portal"
	PropertiesGetName = "org.freedesktop.DBus.Properties.Get"

	requestPathPrefix = ObjectPath + "/request/"
)

var ErrNoSessionBus = errors.New("dbus session bus unavailable")

// Portal is a handle on the desktop portal object over the shared session bus.
type Portal struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func Connect() (*Portal, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSessionBus, err)
	}
	return &Portal{conn: conn, obj: conn.Object(ObjectName, ObjectPath)}, nil
}

// CallRequest invokes a portal method that answers with a Request object path.
func (p *Portal) CallRequest(ctx context.Context, method string, args ...any) (dbus.ObjectPath, error) {
	call := p.obj.CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return "", call.Err
	}

	var handle dbus.ObjectPath
	if err := call.Store(&handle); err != nil {
		return "", fmt.Errorf("%s returned unexpected reply: %w", method, err)
	}
	return handle, nil
}

// CallStore invokes a portal method with a direct reply and stores it in out.
func (p *Portal) CallStore(ctx context.Context, method string, out any, args ...any) error {
	call := p.obj.CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if err := call.Store(out); err != nil {
		return fmt.Errorf("%s returned unexpected reply: %w", method, err)
	}
	return nil
}

// CallOnObject invokes method on another portal object, such as a Request.
func (p *Portal) CallOnObject(ctx context.Context, path dbus.ObjectPath, method string, args ...any) error {
	return p.conn.Object(ObjectName, path).CallWithContext(ctx, method, 0, args...).Err
}

func (p *Portal) Property(interfaceName, property string) (any, error) {
	call := p.obj.Call(PropertiesGetName, 0, interfaceName, property)
	if call.Err != nil {
		return nil, call.Err
	}

	var value dbus.Variant
	if err := call.Store(&value); err != nil {
		return nil, err
	}
	return value.Value(), nil
}

// RequestPath predicts the Request object the portal will create for token,
// so callers can subscribe to its Response before issuing the call.
func (p *Portal) RequestPath(token string) dbus.ObjectPath {
	sender := ""
	if names := p.conn.Names(); len(names) > 0 {
		sender = strings.ReplaceAll(strings.TrimPrefix(names[0], ":"), ".", "_")
	}
	return dbus.ObjectPath(requestPathPrefix + sender + "/" + token)
}

// Subscribe delivers signals matching path/iface/member until the returned
// cancel func is called.
func (p *Portal) Subscribe(path dbus.ObjectPath, iface, member string) (<-chan *dbus.Signal, func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if err := p.conn.AddMatchSignal(opts...); err != nil {
		return nil, nil, err
	}

	ch := make(chan *dbus.Signal, 4)
	p.conn.Signal(ch)
	cancel := func() {
		p.conn.RemoveSignal(ch)
		_ = p.conn.RemoveMatchSignal(opts...)
	}
	return ch, cancel, nil
}
