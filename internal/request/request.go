package request

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"

	"github.com/godbus/dbus/v5"
	"go2tv.app/screenrec/internal/apis"
)

var ErrUnexpectedResponse = errors.New("unexpected response from dbus")

const (
	InterfaceName  = "org.freedesktop.portal.Request"
	ResponseMember = "Response"
	closeCallName  = InterfaceName + ".Close"
)

type ResponseStatus = uint32

const (
	Success   ResponseStatus = 0
	Cancelled ResponseStatus = 1
	Ended     ResponseStatus = 2
)

// NewToken returns a handle_token value unique enough for one process.
func NewToken() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<32))
	return "screenrec" + strconv.FormatUint(n.Uint64(), 16)
}

func Close(ctx context.Context, portal *apis.Portal, path dbus.ObjectPath) error {
	return portal.CallOnObject(ctx, path, closeCallName)
}

// Await waits for the Response signal of the request at path.
func Await(ctx context.Context, signals <-chan *dbus.Signal, path dbus.ObjectPath) (ResponseStatus, map[string]dbus.Variant, error) {
	for {
		select {
		case <-ctx.Done():
			return Ended, nil, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return Ended, nil, ErrUnexpectedResponse
			}
			if sig == nil || sig.Path != path || sig.Name != InterfaceName+"."+ResponseMember {
				continue
			}
			if len(sig.Body) != 2 {
				return Ended, nil, ErrUnexpectedResponse
			}
			status, ok := sig.Body[0].(uint32)
			if !ok {
				return Ended, nil, ErrUnexpectedResponse
			}
			results, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				return Ended, nil, ErrUnexpectedResponse
			}
			return status, results, nil
		}
	}
}

// Do calls a portal method that answers through a Request object and waits
// for its Response. token must be the handle_token carried in args, so the
// Response subscription exists before the call is made.
func Do(ctx context.Context, portal *apis.Portal, method, token string, args ...any) (ResponseStatus, map[string]dbus.Variant, error) {
	path := portal.RequestPath(token)
	signals, unsubscribe, err := portal.Subscribe(path, InterfaceName, ResponseMember)
	if err != nil {
		return Ended, nil, err
	}
	defer func() { unsubscribe() }()

	handle, err := portal.CallRequest(ctx, method, args...)
	if err != nil {
		return Ended, nil, err
	}
	if handle != path {
		// Pre-0.9 portals pick their own handle; follow the returned path.
		followed, cancel, err := portal.Subscribe(handle, InterfaceName, ResponseMember)
		if err != nil {
			return Ended, nil, err
		}
		unsubscribe()
		signals, unsubscribe, path = followed, cancel, handle
	}

	status, results, err := Await(ctx, signals, path)
	if err != nil && ctx.Err() != nil {
		_ = Close(context.Background(), portal, path)
	}
	return status, results, err
}
