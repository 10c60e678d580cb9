// Package session wraps org.freedesktop.portal.Session objects, which
// outlive the request that created them and end with a Closed signal.
package session

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"sync"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/internal/apis"
)

const (
	InterfaceName = "org.freedesktop.portal.Session"
	ClosedMember  = "Closed"
	closeCallName = InterfaceName + ".Close"
)

// NewToken returns a session_handle_token value.
func NewToken() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<32))
	return "screenrec_s" + strconv.FormatUint(n.Uint64(), 16)
}

// Handle extracts the session object path from a CreateSession response.
// Portals send it as a string although it names an object.
func Handle(results map[string]dbus.Variant) (dbus.ObjectPath, bool) {
	v, ok := results["session_handle"]
	if !ok {
		return "", false
	}
	var path dbus.ObjectPath
	switch h := v.Value().(type) {
	case string:
		path = dbus.ObjectPath(h)
	case dbus.ObjectPath:
		path = h
	default:
		return "", false
	}
	return path, path.IsValid()
}

func Close(ctx context.Context, portal *apis.Portal, path dbus.ObjectPath) error {
	return portal.CallOnObject(ctx, path, closeCallName)
}

// WatchClosed returns a channel closed once the compositor (or the user)
// ends the session. stop releases the signal subscription.
func WatchClosed(portal *apis.Portal, path dbus.ObjectPath) (closed <-chan struct{}, stop func(), err error) {
	signals, unsubscribe, err := portal.Subscribe(path, InterfaceName, ClosedMember)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig != nil && sig.Path == path && sig.Name == InterfaceName+"."+ClosedMember {
					close(done)
					return
				}
			}
		}
	}()

	var once sync.Once
	return done, func() {
		once.Do(func() {
			close(quit)
			unsubscribe()
		})
	}, nil
}
