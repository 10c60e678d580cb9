//go:build linux

package gohook

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

type x11Pointer struct {
	conn *xgb.Conn
	root xproto.Window
}

func openPointer() (pointerQuery, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("gohook: connect to X server: %w", err)
	}
	return &x11Pointer{conn: conn, root: xproto.Setup(conn).DefaultScreen(conn).Root}, nil
}

func (p *x11Pointer) position() (int, int, error) {
	r, err := xproto.QueryPointer(p.conn, p.root).Reply()
	if err != nil {
		return 0, 0, err
	}
	return int(r.RootX), int(r.RootY), nil
}

func (p *x11Pointer) close() { p.conn.Close() }
