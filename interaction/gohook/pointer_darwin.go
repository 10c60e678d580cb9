//go:build darwin

package gohook

/*
#cgo LDFLAGS: -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>

static int cursor_position(double *x, double *y) {
    CGEventRef ev = CGEventCreate(NULL);
    if (ev == NULL) return 0;
    CGPoint p = CGEventGetLocation(ev);
    CFRelease(ev);
    *x = p.x;
    *y = p.y;
    return 1;
}
*/
import "C"

import "errors"

type quartzPointer struct{}

func openPointer() (pointerQuery, error) { return quartzPointer{}, nil }

func (quartzPointer) position() (int, int, error) {
	var x, y C.double
	if C.cursor_position(&x, &y) == 0 {
		return 0, 0, errors.New("gohook: CGEventCreate failed")
	}
	return int(x), int(y), nil
}

func (quartzPointer) close() {}
