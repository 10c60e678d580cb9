package xdgportal

import (
	"github.com/godbus/dbus/v5"
)

// requestOptions builds the a{sv} options dict for a Screenshot call.
func requestOptions(token string, options *ScreenshotOptions) map[string]dbus.Variant {
	data := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
	}
	if options != nil {
		data["interactive"] = dbus.MakeVariant(options.Interactive)
		data["modal"] = dbus.MakeVariant(options.Modal)
	}
	return data
}

func stringResult(results map[string]dbus.Variant, key string) (string, bool) {
	v, ok := results[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}
