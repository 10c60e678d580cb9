package buildinfo

// These values can be overridden at build time with:
// -ldflags "-X go2tv.app/screenrec/internal/buildinfo.Version=v0.3.0"
var Version = "dev"

func String() string {
	return Version
}
