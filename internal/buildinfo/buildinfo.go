// Package buildinfo holds version metadata injected at build time with
// -ldflags "-X github.com/tphakala/longrec/internal/buildinfo.Version=...".
package buildinfo

import (
	"fmt"
	"runtime"
)

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

var (
	Version   string
	BuildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata of the running binary.
func Current() *Context {
	return &Context{Version: Version, BuildDate: BuildDate}
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the identifier used for error reports, e.g. "longrec@1.2.0".
func (c *Context) Release() string {
	return "longrec@" + c.GetVersion()
}

func (c *Context) String() string {
	return fmt.Sprintf("longrec %s (built %s, %s %s/%s)",
		c.GetVersion(), c.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
