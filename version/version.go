// Package version reports the tgraphd release and the build it came from.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"sync"
)

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild may be set at link time with
// -ldflags "-X github.com/treegraph/tgraphd/version.appBuild=<tag>".
// When empty the VCS revision embedded by the go tool is used instead.
var appBuild string

var validBuild = regexp.MustCompile(`^[0-9A-Za-z-]+$`)

var (
	versionOnce sync.Once
	version     string
)

// Version returns major.minor.patch, followed by build metadata when known
func Version() string {
	versionOnce.Do(func() {
		version = format(appBuild, vcsRevision())
	})
	return version
}

func format(build string, revision string) string {
	base := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if build == "" {
		build = revision
	}
	if build == "" || !validBuild.MatchString(build) {
		return base
	}
	return base + "-" + build
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
			return setting.Value[:12]
		}
	}
	return ""
}
