// Package version holds build metadata, set with -ldflags "-X".
package version

import "runtime"

const (
	AppName        = "botfleet"
	AppDescription = "A fleet of conversational Discord bots"
)

var (
	Version   = "dev"
	BuildDate = ""
	GoVersion = runtime.Version()
)
