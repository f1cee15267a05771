// Package buildconfig exposes version metadata stamped at link time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/protomind/internal/buildconfig.version=v0.1.0 \
//	  -X github.com/Harshitk-cp/protomind/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// String formats the version line printed by `protomind version`.
func String() string {
	return fmt.Sprintf("protomind %s (%s)", version, commit)
}
