// Package version holds values stamped into the binaries at link time, for
// example: go build -ldflags "-X github.com/TeamNorCal/wxmatrix/version.GitHash=$(git rev-parse HEAD)"
package version

var (
	// GitHash is the commit the binary was built from
	GitHash = "unknown"
	// BuildTime is the UTC time of the build
	BuildTime = "unknown"
)
