package build

// Injected at build time with -ldflags "-X github.com/armadaproject/cyclebench/internal/cyclebench/build.<Var>=..."
var (
	ReleaseVersion = "UNKNOWN_VERSION"
	GitCommit      = "UNKNOWN_GITCOMMIT"
	GoVersion      = "UNKNOWN_GOVERSION"
	BuildTime      = "UNKNOWN_BUILDTIME"
)
