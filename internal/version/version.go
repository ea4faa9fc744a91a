// Package version reports build information for the sesh binary. Values are
// injected at build time:
//
//	go build -ldflags "-X github.com/opensesh/sesh/internal/version.gitVersion=v0.3.0 \
//	  -X github.com/opensesh/sesh/internal/version.gitCommit=$(git rev-parse HEAD) \
//	  -X github.com/opensesh/sesh/internal/version.buildDate=$(date -u +'%Y-%m-%dT%H:%M:%SZ')"
//
// Without ldflags the module version recorded by the Go toolchain is used
// when there is one.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/gosuri/uitable"
)

const develVersion = "v0.0.0-dev"

var (
	gitVersion   = develVersion
	gitCommit    = ""
	gitTreeState = ""
	buildDate    = "1970-01-01T00:00:00Z"
)

// Info holds the build information of the running binary.
type Info struct {
	GitVersion   string `json:"gitVersion"`
	GitCommit    string `json:"gitCommit,omitempty"`
	GitTreeState string `json:"gitTreeState,omitempty"`
	BuildDate    string `json:"buildDate"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

// String returns the version, suffixed with -dirty for builds from a
// modified tree.
func (info Info) String() string {
	if info.GitTreeState == "dirty" {
		return info.GitVersion + "-dirty"
	}
	return info.GitVersion
}

func (info Info) ShortString() string {
	return info.GitVersion
}

func (info Info) ToJSONIndent() (string, error) {
	encoded, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal version info: %w", err)
	}
	return string(encoded), nil
}

// Text renders the information as an aligned two-column table.
func (info Info) Text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("gitVersion:", info.GitVersion)
	if info.GitCommit != "" {
		table.AddRow("gitCommit:", info.GitCommit)
	}
	if info.GitTreeState != "" {
		table.AddRow("gitTreeState:", info.GitTreeState)
	}
	table.AddRow("buildDate:", info.BuildDate)
	table.AddRow("goVersion:", info.GoVersion)
	table.AddRow("compiler:", info.Compiler)
	table.AddRow("platform:", info.Platform)
	return table.String()
}

// Get returns the build information of the running binary.
func Get() Info {
	info := Info{
		GitVersion:   gitVersion,
		GitCommit:    gitCommit,
		GitTreeState: gitTreeState,
		BuildDate:    buildDate,
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.GitVersion == develVersion {
		if build, ok := debug.ReadBuildInfo(); ok {
			applyBuildInfo(&info, build)
		}
	}
	return info
}

func applyBuildInfo(info *Info, build *debug.BuildInfo) {
	if build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.GitVersion = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = setting.Value
			}
		case "vcs.modified":
			if info.GitTreeState == "" {
				if setting.Value == "true" {
					info.GitTreeState = "dirty"
				} else {
					info.GitTreeState = "clean"
				}
			}
		}
	}
}
