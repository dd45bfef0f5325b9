package version

import (
	"runtime/debug"
	"strings"
)

// Default is the version reported when none is embedded in the build.
const Default = "dev"

// version is set with -ldflags "-X github.com/asmkit/tasm/internal/version.version=v1.2.3".
var version = ""

// tasmModule is the module path looked up in the build info of binaries importing tasm.
const tasmModule = "github.com/asmkit/tasm"

// GetTasmVersion returns the version of tasm in the running binary: the linker-provided
// value, else the main module or dependency version from the build info, else Default.
func GetTasmVersion() string {
	if version != "" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return fromBuildInfo(info)
}

func fromBuildInfo(info *debug.BuildInfo) string {
	if info.Main.Path == tasmModule {
		return normalize(info.Main.Version)
	}
	for _, dep := range info.Deps {
		if dep.Path != tasmModule {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return normalize(dep.Replace.Version)
		}
		return normalize(dep.Version)
	}
	return Default
}

// normalize maps the placeholder of an untagged local build to Default.
func normalize(v string) string {
	if v == "" || strings.HasPrefix(v, "(devel)") {
		return Default
	}
	return v
}
