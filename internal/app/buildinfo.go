package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/common/version"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// Revision is the VCS commit, filled by ldflags.
	Revision = ""
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

func BuildVersion() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}

	return v
}

func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format("2006-01-02")
	}

	if len(raw) >= len("2006-01-02") {
		date := raw[:len("2006-01-02")]
		if _, err := time.Parse("2006-01-02", date); err == nil {
			return date
		}
	}

	return raw
}

func BuildVersionWithDate() string {
	v := BuildVersion()
	if buildDate := BuildDateYMD(); buildDate != "" {
		return fmt.Sprintf("%s (%s)", v, buildDate)
	}

	return v
}

// PublishBuildInfo copies build metadata into the prometheus version package so
// --version and the build_info metric agree.
func PublishBuildInfo() {
	version.Version = BuildVersion()
	version.Revision = strings.TrimSpace(Revision)
	version.BuildDate = BuildDateYMD()
}
