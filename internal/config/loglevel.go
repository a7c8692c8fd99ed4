package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLogLevel maps the CLI surface's five level names onto zerolog
// levels. SILENT maps to zerolog.Disabled.
func ParseLogLevel(name string) (zerolog.Level, error) {
	switch strings.ToUpper(name) {
	case "SILENT":
		return zerolog.Disabled, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", name)
	}
}
