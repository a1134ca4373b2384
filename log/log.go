// Package log provides the single shared logger used across the codec,
// bus, dispatcher and command-line tools: a module-wide
// github.com/op/go-logging logger with a stderr backend by default, an
// optional syslog backend, and an environment-variable level override.
package log

import (
	"os"

	"github.com/op/go-logging"
)

// Log is the package-wide logger. Components hold onto it directly
// rather than threading a logger through every constructor.
var Log = logging.MustGetLogger("imc")

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} ▶ %{message}%{color:reset}`,
)

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)

func init() {
	Setup("imc", logging.NOTICE, false)
}

// Setup installs the logging backend at defaultLevel, then applies the
// IMC_LOG_LEVEL environment override if present. trySyslog prefers a
// syslog backend, falling back to stderr when the syslog daemon is
// unreachable (or on platforms without one). Called from init() with
// sane defaults; callers (e.g. cmd/imcd) may call it again to change
// the prefix, level, or backend.
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	var backend logging.Backend
	if trySyslog {
		backend = syslogBackend(prefix)
	}
	if backend == nil {
		stderr := logging.NewLogBackend(os.Stderr, "", 0)
		backend = logging.NewBackendFormatter(stderr, stderrFormat)
	}
	leveled := logging.AddModuleLevel(backend)

	level := defaultLevel
	switch os.Getenv("IMC_LOG_LEVEL") {
	case "CRITICAL":
		level = logging.CRITICAL
	case "ERROR":
		level = logging.ERROR
	case "WARNING":
		level = logging.WARNING
	case "NOTICE":
		level = logging.NOTICE
	case "INFO":
		level = logging.INFO
	case "DEBUG":
		level = logging.DEBUG
	}
	leveled.SetLevel(level, "")

	logging.SetBackend(leveled)
	return Log
}
