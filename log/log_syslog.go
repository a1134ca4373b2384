//go:build !windows
// +build !windows

package log

import (
	stdlog "log"
	"log/syslog"

	"github.com/op/go-logging"
)

// syslogBackend connects to the local syslog daemon, directing the
// standard library logger's output there as well; returns nil when the
// daemon is unreachable so
// Setup falls back to stderr.
func syslogBackend(prefix string) logging.Backend {
	backend, err := logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
	if err != nil {
		return nil
	}
	stdlog.SetOutput(backend.Writer)
	return logging.NewBackendFormatter(backend, syslogFormat)
}
