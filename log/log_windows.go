//go:build windows
// +build windows

package log

import (
	"github.com/op/go-logging"
)

// syslogBackend: no syslog daemon on Windows; Setup falls back to stderr.
func syslogBackend(prefix string) logging.Backend {
	return nil
}
