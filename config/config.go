// Package config centralizes the tunables the rest of the module would
// otherwise scatter as magic numbers: small, directly-constructed option
// structs with environment-variable overrides.
package config

import (
	"os"
	"strconv"
	"time"
)

// Bus holds the tuning knobs for the message bus and dispatcher.
type Bus struct {
	// ResyncGrace bounds how long the writer loop is given to flush after
	// the reader observes end-of-stream.
	ResyncGrace time.Duration
	// WriterIdlePoll is the liveness backstop for the queued writer loop,
	// which normally wakes on its channel.
	WriterIdlePoll time.Duration
	// EntityQueryInterval is the periodic EntityList(op=QUERY) discovery
	// interval.
	EntityQueryInterval time.Duration
	// EntityQueryInitialDelay is the delay of the one extra eager query
	// shortly after startup.
	EntityQueryInitialDelay time.Duration
	// MaxEntitiesPerPeer bounds the per-peer entity label->id map so a
	// misbehaving peer cannot grow the registry without bound.
	MaxEntitiesPerPeer int
}

// DefaultBus returns the stock tuning. ResyncGrace, WriterIdlePoll,
// EntityQueryInterval and MaxEntitiesPerPeer are overridable by an
// environment variable for operators running against unusual links;
// EntityQueryInitialDelay has no environment override.
func DefaultBus() Bus {
	b := Bus{
		ResyncGrace:             2 * time.Second,
		WriterIdlePoll:          500 * time.Millisecond,
		EntityQueryInterval:     300 * time.Second,
		EntityQueryInitialDelay: 1 * time.Second,
		MaxEntitiesPerPeer:      256,
	}
	if v := durationEnv("IMC_RESYNC_GRACE"); v > 0 {
		b.ResyncGrace = v
	}
	if v := durationEnv("IMC_WRITER_IDLE_POLL"); v > 0 {
		b.WriterIdlePoll = v
	}
	if v := durationEnv("IMC_ENTITY_QUERY_INTERVAL"); v > 0 {
		b.EntityQueryInterval = v
	}
	if v := intEnv("IMC_MAX_ENTITIES_PER_PEER"); v > 0 {
		b.MaxEntitiesPerPeer = v
	}
	return b
}

func durationEnv(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func intEnv(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// DefaultSchemaURL is the HTTPS location this module fetches IMC.xml
// from when no local copy is found.
const DefaultSchemaURL = "https://raw.githubusercontent.com/LSTS/imc/master/IMC.xml"

// SchemaURL returns DefaultSchemaURL unless overridden by IMC_SCHEMA_URL.
func SchemaURL() string {
	if v := os.Getenv("IMC_SCHEMA_URL"); v != "" {
		return v
	}
	return DefaultSchemaURL
}
