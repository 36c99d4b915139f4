package config

import (
	"flag"
	"strconv"
)

// Cli holds the handful of operator-tunable knobs bound to command-line
// flags (seeded from environment variables for container-friendly
// defaults); everything else lives as a package-level var/const in
// config.go and is immutable for the life of the process.
type Cli struct {
	HTTPAddress         string
	HTTPInternalAddress string
	WebhookSecret       string
	RedisURL            string
	AuditDBDSN          string
	ObjectStoreURL      string
	WorkerConcurrency   int
}

// AddrFlag registers a host:port flag with the given default, mirroring the
// teacher's own flag-registration helpers used across its cmd/ entrypoints.
func AddrFlag(fs *flag.FlagSet, dst *string, name, def, usage string) {
	fs.StringVar(dst, name, def, usage)
}

// InvertedBoolFlag registers a "-no-X" flag that sets *dst to the opposite
// of the flag's value, for options more naturally phrased in the negative
// (e.g. "-no-compression" turning CompressionEnabled off).
func InvertedBoolFlag(fs *flag.FlagSet, dst *bool, name string, def bool, usage string) {
	*dst = def
	fs.Var(&invertedBoolValue{dst: dst}, "no-"+name, usage)
}

// invertedBoolValue implements flag.Value and the boolFlag interface the
// flag package looks for so "-no-X" can be passed without "=value".
type invertedBoolValue struct {
	dst *bool
}

func (v *invertedBoolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v.dst = !b
	return nil
}

func (v *invertedBoolValue) String() string {
	return ""
}

func (v *invertedBoolValue) IsBoolFlag() bool {
	return true
}
