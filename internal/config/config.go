// Package config holds the server's env-driven configuration, unmarshaled
// with the same reflect-over-struct-tags approach Atlas uses for its own
// Config, trimmed to the handful of types this server's knobs need.
package config

import (
	"fmt"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is every knob the server reads from its environment. The env tag
// carries the variable name and, after "=", its default; a trailing "?"
// before "=" allows the default to be explicitly overridden with an empty
// value (see UnmarshalEnv).
type Config struct {
	// Addr is the UDP address the listener binds.
	Addr netip.AddrPort `env:"NOSTALGIA_ADDR=0.0.0.0:19132"`

	// MOTD is the string returned in UnconnectedPong.
	MOTD string `env:"NOSTALGIA_MOTD=MCCPP;Demo;nostalgia-server"`

	// WorldPath names a directory a real world loader would read from; the
	// demo Snapshot ignores it, but the knob exists so a future loader has
	// somewhere to point.
	WorldPath string `env:"NOSTALGIA_WORLD_PATH"`

	// DemoSideEffects toggles game.Config.DemoSideEffects.
	DemoSideEffects bool `env:"NOSTALGIA_DEMO_SIDE_EFFECTS=true"`

	// LogLevel is the minimum zerolog level emitted.
	LogLevel zerolog.Level `env:"NOSTALGIA_LOG_LEVEL=info"`

	// MetricsAddr, if non-empty, serves /metrics on this address.
	MetricsAddr string `env:"NOSTALGIA_METRICS_ADDR"`

	// SessionIdleTimeout is parsed and validated, but nothing reads it: a
	// peer's tick loop closes the session after rakpeer's own fixed 10s
	// without a heartbeat.
	SessionIdleTimeout time.Duration `env:"NOSTALGIA_SESSION_IDLE_TIMEOUT=30s"`
}

// UnmarshalEnv unmarshals an array of "KEY=VALUE" strings (as from
// os.Environ or envparse.Parse) into c, applying defaults for anything
// missing.
func (c *Config) UnmarshalEnv(es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "NOSTALGIA_") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		}

		cvf := cv.FieldByName(ctf.Name)
		switch cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s: parse %q as bool: %w", key, val, err)
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q as log level: %w", key, val, err)
			}
		case time.Duration:
			if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q as duration: %w", key, val, err)
			}
		case netip.AddrPort:
			if val == "" {
				cvf.Set(reflect.ValueOf(netip.AddrPort{}))
			} else if v, err := netip.ParseAddrPort(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q as addr:port: %w", key, val, err)
			}
		default:
			return fmt.Errorf("unhandled config field type %T (%s)", cvf.Interface(), env)
		}
	}

	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}
