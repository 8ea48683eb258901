package roguetalk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestUnmarshalEnv(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{
		"ROGUETALK_ADDR=:9999",
		"ROGUETALK_LOG_LEVEL=warn",
		"ROGUETALK_STORAGE=sqlite3:/tmp/registry.db",
		"ROGUETALK_PING_INTERVAL=5s",
		"IGNORED=1",
	}, false); err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":9999" {
		t.Errorf("Addr = %q", c.Addr)
	}
	if c.LogLevel != zerolog.WarnLevel {
		t.Errorf("LogLevel = %v", c.LogLevel)
	}
	if c.Storage != "sqlite3:/tmp/registry.db" {
		t.Errorf("Storage = %q", c.Storage)
	}
	if c.PingInterval != 5*time.Second {
		t.Errorf("PingInterval = %v", c.PingInterval)
	}

	// defaults
	if c.SFURoom != "rogue-talk" {
		t.Errorf("SFURoom = %q", c.SFURoom)
	}
	if c.PingTimeout != 30*time.Second {
		t.Errorf("PingTimeout = %v", c.PingTimeout)
	}
	if c.Levels != "levels" {
		t.Errorf("Levels = %q", c.Levels)
	}
}

func TestUnmarshalEnvUnsettable(t *testing.T) {
	var c Config

	// ROGUETALK_ADDR uses ?= so an explicit empty value sticks;
	// ROGUETALK_STORAGE uses = so an empty value falls back to the default.
	if err := c.UnmarshalEnv([]string{
		"ROGUETALK_ADDR=",
		"ROGUETALK_STORAGE=",
	}, false); err != nil {
		t.Fatal(err)
	}
	if c.Addr != "" {
		t.Errorf("Addr = %q, want empty", c.Addr)
	}
	if c.Storage != "memory" {
		t.Errorf("Storage = %q, want default", c.Storage)
	}
}

func TestUnmarshalEnvUnknown(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"ROGUETALK_NO_SUCH_VAR=x"}, false); err == nil {
		t.Error("expected error for unknown variable")
	}
}

func TestUnmarshalEnvIncremental(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"ROGUETALK_ADDR=:1111"}, false); err != nil {
		t.Fatal(err)
	}
	if err := c.UnmarshalEnv([]string{"ROGUETALK_PING_INTERVAL=3s"}, true); err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":1111" {
		t.Errorf("Addr = %q, want preserved", c.Addr)
	}
	if c.PingInterval != 3*time.Second {
		t.Errorf("PingInterval = %v", c.PingInterval)
	}
}
