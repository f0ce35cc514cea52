package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 45*time.Second, cfg.Phone.RingTimeout)
	assert.Equal(t, time.Second, cfg.Phone.TickInterval)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Phone.ICEServers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("LIVECALL_PHONE_NAME", "zed")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.Duration("phone.ring_timeout", 0, "")
	require.NoError(t, flags.Parse([]string{"--port=9000", "--phone.ring_timeout=10s"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Phone.RingTimeout)
	assert.Equal(t, "zed", cfg.Phone.Name)
}

func TestDumpMasksSecret(t *testing.T) {
	out := Dump(&Config{Secret: "hunter2", Port: 1})
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "port: 1")
}
