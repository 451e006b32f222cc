package config

import (
	"flag"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadServer_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadServer(newFlagSet(), nil)
	req.NoError(err)
	req.Equal(":5000", cfg.Addr)
	req.Equal(":9090", cfg.MetricsAddr)
	req.Equal(10*time.Second, cfg.WriteTimeout)
	req.Equal(16<<20, cfg.MaxFrameSize)
	req.Equal(slog.LevelInfo, cfg.Level())
}

func TestLoadServer_FlagsOverrideEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHAT_ADDR", ":6000")
	t.Setenv("CHAT_LOG_LEVEL", "debug")

	cfg, err := LoadServer(newFlagSet(), []string{"-addr", "127.0.0.1:7000", "-metrics-addr", ""})
	req.NoError(err)
	req.Equal("127.0.0.1:7000", cfg.Addr)
	req.Empty(cfg.MetricsAddr)
	req.Equal(slog.LevelDebug, cfg.Level())
}

func TestLoadServer_RejectsUnknownLevel(t *testing.T) {
	_, err := LoadServer(newFlagSet(), []string{"-log-level", "loud"})
	require.Error(t, err)
}

func TestLoadClient_Positional(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadClient(newFlagSet(), []string{"chat.example.org", "20000"})
	req.NoError(err)
	req.Equal("chat.example.org:20000", cfg.Address())
}

func TestLoadClient_Invalid(t *testing.T) {
	_, err := LoadClient(newFlagSet(), []string{"only-host"})
	require.Error(t, err)

	_, err = LoadClient(newFlagSet(), []string{"-port", "0"})
	require.Error(t, err)
}

func TestLoadServer_RequiresWriteTimeout(t *testing.T) {
	_, err := LoadServer(newFlagSet(), []string{"-write-timeout", "0"})
	require.Error(t, err)

	t.Setenv("CHAT_WRITE_TIMEOUT", "0s")
	_, err = LoadServer(newFlagSet(), nil)
	require.Error(t, err)

	cfg, err := LoadServer(newFlagSet(), []string{"-write-timeout", "250ms"})
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
}
