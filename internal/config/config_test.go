package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Avatar/internal/domain"
)

// inDir runs the test from a temp dir holding config/config.<env>.yaml.
func inDir(t *testing.T, env, yaml string) {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config."+env+".yaml"), []byte(yaml), 0o644))
	}
	t.Chdir(dir)
}

func TestLoad_Defaults(t *testing.T) {
	inDir(t, "dev", "")
	t.Setenv("CONFIG_ENV", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 30*time.Second, cfg.WatchdogTimeout)
	assert.Equal(t, 5, cfg.MuteRateLimit)
	assert.Equal(t, 10*time.Second, cfg.MuteRateInterval)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	assert.Equal(t, "https://api.heygen.com", cfg.HeyGen.APIBase)

	assert.Equal(t, domain.DefaultPersonaConfig(), cfg.Persona())
}

func TestLoad_FileAndEnv(t *testing.T) {
	inDir(t, "test", `
mode: debug
port: 9000
token_url: http://backend/token
watchdog_timeout: 5s
avatar:
  id: Custom_Avatar
  quality: high
  greeting: hello
  voice_rate: 1.0
`)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("AVATAR_PORT", "9100")
	t.Setenv("AVATAR_AVATAR_LANGUAGE", "de")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "http://backend/token", cfg.TokenURL)
	assert.Equal(t, 5*time.Second, cfg.WatchdogTimeout)

	p := cfg.Persona()
	assert.Equal(t, "Custom_Avatar", p.Start.AvatarName)
	assert.Equal(t, domain.QualityHigh, p.Start.Quality)
	assert.Equal(t, "de", p.Start.Language)
	assert.Equal(t, 1.0, p.Start.Voice.Rate)
	assert.Equal(t, "hello", p.Greeting.Text)
	assert.Equal(t, domain.TaskRepeat, p.Greeting.TaskType)
	assert.Equal(t, domain.DefaultPersona, p.Start.KnowledgeBase)
}

func TestLoad_Flags(t *testing.T) {
	inDir(t, "staging", "port: 7000\nlog_level: warn\n")
	t.Setenv("CONFIG_ENV", "dev")

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.String("config-env", "dev", "")
	fs.Int("port", 8080, "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--config-env=staging", "--log-level=debug"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port, "unset flag does not override the file")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EmptyTokenURL(t *testing.T) {
	inDir(t, "dev", "token_url: \"\"\n")
	t.Setenv("CONFIG_ENV", "dev")

	_, err := Load(nil)
	assert.ErrorIs(t, err, ErrNoTokenURL)
}
