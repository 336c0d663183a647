package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Portal = Portal{
		LoginURL:  "https://portal.example.com/login?next=/home",
		TargetURL: "https://portal.example.com/direccion",
		Username:  "agent",
		Password:  "secret",
	}
	return cfg
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 15*time.Second, cfg.Timing.StepTimeout)
	assert.Equal(t, 8, cfg.Timing.SuggestionPrefix)
	assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "#direccion", cfg.Selectors.Address)
}

func TestApplyEnv(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"WOM_LOGIN_URL":          "https://portal.example.com/login",
		"WOM_DIRECCION_URL":      "https://portal.example.com/direccion",
		"WOM_USER":               " agent ",
		"WOM_PASS":               "secret",
		"WOM_RUT":                "11111111-1",
		"BROWSER_HEADLESS":       "false",
		"BROWSER_DRIVER":         "playwright",
		"MAX_CONCURRENT_CHECKS":  "4",
		"TELEGRAM_ALLOWED_CHATS": "10, 20,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "agent", cfg.Portal.Username)
	assert.Equal(t, "11111111-1", cfg.Portal.OperatorID)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, DriverPlaywright, cfg.Browser.Driver)
	assert.Equal(t, 4, cfg.MaxConcurrentChecks)
	assert.Equal(t, []int64{10, 20}, cfg.Telegram.AllowedChats)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.ApplyEnv(lookupFrom(map[string]string{"BROWSER_HEADLESS": "maybe"})))
	assert.Error(t, cfg.ApplyEnv(lookupFrom(map[string]string{"TELEGRAM_ALLOWED_CHATS": "abc"})))
}

func TestValidateMissing(t *testing.T) {
	cfg := validConfig()
	cfg.Portal.Password = ""
	cfg.Portal.TargetURL = "   "

	err := cfg.Validate()
	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"WOM_DIRECCION_URL", "WOM_PASS"}, missing.Keys)
}

func TestValidateDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Browser.Driver = "lynx"
	assert.Error(t, cfg.Validate())
}

func TestLoginMatcher(t *testing.T) {
	cfg := validConfig()

	re, err := cfg.Portal.LoginMatcher()
	require.NoError(t, err)
	assert.True(t, re.MatchString("https://portal.example.com/login"))
	assert.True(t, re.MatchString("https://portal.example.com/login?error=1"))
	assert.True(t, re.MatchString("https://portal.example.com/login/#top"))
	assert.False(t, re.MatchString("https://portal.example.com/home"))
	assert.False(t, re.MatchString("https://portal.example.com/login/inicio"))

	cfg.Portal.LoginURL = "https://portal.example.com/"
	re, err = cfg.Portal.LoginMatcher()
	require.NoError(t, err)
	assert.True(t, re.MatchString("https://portal.example.com"))
	assert.True(t, re.MatchString("https://portal.example.com/"))
	assert.True(t, re.MatchString("https://portal.example.com/?error=1"))
	assert.False(t, re.MatchString("https://portal.example.com/inicio"))

	cfg.Portal.LoginURL = "/login"
	_, err = cfg.Portal.LoginMatcher()
	assert.Error(t, err)
	cfg.Portal.LoginURL = "https://portal.example.com/login"

	cfg.Portal.LoginURLPattern = `/auth/realms/`
	re, err = cfg.Portal.LoginMatcher()
	require.NoError(t, err)
	assert.True(t, re.MatchString("https://sso.example.com/auth/realms/care/protocol"))

	cfg.Portal.LoginURLPattern = `([`
	assert.Error(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
portal:
  login_url: https://portal.example.com/login
  target_url: https://portal.example.com/direccion
selectors:
  result: "#panelResultado"
timing:
  step_timeout: 3s
  suggestion_prefix: 6
browser:
  headless: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/login", cfg.Portal.LoginURL)
	assert.Equal(t, "#panelResultado", cfg.Selectors.Result)
	assert.Equal(t, "#direccion", cfg.Selectors.Address)
	assert.Equal(t, 3*time.Second, cfg.Timing.StepTimeout)
	assert.Equal(t, 6, cfg.Timing.SuggestionPrefix)
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.SettleDelay)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
