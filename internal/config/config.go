package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

type Config struct {
	Portal    Portal    `yaml:"portal"`
	Selectors Selectors `yaml:"selectors"`
	Timing    Timing    `yaml:"timing"`
	Browser   Browser   `yaml:"browser"`
	Telegram  Telegram  `yaml:"telegram"`
	Server    Server    `yaml:"server"`

	MaxConcurrentChecks int    `yaml:"max_concurrent_checks"`
	LogLevel            string `yaml:"log_level"`
}

// Portal holds the target application endpoints and credentials.
type Portal struct {
	LoginURL   string `yaml:"login_url"`
	TargetURL  string `yaml:"target_url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	OperatorID string `yaml:"operator_id"`

	// LoginURLPattern is a regexp matched against the page URL after the
	// login steps. Empty means "LoginURL itself, with any query or fragment".
	LoginURLPattern string `yaml:"login_url_pattern"`
}

type Selectors struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	OperatorID string `yaml:"operator_id"`
	Submit     string `yaml:"submit"`
	Address    string `yaml:"address"`
	Tower      string `yaml:"tower"`
	Unit       string `yaml:"unit"`
	Suggestion string `yaml:"suggestion"`
	Continue   string `yaml:"continue"`
	Verify     string `yaml:"verify"`
	Result     string `yaml:"result"`
}

type Timing struct {
	StepTimeout        time.Duration `yaml:"step_timeout"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
	ConfirmSettleDelay time.Duration `yaml:"confirm_settle_delay"`
	KeystrokeDelay     time.Duration `yaml:"keystroke_delay"`
	PostLoginWait      time.Duration `yaml:"post_login_wait"`
	SuggestionWait     time.Duration `yaml:"suggestion_wait"`
	SuggestionPoll     time.Duration `yaml:"suggestion_poll"`
	SuggestionSettle   time.Duration `yaml:"suggestion_settle"`
	SuggestionPrefix   int           `yaml:"suggestion_prefix"`
	ResultWait         time.Duration `yaml:"result_wait"`
}

type Browser struct {
	Driver       string `yaml:"driver"`
	Headless     bool   `yaml:"headless"`
	UserAgent    string `yaml:"user_agent"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	ExecPath     string `yaml:"exec_path"`
}

type Telegram struct {
	BotToken     string        `yaml:"bot_token"`
	APIBase      string        `yaml:"api_base"`
	AllowedChats []int64       `yaml:"allowed_chats"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

func NewConfig() *Config {
	return &Config{
		Selectors: Selectors{
			Username:   "#usuario",
			Password:   "#password",
			OperatorID: "#datoUsuarioRut",
			Submit:     "#btnIngresar",
			Address:    "#direccion",
			Suggestion: "li",
			Continue:   "#btnContinuar",
			Verify:     "#btnVerificar",
			Result:     "#resultadoFactibilidad",
		},
		Timing: Timing{
			StepTimeout:        15 * time.Second,
			NavigationTimeout:  60 * time.Second,
			SettleDelay:        500 * time.Millisecond,
			ConfirmSettleDelay: time.Second,
			KeystrokeDelay:     20 * time.Millisecond,
			PostLoginWait:      30 * time.Second,
			SuggestionWait:     5 * time.Second,
			SuggestionPoll:     250 * time.Millisecond,
			SuggestionSettle:   2 * time.Second,
			SuggestionPrefix:   8,
			ResultWait:         10 * time.Second,
		},
		Browser: Browser{
			Driver:       DriverChromedp,
			Headless:     true,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:  1280,
			WindowHeight: 800,
		},
		Telegram: Telegram{
			APIBase:     "https://api.telegram.org",
			PollTimeout: 30 * time.Second,
		},
		Server: Server{
			Addr: ":8080",
		},
		MaxConcurrentChecks: 2,
		LogLevel:            "info",
	}
}

// Load layers the defaults, an optional YAML file, an optional .env file and
// the process environment, in that order.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("WOM_LOGIN_URL", &c.Portal.LoginURL)
	str("WOM_DIRECCION_URL", &c.Portal.TargetURL)
	str("WOM_USER", &c.Portal.Username)
	str("WOM_PASS", &c.Portal.Password)
	str("WOM_RUT", &c.Portal.OperatorID)
	str("WOM_LOGIN_PATTERN", &c.Portal.LoginURLPattern)
	str("BROWSER_DRIVER", &c.Browser.Driver)
	str("BROWSER_EXEC_PATH", &c.Browser.ExecPath)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("SERVER_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("BROWSER_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse BROWSER_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}

	if v, ok := lookup("MAX_CONCURRENT_CHECKS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MAX_CONCURRENT_CHECKS: %w", err)
		}
		c.MaxConcurrentChecks = n
	}

	if v, ok := lookup("TELEGRAM_ALLOWED_CHATS"); ok && v != "" {
		var chats []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return fmt.Errorf("parse TELEGRAM_ALLOWED_CHATS entry %q: %w", part, err)
			}
			chats = append(chats, id)
		}
		c.Telegram.AllowedChats = chats
	}

	return nil
}

// MissingError lists the mandatory settings that are absent.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Validate checks the values every feasibility run needs.
func (c Config) Validate() error {
	var missing []string
	check := func(key, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	check("WOM_LOGIN_URL", c.Portal.LoginURL)
	check("WOM_DIRECCION_URL", c.Portal.TargetURL)
	check("WOM_USER", c.Portal.Username)
	check("WOM_PASS", c.Portal.Password)

	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}

	switch c.Browser.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("unknown browser driver %q", c.Browser.Driver)
	}

	if _, err := c.Portal.LoginMatcher(); err != nil {
		return err
	}
	return nil
}

// LoginMatcher compiles the pattern that identifies the login surface.
func (p Portal) LoginMatcher() (*regexp.Regexp, error) {
	if p.LoginURLPattern != "" {
		re, err := regexp.Compile(p.LoginURLPattern)
		if err != nil {
			return nil, fmt.Errorf("compile login url pattern: %w", err)
		}
		return re, nil
	}

	u, err := url.Parse(p.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("login url %q is not absolute", p.LoginURL)
	}

	// Same scheme, host and path; query, fragment and a trailing slash are
	// ignored so error redirects back to the form still count as the login page.
	base := u.Scheme + "://" + u.Host + strings.TrimSuffix(u.EscapedPath(), "/")
	return regexp.MustCompile("(?i)^" + regexp.QuoteMeta(base) + `/?(?:[?#].*)?$`), nil
}
