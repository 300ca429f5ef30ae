package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmorgan81/sdtool/internal/log"
)

const (
	DefaultBaseURL        = "http://stable-diffusion:17860"
	DefaultNegativePrompt = "blurry, bad quality, distorted, ugly, deformed"
)

// Settings is read on every request and never written after construction.
// Pass it by value.
type Settings struct {
	BaseURL               string
	DefaultSteps          int
	DefaultCFGScale       float64
	DefaultWidth          int
	DefaultHeight         int
	DefaultSampler        string
	DefaultNegativePrompt string
	GenerateTimeout       time.Duration
	ListTimeout           time.Duration
	LogLevel              slog.Level
	ListenAddr            string
}

func Defaults() Settings {
	return Settings{
		BaseURL:               DefaultBaseURL,
		DefaultSteps:          20,
		DefaultCFGScale:       7.0,
		DefaultWidth:          512,
		DefaultHeight:         512,
		DefaultSampler:        "Euler a",
		DefaultNegativePrompt: DefaultNegativePrompt,
		GenerateTimeout:       600 * time.Second,
		ListTimeout:           30 * time.Second,
		LogLevel:              slog.LevelInfo,
		ListenAddr:            ":8080",
	}
}

// FromEnv overlays environment values onto Defaults. Unset or empty
// variables keep their default.
func FromEnv(getenv func(string) string) (Settings, error) {
	s := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("SD_URL", &s.BaseURL)
	num("SD_DEFAULT_STEPS", &s.DefaultSteps)
	float("SD_DEFAULT_CFG_SCALE", &s.DefaultCFGScale)
	num("SD_DEFAULT_WIDTH", &s.DefaultWidth)
	num("SD_DEFAULT_HEIGHT", &s.DefaultHeight)
	str("SD_DEFAULT_SAMPLER", &s.DefaultSampler)
	str("SD_DEFAULT_NEGATIVE_PROMPT", &s.DefaultNegativePrompt)
	duration("SD_GENERATE_TIMEOUT", &s.GenerateTimeout)
	duration("SD_LIST_TIMEOUT", &s.ListTimeout)
	str("LISTEN_ADDR", &s.ListenAddr)

	if v := getenv("LOG_LEVEL"); strings.TrimSpace(v) != "" {
		level, ok := log.ParseLevel(v)
		if !ok {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: unknown level %q", v))
		}
		s.LogLevel = level
	}

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return s, s.Validate()
}

func (s Settings) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base url %q must be an absolute http(s) url", s.BaseURL)
	}

	var errs []error
	if s.DefaultSteps <= 0 {
		errs = append(errs, fmt.Errorf("default steps must be positive, got %d", s.DefaultSteps))
	}
	if s.DefaultCFGScale <= 0 {
		errs = append(errs, fmt.Errorf("default cfg scale must be positive, got %g", s.DefaultCFGScale))
	}
	if s.DefaultWidth <= 0 || s.DefaultHeight <= 0 {
		errs = append(errs, fmt.Errorf("default size must be positive, got %dx%d", s.DefaultWidth, s.DefaultHeight))
	}
	if strings.TrimSpace(s.DefaultSampler) == "" {
		errs = append(errs, errors.New("default sampler is required"))
	}
	if s.GenerateTimeout <= 0 || s.ListTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// WithBaseURL returns a copy of s pointing at another WebUI instance.
func (s Settings) WithBaseURL(baseURL string) Settings {
	s.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return s
}
