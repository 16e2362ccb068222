package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ProjectFile is the per-directory override read from the working directory.
const ProjectFile = ".focusgate.yaml"

// EnvPrefix prefixes environment overrides, e.g. FOCUSGATE_TIMER_STRICT.
const EnvPrefix = "FOCUSGATE"

// ErrConfigExists is returned by WriteDefault when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// Config holds all configurable focusgate settings.
type Config struct {
	Timer TimerConfig `mapstructure:"timer" yaml:"timer"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

// TimerConfig controls session lengths and the refresh cadence.
type TimerConfig struct {
	FocusMinutes     int           `mapstructure:"focus_minutes" yaml:"focus_minutes"`
	BreakMinutes     int           `mapstructure:"break_minutes" yaml:"break_minutes"`
	LongBreakMinutes int           `mapstructure:"long_break_minutes" yaml:"long_break_minutes"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	// Strict forfeits the minutes of a focus run ended before it expires.
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

// StoreConfig selects where state lives.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "file" | "sqlite" | "memory"
	// Dir overrides the XDG data directory.
	Dir          string        `mapstructure:"dir" yaml:"dir"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// LogConfig controls the debug log written next to the state.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Timer: TimerConfig{
			FocusMinutes:     25,
			BreakMinutes:     5,
			LongBreakMinutes: 15,
			RefreshInterval:  time.Second,
		},
		Store: StoreConfig{
			Backend:      "file",
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("timer.focus_minutes", d.Timer.FocusMinutes)
	v.SetDefault("timer.break_minutes", d.Timer.BreakMinutes)
	v.SetDefault("timer.long_break_minutes", d.Timer.LongBreakMinutes)
	v.SetDefault("timer.refresh_interval", d.Timer.RefreshInterval)
	v.SetDefault("timer.strict", d.Timer.Strict)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.poll_interval", d.Store.PollInterval)
	v.SetDefault("log.level", d.Log.Level)
}

// Dir returns the user's config directory, honouring XDG_CONFIG_HOME.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "focusgate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".focusgate"
	}
	return filepath.Join(home, ".config", "focusgate")
}

// GlobalFile returns the path of the user-wide config file.
func GlobalFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Sources names the files Load reads. Empty fields are skipped.
type Sources struct {
	// Global is read first; an explicit --config path replaces it.
	Global string
	// Project is merged over Global.
	Project string
}

// DefaultSources returns the global file and the project file in the current
// directory.
func DefaultSources() Sources {
	return Sources{Global: GlobalFile(), Project: ProjectFile}
}

// Load layers defaults, the global file, the project file and FOCUSGATE_*
// environment variables, in increasing precedence, and validates the result.
// Missing files are not an error.
func Load(src Sources) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := mergeFile(v, src.Global); err != nil {
		return nil, err
	}
	if err := mergeFile(v, src.Project); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	if err := v.MergeConfig(f); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// Encode renders cfg as YAML.
func Encode(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default config to path, creating its directory.
// An existing file is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	data, err := Encode(Defaults())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
