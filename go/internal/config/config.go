// Package config loads server settings from the environment and game modes from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is everything the server needs at startup.
type Config struct {
	Port             string
	Store            string
	NatsURL          string
	AdminToken       string
	OverrideChannel  string
	SchedulerWorkers int
	RetryDelay       time.Duration
	ShutdownTimeout  time.Duration
	LogLevel         zerolog.Level
	// RNGSeed fixes the tie-break sequence when set.
	RNGSeed   *int64
	ModesFile string
	Modes     []models.Mode
	// SeedFile is loaded into the memory store at startup when set.
	SeedFile string
}

// Load reads the environment and the modes file. A missing modes file falls back to
// DefaultModes.
func Load() (*Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Store:            getEnv("STORE", StorePostgres),
		NatsURL:          os.Getenv("NATS_URL"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		OverrideChannel:  getEnv("OVERRIDE_CHANNEL", "round_overrides"),
		SchedulerWorkers: getEnvAsInt("SCHEDULER_WORKERS", 4),
		RetryDelay:       getEnvAsDuration("SCHEDULER_RETRY_DELAY", 5*time.Second),
		ShutdownTimeout:  getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:         level,
		ModesFile:        getEnv("MODES_FILE", "config/modes.yaml"),
		SeedFile:         os.Getenv("SEED_FILE"),
	}

	if raw := os.Getenv("RNG_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RNG_SEED: %w", err)
		}
		cfg.RNGSeed = &seed
	}

	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("invalid STORE %q: want %s or %s", cfg.Store, StorePostgres, StoreMemory)
	}

	modes, err := LoadModes(cfg.ModesFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		modes = DefaultModes()
	case err != nil:
		return nil, err
	}
	if err := ValidateModes(modes); err != nil {
		return nil, err
	}
	cfg.Modes = modes

	return cfg, nil
}

type modesFile struct {
	Modes []modeEntry `yaml:"modes"`
}

type modeEntry struct {
	ID            string   `yaml:"id"`
	CodePrefix    string   `yaml:"code_prefix"`
	Options       []string `yaml:"options"`
	Multiplier    string   `yaml:"multiplier"`
	RoundDuration string   `yaml:"round_duration"`
	Intermission  string   `yaml:"intermission"`
	StartDelay    string   `yaml:"start_delay"`
}

// LoadModes reads game modes from a YAML file.
func LoadModes(path string) ([]models.Mode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read modes file: %w", err)
	}

	var file modesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse modes file: %w", err)
	}

	modes := make([]models.Mode, 0, len(file.Modes))
	for _, entry := range file.Modes {
		mode, err := entry.toMode()
		if err != nil {
			return nil, fmt.Errorf("mode %q: %w", entry.ID, err)
		}
		modes = append(modes, mode)
	}
	return modes, nil
}

func (e modeEntry) toMode() (models.Mode, error) {
	multiplier, err := decimal.NewFromString(e.Multiplier)
	if err != nil {
		return models.Mode{}, fmt.Errorf("invalid multiplier: %w", err)
	}
	duration, err := parseDuration(e.RoundDuration)
	if err != nil {
		return models.Mode{}, fmt.Errorf("invalid round_duration: %w", err)
	}
	intermission, err := parseDuration(e.Intermission)
	if err != nil {
		return models.Mode{}, fmt.Errorf("invalid intermission: %w", err)
	}
	startDelay, err := parseDuration(e.StartDelay)
	if err != nil {
		return models.Mode{}, fmt.Errorf("invalid start_delay: %w", err)
	}
	return models.Mode{
		ID:            e.ID,
		CodePrefix:    e.CodePrefix,
		Options:       e.Options,
		Multiplier:    multiplier,
		RoundDuration: duration,
		Intermission:  intermission,
		StartDelay:    startDelay,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// DefaultModes returns the built-in modes.
func DefaultModes() []models.Mode {
	colors := make([]string, 10)
	for i := range colors {
		colors[i] = fmt.Sprintf("Color%d", i)
	}
	return []models.Mode{
		{
			ID:            "blackWhite",
			CodePrefix:    "BW",
			Options:       []string{"Black", "White"},
			Multiplier:    decimal.RequireFromString("1.9"),
			RoundDuration: 15 * time.Minute,
			Intermission:  30 * time.Second,
		},
		{
			ID:            "tenColors",
			CodePrefix:    "TC",
			Options:       colors,
			Multiplier:    decimal.NewFromInt(9),
			RoundDuration: 15 * time.Minute,
			Intermission:  30 * time.Second,
			StartDelay:    5 * time.Minute,
		},
	}
}

// ValidateModes checks that modes can be scheduled and settled.
func ValidateModes(modes []models.Mode) error {
	if len(modes) == 0 {
		return errors.New("at least one game mode is required")
	}

	ids := make(map[string]bool, len(modes))
	prefixes := make(map[string]bool, len(modes))
	for _, m := range modes {
		if m.ID == "" {
			return errors.New("mode id is required")
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate mode id %q", m.ID)
		}
		ids[m.ID] = true

		if m.CodePrefix == "" {
			return fmt.Errorf("mode %q: code prefix is required", m.ID)
		}
		if prefixes[m.CodePrefix] {
			return fmt.Errorf("mode %q: duplicate code prefix %q", m.ID, m.CodePrefix)
		}
		prefixes[m.CodePrefix] = true

		if len(m.Options) == 0 {
			return fmt.Errorf("mode %q: at least one option is required", m.ID)
		}
		seen := make(map[string]bool, len(m.Options))
		for _, opt := range m.Options {
			if opt == "" {
				return fmt.Errorf("mode %q: empty option", m.ID)
			}
			if seen[opt] {
				return fmt.Errorf("mode %q: duplicate option %q", m.ID, opt)
			}
			seen[opt] = true
		}

		if !m.Multiplier.IsPositive() {
			return fmt.Errorf("mode %q: multiplier must be greater than zero", m.ID)
		}
		if m.RoundDuration <= 0 {
			return fmt.Errorf("mode %q: round duration must be greater than zero", m.ID)
		}
		if m.Intermission < 0 || m.StartDelay < 0 {
			return fmt.Errorf("mode %q: intermission and start delay must not be negative", m.ID)
		}
	}
	return nil
}
