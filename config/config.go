// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port                string   `env:"HR_PORT" envDefault:"8080"`
	DBPath              string   `env:"HR_DB_PATH" envDefault:"./data/payroll.db"`
	Timezone            string   `env:"HR_TIMEZONE" envDefault:"Asia/Manila"`
	LateCutoff          string   `env:"HR_LATE_CUTOFF" envDefault:"09:00"`
	WorkingDaysPerMonth int      `env:"HR_WORKING_DAYS_PER_MONTH" envDefault:"22"`
	HalfDayWeight       string   `env:"HR_HALF_DAY_WEIGHT" envDefault:"0"`
	Workweek            []string `env:"HR_WORKWEEK" envSeparator:"," envDefault:"mon,tue,wed,thu,fri"`
	BatchWorkers        int      `env:"HR_BATCH_WORKERS" envDefault:"4"`
	AllowedOrigins      []string `env:"HR_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogDev              bool     `env:"HR_LOG_DEV" envDefault:"false"`
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load(dotenvPaths ...string) (Config, error) {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, p := range dotenvPaths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Cutoff(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Policy(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.WorkingWeek(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves Timezone. Asia/Manila falls back to a fixed UTC+8 zone
// when the host has no tzdata.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		if strings.EqualFold(c.Timezone, "Asia/Manila") {
			return attendance.Manila, nil
		}
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Cutoff builds the late cutoff in the configured timezone.
func (c Config) Cutoff() (attendance.Cutoff, error) {
	loc, err := c.Location()
	if err != nil {
		return attendance.Cutoff{}, err
	}
	return attendance.ParseCutoff(c.LateCutoff, loc)
}

// Policy builds the payroll policy.
func (c Config) Policy() (payroll.Policy, error) {
	weight, err := decimal.NewFromString(c.HalfDayWeight)
	if err != nil {
		return payroll.Policy{}, fmt.Errorf("HR_HALF_DAY_WEIGHT %q: %w", c.HalfDayWeight, err)
	}
	p := payroll.Policy{WorkingDaysPerMonth: c.WorkingDaysPerMonth, HalfDayWeight: weight}
	if err := p.Validate(); err != nil {
		return payroll.Policy{}, err
	}
	return p, nil
}

// WorkingWeek parses Workweek. Days outside it are never closed as absences.
func (c Config) WorkingWeek() (attendance.Workweek, error) {
	w, err := attendance.ParseWorkweek(c.Workweek)
	if err != nil {
		return 0, fmt.Errorf("HR_WORKWEEK: %w", err)
	}
	return w, nil
}
