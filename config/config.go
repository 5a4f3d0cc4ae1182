// Package config holds the analysis configuration record.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "EFA"

const dateLayout = "2006-01-02"

// Date is a calendar date read from YAML or the environment as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate builds a UTC date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.Decode(raw)
}

// MarshalYAML implements yaml.Marshaler.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Decode implements envconfig.Decoder.
func (d *Date) Decode(value string) error {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value, err)
	}
	d.Time = t
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// Config 分析配置
type Config struct {
	Tickers   []string `yaml:"tickers" split_words:"true"`
	Start     Date     `yaml:"start" split_words:"true"`
	End       Date     `yaml:"end" split_words:"true"`
	Frequency string   `yaml:"frequency" split_words:"true"`

	RiskFree RiskFreeConfig `yaml:"risk_free" split_words:"true"`
	Analysis AnalysisConfig `yaml:"analysis" split_words:"true"`
	Source   SourceConfig   `yaml:"source" split_words:"true"`
	Storage  StorageConfig  `yaml:"storage" split_words:"true"`
	Report   ReportConfig   `yaml:"report" split_words:"true"`
	Log      LogConfig      `yaml:"log" split_words:"true"`
}

// RiskFreeConfig describes the risk-free proxy and its holding-period conversion.
type RiskFreeConfig struct {
	SeriesID string `yaml:"series_id" split_words:"true"`
	DayCount int    `yaml:"day_count" split_words:"true"`
	Tenor    int    `yaml:"tenor" split_words:"true"`
}

// AnalysisConfig 因子分析参数
type AnalysisConfig struct {
	VarianceThreshold float64 `yaml:"variance_threshold" split_words:"true"`
	BartlettAlpha     float64 `yaml:"bartlett_alpha" split_words:"true"`
	KMOMin            float64 `yaml:"kmo_min" split_words:"true"`
	Factors           int     `yaml:"factors" split_words:"true"`
	Rotation          string  `yaml:"rotation" split_words:"true"`
	Method            string  `yaml:"method" split_words:"true"`
}

// SourceConfig selects where prices and yields come from.
type SourceConfig struct {
	Kind      string        `yaml:"kind" split_words:"true"`
	PricesCSV string        `yaml:"prices_csv" split_words:"true"`
	YieldsCSV string        `yaml:"yields_csv" split_words:"true"`
	Timeout   time.Duration `yaml:"timeout" split_words:"true"`
	RateLimit int           `yaml:"rate_limit" split_words:"true"`
	Seed      int64         `yaml:"seed" split_words:"true"`
}

// StorageConfig 运行记录存储，Path为空时不记录
type StorageConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// ReportConfig controls report outputs.
type ReportConfig struct {
	Workbook string `yaml:"workbook" split_words:"true"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" split_words:"true"`
	File       string `yaml:"file" split_words:"true"`
	MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true"`
	MaxBackups int    `yaml:"max_backups" split_words:"true"`
	MaxAgeDays int    `yaml:"max_age_days" split_words:"true"`
	Compress   bool   `yaml:"compress" split_words:"true"`
}

const (
	SourceOnline    = "online"
	SourceCSV       = "csv"
	SourceSynthetic = "synthetic"

	RotationVarimax = "varimax"
	RotationNone    = "none"

	MethodMinres    = "minres"
	MethodPrincipal = "principal"

	FrequencyMonthEnd = "ME"
)

// Default returns the configuration of the original basket study.
func Default() Config {
	return Config{
		Tickers:   []string{"AAPL", "MSFT", "AMZN", "JPM", "GE", "KO", "WMT", "PFE"},
		Start:     NewDate(2015, time.January, 1),
		End:       NewDate(2024, time.December, 31),
		Frequency: FrequencyMonthEnd,
		RiskFree: RiskFreeConfig{
			SeriesID: "DGS3MO",
			DayCount: 360,
			Tenor:    91,
		},
		Analysis: AnalysisConfig{
			VarianceThreshold: 0.65,
			BartlettAlpha:     0.05,
			KMOMin:            0.6,
			Factors:           3,
			Rotation:          RotationVarimax,
			Method:            MethodMinres,
		},
		Source: SourceConfig{
			Kind:      SourceOnline,
			Timeout:   15 * time.Second,
			RateLimit: 2,
			Seed:      42,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path over the defaults and then applies EFA_* environment overrides.
// A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for i, t := range c.Tickers {
		c.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	c.Analysis.Rotation = strings.ToLower(c.Analysis.Rotation)
	c.Analysis.Method = strings.ToLower(c.Analysis.Method)
	c.Source.Kind = strings.ToLower(c.Source.Kind)
}

// Validate checks every field the pipeline depends on.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Tickers) < 2 {
		errs = append(errs, errors.New("at least two tickers are required"))
	}
	seen := make(map[string]bool, len(c.Tickers))
	for _, t := range c.Tickers {
		if t == "" {
			errs = append(errs, errors.New("empty ticker"))
			continue
		}
		if seen[t] {
			errs = append(errs, fmt.Errorf("duplicate ticker %s", t))
		}
		seen[t] = true
	}

	if c.Start.IsZero() || c.End.IsZero() {
		errs = append(errs, errors.New("start and end dates are required"))
	} else if !c.End.After(c.Start.Time) {
		errs = append(errs, fmt.Errorf("end %s is not after start %s", c.End, c.Start))
	}
	if c.Frequency != FrequencyMonthEnd {
		errs = append(errs, fmt.Errorf("unsupported frequency %q", c.Frequency))
	}

	if c.RiskFree.SeriesID == "" {
		errs = append(errs, errors.New("risk_free.series_id is required"))
	}
	if c.RiskFree.DayCount <= 0 || c.RiskFree.Tenor <= 0 {
		errs = append(errs, errors.New("risk_free.day_count and risk_free.tenor must be positive"))
	}

	a := c.Analysis
	if a.VarianceThreshold <= 0 || a.VarianceThreshold > 1 {
		errs = append(errs, fmt.Errorf("variance_threshold %.3f outside (0,1]", a.VarianceThreshold))
	}
	if a.BartlettAlpha <= 0 || a.BartlettAlpha >= 1 {
		errs = append(errs, fmt.Errorf("bartlett_alpha %.3f outside (0,1)", a.BartlettAlpha))
	}
	if a.KMOMin < 0 || a.KMOMin > 1 {
		errs = append(errs, fmt.Errorf("kmo_min %.3f outside [0,1]", a.KMOMin))
	}
	if a.Factors < 1 || a.Factors > len(c.Tickers) {
		errs = append(errs, fmt.Errorf("factors %d outside [1,%d]", a.Factors, len(c.Tickers)))
	}
	switch a.Rotation {
	case RotationVarimax, RotationNone:
	default:
		errs = append(errs, fmt.Errorf("unsupported rotation %q", a.Rotation))
	}
	switch a.Method {
	case MethodMinres, MethodPrincipal:
	default:
		errs = append(errs, fmt.Errorf("unsupported method %q", a.Method))
	}

	switch c.Source.Kind {
	case SourceOnline, SourceSynthetic:
	case SourceCSV:
		if c.Source.PricesCSV == "" || c.Source.YieldsCSV == "" {
			errs = append(errs, errors.New("csv source needs prices_csv and yields_csv"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported source %q", c.Source.Kind))
	}

	return errors.Join(errs...)
}
