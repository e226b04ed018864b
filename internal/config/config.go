package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/backend"
	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/metrics"
)

// EnvPrefix prefixes every environment override, e.g. INSIGHTFLOW_LOG_LEVEL.
const EnvPrefix = "INSIGHTFLOW"

type Config struct {
	DataDir              string             `json:"data_dir" split_words:"true"`
	DBPath               string             `json:"db_path" split_words:"true"`
	LogLevel             string             `json:"log_level" split_words:"true"`
	MaxConcurrent        int                `json:"max_concurrent" split_words:"true"`
	AutoInsightInterval  int                `json:"auto_insight_interval" split_words:"true"`
	AnomalyThreshold     float64            `json:"anomaly_threshold" split_words:"true"`
	MinEventsForAnalysis int                `json:"min_events_for_analysis" split_words:"true"`
	TrendMinPeriods      int                `json:"trend_min_periods" split_words:"true"`
	CustomWindows        map[string]string  `json:"custom_windows" split_words:"true"`
	ScheduledInsights    []ScheduledInsight `json:"scheduled_insights" ignored:"true"`
	Backend              struct {
		Kind string `json:"kind" split_words:"true"`
	} `json:"backend" split_words:"true"`
	Remote struct {
		Endpoint    string  `json:"endpoint" split_words:"true"`
		BaseURL     string  `json:"base_url" split_words:"true"`
		APIKey      string  `json:"api_key" split_words:"true"`
		Deployment  string  `json:"deployment" split_words:"true"`
		APIVersion  string  `json:"api_version" split_words:"true"`
		Model       string  `json:"model" split_words:"true"`
		MaxTokens   int     `json:"max_tokens" split_words:"true"`
		Temperature float32 `json:"temperature" split_words:"true"`
		Timeout     int     `json:"timeout" split_words:"true"`
	} `json:"remote" split_words:"true"`
	Local struct {
		BaseURL     string  `json:"base_url" split_words:"true"`
		Model       string  `json:"model" split_words:"true"`
		MaxTokens   int     `json:"max_tokens" split_words:"true"`
		Temperature float32 `json:"temperature" split_words:"true"`
		Timeout     int     `json:"timeout" split_words:"true"`
	} `json:"local" split_words:"true"`
	Telegram struct {
		Token         string  `json:"token" split_words:"true"`
		ChatID        int64   `json:"chat_id" split_words:"true"`
		MinConfidence float64 `json:"min_confidence" split_words:"true"`
	} `json:"telegram" split_words:"true"`
	HTTP struct {
		Enabled bool   `json:"enabled" split_words:"true"`
		Listen  string `json:"listen" split_words:"true"`
	} `json:"http" split_words:"true"`
}

// ScheduledInsight is a cron-scheduled insight job.
type ScheduledInsight struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Window   string `json:"window"`
	Topic    string `json:"topic,omitempty"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	cfg := &Config{
		DataDir:              filepath.Join(os.Getenv("HOME"), ".insightflow"),
		LogLevel:             "info",
		MaxConcurrent:        2,
		AnomalyThreshold:     analysis.DefaultAnomalyThreshold,
		MinEventsForAnalysis: analysis.DefaultMinEvents,
		TrendMinPeriods:      analysis.DefaultTrendMinPeriods,
		CustomWindows:        map[string]string{},
		ScheduledInsights:    []ScheduledInsight{},
	}
	cfg.Backend.Kind = string(backend.KindLocal)
	cfg.Remote.APIVersion = "2024-02-01"
	cfg.Remote.Model = "gpt-4o-mini"
	cfg.Remote.MaxTokens = 1000
	cfg.Remote.Temperature = 0.7
	cfg.Remote.Timeout = 60
	cfg.Local.BaseURL = "http://localhost:8080"
	cfg.Local.Model = "local"
	cfg.Local.MaxTokens = 1000
	cfg.Local.Temperature = 0.7
	cfg.Local.Timeout = 120
	cfg.Telegram.MinConfidence = 0.5
	cfg.HTTP.Listen = "127.0.0.1:8700"
	return cfg
}

// Load reads path over the defaults, writing the defaults there first if
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Remote.APIKey = apiKey
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// StorePath is the database file, DataDir/insightflow.db unless DBPath is set.
func (c *Config) StorePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "insightflow.db")
}

// BackendOptions resolves the backend section into factory options.
func (c *Config) BackendOptions() (backend.Options, error) {
	kind, err := backend.ParseKind(c.Backend.Kind)
	if err != nil {
		return backend.Options{}, err
	}
	return backend.Options{
		Kind:          kind,
		MaxConcurrent: int64(c.MaxConcurrent),
		Remote: backend.RemoteOptions{
			Endpoint:    c.Remote.Endpoint,
			BaseURL:     c.Remote.BaseURL,
			APIKey:      c.Remote.APIKey,
			Deployment:  c.Remote.Deployment,
			APIVersion:  c.Remote.APIVersion,
			Model:       c.Remote.Model,
			MaxTokens:   c.Remote.MaxTokens,
			Temperature: c.Remote.Temperature,
			Timeout:     time.Duration(c.Remote.Timeout) * time.Second,
		},
		Local: backend.LocalOptions{
			BaseURL:     c.Local.BaseURL,
			Model:       c.Local.Model,
			MaxTokens:   c.Local.MaxTokens,
			Temperature: c.Local.Temperature,
			Timeout:     time.Duration(c.Local.Timeout) * time.Second,
		},
	}, nil
}

// EngineOptions resolves analysis and scheduling settings into client
// options. m may be nil.
func (c *Config) EngineOptions(m *metrics.Metrics) (engine.Options, error) {
	opts := engine.Options{
		AutoInsightInterval: time.Duration(c.AutoInsightInterval) * time.Second,
		CustomWindows:       make(map[string]time.Duration, len(c.CustomWindows)),
		Metrics:             m,
	}
	for name, spec := range c.CustomWindows {
		d, err := time.ParseDuration(spec)
		if err != nil {
			return engine.Options{}, fmt.Errorf("custom window %q: %w", name, err)
		}
		opts.CustomWindows[name] = d
	}
	if c.AnomalyThreshold > 0 {
		opts.Detector = append(opts.Detector, analysis.WithAnomalyThreshold(c.AnomalyThreshold))
	}
	if c.MinEventsForAnalysis > 0 {
		opts.Detector = append(opts.Detector, analysis.WithMinEvents(c.MinEventsForAnalysis))
	}
	if c.TrendMinPeriods > 0 {
		opts.Detector = append(opts.Detector, analysis.WithTrendMinPeriods(c.TrendMinPeriods))
	}
	for _, s := range c.ScheduledInsights {
		opts.Scheduled = append(opts.Scheduled, engine.ScheduledInsight{
			Name:     s.Name,
			Schedule: s.Schedule,
			Window:   s.Window,
			Topic:    s.Topic,
		})
	}
	return opts, nil
}

// ToMap converts cfg to a generic map through its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the flattened configuration, optionally with secrets
// masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored in the file at the dot-separated key.
// The file is created with defaults if missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value at the dot-separated key of an existing config
// file. Values that parse as JSON (numbers, booleans) are stored typed,
// anything else as a string.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[key] = parsed

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}
