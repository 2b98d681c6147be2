package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flitsinc/agentboard/internal/agents"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`
	APIKey   string `yaml:"api_key"`

	Log       LogConfig       `yaml:"log"`
	Trace     TraceConfig     `yaml:"trace"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Roster overrides the built-in agent roster when non-empty.
	Roster []agents.Member `yaml:"roster"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type TraceConfig struct {
	Exporter string `yaml:"exporter"`
}

type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

func Defaults() Config {
	dataDir := "data"
	return Config{
		HTTPAddr: ":3001",
		DataDir:  dataDir,
		DBPath:   filepath.Join(dataDir, "agentboard.db"),
		Log:      LogConfig{Level: "info", Format: "text", Output: "stderr"},
		Trace:    TraceConfig{Exporter: "noop"},
		RateLimit: RateLimitConfig{
			RequestsPerMin: 120,
			Burst:          20,
		},
	}
}

// Load resolves configuration from defaults, then the optional YAML file
// named by AGENTBOARD_CONFIG_FILE, then environment variables (including a
// local .env file). Later sources win.
func Load() (Config, error) {
	loadDotEnv(".env")
	cfg := Defaults()

	if path := os.Getenv("AGENTBOARD_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	dataDirSet := os.Getenv("AGENTBOARD_DATA_DIR") != ""
	cfg.HTTPAddr = getEnv("AGENTBOARD_HTTP_ADDR", cfg.HTTPAddr)
	cfg.DataDir = getEnv("AGENTBOARD_DATA_DIR", cfg.DataDir)
	if dataDirSet {
		cfg.DBPath = filepath.Join(cfg.DataDir, "agentboard.db")
	}
	cfg.DBPath = getEnv("AGENTBOARD_DB_PATH", cfg.DBPath)
	cfg.APIKey = getEnv("AGENTBOARD_API_KEY", cfg.APIKey)
	cfg.Log.Level = getEnv("AGENTBOARD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("AGENTBOARD_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = getEnv("AGENTBOARD_LOG_OUTPUT", cfg.Log.Output)
	cfg.Trace.Exporter = getEnv("AGENTBOARD_TRACE_EXPORTER", cfg.Trace.Exporter)
	cfg.RateLimit.RequestsPerMin = getEnvInt("AGENTBOARD_RATE_LIMIT_PER_MIN", cfg.RateLimit.RequestsPerMin)
	cfg.RateLimit.Burst = getEnvInt("AGENTBOARD_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	seen := map[string]bool{}
	for i, m := range c.Roster {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("roster[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("roster[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if m.Name == "" || m.Role == "" {
			return fmt.Errorf("roster[%d] %s: name and role are required", i, m.ID)
		}
		if m.Status != "" && !m.Status.Valid() {
			return fmt.Errorf("roster[%d] %s: invalid status %q", i, m.ID, m.Status)
		}
	}
	if c.RateLimit.RequestsPerMin < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	return nil
}

// AgentRoster returns the configured roster or the built-in default.
func (c Config) AgentRoster() agents.Roster {
	if len(c.Roster) == 0 {
		return agents.DefaultRoster()
	}
	return agents.Roster(c.Roster)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
