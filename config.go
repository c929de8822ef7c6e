package main

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type JudgeConfig struct {
	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
	Persona  string `yaml:"persona"`
	Provider string `yaml:"provider"`
}

type Settings struct {
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	APIDelay      float64 `yaml:"api_delay"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	Rounds        int     `yaml:"rounds"`
	LogPrompts    bool    `yaml:"log_prompts"`
	MarkerVersion string  `yaml:"marker_version"`
	DefaultModel  string  `yaml:"default_model"`
}

type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

type WatchConfig struct {
	Schedule string `yaml:"schedule"`
	Dir      string `yaml:"dir"`
}

type Config struct {
	OpenRouterKey  string `yaml:"openrouter_key"`
	AnthropicKey   string `yaml:"anthropic_key"`
	GuidelinesFile string `yaml:"guidelines_file"`
	DBPath         string `yaml:"db_path"`

	Judges   []JudgeConfig `yaml:"judges"`
	Settings Settings      `yaml:"settings"`
	Slack    SlackConfig   `yaml:"slack"`
	Watch    WatchConfig   `yaml:"watch"`
}

func LoadConfig(configPath string) Config {
	var cfg Config

	if configPath == "" {
		configPath = "config.yaml"
		if envPath := os.Getenv("PAPERJUDGE_CONFIG"); envPath != "" {
			configPath = envPath
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		log.Fatalf("Error reading config file %s: %v", configPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("Error parsing %s: %v", configPath, err)
	}

	// Env vars override YAML values
	envOverride(&cfg.OpenRouterKey, "OPENROUTER_API_KEY")
	envOverride(&cfg.AnthropicKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.GuidelinesFile, "PAPERJUDGE_GUIDELINES")
	envOverride(&cfg.DBPath, "PAPERJUDGE_DB")
	envOverride(&cfg.Slack.Token, "PAPERJUDGE_SLACK_TOKEN")
	envOverride(&cfg.Slack.Channel, "PAPERJUDGE_SLACK_CHANNEL")
	envOverride(&cfg.Watch.Schedule, "PAPERJUDGE_WATCH_SCHEDULE")
	envOverride(&cfg.Watch.Dir, "PAPERJUDGE_WATCH_DIR")
	envOverride(&cfg.Settings.DefaultModel, "PAPERJUDGE_DEFAULT_MODEL")
	envOverrideFloat(&cfg.Settings.Temperature, "PAPERJUDGE_TEMPERATURE")
	envOverrideFloat(&cfg.Settings.APIDelay, "PAPERJUDGE_API_DELAY")
	envOverrideInt(&cfg.Settings.MaxTokens, "PAPERJUDGE_MAX_TOKENS")
	envOverrideInt(&cfg.Settings.MaxConcurrent, "PAPERJUDGE_MAX_CONCURRENT")
	envOverrideInt(&cfg.Settings.Rounds, "PAPERJUDGE_ROUNDS")

	// Defaults
	if cfg.Settings.Temperature == 0 {
		cfg.Settings.Temperature = 0.1
	}
	if cfg.Settings.MaxTokens == 0 {
		cfg.Settings.MaxTokens = 4000
	}
	if cfg.Settings.APIDelay == 0 {
		cfg.Settings.APIDelay = 1.0
	}
	if cfg.Settings.MaxConcurrent == 0 {
		cfg.Settings.MaxConcurrent = 1
	}
	if cfg.Settings.Rounds == 0 {
		cfg.Settings.Rounds = 3
	}
	if cfg.Settings.MarkerVersion == "" {
		cfg.Settings.MarkerVersion = "v1"
	}
	if cfg.Settings.DefaultModel == "" {
		cfg.Settings.DefaultModel = "anthropic/claude-3-haiku"
	}
	if cfg.GuidelinesFile == "" {
		cfg.GuidelinesFile = "resource/neurips_guidelines.txt"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./paperjudge.db"
	}

	// Relative guideline paths resolve against the config file's directory,
	// so the CLI works from anywhere.
	if !filepath.IsAbs(cfg.GuidelinesFile) {
		cfg.GuidelinesFile = filepath.Join(filepath.Dir(configPath), cfg.GuidelinesFile)
	}

	// Validate required fields
	if len(cfg.Judges) == 0 {
		log.Fatalf("No judges configured in %s (need at least one entry under 'judges')", configPath)
	}
	seen := map[string]bool{}
	for i, j := range cfg.Judges {
		if j.Name == "" {
			log.Fatalf("judges[%d]: 'name' is required", i)
		}
		if j.Model == "" {
			log.Fatalf("judge '%s': 'model' is required", j.Name)
		}
		if seen[j.Name] {
			log.Fatalf("judge '%s': duplicate name", j.Name)
		}
		seen[j.Name] = true
		switch j.Provider {
		case "", ProviderOpenRouter:
			if cfg.OpenRouterKey == "" {
				log.Fatalf("openrouter_key is required for judge '%s' (set it in %s or via OPENROUTER_API_KEY)", j.Name, configPath)
			}
		case ProviderAnthropic:
			if cfg.AnthropicKey == "" {
				log.Fatalf("anthropic_key is required for judge '%s' (set it in %s or via ANTHROPIC_API_KEY)", j.Name, configPath)
			}
		default:
			log.Fatalf("judge '%s': provider must be '%s' or '%s', got '%s'", j.Name, ProviderOpenRouter, ProviderAnthropic, j.Provider)
		}
	}

	if cfg.Settings.Temperature < 0 || cfg.Settings.Temperature > 2 {
		log.Fatalf("invalid temperature '%f': must be between 0 and 2", cfg.Settings.Temperature)
	}
	if cfg.Settings.MaxTokens < 1 {
		log.Fatalf("invalid max_tokens '%d': must be >= 1", cfg.Settings.MaxTokens)
	}
	if cfg.Settings.APIDelay < 0 {
		log.Fatalf("invalid api_delay '%f': must be >= 0", cfg.Settings.APIDelay)
	}
	if cfg.Settings.MaxConcurrent < 1 {
		log.Fatalf("invalid max_concurrent '%d': must be >= 1", cfg.Settings.MaxConcurrent)
	}
	if cfg.Settings.Rounds < 1 {
		log.Fatalf("invalid rounds '%d': must be >= 1", cfg.Settings.Rounds)
	}
	if _, ok := markerSets[cfg.Settings.MarkerVersion]; !ok {
		log.Fatalf("unknown marker_version '%s' (have: %s)", cfg.Settings.MarkerVersion, knownMarkerVersions())
	}
	if _, err := os.Stat(cfg.GuidelinesFile); err != nil {
		log.Fatalf("guidelines file not readable: %s (%v)", cfg.GuidelinesFile, err)
	}
	if cfg.Watch.Schedule != "" {
		if _, err := cronParser.Parse(cfg.Watch.Schedule); err != nil {
			log.Fatalf("invalid watch schedule '%s': %v", cfg.Watch.Schedule, err)
		}
	}

	return cfg
}

// cronParser accepts standard 5-field crontab expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

// JudgeByName returns the judge with the given config name.
func (c Config) JudgeByName(name string) (JudgeConfig, bool) {
	for _, j := range c.Judges {
		if j.Name == name {
			return j, true
		}
	}
	return JudgeConfig{}, false
}

// JudgeNames lists configured judge names in order, for error messages.
func (c Config) JudgeNames() []string {
	names := make([]string, len(c.Judges))
	for i, j := range c.Judges {
		names[i] = j.Name
	}
	return names
}

// APIDelayDuration converts api_delay (fractional seconds) into the
// dispatch interval between judge calls.
func (s Settings) APIDelayDuration() time.Duration {
	return time.Duration(s.APIDelay * float64(time.Second))
}
