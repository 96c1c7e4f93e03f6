package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath         string   `yaml:"db_path"`
	OutputDir      string   `yaml:"output_dir"`
	GroupCount     int      `yaml:"group_count"`
	GroupNames     []string `yaml:"group_names"`
	DefaultYearMin int      `yaml:"default_year_min"`
	CategoryLabels []string `yaml:"category_labels"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`
	LLMBatchSize    int    `yaml:"llm_batch_size"`

	SlackBotToken   string            `yaml:"slack_bot_token"`
	DigestChannelID string            `yaml:"digest_channel_id"`
	NudgeSchedule   string            `yaml:"nudge_schedule"`
	SlackUserIDs    map[string]string `yaml:"slack_user_ids"`
	Timezone        string            `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

var defaultCategoryLabels = []string{"physical", "brain", "psycho", "drug"}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
	}

	// Env vars override YAML values
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverrideInt(&cfg.GroupCount, "GROUP_COUNT")
	envOverrideInt(&cfg.DefaultYearMin, "DEFAULT_YEAR_MIN")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.LLMBatchSize, "LLM_BATCH_SIZE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverride(&cfg.NudgeSchedule, "NUDGE_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "./litscreen.db"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./exports"
	}
	if cfg.GroupCount == 0 {
		cfg.GroupCount = 4
	}
	if cfg.DefaultYearMin == 0 {
		cfg.DefaultYearMin = 2015
	}
	if cfg.LLMBatchSize == 0 {
		cfg.LLMBatchSize = 25
	}
	if len(cfg.CategoryLabels) == 0 {
		cfg.CategoryLabels = defaultCategoryLabels
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate
	if cfg.GroupCount < 1 {
		log.Fatalf("invalid group_count '%d': must be >= 1", cfg.GroupCount)
	}
	if cfg.DefaultYearMin < 0 {
		log.Fatalf("invalid default_year_min '%d': must be >= 0", cfg.DefaultYearMin)
	}
	if len(cfg.CategoryLabels) != NumCategories {
		log.Fatalf("invalid category_labels: need exactly %d labels, got %d", NumCategories, len(cfg.CategoryLabels))
	}
	if len(cfg.GroupNames) > cfg.GroupCount {
		log.Fatalf("invalid group_names: %d names for %d groups", len(cfg.GroupNames), cfg.GroupCount)
	}
	if cfg.LLMBatchSize < 1 {
		log.Fatalf("invalid llm_batch_size '%d': must be >= 1", cfg.LLMBatchSize)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

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

// GroupName returns the display name for a group, falling back to "Group N".
func (c Config) GroupName(groupNo int) string {
	if groupNo >= 1 && groupNo <= len(c.GroupNames) && strings.TrimSpace(c.GroupNames[groupNo-1]) != "" {
		return c.GroupNames[groupNo-1]
	}
	return "Group " + strconv.Itoa(groupNo)
}

func (c Config) CategoryLabel(i int) string {
	if i >= 0 && i < len(c.CategoryLabels) {
		return c.CategoryLabels[i]
	}
	return CategoryColumns[i]
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != ""
}

func (c Config) LLMConfigured() bool {
	return c.AnthropicAPIKey != ""
}
