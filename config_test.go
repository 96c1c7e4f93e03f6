package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config failed: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("SLACK_BOT_TOKEN", "")

	cfg := LoadConfig()
	if cfg.DBPath != "./litscreen.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.OutputDir != "./exports" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.GroupCount != 4 {
		t.Errorf("GroupCount = %d", cfg.GroupCount)
	}
	if cfg.DefaultYearMin != 2015 {
		t.Errorf("DefaultYearMin = %d", cfg.DefaultYearMin)
	}
	if cfg.LLMBatchSize != 25 {
		t.Errorf("LLMBatchSize = %d", cfg.LLMBatchSize)
	}
	if len(cfg.CategoryLabels) != NumCategories {
		t.Errorf("CategoryLabels = %v", cfg.CategoryLabels)
	}
	if cfg.Location != time.Local {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.SlackConfigured() || cfg.LLMConfigured() {
		t.Error("integrations should be unconfigured by default")
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeConfigFile(t, `
db_path: /tmp/screen.db
output_dir: /tmp/out
group_count: 3
group_names:
  - Team Red
  - Team Blue
default_year_min: 2018
slack_user_ids:
  alice: U123
timezone: UTC
`)
	t.Setenv("CONFIG_PATH", path)

	cfg := LoadConfig()
	if cfg.DBPath != "/tmp/screen.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.GroupCount != 3 {
		t.Errorf("GroupCount = %d", cfg.GroupCount)
	}
	if cfg.DefaultYearMin != 2018 {
		t.Errorf("DefaultYearMin = %d", cfg.DefaultYearMin)
	}
	if cfg.SlackUserIDs["alice"] != "U123" {
		t.Errorf("SlackUserIDs = %v", cfg.SlackUserIDs)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Location = %v", cfg.Location)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "db_path: /tmp/from-yaml.db\ngroup_count: 2\n")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DB_PATH", "/tmp/from-env.db")
	t.Setenv("GROUP_COUNT", "6")
	t.Setenv("DEFAULT_YEAR_MIN", "2010")

	cfg := LoadConfig()
	if cfg.DBPath != "/tmp/from-env.db" {
		t.Errorf("DBPath = %q, env should win", cfg.DBPath)
	}
	if cfg.GroupCount != 6 {
		t.Errorf("GroupCount = %d, env should win", cfg.GroupCount)
	}
	if cfg.DefaultYearMin != 2010 {
		t.Errorf("DefaultYearMin = %d", cfg.DefaultYearMin)
	}
}

func TestGroupName(t *testing.T) {
	cfg := Config{GroupCount: 3, GroupNames: []string{"Team Red", ""}}
	if got := cfg.GroupName(1); got != "Team Red" {
		t.Errorf("GroupName(1) = %q", got)
	}
	if got := cfg.GroupName(2); got != "Group 2" {
		t.Errorf("GroupName(2) = %q, blank name should fall back", got)
	}
	if got := cfg.GroupName(3); got != "Group 3" {
		t.Errorf("GroupName(3) = %q", got)
	}
}

func TestCategoryLabel(t *testing.T) {
	cfg := Config{CategoryLabels: []string{"exercise", "cognition", "mood", "medication"}}
	if got := cfg.CategoryLabel(0); got != "exercise" {
		t.Errorf("CategoryLabel(0) = %q", got)
	}
	if got := cfg.CategoryLabel(3); got != "medication" {
		t.Errorf("CategoryLabel(3) = %q", got)
	}
}
