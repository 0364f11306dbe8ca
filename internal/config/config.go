// Package config loads Concierge configuration from an optional YAML file
// overlaid by APP_-prefixed environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/concierge/internal/logging"
)

// Token mode selects the field name used for the completion budget in chat
// requests. Newer models reject max_tokens in favor of max_completion_tokens.
const (
	TokenModeMaxTokens           = "max_tokens"
	TokenModeMaxCompletionTokens = "max_completion_tokens"
)

// Config represents the main configuration.
type Config struct {
	GitLabURL   string `yaml:"gitlab_url"`
	GitLabToken string `yaml:"gitlab_token"`

	OpenAIAPIKey      string  `yaml:"openai_api_key"`
	OpenAICustomURL   string  `yaml:"openai_custom_url"`
	OpenAIModel       string  `yaml:"openai_model"`
	OpenAITemperature float64 `yaml:"openai_temperature"`
	OpenAIMaxTokens   int     `yaml:"openai_max_tokens"`
	OpenAITokenMode   string  `yaml:"openai_token_mode"`

	ReposToPoll []string `yaml:"repos_to_poll"`
	BotUsername string   `yaml:"bot_username"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAgeHours         int `yaml:"max_age_hours"`
	StaleIssueDays      int `yaml:"stale_issue_days"`

	ContextRepoPath  string `yaml:"context_repo_path"`
	MaxContextSize   int    `yaml:"max_context_size"`
	MaxCommentLength int    `yaml:"max_comment_length"`
	ContextLines     int    `yaml:"context_lines"`
	MaxToolCalls     int    `yaml:"max_tool_calls"`
	ToolsEnabled     bool   `yaml:"tools_enabled"`
	DefaultBranch    string `yaml:"default_branch"`

	TriageLookbackHours  int `yaml:"triage_lookback_hours"`
	LabelLearningSamples int `yaml:"label_learning_samples"`
	IndexRefreshMinutes  int `yaml:"index_refresh_minutes"`

	ClientCertPath    string `yaml:"client_cert_path"`
	ClientKeyPath     string `yaml:"client_key_path"`
	ClientKeyPassword string `yaml:"client_key_password"`

	LogLevel string          `yaml:"log_level"`
	Logging  *logging.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GitLabURL:            "https://gitlab.com",
		OpenAIModel:          "gpt-4o",
		OpenAITemperature:    0.2,
		OpenAIMaxTokens:      2048,
		OpenAITokenMode:      TokenModeMaxTokens,
		PollIntervalSeconds:  60,
		MaxAgeHours:          24,
		StaleIssueDays:       30,
		MaxContextSize:       60000,
		MaxCommentLength:     16000,
		ContextLines:         4,
		MaxToolCalls:         5,
		ToolsEnabled:         true,
		DefaultBranch:        "main",
		TriageLookbackHours:  24,
		LabelLearningSamples: 10,
		IndexRefreshMinutes:  30,
		LogLevel:             "info",
		Logging:              logging.DefaultConfig(),
	}
}

// Load loads configuration from an optional YAML file, then overlays any
// APP_-prefixed environment variables on top.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			// Expand environment variables referenced inside the file
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnv(config, viperEnv())
	config.Logging.Level = config.LogLevel

	return config, nil
}

// viperEnv returns a viper instance bound to the APP_ environment prefix.
func viperEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv overlays environment values onto the config. Only keys that are
// actually set in the environment override file or default values.
func applyEnv(c *Config, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setString("gitlab_url", &c.GitLabURL)
	setString("gitlab_token", &c.GitLabToken)
	setString("openai_api_key", &c.OpenAIAPIKey)
	setString("openai_custom_url", &c.OpenAICustomURL)
	setString("openai_model", &c.OpenAIModel)
	if v.IsSet("openai_temperature") {
		c.OpenAITemperature = v.GetFloat64("openai_temperature")
	}
	setInt("openai_max_tokens", &c.OpenAIMaxTokens)
	setString("openai_token_mode", &c.OpenAITokenMode)

	if v.IsSet("repos_to_poll") {
		c.ReposToPoll = splitRepos(v.GetString("repos_to_poll"))
	}
	setString("bot_username", &c.BotUsername)

	setInt("poll_interval_seconds", &c.PollIntervalSeconds)
	setInt("max_age_hours", &c.MaxAgeHours)
	setInt("stale_issue_days", &c.StaleIssueDays)

	setString("context_repo_path", &c.ContextRepoPath)
	setInt("max_context_size", &c.MaxContextSize)
	setInt("max_comment_length", &c.MaxCommentLength)
	setInt("context_lines", &c.ContextLines)
	setInt("max_tool_calls", &c.MaxToolCalls)
	setBool("tools_enabled", &c.ToolsEnabled)
	setString("default_branch", &c.DefaultBranch)

	setInt("triage_lookback_hours", &c.TriageLookbackHours)
	setInt("label_learning_samples", &c.LabelLearningSamples)
	setInt("index_refresh_minutes", &c.IndexRefreshMinutes)

	setString("client_cert_path", &c.ClientCertPath)
	setString("client_key_path", &c.ClientKeyPath)
	setString("client_key_password", &c.ClientKeyPassword)

	setString("log_level", &c.LogLevel)
}

// splitRepos parses a comma-separated list of namespace/project paths.
func splitRepos(s string) []string {
	var repos []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			repos = append(repos, p)
		}
	}
	return repos
}

// Validate validates the configuration. Failures here are fatal at startup.
func (c *Config) Validate() error {
	if c.GitLabURL == "" {
		return fmt.Errorf("gitlab_url is required")
	}
	if _, err := url.Parse(c.GitLabURL); err != nil {
		return fmt.Errorf("invalid gitlab_url: %w", err)
	}
	if c.GitLabToken == "" {
		return fmt.Errorf("gitlab_token is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("openai_api_key is required")
	}
	if c.OpenAICustomURL != "" {
		if _, err := url.Parse(c.OpenAICustomURL); err != nil {
			return fmt.Errorf("invalid openai_custom_url: %w", err)
		}
	}
	if len(c.ReposToPoll) == 0 {
		return fmt.Errorf("repos_to_poll is required")
	}
	if c.BotUsername == "" {
		return fmt.Errorf("bot_username is required")
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}
	switch c.OpenAITokenMode {
	case TokenModeMaxTokens, TokenModeMaxCompletionTokens:
	default:
		return fmt.Errorf("invalid openai_token_mode: %q", c.OpenAITokenMode)
	}
	if (c.ClientCertPath == "") != (c.ClientKeyPath == "") {
		return fmt.Errorf("client_cert_path and client_key_path must be set together")
	}
	return nil
}
