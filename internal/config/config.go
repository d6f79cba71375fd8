// Package config loads credentials from the environment and targets from
// the optional .slack-intel.yaml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// FileName is the config file searched in the working directory, then $HOME.
const FileName = ".slack-intel.yaml"

// Config holds the application configuration.
type Config struct {
	Channels []ChannelConfig `yaml:"channels"`
	Storage  StorageConfig   `yaml:"storage,omitempty"`
	Jira     JiraConfig      `yaml:"jira,omitempty"`
}

// ChannelConfig is one default ingest target.
type ChannelConfig struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// StorageConfig is the object-store mirror target.
type StorageConfig struct {
	Bucket  string `yaml:"bucket,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
	Region  string `yaml:"region,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

// JiraConfig overrides the issue-tracker connection.
type JiraConfig struct {
	Server string `yaml:"server,omitempty"`
}

// Load reads the config file from the working directory or $HOME. A
// missing file yields an empty config, not an error.
func Load() (*Config, error) {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, FileName))
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, apierr.New(apierr.KindConfig, "config.load", "", fmt.Errorf("parsing %s: %w", path, err))
		}
		return &cfg, nil
	}
	return &Config{}, nil
}

// ChatChannels converts the configured targets to domain channels.
func (c *Config) ChatChannels() []models.Channel {
	channels := make([]models.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		channels = append(channels, models.Channel{Name: ch.Name, ID: ch.ID})
	}
	return channels
}

// ChatToken selects the workspace credential: USER_TOKEN wins over
// BOT_TOKEN; with neither set, startup fails.
func ChatToken() (token, kind string, err error) {
	if t := os.Getenv("USER_TOKEN"); t != "" {
		return t, "user", nil
	}
	if t := os.Getenv("BOT_TOKEN"); t != "" {
		return t, "bot", nil
	}
	return "", "", apierr.New(apierr.KindConfig, "config.token", "",
		fmt.Errorf("neither USER_TOKEN nor BOT_TOKEN is set"))
}

// JiraCredentials returns the issue-tracker connection settings. The
// server falls back from ISSUE_SERVER to the config file's jira.server.
func (c *Config) JiraCredentials() (server, user, token string, err error) {
	server = os.Getenv("ISSUE_SERVER")
	if server == "" {
		server = c.Jira.Server
	}
	user = os.Getenv("ISSUE_USER")
	token = os.Getenv("ISSUE_TOKEN")

	switch {
	case server == "":
		err = apierr.New(apierr.KindConfig, "config.jira", "", fmt.Errorf("ISSUE_SERVER not set and no jira.server configured"))
	case user == "":
		err = apierr.New(apierr.KindConfig, "config.jira", "", fmt.Errorf("ISSUE_USER not set"))
	case token == "":
		err = apierr.New(apierr.KindConfig, "config.jira", "", fmt.Errorf("ISSUE_TOKEN not set"))
	}
	return server, user, token, err
}
