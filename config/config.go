package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/CIDgravity/snakelet"
)

// config structure
type Config struct {
	Github GithubConfig `mapstructure:"GITHUB"`
	Tasks  TasksConfig  `mapstructure:"TASKS"`
	Render RenderConfig `mapstructure:"RENDER"`
	API    APIConfig    `mapstructure:"API"`
	Logs   LogsConfig   `mapstructure:"LOGS"`
}

type GithubConfig struct {
	Token    string `mapstructure:"Token"`
	Username string `mapstructure:"Username"`
	Scope    string `mapstructure:"Scope"` // owned | contributed | both - case insensitive
}

type TasksConfig struct {
	MaxParallelTasksAllowed int `mapstructure:"MaxParallelTasksAllowed"`
	MaxRetriesPerRepository int `mapstructure:"MaxRetriesPerRepository"`
}

type RenderConfig struct {
	OutputPath    string  `mapstructure:"OutputPath"`
	MinPercentage float64 `mapstructure:"MinPercentage"` // languages below this share are filtered out
	GroupOther    bool    `mapstructure:"GroupOther"`    // fold filtered languages into an "Other" entry
	ColorsURL     string  `mapstructure:"ColorsURL"`
}

type APIConfig struct {
	ListenPort string `mapstructure:"ListenPort"`
}

type LogsConfig struct {
	Level            string `mapstructure:"Level"` // error | warn | info | debug - case insensitive
	OutputLogsAsJSON bool   `mapstructure:"OutputLogsAsJson"`
}

// Load reads config/config.toml on top of the defaults, then applies
// the environment overrides for the credential and the username
func Load() (*Config, error) {
	cfg := GetDefault()

	// a missing config file is fine, defaults plus environment are enough
	// any other error (unreadable file, bad TOML) is reported to the caller
	if configFilePath, err := resolveConfigFilePath(); err == nil {
		if _, err := snakelet.InitAndLoad(cfg, configFilePath); err != nil {
			return nil, err
		}
	}

	if token := os.Getenv("ACCESS_TOKEN"); token != "" {
		cfg.Github.Token = token
	}

	if username := os.Getenv("GITHUB_ACTOR"); username != "" {
		cfg.Github.Username = username
	}

	return cfg, nil
}

// resolveConfigFilePath checks next to the binary first, then the working directory
func resolveConfigFilePath() (string, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))

	if err != nil {
		return "", err
	}

	configFilePath := dir + "/config/config.toml"

	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		if _, err := os.Stat("config/config.toml"); errors.Is(err, os.ErrNotExist) {
			return "", err
		}

		configFilePath = "config/config.toml"
	}

	return configFilePath, nil
}

// GetDefault
func GetDefault() *Config {
	return &Config{
		Github: GithubConfig{
			Scope: "both",
		},
		Tasks: TasksConfig{
			MaxParallelTasksAllowed: 8,
			MaxRetriesPerRepository: 3,
		},
		Render: RenderConfig{
			OutputPath:    "languages.svg",
			MinPercentage: 0.01,
			GroupOther:    false,
			ColorsURL:     "https://raw.githubusercontent.com/ozh/github-colors/master/colors.json",
		},
		API: APIConfig{
			ListenPort: "5000",
		},
		Logs: LogsConfig{
			Level:            "info",
			OutputLogsAsJSON: false,
		},
	}
}
