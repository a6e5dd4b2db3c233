package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/xaviermatuz/formdesk/internal/config"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyAPIURL      = "api.base_url"
	cfgKeyDefinitions = "definitions"
	cfgKeySessionPath = "session.path"
	cfgKeyPolicyFile  = "policy_file"
	cfgKeyLogLevel    = "log_level"
)

// settings is the CLI's resolved configuration.
type settings struct {
	API         config.APIConfig
	Session     config.SessionConfig
	Table       config.TableConfig
	Definitions []string
	PolicyFile  string
	LogLevel    string
}

// defaultConfigDir is ~/.formdesk, or ./.formdesk when there is no home.
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".formdesk"
	}
	return filepath.Join(home, ".formdesk")
}

// loadSettings reads config.yaml from configDir and FORMDESK_* variables.
// A missing config file is not an error.
func loadSettings(configDir string) (settings, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDefinitions, []string{"definitions"})
	v.SetDefault(cfgKeySessionPath, filepath.Join(configDir, "session.db"))
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("FORMDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	defaults := config.Defaults()
	s := settings{
		API:         defaults.API,
		Session:     defaults.Session,
		Table:       defaults.Table,
		Definitions: v.GetStringSlice(cfgKeyDefinitions),
		PolicyFile:  v.GetString(cfgKeyPolicyFile),
		LogLevel:    v.GetString(cfgKeyLogLevel),
	}
	s.API.BaseURL = v.GetString(cfgKeyAPIURL)
	s.Session.Driver = config.DriverSQLite
	s.Session.Path = v.GetString(cfgKeySessionPath)

	if s.API.BaseURL == "" {
		return settings{}, fmt.Errorf("%s is not set (config.yaml in %s or FORMDESK_API_BASE_URL)", cfgKeyAPIURL, configDir)
	}
	return s, nil
}
