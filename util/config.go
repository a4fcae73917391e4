package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "dugong"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host      string
		HttpPort  int      `yaml:"httpPort"`
		SslDomain string   `yaml:"sslDomain"`
		WithAp    bool     `yaml:"withAp"`
		Closed    bool     `yaml:"closed"`
		Workers   int      `yaml:"workers"`
		DbPath    string   `yaml:"dbPath"`
		Users     []string `yaml:"users"`
		ApiToken  string   `yaml:"apiToken"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Info("Config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warn("Could not write default config", "path", userConfigPath, "err", writeErr)
			} else {
				log.Info("Created default config file", "path", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("DUGONG_HOST")
	envHttpPort := os.Getenv("DUGONG_HTTPPORT")
	envSslDomain := os.Getenv("DUGONG_SSLDOMAIN")
	envWithAp := os.Getenv("DUGONG_WITH_AP")
	envClosed := os.Getenv("DUGONG_CLOSED")
	envWorkers := os.Getenv("DUGONG_WORKERS")
	envDbPath := os.Getenv("DUGONG_DBPATH")
	envUsers := os.Getenv("DUGONG_USERS")
	envApiToken := os.Getenv("DUGONG_APITOKEN")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			log.Warn("Invalid DUGONG_HTTPPORT", "err", err)
		} else {
			c.Conf.HttpPort = v
		}
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envClosed == "true" {
		c.Conf.Closed = true
	}

	if envWorkers != "" {
		v, err := strconv.Atoi(envWorkers)
		if err != nil {
			log.Warn("Invalid DUGONG_WORKERS", "err", err)
		} else {
			c.Conf.Workers = v
		}
	}

	if envDbPath != "" {
		c.Conf.DbPath = envDbPath
	}

	if envUsers != "" {
		c.Conf.Users = strings.Split(envUsers, ",")
	}

	if envApiToken != "" {
		c.Conf.ApiToken = envApiToken
	}

	if c.Conf.Workers <= 0 {
		c.Conf.Workers = 4
	}

	if c.Conf.DbPath == "" {
		c.Conf.DbPath = ResolveFilePath(fmt.Sprintf("%s.db", Name))
	}

	return c, nil
}
