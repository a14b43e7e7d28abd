package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/adonese/plstats/config"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath  = "/app/config.yaml"
	defaultSecretsPath = "/app/secrets.yaml"
	configSection      = "plstats"
)

func isTestRun() bool {
	return strings.HasSuffix(os.Args[0], ".test")
}

// loadConfig reads config.yaml and the optional secrets.yaml, merges them,
// and decodes the plstats section. Explicit paths win over the search list.
func loadConfig(configPath, secretsPath string) (config.Config, error) {
	var cfg config.Config

	if configPath == "" {
		configPath = firstExistingPath(defaultConfigPath, "./config.yaml", "../config.yaml")
	}
	configMap := map[string]interface{}{}
	if configPath == "" {
		if !isTestRun() {
			logrusLogger.Warn("config.yaml not found, using defaults")
		}
	} else if err := readYAML(configPath, &configMap); err != nil {
		return cfg, err
	}

	if secretsPath == "" {
		secretsPath = firstExistingPath(defaultSecretsPath, "./secrets.yaml", "../secrets.yaml")
	}
	secretsMap := map[string]interface{}{}
	if secretsPath != "" {
		if err := readYAML(secretsPath, &secretsMap); err != nil {
			return cfg, err
		}
		logrusLogger.Debugf("Loaded secrets from %s", secretsPath)
	}

	merged, ok := mergeConfig(configMap, secretsMap).(map[string]interface{})
	if !ok {
		return cfg, errors.New("merged config is not a map")
	}
	section := getMap(merged, configSection)
	if section == nil {
		section = map[string]interface{}{}
	}

	payload, err := json.Marshal(section)
	if err != nil {
		return cfg, fmt.Errorf("encode %s config: %w", configSection, err)
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s config: %w", configSection, err)
	}

	cfg.ApplyEnv()
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readYAML(path string, into *map[string]interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if *into == nil {
		*into = map[string]interface{}{}
	}
	return nil
}

func firstExistingPath(paths ...string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// mergeConfig overlays override on base. Empty strings and lists in override
// keep the base value.
func mergeConfig(base, override interface{}) interface{} {
	if override == nil {
		return base
	}

	switch overrideTyped := override.(type) {
	case map[string]interface{}:
		baseMap, ok := base.(map[string]interface{})
		if !ok {
			baseMap = map[string]interface{}{}
		}
		result := make(map[string]interface{}, len(baseMap))
		for key, value := range baseMap {
			result[key] = value
		}
		for key, value := range overrideTyped {
			result[key] = mergeConfig(result[key], value)
		}
		return result
	case []interface{}:
		if len(overrideTyped) == 0 {
			return base
		}
		return overrideTyped
	case string:
		if overrideTyped == "" {
			return base
		}
		return overrideTyped
	default:
		return override
	}
}

func getMap(source map[string]interface{}, key string) map[string]interface{} {
	if source == nil {
		return nil
	}
	if typed, ok := source[key].(map[string]interface{}); ok {
		return typed
	}
	return nil
}
