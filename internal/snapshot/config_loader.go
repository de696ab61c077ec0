package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader handles loading and parsing snapshot configuration
type ConfigLoader struct {
	configPath string
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// LoadConfig loads the configuration from file and environment variables.
// A missing file is not an error; defaults are used instead.
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	config := &Config{}

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.LoadFromEnvironment()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (cl *ConfigLoader) loadFromFile(config *Config) error {
	if _, err := os.Stat(cl.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file
func (cl *ConfigLoader) SaveConfig(config *Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	dir := filepath.Dir(cl.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(cl.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*Config, error) {
	config := &Config{}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.LoadFromEnvironment()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// GenerateDefaultConfigYAML returns a commented sample of the snapshot sections
func GenerateDefaultConfigYAML() []byte {
	return []byte(`# Snapshot store
storage:
  # Storage provider: local, s3, azure, gcs
  provider: local

  local:
    base_path: "./snapshots"
    permissions: 0755

  # s3:
  #   bucket: "gym-snapshots"
  #   region: "us-east-1"
  #   prefix: "snapshots/"
  #   access_key: "your-access-key"
  #   secret_key: "your-secret-key"

  # azure:
  #   account_name: "your-account-name"
  #   account_key: "your-account-key"
  #   container_name: "snapshots"

  # gcs:
  #   bucket: "gym-snapshots"
  #   credentials_path: "/path/to/credentials.json"
  #   project_id: "your-project-id"

# Compression applied to new snapshot files: none, gzip, lz4, zstd.
# Loading detects the codec from the file itself.
compression:
  algorithm: none
  level: 0

restore:
  # Longest wait for another restore to finish
  max_wait: 10s
  # Budget for the whole wipe and recreate transaction
  max_duration: 60s
  # catalog wipes every entity set; included wipes only the sets in the document
  wipe_scope: catalog

selective:
  default_tables: [alunos, medidas, avaliacoes, exercicios, treinos]

audit:
  enabled: false
  file: "./logs/snapshot-audit.log"

metrics:
  # Prometheus textfile written after each command
  textfile: ""
`)
}
