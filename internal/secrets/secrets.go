// Package secrets reads connection credentials kept outside the main
// configuration file. The file is only read; nothing is ever written back.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSecretsDir is the default directory for secrets
	DefaultSecretsDir = ".secrets"
	// DefaultSecretsFile is the default filename for secrets
	DefaultSecretsFile = "tabxfer.yaml"
	// SecretsFileEnvVar allows overriding the secrets file location
	SecretsFileEnvVar = "TABXFER_SECRETS_FILE"
)

// Credentials of one connection. Empty fields are left to the main
// configuration.
type Credentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	URL      string `yaml:"url"`
}

// Config represents the complete secrets file.
type Config struct {
	Connections map[string]Credentials `yaml:"connections"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configErr    error
)

// Load reads the secrets file once per process.
func Load() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, configErr = loadFromFile(GetSecretsPath())
	})
	return globalConfig, configErr
}

// Reset clears the cached file, for tests.
func Reset() {
	configOnce = sync.Once{}
	globalConfig = nil
	configErr = nil
}

// GetSecretsPath returns $TABXFER_SECRETS_FILE or ~/.secrets/tabxfer.yaml.
func GetSecretsPath() string {
	if envPath := os.Getenv(SecretsFileEnvVar); envPath != "" {
		return envPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultSecretsDir, DefaultSecretsFile)
	}
	return filepath.Join(homeDir, DefaultSecretsDir, DefaultSecretsFile)
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SecretsNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	// Reject files other users can read
	if info, err := os.Stat(path); err == nil {
		if mode := info.Mode().Perm(); mode&0077 != 0 {
			return nil, fmt.Errorf("secrets file %s has insecure permissions (%04o). "+
				"Other users can read your passwords. Run: chmod 600 %s", path, mode, path)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	for name := range config.Connections {
		if name == "" {
			return nil, fmt.Errorf("secrets file %s: connection names cannot be empty", path)
		}
	}
	return &config, nil
}

// Credentials returns the credentials stored for a connection.
func (c *Config) Credentials(name string) (Credentials, bool) {
	if c == nil {
		return Credentials{}, false
	}
	cred, ok := c.Connections[name]
	return cred, ok
}

// SecretsNotFoundError is returned when the secrets file doesn't exist
type SecretsNotFoundError struct {
	Path string
}

func (e *SecretsNotFoundError) Error() string {
	return fmt.Sprintf("secrets file not found: %s", e.Path)
}
