package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"permitline/internal/domain"
)

// Config models ptw.yml.
type Config struct {
	Site struct {
		Name string `yaml:"name"`
	} `yaml:"site"`
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`
	Legacy struct {
		DocType string            `yaml:"doc_type"`
		Keys    map[string]string `yaml:"keys"`
	} `yaml:"legacy"`
	Closure struct {
		CommentsMax       int `yaml:"comments_max"`
		OverdueAfterHours int `yaml:"overdue_after_hours"`
	} `yaml:"closure"`
	Signatures struct {
		Driver    string `yaml:"driver"`
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"signatures"`
	Print struct {
		Stylesheets []string `yaml:"stylesheets"`
	} `yaml:"print"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	cfg, err := FromFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s not found; create one with ptw config init", path)
	}
	return cfg, err
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", "sqlite", "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config.storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.storage.driver must be sqlite, postgres or memory")
	}
	if c.Legacy.DocType != "" {
		if _, ok := domain.ParseDocType(c.Legacy.DocType); !ok {
			return fmt.Errorf("config.legacy.doc_type %q is not a permit type", c.Legacy.DocType)
		}
	}
	for stem, key := range c.Legacy.Keys {
		if !strings.HasPrefix(stem, "comments:") {
			return fmt.Errorf("config.legacy.keys entry %q must name a comments channel", stem)
		}
		if key == "" {
			return fmt.Errorf("config.legacy.keys entry %q is empty", stem)
		}
	}
	if c.Closure.CommentsMax < 0 {
		return fmt.Errorf("config.closure.comments_max must not be negative")
	}
	if c.Closure.OverdueAfterHours < 0 {
		return fmt.Errorf("config.closure.overdue_after_hours must not be negative")
	}
	switch c.Signatures.Driver {
	case "", "kv", "memory":
	case "minio":
		if c.Signatures.Endpoint == "" || c.Signatures.Bucket == "" {
			return fmt.Errorf("config.signatures.endpoint and bucket are required for minio")
		}
	default:
		return fmt.Errorf("config.signatures.driver must be kv, memory or minio")
	}
	for _, css := range c.Print.Stylesheets {
		if css == "" {
			return fmt.Errorf("config.print.stylesheets contains an empty path")
		}
	}
	return nil
}

// LegacyDocType is the permit type unscoped legacy channels migrate into.
func (c *Config) LegacyDocType() domain.DocType {
	if dt, ok := domain.ParseDocType(c.Legacy.DocType); ok {
		return dt
	}
	return domain.DocWork
}

// CommentsMax bounds closure decision comments.
func (c *Config) CommentsMax() int {
	if c.Closure.CommentsMax <= 0 {
		return 500
	}
	return c.Closure.CommentsMax
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ptw.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteName string) string {
	return fmt.Sprintf(defaultTemplate, siteName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return cfg, err
}

// Default returns the default Config struct for a site.
func Default(siteName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(siteName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  name: %q

storage:
  driver: sqlite

legacy:
  doc_type: Work

closure:
  comments_max: 500
  overdue_after_hours: 0

signatures:
  driver: kv

server:
  addr: 127.0.0.1:8080
`
