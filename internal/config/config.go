// Package config holds the gateway configuration: a yaml file with
// environment-variable overrides for the settings that deployments
// historically pass through the environment.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen" validate:"required"`

	// SchemaSource is the path of the resource schema file.
	SchemaSource string `yaml:"schema_source" validate:"required"`

	Database    DatabaseConfig    `yaml:"database"`
	BlobStore   BlobStoreConfig   `yaml:"blob_store"`
	Attachments AttachmentsConfig `yaml:"attachments"`
}

// DatabaseConfig configures the document database connection.
type DatabaseConfig struct {
	Host       string `yaml:"host" validate:"required"`
	Name       string `yaml:"name" validate:"required"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"auth_source"`

	// PermissionsCollection holds the per-subject {cats, diss} records.
	PermissionsCollection string `yaml:"permissions_collection"`
}

// BlobStoreConfig configures the attachment blob store.
type BlobStoreConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
}

// AttachmentsConfig toggles the attachment side-channel.
type AttachmentsConfig struct {
	Mode string `yaml:"mode" validate:"oneof=enabled disabled"`
}

// Enabled reports whether the side-channel is on.
func (a AttachmentsConfig) Enabled() bool { return a.Mode == "enabled" }

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8080",
		SchemaSource: "schema.json",
		Database: DatabaseConfig{
			Host:                  "mongodb://localhost:27017",
			Name:                  "charon",
			AuthSource:            "admin",
			PermissionsCollection: "permissions",
		},
		BlobStore: BlobStoreConfig{
			Region: "us-east-1",
			Bucket: "charon-attachments",
		},
		Attachments: AttachmentsConfig{Mode: "disabled"},
	}
}

// Load reads the configuration file at path (defaults apply for absent
// fields), applies environment overrides, and validates the result. An
// empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps the deployment environment onto the config. The
// variable names predate the config file and are kept for compatibility.
func (c *Config) applyEnvOverrides() {
	setIfPresent(&c.Listen, "CHARON_LISTEN")
	setIfPresent(&c.SchemaSource, "CHARON_SCHEMA")
	setIfPresent(&c.Database.Host, "MONGO_HOST")
	setIfPresent(&c.Database.Name, "MONGO_DBNAME")
	setIfPresent(&c.Database.Username, "MONGO_USERNAME")
	setIfPresent(&c.Database.Password, "MONGO_PASSWORD")
	setIfPresent(&c.Database.AuthSource, "MONGO_AUTH_SOURCE")
	setIfPresent(&c.BlobStore.AccessKey, "AWS_ACCESS_KEY")
	setIfPresent(&c.BlobStore.SecretKey, "AWS_SECRET_KEY")
	setIfPresent(&c.BlobStore.Bucket, "AWS_S3_BUCKET_NAME")
	if v := os.Getenv("S3_ATTACHMENTS"); v != "" {
		if v == "True" || v == "true" {
			c.Attachments.Mode = "enabled"
		} else {
			c.Attachments.Mode = "disabled"
		}
	}
}

func setIfPresent(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks the configuration's struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Attachments.Enabled() && c.BlobStore.Bucket == "" {
		return fmt.Errorf("invalid config: attachments enabled but no blob bucket set")
	}
	return nil
}
