// Package config loads the rawcore process configuration, generalizing
// the teacher's cmd/driver/config.go: a flat struct tagged for three
// formats, a Check() validator that fills defaults and rejects missing
// required fields, and a loader that picks the decoder by file
// extension.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level rawcore process configuration.
type Config struct {
	Port              int    `json:"Port" toml:"Port" yaml:"Port"`
	MetricsPort       int    `json:"MetricsPort" toml:"MetricsPort" yaml:"MetricsPort"`
	LogFolder         string `json:"LogFolder" toml:"LogFolder" yaml:"LogFolder"`
	Debug             bool   `json:"Debug" toml:"Debug" yaml:"Debug"`

	CameraDescriptionPath string `json:"CameraDescriptionPath" toml:"CameraDescriptionPath" yaml:"CameraDescriptionPath"`

	PoolMaxBuffers     int   `json:"PoolMaxBuffers" toml:"PoolMaxBuffers" yaml:"PoolMaxBuffers"`
	PoolMaxMemoryBytes int64 `json:"PoolMaxMemoryBytes" toml:"PoolMaxMemoryBytes" yaml:"PoolMaxMemoryBytes"`

	EnableRawPreview bool `json:"EnableRawPreview" toml:"EnableRawPreview" yaml:"EnableRawPreview"`
	PreviewDownscale int  `json:"PreviewDownscale" toml:"PreviewDownscale" yaml:"PreviewDownscale"`

	ArchiveInboxFolder string `json:"ArchiveInboxFolder" toml:"ArchiveInboxFolder" yaml:"ArchiveInboxFolder"`
	ArchiveOutFolder   string `json:"ArchiveOutFolder" toml:"ArchiveOutFolder" yaml:"ArchiveOutFolder"`

	JpegQuality int `json:"JpegQuality" toml:"JpegQuality" yaml:"JpegQuality"`
}

// Check fills defaults and rejects configurations missing required
// fields, mirroring the teacher's Check(configPath string) error.
func (c *Config) Check(configPath string) error {
	if c.Port < 1024 || c.Port > 65535 {
		c.Port = 8080
	}
	if c.MetricsPort < 1024 || c.MetricsPort > 65535 {
		c.MetricsPort = 9090
	}
	configDir := filepath.Dir(configPath)
	if c.LogFolder == "" {
		c.LogFolder = filepath.Join(configDir, "logs")
	}
	if c.CameraDescriptionPath == "" {
		return errors.New("cameraDescriptionPath config parameter is required")
	}
	if c.PoolMaxBuffers < 1 {
		c.PoolMaxBuffers = 8
	}
	if c.PoolMaxMemoryBytes < 0 {
		c.PoolMaxMemoryBytes = 0
	}
	if c.PreviewDownscale < 1 {
		c.PreviewDownscale = 2
	}
	if c.ArchiveInboxFolder == "" {
		c.ArchiveInboxFolder = filepath.Join(configDir, "inbox")
	}
	if c.ArchiveOutFolder == "" {
		c.ArchiveOutFolder = filepath.Join(configDir, "processed")
	}
	if c.JpegQuality < 1 || c.JpegQuality > 100 {
		c.JpegQuality = 95
	}
	return nil
}

// Load reads a Config from path, picking the decoder from the file
// extension (.json, .toml, .yaml/.yml).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}
	if err := c.Check(path); err != nil {
		return nil, err
	}
	return &c, nil
}
