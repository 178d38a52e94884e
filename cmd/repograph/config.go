// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/summarize"
)

const (
	defaultConfigFile = "repograph.yaml"
	configVersion     = "1"
	defaultPort       = "8080"
)

// Config represents the repograph.yaml configuration file.
type Config struct {
	Version   string           `yaml:"version"`
	DataDir   string           `yaml:"data_dir,omitempty"`
	Server    ServerConfig     `yaml:"server,omitempty"`
	Summaries ExecutorConfig   `yaml:"summaries,omitempty"`
	Embedding EmbeddingSection `yaml:"embeddings,omitempty"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port string `yaml:"port,omitempty"`
}

// ExecutorConfig tunes the summarization executor.
type ExecutorConfig struct {
	MaxConcurrent  int     `yaml:"max_concurrent,omitempty"`
	MinBatchSize   int     `yaml:"min_batch_size,omitempty"`
	RatePerSecond  float64 `yaml:"rate_per_second,omitempty"`
	TaskTimeoutSec int     `yaml:"task_timeout_sec,omitempty"`
}

// EmbeddingSection tunes the embedding executor.
type EmbeddingSection struct {
	MaxConcurrent   int     `yaml:"max_concurrent,omitempty"`
	MinBatchSize    int     `yaml:"min_batch_size,omitempty"`
	RequestsPerMin  float64 `yaml:"requests_per_min,omitempty"`
	TaskTimeoutSec  int     `yaml:"task_timeout_sec,omitempty"`
	TextsPerRequest int     `yaml:"texts_per_request,omitempty"`
}

// LoadConfig loads repograph.yaml from the given path, or from the
// working directory when the path is empty. A missing file is not an
// error; defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = os.Getenv("REPOGRAPH_CONFIG_PATH")
		explicit = configPath != ""
	}
	if configPath == "" {
		configPath = defaultConfigFile
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path comes from user flags
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{Version: configVersion}, nil
		}
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors", configPath),
			err,
		)
	}

	if cfg.Version != "" && cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Update the version field or recreate the configuration file",
			nil,
		)
	}

	return &cfg, nil
}

// workspaceDir resolves the storage root with precedence:
// ANALYSIS_DB_DIR > data_dir in config > ~/.repograph/data.
func workspaceDir(cfg *Config) (string, error) {
	if envDir := os.Getenv("ANALYSIS_DB_DIR"); envDir != "" {
		return absPath(envDir)
	}
	if cfg != nil && cfg.DataDir != "" {
		return absPath(cfg.DataDir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot determine home directory",
			"Operating system did not provide user home directory path",
			"Check your system configuration or set HOME environment variable",
			err,
		)
	}
	return filepath.Join(home, ".repograph", "data"), nil
}

// summarizeConfig merges file settings over the package defaults. The
// MAX_REQUESTS_PER_SECOND environment variable wins over both.
func summarizeConfig(cfg *Config) summarize.Config {
	out := summarize.DefaultConfig()
	s := cfg.Summaries
	if s.MaxConcurrent > 0 {
		out.MaxConcurrent = s.MaxConcurrent
	}
	if s.MinBatchSize > 0 {
		out.MinBatchSize = s.MinBatchSize
	}
	if s.RatePerSecond > 0 {
		out.RatePerSecond = s.RatePerSecond
	}
	if s.TaskTimeoutSec > 0 {
		out.TaskTimeout = time.Duration(s.TaskTimeoutSec) * time.Second
	}
	if env := os.Getenv("MAX_REQUESTS_PER_SECOND"); env != "" {
		if rate, err := strconv.ParseFloat(env, 64); err == nil && rate > 0 {
			out.RatePerSecond = rate
		}
	}
	return out
}

// embedConfig merges file settings over the package defaults.
func embedConfig(cfg *Config) embed.Config {
	out := embed.DefaultConfig()
	e := cfg.Embedding
	if e.MaxConcurrent > 0 {
		out.MaxConcurrent = e.MaxConcurrent
	}
	if e.MinBatchSize > 0 {
		out.MinBatchSize = e.MinBatchSize
	}
	if e.RequestsPerMin > 0 {
		out.RequestsPerMin = e.RequestsPerMin
	}
	if e.TaskTimeoutSec > 0 {
		out.TaskTimeout = time.Duration(e.TaskTimeoutSec) * time.Second
	}
	if e.TextsPerRequest > 0 {
		out.TextsPerRequest = e.TextsPerRequest
	}
	return out
}

func absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// getEnv retrieves an environment variable or returns a fallback.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
