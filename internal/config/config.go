package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory
const FileName = ".ngssc.config"

// EnvPrefix prefixes every environment variable override
const EnvPrefix = "NGSSC_"

// ErrConfigExists is returned when init-config would overwrite a configuration
var ErrConfigExists = errors.New("configuration file already exists")

// Config represents the ngssc configuration file
type Config struct {
	Build   BuildConfig   `yaml:"build" envPrefix:"BUILD_"`
	Insert  InsertConfig  `yaml:"insert" envPrefix:"INSERT_"`
	Ignores IgnoresConfig `yaml:"ignores" envPrefix:"IGNORES_"`
}

// BuildConfig configures the wrapped build
type BuildConfig struct {
	EnvironmentFile                string            `yaml:"environmentFile" env:"ENVIRONMENT_FILE"`
	Command                        []string          `yaml:"command" env:"COMMAND"`
	OutputPath                     string            `yaml:"outputPath" env:"OUTPUT_PATH"`
	IndexFile                      string            `yaml:"indexFile" env:"INDEX_FILE"`
	FilePattern                    string            `yaml:"filePattern" env:"FILE_PATTERN"`
	InsertInHead                   *bool             `yaml:"insertInHead" env:"INSERT_IN_HEAD"`
	RecursiveMatching              *bool             `yaml:"recursiveMatching" env:"RECURSIVE_MATCHING"`
	Tokenize                       bool              `yaml:"tokenize" env:"TOKENIZE"`
	AdditionalEnvironmentVariables []string          `yaml:"additionalEnvironmentVariables" env:"ADDITIONAL_ENVIRONMENT_VARIABLES"`
	FileReplacements               []FileReplacement `yaml:"fileReplacements"`
}

// FileReplacement mirrors a compiler file replacement
type FileReplacement struct {
	Replace string `yaml:"replace"`
	With    string `yaml:"with"`
}

// InsertConfig configures the insert command
type InsertConfig struct {
	Directory    string   `yaml:"directory" env:"DIRECTORY"`
	Dotenv       []string `yaml:"dotenv" env:"DOTENV"`
	Recursive    bool     `yaml:"recursive" env:"RECURSIVE"`
	ConfigInHTML bool     `yaml:"configInHtml" env:"CONFIG_IN_HTML"`
	BaseHref     string   `yaml:"baseHref" env:"BASE_HREF"`
	HTMLLang     string   `yaml:"htmlLang" env:"HTML_LANG"`
}

// IgnoresConfig contains ignore rules for output directory walks
type IgnoresConfig struct {
	Folders []string `yaml:"folders" env:"FOLDERS"` // Folders to skip (e.g., "assets/vendor")
}

// Default returns the configuration used without a configuration file
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			IndexFile:                      "index.html",
			Command:                        []string{},
			AdditionalEnvironmentVariables: []string{},
			FileReplacements:               []FileReplacement{},
		},
		Insert: InsertConfig{
			Directory: ".",
			Dotenv:    []string{},
		},
		Ignores: IgnoresConfig{
			Folders: []string{},
		},
	}
}

// LoadConfig loads the .ngssc.config file from the specified directory and applies
// NGSSC_* environment overrides
func LoadConfig(rootPath string) (*Config, error) {
	config := Default()
	configPath := filepath.Join(rootPath, FileName)

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No config file, keep defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply %s* environment overrides: %w", EnvPrefix, err)
	}
	return config, nil
}

// DefaultFile is written by init-config
const DefaultFile = `# ngssc configuration
# Every value can be overridden with NGSSC_* environment variables,
# e.g. NGSSC_BUILD_OUTPUT_PATH or NGSSC_INSERT_DOTENV (comma separated).

build:
  # Configuration source containing process.env.* or NG_ENV.* accesses
  environmentFile: src/environments/environment.prod.ts
  # Compiler invocation wrapped by "ngssc wrap"
  command: [npx, ng, build]
  outputPath: dist/app/browser
  indexFile: index.html
  # Replace expressions with tokens so the compiler cannot inline them
  tokenize: true
  # Variables added to ngssc.json in addition to the detected ones
  additionalEnvironmentVariables: []
  # fileReplacements:
  #   - replace: src/environments/environment.ts
  #     with: src/environments/environment.prod.ts

insert:
  directory: dist/app/browser
  # .env files read before inserting; exported variables take precedence
  dotenv: []
  recursive: false
  configInHtml: false

ignores:
  # Folders skipped while walking the build output
  folders: []
`

// WriteDefault writes DefaultFile into rootPath and refuses to overwrite
func WriteDefault(rootPath string) (string, error) {
	configPath := filepath.Join(rootPath, FileName)
	if _, err := os.Stat(configPath); err == nil {
		return "", fmt.Errorf("%w: %s", ErrConfigExists, configPath)
	}
	if err := os.WriteFile(configPath, []byte(DefaultFile), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configPath, nil
}
