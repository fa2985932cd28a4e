// Package config provides configuration management for the capture analyzer.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Symbolizer backends.
const (
	BackendBatch     = "batch"
	BackendLineTable = "linetable"
)

// Section layout sources.
const (
	LayoutNone    = "none"
	LayoutObjdump = "objdump"
)

// Inclusive counting modes.
const (
	InclusivePerFrame = "per_frame"
	InclusivePerStack = "per_stack"
)

// Config holds all configuration for the application.
type Config struct {
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	ROM        ROMConfig        `mapstructure:"rom"`
	Symbolizer SymbolizerConfig `mapstructure:"symbolizer"`
	Export     ExportConfig     `mapstructure:"export"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AnalysisConfig controls aggregation and report layout.
type AnalysisConfig struct {
	FunctionMaxChars int    `mapstructure:"function_max_chars"`
	FilenameMaxChars int    `mapstructure:"filename_max_chars"`
	InclusiveMode    string `mapstructure:"inclusive_mode"`
	ReturnBias       int    `mapstructure:"return_bias"`
	Demangle         bool   `mapstructure:"demangle"`
	OutputDir        string `mapstructure:"output_dir"`
}

// ROMConfig locates the firmware symbol map.
type ROMConfig struct {
	MapsDir string `mapstructure:"maps_dir"`
	MapFile string `mapstructure:"map_file"` // overrides the model-derived name
}

// SymbolizerConfig selects and configures the symbolication backend.
type SymbolizerConfig struct {
	Backend           string `mapstructure:"backend"` // batch or linetable
	Addr2LinePath     string `mapstructure:"addr2line_path"`
	ObjdumpPath       string `mapstructure:"objdump_path"`
	SectionLayout     string `mapstructure:"section_layout"` // none or objdump
	CodeSectionPrefix string `mapstructure:"code_section_prefix"`
	SourceRoot        string `mapstructure:"source_root"` // prefix for relative line-table paths
}

// ExportConfig lists optional export destinations. Empty means disabled.
type ExportConfig struct {
	SamplesPath string `mapstructure:"samples_path"`
	FoldedPath  string `mapstructure:"folded_path"`
	PprofPath   string `mapstructure:"pprof_path"`
}

// DatabaseConfig holds run-history database configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Path     string `mapstructure:"path"` // sqlite file
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for published exports.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
	File   string `mapstructure:"file"`   // append here instead of stderr
}

// TelemetryConfig configures OpenTelemetry tracing. OTEL_* environment
// variables take precedence.
type TelemetryConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	ServiceName  string            `mapstructure:"service_name"`
	Endpoint     string            `mapstructure:"endpoint"`
	Protocol     string            `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure     bool              `mapstructure:"insecure"`
	Headers      map[string]string `mapstructure:"headers"`
	Sampler      string            `mapstructure:"sampler"`
	SamplerRatio float64           `mapstructure:"sampler_ratio"`
}

// Load reads configuration from the specified file path. A missing file is
// not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("macprof")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// MACPROF_SYMBOLIZER_BACKEND overrides symbolizer.backend, and so on.
	v.SetEnvPrefix("MACPROF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.function_max_chars", 32)
	v.SetDefault("analysis.filename_max_chars", 14)
	v.SetDefault("analysis.inclusive_mode", InclusivePerFrame)
	v.SetDefault("analysis.return_bias", 2)
	v.SetDefault("analysis.demangle", false)
	v.SetDefault("analysis.output_dir", "./output")

	v.SetDefault("rom.maps_dir", "./ROM Maps")

	v.SetDefault("symbolizer.backend", BackendBatch)
	v.SetDefault("symbolizer.addr2line_path", "llvm-addr2line")
	v.SetDefault("symbolizer.objdump_path", "objdump")
	v.SetDefault("symbolizer.section_layout", LayoutNone)
	v.SetDefault("symbolizer.code_section_prefix", ".code")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./macprof.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "macprof")
	v.SetDefault("telemetry.protocol", "grpc")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Analysis.FunctionMaxChars < 1 {
		return fmt.Errorf("function_max_chars must be at least 1")
	}
	if c.Analysis.FilenameMaxChars < 1 {
		return fmt.Errorf("filename_max_chars must be at least 1")
	}
	if c.Analysis.ReturnBias < 0 {
		return fmt.Errorf("return_bias must not be negative")
	}
	switch c.Analysis.InclusiveMode {
	case InclusivePerFrame, InclusivePerStack:
	default:
		return fmt.Errorf("unsupported inclusive mode: %s", c.Analysis.InclusiveMode)
	}

	switch c.Symbolizer.Backend {
	case BackendBatch, BackendLineTable:
	default:
		return fmt.Errorf("unsupported symbolizer backend: %s", c.Symbolizer.Backend)
	}
	switch c.Symbolizer.SectionLayout {
	case LayoutNone, LayoutObjdump:
	default:
		return fmt.Errorf("unsupported section layout: %s", c.Symbolizer.SectionLayout)
	}

	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite":
			if c.Database.Path == "" {
				return fmt.Errorf("database path is required for sqlite")
			}
		case "postgres", "mysql":
			if c.Database.Host == "" {
				return fmt.Errorf("database host is required")
			}
		default:
			return fmt.Errorf("unsupported database type: %s", c.Database.Type)
		}
	}

	// Storage details are validated by the storage package.
	return nil
}

// EffectiveSectionLayout returns the layout the chosen backend needs. The
// line-table backend always reads section headers.
func (c *Config) EffectiveSectionLayout() string {
	if c.Symbolizer.Backend == BackendLineTable {
		return LayoutObjdump
	}
	return c.Symbolizer.SectionLayout
}

// GetRunDir returns the directory relative export paths of a run resolve
// against.
func (c *Config) GetRunDir(runID string) string {
	return filepath.Join(c.Analysis.OutputDir, runID)
}
