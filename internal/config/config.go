package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	SourcePath      string         `mapstructure:"source_path" yaml:"source_path"`
	OutputDirectory string         `mapstructure:"output_directory" yaml:"output_directory"`
	BaseName        string         `mapstructure:"base_name" yaml:"base_name,omitempty"`
	Widths          []int          `mapstructure:"widths" yaml:"widths"`
	Encoding        EncodingConfig `mapstructure:"encoding" yaml:"encoding"`
	Resize          ResizeConfig   `mapstructure:"resize" yaml:"resize"`
	Picture         PictureConfig  `mapstructure:"picture" yaml:"picture"`
	Preview         PreviewConfig  `mapstructure:"preview" yaml:"preview"`
	Logging         LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// EncodingConfig contains the fixed quality settings per output format
type EncodingConfig struct {
	WebPQuality int `mapstructure:"webp_quality" yaml:"webp_quality"`
	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// ResizeConfig contains resampling settings
type ResizeConfig struct {
	Filter     string `mapstructure:"filter" yaml:"filter"`
	AutoOrient bool   `mapstructure:"auto_orient" yaml:"auto_orient"`
}

// PictureConfig describes how the site references the generated images
type PictureConfig struct {
	PublicPath string `mapstructure:"public_path" yaml:"public_path"`
	Sizes      string `mapstructure:"sizes" yaml:"sizes"`
	Alt        string `mapstructure:"alt" yaml:"alt"`
}

// PreviewConfig contains preview server settings
type PreviewConfig struct {
	Port  int  `mapstructure:"port" yaml:"port"`
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path,omitempty"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ResampleFilters lists the accepted values of resize.filter.
var ResampleFilters = []string{
	"lanczos", "catmullrom", "mitchellnetravali", "linear", "box", "nearest",
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SourcePath:      "public/images/me.jpg",
		OutputDirectory: "public/images",
		Widths:          []int{320, 800, 1200},
		Encoding: EncodingConfig{
			WebPQuality: 75,
			JPEGQuality: 78,
		},
		Resize: ResizeConfig{
			Filter:     "lanczos",
			AutoOrient: false,
		},
		Picture: PictureConfig{
			PublicPath: "/images",
			Sizes:      "(max-width: 640px) 320px, (max-width: 1024px) 800px, 1200px",
			Alt:        "Portrait",
		},
		Preview: PreviewConfig{
			Port:  8080,
			Watch: false,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// It returns the config together with the path of the file used, if any.
func LoadConfig(configPath string) (*Config, string, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("optimize-images")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.optimize-images")
	}

	v.SetEnvPrefix("OPTIMIZE_IMAGES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, "", fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal into a zero value; defaults come from viper so that a list
	// in the file replaces the default list instead of merging into it.
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, "", fmt.Errorf("config validation failed: %w", err)
	}

	return config, v.ConfigFileUsed(), nil
}

// setDefaults registers every key with viper so environment overrides are
// seen by Unmarshal even when no config file is present.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("source_path", c.SourcePath)
	v.SetDefault("output_directory", c.OutputDirectory)
	v.SetDefault("base_name", c.BaseName)
	v.SetDefault("widths", c.Widths)
	v.SetDefault("encoding.webp_quality", c.Encoding.WebPQuality)
	v.SetDefault("encoding.jpeg_quality", c.Encoding.JPEGQuality)
	v.SetDefault("resize.filter", c.Resize.Filter)
	v.SetDefault("resize.auto_orient", c.Resize.AutoOrient)
	v.SetDefault("picture.public_path", c.Picture.PublicPath)
	v.SetDefault("picture.sizes", c.Picture.Sizes)
	v.SetDefault("picture.alt", c.Picture.Alt)
	v.SetDefault("preview.port", c.Preview.Port)
	v.SetDefault("preview.watch", c.Preview.Watch)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration. It does not check that the source
// image exists.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourcePath) == "" {
		return fmt.Errorf("source_path is required")
	}
	if strings.TrimSpace(c.OutputDirectory) == "" {
		return fmt.Errorf("output_directory is required")
	}
	if strings.ContainsAny(c.BaseName, `/\`) {
		return fmt.Errorf("base_name must not contain path separators: %s", c.BaseName)
	}

	seen := make(map[int]bool, len(c.Widths))
	for _, w := range c.Widths {
		if w <= 0 {
			return fmt.Errorf("invalid width: %d (must be positive)", w)
		}
		if seen[w] {
			return fmt.Errorf("duplicate width: %d", w)
		}
		seen[w] = true
	}

	if err := validateQuality("encoding.webp_quality", c.Encoding.WebPQuality); err != nil {
		return err
	}
	if err := validateQuality("encoding.jpeg_quality", c.Encoding.JPEGQuality); err != nil {
		return err
	}

	c.Resize.Filter = strings.ToLower(c.Resize.Filter)
	if c.Resize.Filter == "" {
		c.Resize.Filter = "lanczos"
	}
	if !contains(ResampleFilters, c.Resize.Filter) {
		return fmt.Errorf("invalid resize filter: %s (valid: %s)",
			c.Resize.Filter, strings.Join(ResampleFilters, ", "))
	}

	if c.Picture.PublicPath == "" {
		c.Picture.PublicPath = "/"
	}

	if c.Preview.Port < 0 || c.Preview.Port > 65535 {
		return fmt.Errorf("invalid preview port: %d", c.Preview.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}

// GetBaseName returns the artifact base name, derived from the source file
// name when not set explicitly.
func (c *Config) GetBaseName() string {
	if c.BaseName != "" {
		return c.BaseName
	}
	base := filepath.Base(c.SourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SortedWidths returns a copy of the widths in ascending order.
func (c *Config) SortedWidths() []int {
	out := append([]int(nil), c.Widths...)
	sort.Ints(out)
	return out
}

func validateQuality(key string, q int) error {
	if q < 1 || q > 100 {
		return fmt.Errorf("invalid %s: %d (valid: 1-100)", key, q)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
