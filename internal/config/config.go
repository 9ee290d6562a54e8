// Package config loads fhircodec CLI settings from flags, FHIRCODEC_* environment
// variables and an optional config file.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/catalogue"
	"github.com/reoring/fhircodec/catalogue/r4core"
	"github.com/reoring/fhircodec/source/gojson"
	"github.com/reoring/fhircodec/source/jsoniter"
)

// EnvPrefix is prepended to every environment key (FHIRCODEC_LOG_LEVEL, ...).
const EnvPrefix = "FHIRCODEC"

type Config struct {
	Driver        string `mapstructure:"driver"`
	LogLevel      string `mapstructure:"log-level"`
	LogFormat     string `mapstructure:"log-format"`
	Strict        bool   `mapstructure:"strict"`
	UnknownFields string `mapstructure:"unknown-fields"`
	Fallback      bool   `mapstructure:"fallback"`
	AcceptEnums   bool   `mapstructure:"accept-enums"`
	Catalogue     string `mapstructure:"catalogue"`
	Concurrency   int    `mapstructure:"concurrency"`
	MaxDepth      int    `mapstructure:"max-depth"`
	MaxBytes      int64  `mapstructure:"max-bytes"`
}

// RegisterFlags adds the persistent flags read by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("driver", "stdlib", "JSON token driver: stdlib, gojson or jsoniter")
	fs.String("log-level", "warn", "log level: debug, info, warn, error")
	fs.String("log-format", "json", "log format: json or console")
	fs.Bool("strict", false, "reject unknown properties and duplicate keys and enforce allowed resource types")
	fs.String("unknown-fields", "skip", "unknown property policy: skip or reject")
	fs.Bool("fallback", false, "decode unknown resourceType values as the fallback type")
	fs.Bool("accept-enums", false, "keep codes outside a bound value set")
	fs.String("catalogue", "", "catalogue definition file; empty uses the embedded R4 core slice")
	fs.Int("concurrency", 4, "files processed in parallel")
	fs.Int("max-depth", 0, "maximum nesting depth (0 disables)")
	fs.Int64("max-bytes", 0, "maximum input bytes per document (0 disables)")
}

// Load merges defaults, the optional config file, environment and fs, in
// increasing precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("driver", "stdlib")
	v.SetDefault("log-level", "warn")
	v.SetDefault("log-format", "json")
	v.SetDefault("unknown-fields", "skip")
	v.SetDefault("strict", false)
	v.SetDefault("fallback", false)
	v.SetDefault("accept-enums", false)
	v.SetDefault("catalogue", "")
	v.SetDefault("concurrency", 4)
	v.SetDefault("max-depth", 0)
	v.SetDefault("max-bytes", 0)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Driver {
	case "stdlib", "gojson", "jsoniter":
	default:
		return fmt.Errorf("driver %q: want stdlib, gojson or jsoniter", c.Driver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log-format %q: want json or console", c.LogFormat)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level %q: %w", c.LogLevel, err)
	}
	switch c.UnknownFields {
	case "skip", "reject":
	default:
		return fmt.Errorf("unknown-fields %q: want skip or reject", c.UnknownFields)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxDepth < 0 || c.MaxBytes < 0 {
		return fmt.Errorf("max-depth and max-bytes must not be negative")
	}
	return nil
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Options translates the settings into codec options. log may be nil.
func (c *Config) Options(log *zerolog.Logger) fhircodec.Options {
	var o fhircodec.Options
	if c.Strict {
		o = fhircodec.StrictOptions()
	}
	if c.UnknownFields == "reject" {
		o.UnknownFields = fhircodec.UnknownReject
	}
	if c.Fallback {
		o.UnknownResources = fhircodec.ResourceFallback
	}
	if c.AcceptEnums {
		o.Enums = fhircodec.EnumAccept
	}
	if c.MaxDepth > 0 {
		o.MaxDepth = c.MaxDepth
	}
	if c.MaxBytes > 0 {
		o.MaxBytes = c.MaxBytes
	}
	switch c.Driver {
	case "gojson":
		o.Driver = gojson.Driver()
	case "jsoniter":
		o.Driver = jsoniter.Driver()
	}
	o.Logger = log
	return o
}

// LoadCatalogue returns the configured catalogue, or the embedded R4 core slice.
func (c *Config) LoadCatalogue() (*fhircodec.Catalogue, error) {
	if c.Catalogue == "" {
		return r4core.Catalogue()
	}
	return catalogue.LoadFile(c.Catalogue)
}
