// Package config loads the YAML configuration of the flattener, the HTTP
// server and logging.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/georgepadayatti/pdfflatten/flatten"
	"github.com/georgepadayatti/pdfflatten/pdf/fonts"
	"github.com/georgepadayatti/pdfflatten/pdf/images"
	"github.com/georgepadayatti/pdfflatten/pdf/metadata"
	"github.com/georgepadayatti/pdfflatten/stamp"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnexpectedField      = errors.New("unexpected field in configuration")
	ErrInvalidConfigType    = errors.New("configuration must be a dictionary")
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrConfigurationError
	}
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func missingField(field string) *ConfigError {
	return &ConfigError{Field: field, Message: "required field is missing", Err: ErrMissingRequiredField}
}

// FlattenConfig configures how annotations are burnt into documents.
type FlattenConfig struct {
	// FontFile is the TrueType font typed signatures are drawn with.
	FontFile string `yaml:"font-file" json:"font_file"`

	// FallbackFont is the standard font used when FontFile is unusable.
	FallbackFont string `yaml:"fallback-font" json:"fallback_font"`

	// TextFontSize is the size of text annotations without a font size.
	TextFontSize float64 `yaml:"text-font-size" json:"text_font_size"`

	// SignatureFontSize is the size of typed signatures without a height.
	SignatureFontSize float64 `yaml:"signature-font-size" json:"signature_font_size"`

	// MaxImagePixels bounds the longer side of signature bitmaps; 0 keeps
	// them at full resolution.
	MaxImagePixels int `yaml:"max-image-pixels" json:"max_image_pixels"`

	// MaxDecodePixels bounds the area (width x height) of signature
	// bitmaps. Larger bitmaps are rejected before decoding.
	MaxDecodePixels int `yaml:"max-decode-pixels" json:"max_decode_pixels"`

	// ImageFit sizes image signatures without a target box: fit, stretch
	// or none.
	ImageFit string `yaml:"image-fit" json:"image_fit"`

	ClipToPage      bool   `yaml:"clip-to-page" json:"clip_to_page"`
	NeedAppearances bool   `yaml:"need-appearances" json:"need_appearances"`
	UpdateInfo      bool   `yaml:"update-info" json:"update_info"`
	Producer        string `yaml:"producer" json:"producer,omitempty"`

	// VerifyOutput validates every exported document with pdfcpu.
	VerifyOutput bool `yaml:"verify-output" json:"verify_output"`
}

// Validate validates the flatten configuration.
func (c *FlattenConfig) Validate() error {
	if c.FontFile == "" {
		return missingField("flatten.font-file")
	}
	if !fonts.IsStandardFont(c.FallbackFont) {
		return NewConfigError("flatten.fallback-font", fmt.Sprintf("'%s' is not a standard font", c.FallbackFont))
	}
	if c.TextFontSize <= 0 {
		return NewConfigError("flatten.text-font-size", "must be positive")
	}
	if c.SignatureFontSize <= 0 {
		return NewConfigError("flatten.signature-font-size", "must be positive")
	}
	if c.MaxImagePixels < 0 {
		return NewConfigError("flatten.max-image-pixels", "must not be negative")
	}
	if c.MaxDecodePixels <= 0 {
		return NewConfigError("flatten.max-decode-pixels", "must be positive")
	}
	if _, err := stamp.ParseImageScaleMode(c.ImageFit); err != nil {
		return NewConfigError("flatten.image-fit", err.Error())
	}
	return nil
}

// Options converts the configuration to flattener options. The
// configuration is assumed valid; an unknown image fit means fit.
func (c *FlattenConfig) Options() flatten.Options {
	fit, _ := stamp.ParseImageScaleMode(c.ImageFit)
	return flatten.Options{
		Render: flatten.RenderOptions{
			TextFontSize:      c.TextFontSize,
			SignatureFontSize: c.SignatureFontSize,
			MaxImagePixels:    c.MaxImagePixels,
			MaxDecodePixels:   c.MaxDecodePixels,
			ImageFit:          fit,
			ClipToPage:        c.ClipToPage,
		},
		FontFile:        c.FontFile,
		FallbackFont:    fonts.StandardFont(c.FallbackFont),
		NeedAppearances: c.NeedAppearances,
		UpdateInfo:      c.UpdateInfo,
		Producer:        c.Producer,
		VerifyOutput:    c.VerifyOutput,
	}
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" json:"addr"`

	// UploadDir holds uploaded documents.
	UploadDir string `yaml:"upload-dir" json:"upload_dir"`

	// SignatureDir holds saved signatures.
	SignatureDir string `yaml:"signature-dir" json:"signature_dir"`

	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes int64 `yaml:"max-upload-bytes" json:"max_upload_bytes"`

	// RequestTimeout bounds the handling of one request; 0 disables it.
	RequestTimeout time.Duration `yaml:"request-timeout" json:"request_timeout"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return missingField("server.addr")
	}
	if c.UploadDir == "" {
		return missingField("server.upload-dir")
	}
	if c.SignatureDir == "" {
		return missingField("server.signature-dir")
	}
	if c.MaxUploadBytes <= 0 {
		return NewConfigError("server.max-upload-bytes", "must be positive")
	}
	if c.RequestTimeout < 0 {
		return NewConfigError("server.request-timeout", "must not be negative")
	}
	return nil
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return NewConfigError("logging.format", fmt.Sprintf("'%s' is not one of text, json", c.Format))
	}
	return nil
}

func (c *LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	name := c.Level
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, &ConfigError{Field: "logging.level", Message: fmt.Sprintf("'%s' is not a log level", c.Level), Err: err}
	}
	return level, nil
}

// NewLogger builds the logger described by the configuration. stderr is
// used for the "stderr" output so that callers can capture it.
func (c *LoggingConfig) NewLogger(stderr io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	var out io.Writer
	switch c.Output {
	case "", "stderr":
		out = stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	}
	return slog.New(slog.NewTextHandler(out, opts)), nil
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	Flatten *FlattenConfig `yaml:"flatten" json:"flatten"`
	Server  *ServerConfig  `yaml:"server" json:"server"`
	Logging *LoggingConfig `yaml:"logging" json:"logging"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Flatten: &FlattenConfig{
			FontFile:          "GreatVibes-Regular.ttf",
			FallbackFont:      string(fonts.HelveticaOblique),
			TextFontSize:      12,
			SignatureFontSize: 32,
			MaxImagePixels:    1200,
			MaxDecodePixels:   images.DefaultMaxDecodePixels,
			ImageFit:          stamp.ImageScaleFit.String(),
			ClipToPage:        true,
			NeedAppearances:   true,
			UpdateInfo:        true,
			Producer:          metadata.Vendor,
		},
		Server: &ServerConfig{
			Addr:           ":5000",
			UploadDir:      "uploads",
			SignatureDir:   "signatures",
			MaxUploadBytes: 32 << 20,
			RequestTimeout: 60 * time.Second,
		},
		Logging: &LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Validate validates every section.
func (c *AppConfig) Validate() error {
	if err := c.Flatten.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// LoadConfigFromFile loads and validates a configuration file.
func LoadConfigFromFile(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses configuration from YAML data over the defaults and
// validates the result. Keys may use underscores instead of dashes;
// unknown keys are rejected.
func ParseConfig(data []byte) (*AppConfig, error) {
	config := DefaultConfig()

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(root.Content) == 0 {
		return config, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, ErrInvalidConfigType
	}
	normalizeNodeKeys(doc)
	if err := checkNodeKeys("configuration", reflect.TypeOf(*config), doc); err != nil {
		return nil, err
	}

	if err := doc.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// An empty section decodes as null.
	defaults := DefaultConfig()
	if config.Flatten == nil {
		config.Flatten = defaults.Flatten
	}
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Logging == nil {
		config.Logging = defaults.Logging
	}
	config.Logging.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFromMap loads configuration from a map.
func LoadConfigFromMap(data map[string]any) (*AppConfig, error) {
	// Marshal to YAML then unmarshal to struct
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config map: %w", err)
	}
	return ParseConfig(yamlData)
}

// normalizeNodeKeys rewrites every mapping key below n to dashes.
func normalizeNodeKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			n.Content[i].Value = normalizeKey(n.Content[i].Value)
		}
	}
	for _, child := range n.Content {
		normalizeNodeKeys(child)
	}
}

// checkNodeKeys rejects keys of the mapping n that t has no field for,
// descending into struct sections.
func checkNodeKeys(name string, t reflect.Type, n *yaml.Node) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || n.Kind != yaml.MappingNode {
		return nil
	}
	fields := make(map[string]reflect.Type)
	expected := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		fields[tag] = t.Field(i).Type
		expected = append(expected, tag)
	}

	supplied := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		supplied = append(supplied, n.Content[i].Value)
	}
	if err := CheckConfigKeys(name, expected, supplied); err != nil {
		return err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if err := checkNodeKeys(key, fields[key], n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// CheckConfigKeys checks if all provided keys are valid for a given configuration type.
func CheckConfigKeys(configName string, expectedKeys, suppliedKeys []string) error {
	expectedSet := make(map[string]bool)
	for _, k := range expectedKeys {
		// Normalize to use dashes
		expectedSet[normalizeKey(k)] = true
	}

	var unexpected []string
	for _, k := range suppliedKeys {
		normalized := normalizeKey(k)
		if !expectedSet[normalized] {
			unexpected = append(unexpected, k)
		}
	}

	if len(unexpected) > 0 {
		keyWord := "key"
		if len(unexpected) > 1 {
			keyWord = "keys"
		}
		return fmt.Errorf("%w: unexpected %s in configuration for %s: %s",
			ErrUnexpectedField, keyWord, configName, strings.Join(unexpected, ", "))
	}

	return nil
}

// normalizeKey normalizes a configuration key (underscores to dashes).
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
