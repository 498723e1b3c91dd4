package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCompact OutputFormat = "compact"
)

// DisplayConfig holds configuration for visual display options
type DisplayConfig struct {
	ColorEnabled bool         `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string       `mapstructure:"theme" yaml:"theme"`
	OutputFormat OutputFormat `mapstructure:"output_format" yaml:"output_format"`
	UseIcons     bool         `mapstructure:"use_icons" yaml:"use_icons"`
	ShowProgress bool         `mapstructure:"show_progress" yaml:"show_progress"`

	InteractiveMode bool `mapstructure:"interactive" yaml:"interactive"`
	QuietMode       bool `mapstructure:"quiet" yaml:"quiet"`

	TableStyle    string `mapstructure:"table_style" yaml:"table_style"`
	MaxTableWidth int    `mapstructure:"max_table_width" yaml:"max_table_width"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
	// ErrWriter receives errors and warnings; defaults to stderr
	ErrWriter io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultDisplayConfig returns a default display configuration
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ColorEnabled:    true,
		Theme:           "dark",
		OutputFormat:    FormatTable,
		UseIcons:        true,
		ShowProgress:    true,
		InteractiveMode: true,
		TableStyle:      "default",
		MaxTableWidth:   120,
		Writer:          os.Stdout,
		ErrWriter:       os.Stderr,
	}
}

// SetDefaults sets default values for unspecified configuration options
func (dc *DisplayConfig) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = "dark"
	}
	if dc.OutputFormat == "" {
		dc.OutputFormat = FormatTable
	}
	if dc.TableStyle == "" {
		dc.TableStyle = "default"
	}
	if dc.MaxTableWidth == 0 {
		dc.MaxTableWidth = 120
	}
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
	if dc.ErrWriter == nil {
		dc.ErrWriter = os.Stderr
	}
}

// Validate validates the display configuration
func (dc *DisplayConfig) Validate() error {
	var errs []string

	if _, ok := themes[dc.Theme]; !ok {
		errs = append(errs, fmt.Sprintf("invalid theme %q", dc.Theme))
	}
	switch dc.OutputFormat {
	case FormatTable, FormatJSON, FormatYAML, FormatCompact:
	default:
		errs = append(errs, fmt.Sprintf("invalid output format %q, must be one of: table, json, yaml, compact", dc.OutputFormat))
	}
	if _, ok := tableStyles[dc.TableStyle]; !ok {
		errs = append(errs, fmt.Sprintf("invalid table style %q", dc.TableStyle))
	}
	if dc.MaxTableWidth < 40 || dc.MaxTableWidth > 300 {
		errs = append(errs, fmt.Sprintf("max table width must be between 40 and 300, got %d", dc.MaxTableWidth))
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// structured reports whether output is meant for machines
func (dc *DisplayConfig) structured() bool {
	return dc.OutputFormat == FormatJSON || dc.OutputFormat == FormatYAML
}
