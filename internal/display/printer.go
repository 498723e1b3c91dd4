// Package display renders command results for terminals and scripts.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Printer writes status messages, tables and structured results
type Printer struct {
	config     *DisplayConfig
	out        io.Writer
	errOut     io.Writer
	palette    *Palette
	errPalette *Palette
}

// NewPrinter creates a printer. A nil config uses the defaults.
func NewPrinter(config *DisplayConfig) *Printer {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	theme := ThemeByName(config.Theme)
	return &Printer{
		config:     config,
		out:        config.Writer,
		errOut:     config.ErrWriter,
		palette:    NewPalette(config.Writer, theme, config.ColorEnabled),
		errPalette: NewPalette(config.ErrWriter, theme, config.ColorEnabled),
	}
}

// Config returns the display configuration
func (p *Printer) Config() *DisplayConfig {
	return p.config
}

// Palette returns the palette of the main output
func (p *Printer) Palette() *Palette {
	return p.palette
}

// Out returns the main output writer
func (p *Printer) Out() io.Writer {
	return p.out
}

// Interactive reports whether prompts may be shown
func (p *Printer) Interactive() bool {
	return p.config.InteractiveMode && !p.config.QuietMode && !p.config.structured()
}

func (p *Printer) chatty() bool {
	return !p.config.QuietMode && !p.config.structured()
}

func (p *Printer) icon(name string) string {
	if !p.config.UseIcons {
		return map[string]string{"success": "[OK]", "warning": "[WARN]", "error": "[FAIL]", "info": "[INFO]"}[name]
	}
	return map[string]string{"success": "✓", "warning": "⚠", "error": "✗", "info": "ℹ"}[name]
}

// Header prints a formatted header
func (p *Printer) Header(title string) {
	if !p.chatty() {
		return
	}
	separator := strings.Repeat("=", len(title)+4)
	fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", separator, p.palette.Primary("  "+title), separator)
}

// Success prints a success message
func (p *Printer) Success(message string) {
	if !p.chatty() {
		return
	}
	fmt.Fprintln(p.out, p.palette.Success(p.icon("success")+" "+message))
}

// Info prints an informational message
func (p *Printer) Info(message string) {
	if !p.chatty() {
		return
	}
	fmt.Fprintln(p.out, p.palette.Info(p.icon("info")+" "+message))
}

// Warning prints a warning to the error stream
func (p *Printer) Warning(message string) {
	if p.config.QuietMode {
		return
	}
	fmt.Fprintln(p.errOut, p.errPalette.Warning(p.icon("warning")+" "+message))
}

// Error prints an error to the error stream. Errors are never suppressed.
func (p *Printer) Error(message string) {
	fmt.Fprintln(p.errOut, p.errPalette.Error(p.icon("error")+" "+message))
}

// NewTable creates a table styled by the configuration
func (p *Printer) NewTable(headers ...string) *Table {
	return NewTable(p.config.TableStyle, p.config.MaxTableWidth, p.palette, headers...)
}

// NewProgressBar returns a bar on the error stream, or a silent one when
// progress is disabled.
func (p *Printer) NewProgressBar(total int64, message string) *ProgressBar {
	if !p.config.ShowProgress || !p.chatty() {
		return NewProgressBar(io.Discard, nil, total, message)
	}
	return NewProgressBar(p.errOut, p.errPalette, total, message)
}

// Data writes v in the configured structured format. Table and compact
// formats fall back to indented JSON.
func (p *Printer) Data(v interface{}) error {
	if p.config.OutputFormat == FormatYAML {
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Compact prints one key=value line for scripts
func (p *Printer) Compact(pairs ...interface{}) {
	var fields []string
	for i := 0; i+1 < len(pairs); i += 2 {
		fields = append(fields, fmt.Sprintf("%v=%v", pairs[i], pairs[i+1]))
	}
	fmt.Fprintln(p.out, strings.Join(fields, " "))
}
