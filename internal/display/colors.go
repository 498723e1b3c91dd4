package display

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Theme maps message roles to terminal colors
type Theme struct {
	Primary color.Attribute
	Success color.Attribute
	Warning color.Attribute
	Error   color.Attribute
	Info    color.Attribute
	Muted   color.Attribute
}

var themes = map[string]Theme{
	"dark": {
		Primary: color.FgHiBlue,
		Success: color.FgHiGreen,
		Warning: color.FgHiYellow,
		Error:   color.FgHiRed,
		Info:    color.FgCyan,
		Muted:   color.FgWhite,
	},
	"light": {
		Primary: color.FgBlue,
		Success: color.FgGreen,
		Warning: color.FgYellow,
		Error:   color.FgRed,
		Info:    color.FgCyan,
		Muted:   color.FgMagenta,
	},
	"high-contrast": {
		Primary: color.FgHiWhite,
		Success: color.FgHiGreen,
		Warning: color.FgHiYellow,
		Error:   color.FgHiRed,
		Info:    color.FgHiCyan,
		Muted:   color.FgWhite,
	},
	"plain": {},
}

// ThemeByName returns the named theme, falling back to dark
func ThemeByName(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["dark"]
}

// Palette colors text for one output stream
type Palette struct {
	theme   Theme
	enabled bool
}

// NewPalette creates a palette for w. Colors are turned off when w is not
// a terminal, when NO_COLOR is set, or when the terminal has no color profile.
func NewPalette(w io.Writer, theme Theme, enabled bool) *Palette {
	return &Palette{theme: theme, enabled: enabled && SupportsColor(w)}
}

// SupportsColor reports whether w is a color-capable terminal
func SupportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return termenv.NewOutput(f).Profile != termenv.Ascii
}

// Enabled reports whether the palette emits escape codes
func (p *Palette) Enabled() bool {
	return p.enabled
}

func (p *Palette) paint(attr color.Attribute, text string) string {
	if !p.enabled || attr == 0 {
		return text
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(text)
}

func (p *Palette) Primary(text string) string { return p.paint(p.theme.Primary, text) }
func (p *Palette) Success(text string) string { return p.paint(p.theme.Success, text) }
func (p *Palette) Warning(text string) string { return p.paint(p.theme.Warning, text) }
func (p *Palette) Error(text string) string   { return p.paint(p.theme.Error, text) }
func (p *Palette) Info(text string) string    { return p.paint(p.theme.Info, text) }
func (p *Palette) Muted(text string) string   { return p.paint(p.theme.Muted, text) }

// Bold emphasizes text
func (p *Palette) Bold(text string) string {
	return p.paint(color.Bold, text)
}
