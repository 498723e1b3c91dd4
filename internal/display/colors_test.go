package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThemeByName(t *testing.T) {
	assert.Equal(t, themes["light"], ThemeByName("light"))
	assert.Equal(t, themes["dark"], ThemeByName("unknown"))
}

func TestPalette_DisabledForBuffers(t *testing.T) {
	t.Setenv("FORCE_COLOR", "")
	t.Setenv("NO_COLOR", "")

	p := NewPalette(&bytes.Buffer{}, ThemeByName("dark"), true)
	assert.False(t, p.Enabled())
	assert.Equal(t, "ok", p.Success("ok"))
}

func TestPalette_ForcedColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "1")
	t.Setenv("TERM", "xterm-256color")

	p := NewPalette(&bytes.Buffer{}, ThemeByName("dark"), true)
	assert.True(t, p.Enabled())
	assert.NotEqual(t, "ok", p.Error("ok"))
	assert.Contains(t, p.Error("ok"), "ok")

	// the plain theme never colors
	plain := NewPalette(&bytes.Buffer{}, ThemeByName("plain"), true)
	assert.Equal(t, "ok", plain.Error("ok"))
}

func TestPalette_NoColorWins(t *testing.T) {
	t.Setenv("FORCE_COLOR", "1")
	t.Setenv("NO_COLOR", "1")
	assert.False(t, SupportsColor(&bytes.Buffer{}))
}
