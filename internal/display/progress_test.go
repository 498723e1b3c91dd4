package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, nil, 200, "departments")

	bar.Add(100, false)
	assert.Equal(t, "["+strings.Repeat("=", 15)+">"+strings.Repeat(" ", 14)+"]  50% 100/200 rows  departments", bar.String())

	bar.Add(100, true)
	assert.Equal(t, "["+strings.Repeat("=", 30)+"] 100% 200/200 rows  1 failed  departments", bar.String())

	bar.Finish("done")
	assert.True(t, strings.HasSuffix(buf.String(), "done\n"))

	// updates after Finish are ignored
	before := buf.Len()
	bar.Add(10, false)
	assert.Equal(t, before, buf.Len())
}

func TestProgressBar_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, nil, 0, "")
	bar.Add(1000, false)
	bar.Add(500, false)
	assert.Equal(t, "1500 rows", bar.String())
	assert.Contains(t, buf.String(), "\r\033[K1000 rows")
}

func TestProgressBar_Overshoot(t *testing.T) {
	bar := NewProgressBar(&bytes.Buffer{}, nil, 10, "")
	bar.Add(15, false)
	assert.True(t, strings.HasPrefix(bar.String(), "["+strings.Repeat("=", 30)+"] 100% 10/10"))
}
