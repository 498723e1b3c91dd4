package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_Render(t *testing.T) {
	table := NewTable("default", 80, nil, "Table", "Rows")
	table.AlignRight(1)
	table.AddRow("departments", "12")
	table.AddRow("jobs", "183")

	expected := strings.Join([]string{
		"+-------------+------+",
		"| Table       | Rows |",
		"+-------------+------+",
		"| departments |   12 |",
		"| jobs        |  183 |",
		"+-------------+------+",
		"",
	}, "\n")
	assert.Equal(t, expected, table.Render())
	assert.Equal(t, 2, table.Len())
}

func TestTable_MinimalStyle(t *testing.T) {
	table := NewTable("minimal", 80, nil, "Reference", "Size")
	table.AddRow("jobs/jobs-20240506T070809.000000000Z.snap", "1.2 KiB")

	lines := strings.Split(strings.TrimSuffix(table.Render(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, " Reference"+strings.Repeat(" ", 32)+"  Size", lines[0])
	assert.Equal(t, " jobs/jobs-20240506T070809.000000000Z.snap  1.2 KiB", lines[1])
}

func TestTable_UnknownStyleFallsBack(t *testing.T) {
	table := NewTable("fancy", 80, nil, "A")
	table.AddRow("x")
	assert.True(t, strings.HasPrefix(table.Render(), "+---+"))
}

func TestTable_ShrinksToMaxWidth(t *testing.T) {
	table := NewTable("default", 40, nil, "Reason")
	table.AddRow(strings.Repeat("x", 100))

	for _, line := range strings.Split(strings.TrimSuffix(table.Render(), "\n"), "\n") {
		assert.LessOrEqual(t, len(line), 40)
	}
	assert.Contains(t, table.Render(), "...")
}

func TestTable_Empty(t *testing.T) {
	assert.Empty(t, NewTable("default", 80, nil).Render())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))
}
