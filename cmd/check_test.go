package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/display"
)

func checkPrinter(format display.OutputFormat) (*display.Printer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cfg := display.DefaultDisplayConfig()
	cfg.ColorEnabled = false
	cfg.UseIcons = false
	cfg.OutputFormat = format
	cfg.MaxTableWidth = 120
	cfg.Writer = &out
	cfg.ErrWriter = &errOut
	return display.NewPrinter(cfg), &out
}

func sampleCheckReport() *application.CheckReport {
	return &application.CheckReport{
		Host:          "db",
		Database:      "hiring",
		ServerVersion: "8.0.36",
		Tables: []application.TableCheck{
			{Table: "departments", Matches: true},
			{Table: "jobs", Differences: []string{"name"}},
			{Table: "hired_employees", Error: "table hired_employees does not exist"},
		},
	}
}

func TestPrintCheck_Table(t *testing.T) {
	printer, out := checkPrinter(display.FormatTable)
	require.NoError(t, printCheck(printer, sampleCheckReport()))

	text := out.String()
	assert.Contains(t, text, "[OK] Connected to MySQL 8.0.36 at db/hiring")
	assert.Contains(t, text, "| jobs            | drift      | columns: name")
	assert.Contains(t, text, "unreadable")
}

func TestPrintCheck_JSON(t *testing.T) {
	printer, out := checkPrinter(display.FormatJSON)
	require.NoError(t, printCheck(printer, sampleCheckReport()))

	var doc application.CheckReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "8.0.36", doc.ServerVersion)
	assert.Equal(t, []string{"jobs", "hired_employees"}, doc.Drifted())
}
