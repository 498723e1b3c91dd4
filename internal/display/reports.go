package display

import (
	"fmt"
	"strconv"
	"time"

	"hiring-data-sync/internal/ingest"
	"hiring-data-sync/internal/migration"
	"hiring-data-sync/internal/restore"
	"hiring-data-sync/internal/snapshot"
)

const timeLayout = "2006-01-02 15:04:05 MST"

type tableCount struct {
	Table    string `json:"table" yaml:"table"`
	Inserted int64  `json:"inserted" yaml:"inserted"`
}

type ingestReport struct {
	Inserted int64        `json:"inserted" yaml:"inserted"`
	Tables   []tableCount `json:"tables" yaml:"tables"`
}

// IngestResult prints the committed counts of an ingestion request
func (p *Printer) IngestResult(res *ingest.RequestResult) error {
	report := ingestReport{Inserted: res.Inserted}
	for _, t := range res.Tables {
		report.Tables = append(report.Tables, tableCount{Table: t.Table, Inserted: t.Inserted})
	}

	switch p.config.OutputFormat {
	case FormatJSON, FormatYAML:
		return p.Data(report)
	case FormatCompact:
		for _, t := range report.Tables {
			p.Compact("table", t.Table, "inserted", t.Inserted)
		}
		return nil
	}

	t := p.NewTable("Table", "Inserted")
	t.AlignRight(1)
	for _, tc := range report.Tables {
		t.AddRow(tc.Table, strconv.FormatInt(tc.Inserted, 10))
	}
	if err := t.RenderTo(p.out); err != nil {
		return err
	}
	p.Success(fmt.Sprintf("Ingested %d records", res.Inserted))
	return nil
}

type failureReport struct {
	Batch     int    `json:"batch" yaml:"batch"`
	FirstLine int64  `json:"first_line" yaml:"first_line"`
	Size      int    `json:"size" yaml:"size"`
	Reason    string `json:"reason" yaml:"reason"`
}

type migrationReport struct {
	Table         string          `json:"table" yaml:"table"`
	Source        string          `json:"source" yaml:"source"`
	Rows          int64           `json:"rows" yaml:"rows"`
	Batches       int             `json:"batches" yaml:"batches"`
	TotalInserted int64           `json:"total_inserted" yaml:"total_inserted"`
	BatchesFailed int             `json:"batches_failed" yaml:"batches_failed"`
	Canceled      bool            `json:"canceled" yaml:"canceled"`
	Duration      string          `json:"duration" yaml:"duration"`
	Failures      []failureReport `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// MigrationResults prints one row per migrated table and the failed batches
func (p *Printer) MigrationResults(results []*migration.Result) error {
	reports := make([]migrationReport, 0, len(results))
	for _, r := range results {
		mr := migrationReport{
			Table:         r.Table,
			Source:        r.Source,
			Rows:          r.Rows,
			Batches:       r.Batches,
			TotalInserted: r.TotalInserted,
			BatchesFailed: r.BatchesFailed,
			Canceled:      r.Canceled,
			Duration:      r.Duration.Round(time.Millisecond).String(),
		}
		for _, f := range r.Failures {
			mr.Failures = append(mr.Failures, failureReport{Batch: f.Index, FirstLine: f.FirstLine, Size: f.Size, Reason: f.Reason})
		}
		reports = append(reports, mr)
	}

	switch p.config.OutputFormat {
	case FormatJSON, FormatYAML:
		return p.Data(reports)
	case FormatCompact:
		for _, r := range reports {
			p.Compact("table", r.Table, "rows", r.Rows, "inserted", r.TotalInserted, "batches", r.Batches,
				"failed", r.BatchesFailed, "canceled", r.Canceled)
		}
		return nil
	}

	t := p.NewTable("Table", "Rows", "Inserted", "Batches", "Failed", "Duration")
	t.AlignRight(1, 2, 3, 4)
	for _, r := range reports {
		t.AddRow(r.Table, strconv.FormatInt(r.Rows, 10), strconv.FormatInt(r.TotalInserted, 10),
			strconv.Itoa(r.Batches), strconv.Itoa(r.BatchesFailed), r.Duration)
	}
	if err := t.RenderTo(p.out); err != nil {
		return err
	}

	for _, r := range results {
		for _, f := range r.Failures {
			p.Warning(fmt.Sprintf("%s: %s", r.Table, f.String()))
		}
		if r.Canceled {
			p.Warning(fmt.Sprintf("%s: migration canceled after %d batches", r.Table, r.Batches))
		}
	}
	return nil
}

type snapshotReport struct {
	Ref       string `json:"ref" yaml:"ref"`
	Table     string `json:"table" yaml:"table"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	Records   *int64 `json:"records,omitempty" yaml:"records,omitempty"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
	Location  string `json:"location,omitempty" yaml:"location,omitempty"`
}

// SnapshotCreated prints a freshly committed snapshot
func (p *Printer) SnapshotCreated(snap *snapshot.Snapshot) error {
	records := snap.Records
	report := snapshotReport{
		Ref:       snap.Ref,
		Table:     snap.Table,
		CreatedAt: snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		Records:   &records,
		Bytes:     snap.Bytes,
		Location:  snap.Location,
	}

	switch p.config.OutputFormat {
	case FormatJSON, FormatYAML:
		return p.Data(report)
	case FormatCompact:
		p.Compact("ref", snap.Ref, "records", snap.Records, "bytes", snap.Bytes)
		return nil
	}
	p.Success(fmt.Sprintf("Snapshot of %s written: %d records, %s", snap.Table, snap.Records, humanBytes(snap.Bytes)))
	p.Info("Reference: " + snap.Ref)
	return nil
}

// Snapshots prints a snapshot listing, newest first
func (p *Printer) Snapshots(entries []snapshot.Entry) error {
	reports := make([]snapshotReport, 0, len(entries))
	for _, e := range entries {
		reports = append(reports, snapshotReport{
			Ref:       e.Ref,
			Table:     e.Table,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
			Bytes:     e.Size,
		})
	}

	switch p.config.OutputFormat {
	case FormatJSON, FormatYAML:
		return p.Data(reports)
	case FormatCompact:
		for _, r := range reports {
			p.Compact("ref", r.Ref, "created_at", r.CreatedAt, "bytes", r.Bytes)
		}
		return nil
	}

	if len(entries) == 0 {
		p.Info("No snapshots found")
		return nil
	}
	t := p.NewTable("Reference", "Created", "Size")
	t.AlignRight(2)
	for _, e := range entries {
		t.AddRow(e.Ref, e.CreatedAt.UTC().Format(timeLayout), humanBytes(e.Size))
	}
	return t.RenderTo(p.out)
}

type restoreReport struct {
	Table    string `json:"table" yaml:"table"`
	Ref      string `json:"ref" yaml:"ref"`
	Policy   string `json:"policy" yaml:"policy"`
	State    string `json:"state" yaml:"state"`
	Applied  int64  `json:"applied" yaml:"applied"`
	Chunks   int    `json:"chunks" yaml:"chunks"`
	Duration string `json:"duration" yaml:"duration"`
}

// RestoreResult prints the terminal state of a restore
func (p *Printer) RestoreResult(res *restore.Result) error {
	report := restoreReport{
		Table:    res.Table,
		Ref:      res.Ref,
		Policy:   string(res.Policy),
		State:    string(res.State),
		Applied:  res.Applied,
		Chunks:   res.Chunks,
		Duration: res.Duration.Round(time.Millisecond).String(),
	}

	switch p.config.OutputFormat {
	case FormatJSON, FormatYAML:
		return p.Data(report)
	case FormatCompact:
		p.Compact("table", res.Table, "state", res.State, "applied", res.Applied)
		return nil
	}

	message := fmt.Sprintf("Restore of %s from %s (%s): %s, %d records in %d chunks",
		res.Table, res.Ref, res.Policy, res.State, res.Applied, res.Chunks)
	if res.State == restore.StateCommitted {
		p.Success(message)
	} else {
		p.Warning(message)
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
