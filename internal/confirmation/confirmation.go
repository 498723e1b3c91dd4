// Package confirmation asks the operator before destructive restores.
package confirmation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"hiring-data-sync/internal/display"
	apperrors "hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/restore"
	"hiring-data-sync/internal/snapshot"
)

// Summary describes a restore awaiting confirmation
type Summary struct {
	Table      string
	Ref        string
	Policy     restore.Policy
	KeyColumns []string
	// Header is shown when the operator asks for details; it may be nil
	Header *snapshot.Header
}

// ConfirmationService handles user confirmation for restores
type ConfirmationService interface {
	ConfirmRestore(ctx context.Context, summary Summary, autoApprove bool) (bool, error)
	DisplaySummary(summary Summary) error
}

type confirmationService struct {
	printer *display.Printer
	reader  *bufio.Reader
}

// NewConfirmationService creates a service that prompts through printer and
// reads answers from in
func NewConfirmationService(printer *display.Printer, in io.Reader) ConfirmationService {
	return &confirmationService{
		printer: printer,
		reader:  bufio.NewReader(in),
	}
}

// ConfirmRestore returns true when the restore may proceed. Merge restores
// keep existing rows and are never prompted for.
func (cs *confirmationService) ConfirmRestore(ctx context.Context, summary Summary, autoApprove bool) (bool, error) {
	if summary.Policy != restore.PolicyReplace {
		return true, nil
	}

	if err := cs.DisplaySummary(summary); err != nil {
		return false, fmt.Errorf("failed to display restore summary: %w", err)
	}

	if autoApprove {
		cs.printer.Info("Auto-approving restore...")
		return true, nil
	}
	if !cs.printer.Interactive() {
		return false, apperrors.NewConfigurationError(
			fmt.Sprintf("replace restore of %s needs confirmation; rerun with --yes", summary.Table), nil)
	}

	for {
		input, err := cs.prompt(ctx)
		if err != nil {
			if ctx.Err() != nil {
				cs.printer.Warning("Operation cancelled by user")
				return false, apperrors.NewCancellationError("restore confirmation interrupted", ctx.Err())
			}
			return false, fmt.Errorf("failed to read user input: %w", err)
		}

		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			cs.printer.Info("Restore cancelled")
			return false, nil
		case "d", "details":
			if err := cs.displayDetails(summary); err != nil {
				return false, err
			}
		default:
			fmt.Fprintf(cs.printer.Out(), "Invalid input '%s'. Please enter 'y' for yes, 'n' for no, or 'd' for details.\n", input)
		}
	}
}

// DisplaySummary prints what the restore is about to do
func (cs *confirmationService) DisplaySummary(summary Summary) error {
	cs.printer.Header("Restore plan")

	t := cs.printer.NewTable("Setting", "Value")
	t.AddRow("Table", summary.Table)
	t.AddRow("Snapshot", summary.Ref)
	t.AddRow("Policy", string(summary.Policy))
	if len(summary.KeyColumns) > 0 {
		t.AddRow("Keys", strings.Join(summary.KeyColumns, ", "))
	}
	if summary.Header != nil {
		t.AddRow("Created", summary.Header.CreatedAt.UTC().Format(time.RFC3339))
	}
	if err := t.RenderTo(cs.printer.Out()); err != nil {
		return err
	}

	cs.printer.Warning(fmt.Sprintf("replace deletes every row of %s before loading the snapshot", summary.Table))
	return nil
}

func (cs *confirmationService) displayDetails(summary Summary) error {
	if summary.Header == nil {
		cs.printer.Info("No snapshot details available")
		return nil
	}
	h := summary.Header

	out := cs.printer.Out()
	fmt.Fprintf(out, "\n%s\n", cs.printer.Palette().Bold("Snapshot columns:"))
	t := cs.printer.NewTable("Column", "Type", "Nullable", "Key")
	for _, c := range h.Columns {
		t.AddRow(c.Name, string(c.Type), yesNo(c.Nullable), yesNo(c.Key))
	}
	if err := t.RenderTo(out); err != nil {
		return err
	}
	fmt.Fprintf(out, "Fingerprint: %s\n", h.Fingerprint)
	fmt.Fprintf(out, "Compression: %s\n", h.Compression)
	if h.Encryption != nil {
		fmt.Fprintf(out, "Encryption: %s (%s key)\n", h.Encryption.Algorithm, h.Encryption.KeySource)
	}
	return nil
}

// prompt reads one answer, giving up when ctx is done
func (cs *confirmationService) prompt(ctx context.Context) (string, error) {
	fmt.Fprint(cs.printer.Out(), cs.printer.Palette().Bold("Do you want to replace the table contents? [y/N/d]: "))

	type answer struct {
		text string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		input, err := cs.reader.ReadString('\n')
		if err == io.EOF {
			// a closed input ends the answer; an empty one counts as no
			err = nil
		}
		answers <- answer{strings.TrimSpace(input), err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cs.printer.Out())
		return "", ctx.Err()
	case a := <-answers:
		return a.text, a.err
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
