package application

import (
	"errors"

	"hiring-data-sync/internal/display"
	appErrors "hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/logging"
)

// ReportError logs err with its classification and prints a user message
// followed by troubleshooting hints for the error type
func ReportError(printer *display.Printer, logger *logging.Logger, err error) {
	if err == nil {
		return
	}

	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		appErr = appErrors.WrapError(err, "operation failed")
	}

	if logger != nil {
		logger.WithFields(map[string]interface{}{
			"error_type":  string(appErr.Type),
			"recoverable": appErr.IsRecoverable(),
			"context":     appErr.Context,
		}).Error("Command failed")
	}

	printer.Error(err.Error())
	if _, ok := appErrors.AsValidation(err); ok {
		printer.Info("No record of the rejected batch was written")
	}

	hints := TroubleshootingHints(appErr.Type)
	if len(hints) == 0 {
		return
	}
	printer.Info("Troubleshooting hints:")
	for _, h := range hints {
		printer.Info("- " + h)
	}
}

// TroubleshootingHints returns operator hints for an error type
func TroubleshootingHints(t appErrors.ErrorType) []string {
	switch t {
	case appErrors.ErrorTypeConnection:
		return []string{
			"Check that the database server is running",
			"Verify the host and port in DATABASE_URL or the config file",
			"Ensure network connectivity to the database server",
		}
	case appErrors.ErrorTypePermission:
		return []string{
			"Verify the username and password are correct",
			"Check that the user can insert into and delete from the hiring tables",
		}
	case appErrors.ErrorTypeBatchSize:
		return []string{"Split the request into batches of 1 to 1000 records"}
	case appErrors.ErrorTypeConstraint:
		return []string{
			"Check for records that already exist in the store",
			"Load departments and jobs before the hired employees that reference them",
		}
	case appErrors.ErrorTypeSchemaDrift:
		return []string{
			"The snapshot or live table no longer matches the expected columns",
			"Take a fresh snapshot after schema changes",
		}
	case appErrors.ErrorTypeSchema:
		return []string{"Make sure the hiring tables exist in the target database"}
	case appErrors.ErrorTypeStorage:
		return []string{
			"Check the snapshot and source storage settings",
			"Verify bucket names, credentials and local directory permissions",
		}
	case appErrors.ErrorTypeTimeout:
		return []string{
			"The operation may be taking longer than expected",
			"Try increasing the timeout value",
		}
	case appErrors.ErrorTypeConfiguration:
		return []string{"Run 'hiring-data-sync config' to print a complete default configuration"}
	}
	return nil
}
