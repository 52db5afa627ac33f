package history

import "codeberg.org/mutker/socpowerd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("history_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Recording Errors
	ErrRecordFailed    = errors.ErrorCode("history_record_failed")
	ErrInvalidSnapshot = errors.ErrorCode("history_invalid_snapshot")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.RegisterMessage(ErrInvalidDBPath, "History database path is empty")
	errors.RegisterMessage(ErrSchemaInitFailed, "Failed to initialize history schema")
	errors.RegisterMessage(ErrSchemaValidationFailed, "Failed to validate history schema")
	errors.RegisterMessage(ErrSchemaMigrationFailed, "Failed to migrate history schema")
	errors.RegisterMessage(ErrTransactionFailed, "History transaction failed")
	errors.RegisterMessage(ErrStorageAccess, "Failed to access history storage")
	errors.RegisterMessage(ErrRecordFailed, "Failed to record statistics sample")
	errors.RegisterMessage(ErrInvalidSnapshot, "Invalid statistics snapshot")
}
