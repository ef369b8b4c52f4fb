// Package errors provides structured error handling for roomdex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (mapping store, on-disk indexes)
//   - 3XX: Network errors (search engine, chat homeserver)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates mapping store and local index errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates errors talking to the engine or the homeserver.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, the process must stop.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the stream continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a transient failure worth retrying later.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeSessionInvalid = "ERR_103_SESSION_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreOpen            = "ERR_201_STORE_OPEN"
	ErrCodeStoreTxn             = "ERR_202_STORE_TXN"
	ErrCodeMappingSourceMissing = "ERR_203_MAPPING_SOURCE_MISSING"
	ErrCodeStoreLocked          = "ERR_204_STORE_LOCKED"
	ErrCodeCorruptIndex         = "ERR_205_CORRUPT_INDEX"

	// Network errors (300-399)
	ErrCodeEngineUnavailable = "ERR_301_ENGINE_UNAVAILABLE"
	ErrCodeEngineTimeout     = "ERR_302_ENGINE_TIMEOUT"
	ErrCodeChatUnavailable   = "ERR_303_CHAT_UNAVAILABLE"
	ErrCodeChatJoinFailed    = "ERR_304_CHAT_JOIN_FAILED"
	ErrCodeChatLoginFailed   = "ERR_305_CHAT_LOGIN_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidCursor = "ERR_402_INVALID_CURSOR"
	ErrCodeIndexNotFound = "ERR_403_INDEX_NOT_FOUND"
	ErrCodeRoomUnknown   = "ERR_404_ROOM_UNKNOWN"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_201_STORE_OPEN" -> '2'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreOpen, ErrCodeCorruptIndex, ErrCodeStoreLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEngineUnavailable, ErrCodeEngineTimeout, ErrCodeChatUnavailable, ErrCodeStoreTxn:
		return true
	default:
		return false
	}
}
