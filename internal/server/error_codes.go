package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeMissingRequired   = 1005
	ErrCodeInvalidUsername   = 1006
	ErrCodeInvalidPassword   = 1007
	ErrCodeInvalidEmail      = 1008
	ErrCodeInvalidMultipart  = 1009
	ErrCodeInvalidFolderName = 1010

	// Domain state (2xxx)
	ErrCodeFileNotFound    = 2001
	ErrCodeFolderNotFound  = 2002
	ErrCodeBlobMissing     = 2003
	ErrCodeUserNotFound    = 2004
	ErrCodeUsernameTaken   = 2101
	ErrCodeEmailTaken      = 2102
	ErrCodeQuotaExceeded   = 2201
	ErrCodePayloadTooLarge = 2202

	// Auth & limits (3xxx)
	ErrCodeUnauthorized       = 3001
	ErrCodeForbidden          = 3002
	ErrCodeResourceExhausted  = 3003
	ErrCodeInvalidCredentials = 3004

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeStorageFailure = 4003
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeFileNotFound
	case 413:
		return ErrCodePayloadTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
