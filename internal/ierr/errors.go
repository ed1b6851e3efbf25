package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrInvalidKey             = errors.New("invalid api key")
	ErrRevokedKey             = errors.New("api key has been revoked")
	ErrExpiredKey             = errors.New("api key has expired")
	ErrInsufficientScope      = errors.New("insufficient scope")
	ErrRateLimited            = errors.New("rate limit exceeded")
	ErrScopeExpansionRejected = errors.New("scopes may only be narrowed")
	ErrAlreadyRevoked         = errors.New("api key is already revoked")
	ErrDuplicateSlug          = errors.New("organization slug already exists")
	ErrDuplicateID            = errors.New("identifier already exists")
	ErrEntropyUnavailable     = errors.New("secure random source unavailable")
	ErrIdentityUnverifiable   = errors.New("subject identity could not be verified")
)
