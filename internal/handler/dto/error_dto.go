package dto

// APIErrorResponse is the single error envelope every endpoint emits.
// Authentication failures all share one coarse Code/Message pair so the
// body never reveals which verification step tripped.
type APIErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// FieldError pinpoints one failed binding rule on a management request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
