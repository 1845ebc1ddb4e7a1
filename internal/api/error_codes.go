// internal/api/error_codes.go
package api

// API error codes
const (
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorUnavailable   = "SERVICE_UNAVAILABLE"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"
	ErrorForbidden     = "FORBIDDEN"

	// sessions
	ErrorSessionNotFound  = "SESSION_NOT_FOUND"
	ErrorPromptEmpty      = "PROMPT_EMPTY"
	ErrorThemeInvalid     = "THEME_INVALID"
	ErrorGenerationBusy   = "GENERATION_IN_PROGRESS"
	ErrorAnalysisConflict = "ANALYSIS_NOT_ALLOWED"
	ErrorDesignNotFound   = "DESIGN_NOT_FOUND"

	// gallery
	ErrorGalleryNotFound = "GALLERY_ENTRY_NOT_FOUND"

	// export
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
	ErrorExportFailed        = "EXPORT_FAILED"

	// llm
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorAPIKeyMissing         = "API_KEY_MISSING"
)
