// internal/utils/response.go
package utils

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/i18n"
)

// CallerKey is the gin context key holding the authenticated account address.
const CallerKey = "caller"

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// errorCodes pairs each status the API emits with its error code and the
// catalogue message used when the caller supplies none.
var errorCodes = map[int]struct {
	code string
	key  string
	arg  string
}{
	http.StatusBadRequest:          {"BAD_REQUEST", i18n.KeyValidationInvalid, "request"},
	http.StatusUnauthorized:        {"UNAUTHORIZED", i18n.KeyAuthRequired, ""},
	http.StatusForbidden:           {"FORBIDDEN", i18n.KeyAdminAccessDenied, ""},
	http.StatusNotFound:            {"NOT_FOUND", i18n.KeyNotFound, ""},
	http.StatusConflict:            {"CONFLICT", "", ""},
	http.StatusServiceUnavailable:  {"SERVICE_UNAVAILABLE", "", ""},
	http.StatusInternalServerError: {"INTERNAL_ERROR", "", ""},
}

func respond(c *gin.Context, status int, data, meta interface{}) {
	c.JSON(status, APIResponse{Success: true, Data: data, Meta: meta})
}

func SuccessResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, data, nil)
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	respond(c, http.StatusOK, data, meta)
}

func CreatedResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, data, nil)
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
	})
}

// statusError fills in the code and, for an empty message, the localized default.
func statusError(c *gin.Context, status int, message string, details interface{}) {
	entry := errorCodes[status]
	if message == "" {
		switch {
		case entry.key == "" && status == http.StatusInternalServerError:
			message = "Internal server error"
		case entry.key == "":
			message = http.StatusText(status)
		case entry.arg != "":
			message = i18n.T(GetLangFromContext(c), entry.key, entry.arg)
		default:
			message = i18n.T(GetLangFromContext(c), entry.key)
		}
	}
	ErrorResponse(c, status, entry.code, message, details)
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	statusError(c, http.StatusBadRequest, message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	statusError(c, http.StatusUnauthorized, message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	statusError(c, http.StatusForbidden, message, nil)
}

// DeniedResponse reports an operation refused by a license template, hook or checker.
func DeniedResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, "DENIED", message, nil)
}

func NotFoundResponse(c *gin.Context, message string) {
	statusError(c, http.StatusNotFound, message, nil)
}

func ConflictResponse(c *gin.Context, message string) {
	statusError(c, http.StatusConflict, message, nil)
}

func ServiceUnavailableResponse(c *gin.Context, message string) {
	statusError(c, http.StatusServiceUnavailable, message, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	statusError(c, http.StatusInternalServerError, message, nil)
}

// ValidationErrorResponse lists every failed field under details.
func ValidationErrorResponse(c *gin.Context, errors []ValidationError) {
	message := i18n.T(GetLangFromContext(c), i18n.KeyValidationInvalid, "input")
	ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", message, errors)
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, ok := c.Get("lang"); ok {
		if value, ok := lang.(string); ok {
			return value
		}
	}
	return "en"
}

func GetCallerFromContext(c *gin.Context) (common.Address, bool) {
	caller, ok := c.Get(CallerKey)
	if !ok {
		return common.Address{}, false
	}
	address, ok := caller.(common.Address)
	return address, ok
}
