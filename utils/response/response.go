package response

import (
	"github.com/gofiber/fiber/v2"
)

// Envelope wraps every JSON answer. Exactly one of Data or Error is set.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Problem    `json:"error,omitempty"`
}

// Problem is the error half of an Envelope. RequestID echoes the
// requestid middleware so clients can quote it in bug reports.
type Problem struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
}

type PagedEnvelope struct {
	Success    bool           `json:"success"`
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// fallback messages for callers that pass ""
var statusText = map[int]string{
	fiber.StatusBadRequest:          "Bad request",
	fiber.StatusUnauthorized:        "Unauthorized access",
	fiber.StatusForbidden:           "Access forbidden",
	fiber.StatusNotFound:            "Resource not found",
	fiber.StatusConflict:            "Resource already exists",
	fiber.StatusTooManyRequests:     "Too many requests",
	fiber.StatusInternalServerError: "Internal server error",
	fiber.StatusServiceUnavailable:  "Service temporarily unavailable",
}

func write(c *fiber.Ctx, status int, body interface{}) error {
	return c.Status(status).JSON(body)
}

func Success(c *fiber.Ctx, data interface{}) error {
	return write(c, fiber.StatusOK, Envelope{Success: true, Data: data})
}

func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return write(c, fiber.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func Created(c *fiber.Ctx, data interface{}) error {
	return write(c, fiber.StatusCreated, Envelope{Success: true, Message: "Resource created successfully", Data: data})
}

func Error(c *fiber.Ctx, status int, message, code string) error {
	return ErrorWithDetails(c, status, message, code, nil)
}

func ErrorWithDetails(c *fiber.Ctx, status int, message, code string, details interface{}) error {
	if message == "" {
		message = statusText[status]
	}
	p := &Problem{Code: code, Message: message, Details: details}
	p.RequestID, _ = c.Locals("requestid").(string)
	return write(c, status, Envelope{Error: p})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message, "BAD_REQUEST")
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message, "UNAUTHORIZED")
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message, "FORBIDDEN")
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message, "NOT_FOUND")
}

func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, message, "CONFLICT")
}

func TooManyRequests(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusTooManyRequests, message, "TOO_MANY_REQUESTS")
}

func InternalServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message, "INTERNAL_ERROR")
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, message, "SERVICE_UNAVAILABLE")
}

// The helpers below carry a caller-chosen domain code.

func PayloadTooLarge(c *fiber.Ctx, message, code string) error {
	return Error(c, fiber.StatusRequestEntityTooLarge, message, code)
}

func UnprocessableEntity(c *fiber.Ctx, message, code string, details interface{}) error {
	return ErrorWithDetails(c, fiber.StatusUnprocessableEntity, message, code, details)
}

func BadGateway(c *fiber.Ctx, message, code string) error {
	return Error(c, fiber.StatusBadGateway, message, code)
}

func GatewayTimeout(c *fiber.Ctx, message, code string) error {
	return Error(c, fiber.StatusGatewayTimeout, message, code)
}

// ValidationError answers 422 VALIDATION_ERROR. A plain error is reported
// by its message; anything else is passed through as details.
func ValidationError(c *fiber.Ctx, details interface{}) error {
	if err, ok := details.(error); ok {
		details = err.Error()
	}
	return UnprocessableEntity(c, "Validation failed", "VALIDATION_ERROR", details)
}

func Paginated(c *fiber.Ctx, data interface{}, meta PaginationMeta) error {
	return write(c, fiber.StatusOK, PagedEnvelope{Success: true, Data: data, Pagination: meta})
}

// CalculatePagination clamps page to >= 1 and limit to [1, MaxPageSize],
// defaulting limit to DefaultPageSize, then derives the page count.
func CalculatePagination(page, limit int, total int64) PaginationMeta {
	page = max(page, 1)
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	pages := int((total + int64(limit) - 1) / int64(limit))
	return PaginationMeta{
		CurrentPage: page,
		PerPage:     limit,
		Total:       total,
		TotalPages:  pages,
		HasNext:     page < pages,
	}
}
