package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/services"
	"github.com/sahilchouksey/exam-prep-api/services/questionparser"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
)

// ExtractionFailure is the details payload of an EXTRACTION_FAILED response
type ExtractionFailure struct {
	Reason     string                     `json:"reason"`
	Violations []questionparser.Violation `json:"violations,omitempty"`
}

// RespondError writes the HTTP response for an error returned by the exam or
// ingestion services
func RespondError(c *fiber.Ctx, err error) error {
	var tooLarge *questionparser.InputTooLargeError
	var failed *questionparser.ExtractionFailedError
	var invalid *questionparser.ValidationError

	switch {
	case errors.Is(err, services.ErrExamNotFound),
		errors.Is(err, services.ErrQuestionNotFound),
		errors.Is(err, services.ErrIngestionNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, services.ErrNotArchived):
		return response.Error(c, fiber.StatusNotFound, err.Error(), "NOT_ARCHIVED")
	case errors.Is(err, services.ErrSectionNotFound):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), "UNKNOWN_SECTION")
	case errors.Is(err, services.ErrDuplicateSection),
		errors.Is(err, services.ErrDuplicateInput):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrInvalidExamStatus),
		errors.Is(err, services.ErrNoQuestions):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrExamHasNoQuestion):
		return response.Error(c, fiber.StatusConflict, err.Error(), "EXAM_EMPTY")
	case errors.Is(err, services.ErrScannedPDF):
		return response.UnprocessableEntity(c, err.Error(), "PDF_NO_TEXT", nil)
	case errors.Is(err, services.ErrUnreadablePDF):
		return response.UnprocessableEntity(c, err.Error(), "PDF_UNREADABLE", nil)
	case errors.Is(err, questionparser.ErrEmptyInput):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), services.CodeEmptyInput)
	case errors.As(err, &tooLarge):
		return response.PayloadTooLarge(c, tooLarge.Error(), services.CodeInputTooLarge)
	case errors.Is(err, questionparser.ErrTimeout):
		return response.GatewayTimeout(c, "Extraction timed out", services.CodeOracleTimeout)
	case errors.Is(err, questionparser.ErrOracleUnavailable):
		return response.BadGateway(c, "Extraction service unavailable", services.CodeOracleUnavailable)
	case errors.As(err, &failed):
		return response.UnprocessableEntity(c, "The text could not be turned into valid questions", services.CodeExtractionFailed,
			ExtractionFailure{Reason: failed.Reason, Violations: failed.Violations()})
	case errors.As(err, &invalid):
		return response.ErrorWithDetails(c, fiber.StatusUnprocessableEntity, "Question is invalid", "VALIDATION_ERROR", invalid.Violations)
	}

	utils.L().Error("unhandled request error", "path", c.Path(), "error", err)
	return response.InternalServerError(c, "")
}
