package exam

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/handlers"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/services"
	"github.com/sahilchouksey/exam-prep-api/utils/middleware"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
	"github.com/sahilchouksey/exam-prep-api/utils/validation"
)

// ExamHandler handles exam-related requests
type ExamHandler struct {
	examService      *services.ExamService
	ingestionService *services.IngestionService
	validator        *validation.Validator
}

// NewExamHandler creates a new exam handler
func NewExamHandler(examService *services.ExamService, ingestionService *services.IngestionService) *ExamHandler {
	return &ExamHandler{
		examService:      examService,
		ingestionService: ingestionService,
		validator:        validation.NewValidator(),
	}
}

// UpdateStatusRequest represents an exam status change
type UpdateStatusRequest struct {
	Status model.ExamStatus `json:"status" validate:"required"`
}

// ListPublishedExams lists published exams, optionally filtered by ?category=
func (h *ExamHandler) ListPublishedExams(c *fiber.Ctx) error {
	return h.listExams(c, true)
}

// ListAllExams lists exams in every status for admins
func (h *ExamHandler) ListAllExams(c *fiber.Ctx) error {
	return h.listExams(c, false)
}

func (h *ExamHandler) listExams(c *fiber.Ctx, publishedOnly bool) error {
	exams, err := h.examService.ListExams(c.UserContext(), c.Query("category"), publishedOnly)
	if err != nil {
		return handlers.RespondError(c, err)
	}

	summaries := make([]model.ExamSummary, len(exams))
	for i := range exams {
		summaries[i] = exams[i].ToSummary()
	}
	return response.Success(c, summaries)
}

// GetPublishedExam returns a published exam with its sections
func (h *ExamHandler) GetPublishedExam(c *fiber.Ctx) error {
	exam, ok, err := h.loadExam(c, true)
	if !ok {
		return err
	}
	return response.Success(c, exam)
}

// GetExam returns an exam in any status
func (h *ExamHandler) GetExam(c *fiber.Ctx) error {
	exam, ok, err := h.loadExam(c, false)
	if !ok {
		return err
	}
	return response.Success(c, exam)
}

// ListPublishedQuestions lists the questions of a published exam, optionally ?section=
func (h *ExamHandler) ListPublishedQuestions(c *fiber.Ctx) error {
	return h.listQuestions(c, true)
}

// ListQuestions lists the questions of any exam
func (h *ExamHandler) ListQuestions(c *fiber.Ctx) error {
	return h.listQuestions(c, false)
}

func (h *ExamHandler) listQuestions(c *fiber.Ctx, publishedOnly bool) error {
	exam, ok, err := h.loadExam(c, publishedOnly)
	if !ok {
		return err
	}

	questions, err := h.examService.ListQuestions(c.UserContext(), exam.ID, c.Query("section"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, questions)
}

// CreateExam creates a draft exam with its sections
func (h *ExamHandler) CreateExam(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	var req services.CreateExamRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	exam, err := h.examService.CreateExam(c.UserContext(), req, userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Created(c, exam)
}

// UpdateStatus publishes, archives or returns an exam to draft
func (h *ExamHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	exam, err := h.examService.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, exam.ToSummary())
}

// AddManualQuestion stores a hand-entered question. The body is
// {"section": "...", "question": {...}} with the question in the
// camelCase shape used by the extractors.
func (h *ExamHandler) AddManualQuestion(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var req struct {
		Section  string          `json:"section"`
		Question json.RawMessage `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	section := validation.SanitizeString(req.Section)
	if section == "" {
		return response.BadRequest(c, "section is required")
	}
	if len(req.Question) == 0 {
		return response.BadRequest(c, "question is required")
	}

	stored, err := h.ingestionService.AddManualQuestion(c.UserContext(), id, section, req.Question)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Created(c, stored)
}

// DeleteQuestion removes one question from an exam
func (h *ExamHandler) DeleteQuestion(c *fiber.Ctx) error {
	examID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}
	questionID, err := parseID(c, "question_id")
	if err != nil {
		return response.BadRequest(c, "Invalid question ID")
	}

	if err := h.examService.DeleteQuestion(c.UserContext(), examID, questionID); err != nil {
		return handlers.RespondError(c, err)
	}
	return response.SuccessWithMessage(c, "Question deleted", nil)
}

// loadExam resolves :id. When it reports false the response is already written.
func (h *ExamHandler) loadExam(c *fiber.Ctx, publishedOnly bool) (*model.Exam, bool, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, false, response.BadRequest(c, "Invalid exam ID")
	}

	exam, err := h.examService.GetExam(c.UserContext(), id)
	if err != nil {
		return nil, false, handlers.RespondError(c, err)
	}
	if publishedOnly && exam.Status != model.ExamStatusPublished {
		return nil, false, handlers.RespondError(c, services.ErrExamNotFound)
	}
	return exam, true, nil
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 64)
	if err != nil || id == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(id), nil
}
