package question

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sahilchouksey/exam-prep-api/handlers"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/services"
	"github.com/sahilchouksey/exam-prep-api/services/questionparser"
	"github.com/sahilchouksey/exam-prep-api/utils/middleware"
	"github.com/sahilchouksey/exam-prep-api/utils/pdfvalidation"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
	"github.com/sahilchouksey/exam-prep-api/utils/validation"
)

// Import modes
const (
	ModeSingle = "single"
	ModeBulk   = "bulk"
)

// QuestionHandler turns pasted text into questions
type QuestionHandler struct {
	ingestionService *services.IngestionService
	validator        *validation.Validator
	pdfLimits        pdfvalidation.PDFLimits
}

// NewQuestionHandler creates a new question handler
func NewQuestionHandler(ingestionService *services.IngestionService) *QuestionHandler {
	return &QuestionHandler{
		ingestionService: ingestionService,
		validator:        validation.NewValidator(),
		pdfLimits:        pdfvalidation.QuestionPaperLimits,
	}
}

// ParseRequest carries pasted text. Blank text is rejected by the extractor
// so that the attempt is still logged.
type ParseRequest struct {
	RawText string `json:"rawText"`
}

// ImportRequest carries pasted text bound for one exam section
type ImportRequest struct {
	Mode    string `json:"mode" validate:"required,oneof=single bulk"`
	Section string `json:"section" validate:"required,max=100"`
	RawText string `json:"rawText"`
}

// SectionText is one section's pasted bulk text
type SectionText struct {
	Name    string `json:"name" validate:"required,max=100"`
	RawText string `json:"rawText"`
}

// ImportSectionsRequest carries bulk text for several sections at once
type ImportSectionsRequest struct {
	Sections []SectionText `json:"sections" validate:"required,min=1,dive"`
}

// ParseSingle extracts one question without saving it
func (h *QuestionHandler) ParseSingle(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)

	var req ParseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	res, err := h.ingestionService.ParseSingle(c.UserContext(), userID, req.RawText)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, res)
}

// ParseBulk extracts bulk records without saving them
func (h *QuestionHandler) ParseBulk(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)

	var req ParseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	res, err := h.ingestionService.ParseBulk(c.UserContext(), userID, req.RawText)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, res)
}

// Import extracts questions and appends them to an exam section
func (h *QuestionHandler) Import(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	examID, err := parseExamID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var req ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Section = validation.SanitizeString(req.Section)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	var res *services.ImportResult
	switch req.Mode {
	case ModeSingle:
		res, err = h.ingestionService.ImportSingle(c.UserContext(), userID, examID, req.Section, req.RawText)
	default:
		res, err = h.ingestionService.ImportBulk(c.UserContext(), userID, examID, req.Section, req.RawText)
	}
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Created(c, res)
}

// ImportSections extracts every section's text concurrently and stores all
// of them or none
func (h *QuestionHandler) ImportSections(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	examID, err := parseExamID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var req ImportSectionsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	for i := range req.Sections {
		req.Sections[i].Name = validation.SanitizeString(req.Sections[i].Name)
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	inputs := make([]questionparser.SectionInput, len(req.Sections))
	for i, s := range req.Sections {
		inputs[i] = questionparser.SectionInput{Name: s.Name, RawText: s.RawText}
	}

	res, err := h.ingestionService.ImportSections(c.UserContext(), userID, examID, inputs)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Created(c, res)
}

// ImportPDF extracts the text of an uploaded question paper and imports it
// as bulk text. Form fields: file, section.
func (h *QuestionHandler) ImportPDF(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	examID, err := parseExamID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	section := validation.SanitizeString(c.FormValue("section"))
	if section == "" {
		return response.BadRequest(c, "section is required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "A PDF file is required in the 'file' field")
	}

	content, _, err := pdfvalidation.ValidatePDFFile(file, h.pdfLimits)
	var rejected *pdfvalidation.RejectedError
	switch {
	case errors.As(err, &rejected):
		if errors.Is(err, pdfvalidation.ErrTooLarge) {
			return response.PayloadTooLarge(c, rejected.Message, "FILE_TOO_LARGE")
		}
		return response.BadRequest(c, rejected.Message)
	case err != nil:
		return response.InternalServerError(c, "Failed to read uploaded file")
	}

	res, err := h.ingestionService.ImportBulkPDF(c.UserContext(), userID, examID, section, content)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Created(c, res)
}

// GetIngestion returns one ingestion log
func (h *QuestionHandler) GetIngestion(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid ingestion ID")
	}

	entry, err := h.ingestionService.GetIngestion(c.UserContext(), id)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, entry)
}

// GetIngestionArchive streams the archived submission and result of one call
func (h *QuestionHandler) GetIngestionArchive(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid ingestion ID")
	}

	doc, err := h.ingestionService.GetIngestionArchive(c.UserContext(), id)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(doc)
}

// ListIngestions lists ingestion logs, filtered by ?exam_id=, ?status= and ?mode=
func (h *QuestionHandler) ListIngestions(c *fiber.Ctx) error {
	filter := services.IngestionFilter{
		Status: model.IngestionStatus(c.Query("status")),
		Mode:   model.IngestionMode(c.Query("mode")),
		Page:   max(c.QueryInt("page", 1), 1),
		Limit:  c.QueryInt("limit", 20),
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Mode != "" && !filter.Mode.Valid() {
		return response.BadRequest(c, "mode must be one of single, bulk, sections or pdf")
	}
	if raw := c.Query("exam_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return response.BadRequest(c, "Invalid exam_id")
		}
		examID := uint(id)
		filter.ExamID = &examID
	}

	entries, total, err := h.ingestionService.ListIngestions(c.UserContext(), filter)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Paginated(c, entries, response.CalculatePagination(filter.Page, filter.Limit, total))
}

func parseExamID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(id), nil
}
