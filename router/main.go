package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/handlers"
	auth_handlers "github.com/sahilchouksey/exam-prep-api/handlers/auth"
	exam_handlers "github.com/sahilchouksey/exam-prep-api/handlers/exam"
	question_handlers "github.com/sahilchouksey/exam-prep-api/handlers/question"
	"github.com/sahilchouksey/exam-prep-api/services"
	"github.com/sahilchouksey/exam-prep-api/utils/auth"
	"github.com/sahilchouksey/exam-prep-api/utils/middleware"
	"gorm.io/gorm"
)

// Dependencies are the shared services the routes are built from
type Dependencies struct {
	Store            database.Storage
	DB               *gorm.DB
	JWTManager       *auth.JWTManager
	BruteForce       *middleware.BruteForceProtection
	Quota            *middleware.IngestionQuota
	ExamService      *services.ExamService
	IngestionService *services.IngestionService
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	authMiddleware := middleware.NewAuthMiddleware(deps.JWTManager, deps.DB)

	authHandler := auth_handlers.NewAuthHandler(deps.DB, deps.JWTManager, deps.BruteForce)
	examHandler := exam_handlers.NewExamHandler(deps.ExamService, deps.IngestionService)
	questionHandler := question_handlers.NewQuestionHandler(deps.IngestionService)

	// Health checks (public)
	app.Get("/ping", handlers.HandleCheckHealth)
	app.Get("/health", handlers.HandleReadiness(deps.Store))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/login", deps.BruteForce.CheckLockout(), authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.GetProfile)

	// Published exams (public)
	exams := api.Group("/exams")
	exams.Get("/", examHandler.ListPublishedExams)
	exams.Get("/:id", examHandler.GetPublishedExam)
	exams.Get("/:id/questions", examHandler.ListPublishedQuestions)

	// ==================== Admin: exam authoring ====================

	admin := api.Group("/admin", authMiddleware.RequireAdmin())

	adminExams := admin.Group("/exams")
	adminExams.Get("/", examHandler.ListAllExams)
	adminExams.Post("/", examHandler.CreateExam)
	adminExams.Get("/:id", examHandler.GetExam)
	adminExams.Patch("/:id/status", examHandler.UpdateStatus)
	adminExams.Get("/:id/questions", examHandler.ListQuestions)
	adminExams.Post("/:id/questions", examHandler.AddManualQuestion)
	adminExams.Delete("/:id/questions/:question_id", examHandler.DeleteQuestion)

	// Extraction calls reach the inference provider and count against the quota
	quota := deps.Quota.Enforce()
	adminExams.Post("/:id/questions/import", quota, questionHandler.Import)
	adminExams.Post("/:id/questions/import-sections", quota, questionHandler.ImportSections)
	adminExams.Post("/:id/questions/import-pdf", quota, questionHandler.ImportPDF)

	questions := admin.Group("/questions", quota)
	questions.Post("/parse", questionHandler.ParseSingle)
	questions.Post("/parse-bulk", questionHandler.ParseBulk)

	// Ingestion audit log
	admin.Get("/ingestions", questionHandler.ListIngestions)
	admin.Get("/ingestions/:id", questionHandler.GetIngestion)
	admin.Get("/ingestions/:id/archive", questionHandler.GetIngestionArchive)
}
