package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

// DefaultBodyLimit leaves room for PDF question papers
const DefaultBodyLimit = 12 * 1024 * 1024

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

func NewAPIServer(listenAddress string) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "exam-prep-api",
			BodyLimit:    DefaultBodyLimit,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
		}),
		listenAddress: listenAddress,
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	utils.L().Info("starting API server", "address", s.listenAddress)
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *APIServer) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
