package server

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"courserag/internal/domain"
	"courserag/internal/service"
)

type QueryRequest struct {
	Query     *string `json:"query" validate:"required"`
	SessionID string  `json:"session_id"`
}

type QueryResponse struct {
	Answer    string          `json:"answer"`
	Sources   []domain.Source `json:"sources"`
	SessionID string          `json:"session_id"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type Config struct {
	Addr         string
	CORSOrigins  string
	QueryTimeout time.Duration
}

type Server struct {
	app      *fiber.App
	svc      domain.QueryService
	validate *validator.Validate
	log      *zap.Logger
	cfg      Config
}

func New(cfg Config, svc domain.QueryService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	s := &Server{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		cfg:      cfg,
	}
	app := fiber.New(fiber.Config{
		AppName:               "courserag",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	s.RegisterRoutes(app.Group("/api"))
	s.app = app
	return s
}

func (s *Server) RegisterRoutes(r fiber.Router) {
	r.Post("/query", s.Query)
	r.Get("/courses", s.Courses)
	r.Post("/sessions", s.CreateSession)
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Run() error {
	s.log.Info("server listening", zap.String("addr", s.cfg.Addr))
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) Query(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "invalid request body: "+err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	if err := service.ValidateQuery(*req.Query); err != nil {
		return err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.svc.CreateSession()
	}
	ctx := c.UserContext()
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}
	ans, err := s.svc.Query(ctx, *req.Query, sessionID)
	if err != nil {
		return err
	}
	return c.JSON(QueryResponse{Answer: ans.Text, Sources: ans.Sources, SessionID: sessionID})
}

func (s *Server) Courses(c *fiber.Ctx) error {
	stats, err := s.svc.CourseAnalytics(c.UserContext())
	if err != nil {
		return err
	}
	if stats.CourseTitles == nil {
		stats.CourseTitles = []string{}
	}
	return c.JSON(stats)
}

func (s *Server) CreateSession(c *fiber.Ctx) error {
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{SessionID: s.svc.CreateSession()})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, service.ErrInvalidQuery):
		code = fiber.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		code = fiber.StatusGatewayTimeout
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(errorResponse{Detail: err.Error()})
}
