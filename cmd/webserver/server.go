package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"pdfquiz"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const version = "1.0.0"

// generator is the part of *pdfquiz.Pipeline the server needs.
type generator interface {
	Generate(ctx context.Context, doc pdfquiz.Document, count int) (*pdfquiz.Result, error)
}

type Server struct {
	pipeline       generator
	db             *pdfquiz.DB
	metrics        *pdfquiz.Metrics
	logger         *logrus.Logger
	slots          *semaphore.Weighted
	limiter        *clientLimiter
	maxUploadBytes int64
	allowedOrigins []string
}

func newServer(cfg *pdfquiz.Config, pipeline generator, db *pdfquiz.DB, metrics *pdfquiz.Metrics, logger *logrus.Logger) *Server {
	s := &Server{
		pipeline:       pipeline,
		db:             db,
		metrics:        metrics,
		logger:         logger,
		slots:          semaphore.NewWeighted(int64(cfg.Server.MaxInFlight)),
		maxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		allowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Server.RatePerMinute > 0 {
		s.limiter = newClientLimiter(rate.Every(time.Minute/time.Duration(cfg.Server.RatePerMinute)), cfg.Server.RatePerMinute)
	}
	return s
}

// routes builds the echo instance with middleware and handlers.
func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.WithError(err).WithField("stack", string(stack)).Error("Recovered from panic")
			return err
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: true,
	}))
	e.Use(s.requestLogger)

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	// Multipart framing adds a little on top of the file itself.
	bodyLimit := fmt.Sprintf("%dK", (s.maxUploadBytes>>10)+64)
	e.POST("/upload", s.handleUpload, s.countUploads, middleware.BodyLimit(bodyLimit), s.rateLimit)
	e.GET("/quizzes", s.handleListQuizzes)
	e.GET("/quizzes/:id", s.handleGetQuiz)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	return e
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.WithFields(logrus.Fields{
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			"method":     c.Request().Method,
			"path":       c.Request().URL.Path,
			"status":     c.Response().Status,
			"elapsed":    time.Since(start).Round(time.Millisecond),
		}).Debug("Handled request")
		return nil
	}
}

// countUploads records the final status of every upload, including the
// ones rejected by the inner middleware.
func (s *Server) countUploads(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		if s.metrics != nil {
			s.metrics.UploadsTotal.WithLabelValues(strconv.Itoa(c.Response().Status)).Inc()
		}
		return nil
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.allow(c.RealIP()) {
			return &APIError{
				Status:  http.StatusTooManyRequests,
				Code:    "RateLimited",
				Message: "Too many uploads, please wait a moment and try again.",
			}
		}
		return next(c)
	}
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Welcome to the PDF quiz API",
		"status":  "online",
		"version": version,
		"endpoints": []map[string]string{
			{"path": "/", "method": "GET", "description": "This information"},
			{"path": "/health", "method": "GET", "description": "Health check endpoint"},
			{"path": "/upload", "method": "POST", "description": "Upload a PDF and generate MCQs"},
			{"path": "/quizzes", "method": "GET", "description": "List archived quizzes"},
			{"path": "/quizzes/:id", "method": "GET", "description": "Fetch an archived quiz"},
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

type uploadResponse struct {
	MCQs           []pdfquiz.MCQ `json:"mcqs"`
	TotalQuestions int           `json:"total_questions"`
	QuizID         string        `json:"quiz_id,omitempty"`
}

func (s *Server) handleUpload(c echo.Context) error {
	if !s.slots.TryAcquire(1) {
		return newServiceUnavailableError("Too many quizzes are being generated, please try again shortly.")
	}
	defer s.slots.Release(1)

	count := pdfquiz.DefaultQuestions
	if v := strings.TrimSpace(c.FormValue("num_questions")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return newBadRequestError(fmt.Sprintf("num_questions must be an integer, got %q", v))
		}
		count = n
	}
	if count < pdfquiz.MinQuestions || count > pdfquiz.MaxQuestions {
		return newBadRequestError(fmt.Sprintf("num_questions must be between %d and %d", pdfquiz.MinQuestions, pdfquiz.MaxQuestions))
	}

	file, err := c.FormFile("pdf")
	if err != nil {
		return newBadRequestError("no PDF provided in the \"pdf\" field")
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return newBadRequestError("only PDF files are accepted")
	}
	if file.Size > s.maxUploadBytes {
		return &APIError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "PayloadTooLarge",
			Stage:   string(pdfquiz.StageRequest),
			Message: fmt.Sprintf("PDF exceeds the %d MB limit", s.maxUploadBytes>>20),
		}
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, s.maxUploadBytes))
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return newBadRequestError("the uploaded PDF is empty")
	}

	ctx := c.Request().Context()
	result, err := s.pipeline.Generate(ctx, pdfquiz.Document{Data: data, Filename: file.Filename}, count)
	if err != nil {
		return err
	}

	resp := uploadResponse{MCQs: result.MCQs, TotalQuestions: result.TotalQuestions}
	if s.db != nil {
		if _, err := s.db.SaveQuiz(ctx, file.Filename, result); err != nil {
			s.logger.WithError(err).WithField("quiz_id", result.ID).Warn("Failed to archive quiz")
		} else {
			resp.QuizID = result.ID
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListQuizzes(c echo.Context) error {
	if s.db == nil {
		return newNotFoundError("archive", "not configured")
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return newBadRequestError("limit must be a non-negative integer")
		}
		limit = n
	}
	quizzes, err := s.db.GetQuizzes(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quizzes)
}

func (s *Server) handleGetQuiz(c echo.Context) error {
	if s.db == nil {
		return newNotFoundError("archive", "not configured")
	}
	id := c.Param("id")
	quiz, err := s.db.GetQuiz(c.Request().Context(), id)
	if errors.Is(err, pdfquiz.ErrQuizNotFound) {
		return newNotFoundError("quiz", id)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quiz)
}

// clientLimiter hands out one token bucket per client IP.
type clientLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleClient is how long a bucket survives without requests.
const idleClient = 10 * time.Minute

func newClientLimiter(every rate.Limit, burst int) *clientLimiter {
	return &clientLimiter{every: every, burst: burst, clients: make(map[string]*clientBucket)}
}

func (l *clientLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.clients {
		if now.Sub(b.lastSeen) > idleClient {
			delete(l.clients, key)
		}
	}

	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
