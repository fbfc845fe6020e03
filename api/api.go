package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/papercomputeco/tana-helper/pkg/translator"
)

// Translator runs the Tana operations. *translator.Service satisfies it.
type Translator interface {
	ParseRequest(body []byte) (*translator.Request, error)
	Upsert(ctx context.Context, req *translator.Request) error
	Query(ctx context.Context, req *translator.Request) (string, error)
	QueryText(ctx context.Context, req *translator.Request) ([]translator.TextResult, error)
	Delete(ctx context.Context, req *translator.Request) error
}

// Server is the tana-helper API server
type Server struct {
	config     Config
	translator Translator
	logger     *slog.Logger
	app        *fiber.App
}

// routePrefixes lists the mount points of the translator routes. Older Tana
// command templates call the /pinecone paths.
var routePrefixes = []string{"", "/pinecone"}

// NewServer creates a new API server.
func NewServer(config Config, t Translator, logger *slog.Logger) (*Server, error) {
	if t == nil {
		return nil, errors.New("translator is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if !config.LocalService && config.Verifier == nil {
		return nil, errors.New("token verifier is required when not running as a local service")
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = DefaultCORSOrigin
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:     config,
		translator: t,
		logger:     logger,
		app:        app,
	}

	app.Use(requestid.New())
	app.Use(s.logRequests)
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.CORSOrigin,
		AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost}, ","),
		AllowHeaders: strings.Join([]string{
			fiber.HeaderOrigin,
			fiber.HeaderContentType,
			fiber.HeaderAccept,
			fiber.HeaderAuthorization,
			headerOpenAIKey,
			headerPineconeKey,
		}, ","),
	}))
	if !config.LocalService {
		app.Use(s.requireToken)
	}

	app.Get("/", s.handleStatus)
	app.Post("/log", s.handleLog)
	app.Post("/inlinerefs", s.handleInlineRefs)

	for _, prefix := range routePrefixes {
		app.Post(prefix+"/upsert", s.handleUpsert)
		app.Post(prefix+"/query", s.handleQuery)
		app.Post(prefix+"/query_text", s.handleQueryText)
		app.Post(prefix+"/delete", s.handleDelete)
		app.Post(prefix+"/purge", s.handlePurge)
	}

	if config.Settings != nil {
		app.Get("/configuration", s.handleGetConfiguration)
		app.Post("/configuration", s.handleSetConfiguration)
	}

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"local_service", s.config.LocalService,
		"mcp", s.config.MCPHandler != nil,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
