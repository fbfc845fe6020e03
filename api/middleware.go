package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tana-helper/api/auth"
)

// logRequests logs one line per request with its id and duration.
func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	s.logger.Info("request",
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return err
}

// requireToken rejects requests without a valid bearer token. The status
// route stays open for health checks.
func (s *Server) requireToken(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodGet && c.Path() == "/" {
		return c.Next()
	}

	token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if err == nil {
		_, err = s.config.Verifier.Verify(c.Context(), token)
	}
	if err != nil {
		s.logger.Debug("rejected request", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
	}

	return c.Next()
}
