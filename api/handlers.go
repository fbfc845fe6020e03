package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tana-helper/api/auth"
	"github.com/papercomputeco/tana-helper/pkg/tana"
	"github.com/papercomputeco/tana-helper/pkg/translator"
	"github.com/papercomputeco/tana-helper/pkg/vector"
)

const (
	headerOpenAIKey   = "X-OpenAI-API-Key"
	headerPineconeKey = "X-Pinecone-API-Key"

	purgeResponse = "Not yet implemented"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of the status route.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleStatus returns a simple health check response.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{Success: true, Message: "It is working"})
}

// handleLog writes the posted body to the server log.
func (s *Server) handleLog(c *fiber.Ctx) error {
	s.logger.Info("tana log", "body", string(c.Body()))
	return c.SendStatus(fiber.StatusOK)
}

// handleUpsert embeds and stores a node.
func (s *Server) handleUpsert(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return s.sendError(c, err)
	}

	if err := s.translator.Upsert(c.Context(), req); err != nil {
		return s.sendError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// handleQuery returns the matching nodes as Tana Paste.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return s.sendError(c, err)
	}

	paste, err := s.translator.Query(c.Context(), req)
	if err != nil {
		return s.sendError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(paste)
}

// handleQueryText returns the matching nodes with their stored text.
func (s *Server) handleQueryText(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return s.sendError(c, err)
	}

	results, err := s.translator.QueryText(c.Context(), req)
	if err != nil {
		return s.sendError(c, err)
	}
	return c.JSON(results)
}

// handleDelete removes a node.
func (s *Server) handleDelete(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return s.sendError(c, err)
	}

	if err := s.translator.Delete(c.Context(), req); err != nil {
		return s.sendError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handlePurge(c *fiber.Ctx) error {
	return c.SendString(purgeResponse)
}

// handleInlineRefs lists the [[...]] references in the node context as
// Tana Paste fields, or answers 204 when there are none.
func (s *Server) handleInlineRefs(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return s.sendError(c, err)
	}

	refs := tana.InlineRefs(req.Context)
	if len(refs) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(tana.RenderInlineRefs(refs))
}

// parseRequest validates the body, which Tana sends as text/plain JSON, and
// fills credentials the payload omits from the request headers.
func (s *Server) parseRequest(c *fiber.Ctx) (*translator.Request, error) {
	req, err := s.translator.ParseRequest(c.Body())
	if err != nil {
		return nil, err
	}

	if req.Overrides.OpenAIKey == "" {
		req.Overrides.OpenAIKey = c.Get(headerOpenAIKey)
	}
	if req.Overrides.PineconeKey == "" {
		req.Overrides.PineconeKey = c.Get(headerPineconeKey)
	}
	return req, nil
}

func (s *Server) sendError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, translator.ErrMissingNodeID), errors.Is(err, translator.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, vector.ErrEmbedding), errors.Is(err, vector.ErrStore), errors.Is(err, vector.ErrConnection):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
