package api

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tana-helper/pkg/config"
)

// handleGetConfiguration returns the persisted configuration with secrets
// masked.
func (s *Server) handleGetConfiguration(c *fiber.Ctx) error {
	cfg, err := s.config.Settings.LoadConfig()
	if err != nil {
		s.logger.Error("loading configuration", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load configuration"})
	}
	return c.JSON(config.Values(cfg, false))
}

// handleSetConfiguration persists dotted key values. Changes apply on the
// next start.
func (s *Server) handleSetConfiguration(c *fiber.Ctx) error {
	var body map[string]any
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "body must be a JSON object of configuration keys"})
	}
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "no configuration keys given"})
	}

	values := make(map[string]string, len(body))
	for key, raw := range body {
		if !config.IsValidConfigKey(key) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fmt.Sprintf("unknown config key: %q", key)})
		}
		value, err := settingString(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fmt.Sprintf("%s: %v", key, err)})
		}
		values[key] = value
	}

	if err := s.config.Settings.SetConfigValues(values); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	s.logger.Info("configuration updated", "keys", len(values))
	return s.handleGetConfiguration(c)
}

func settingString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("value must be a string, number or boolean")
	}
}
