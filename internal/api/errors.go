package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
)

// statusFor maps a NextGen failure onto the gateway's response status.
func statusFor(err error) int {
	var apiErr *nextgen.Error
	if !errors.As(err, &apiErr) {
		return fiber.StatusInternalServerError
	}
	switch apiErr.Kind {
	case nextgen.KindValidation:
		return fiber.StatusBadRequest
	case nextgen.KindRateLimit:
		return fiber.StatusTooManyRequests
	case nextgen.KindNetwork:
		return fiber.StatusGatewayTimeout
	case nextgen.KindClient:
		if apiErr.StatusCode == http.StatusNotFound {
			return fiber.StatusNotFound
		}
	}
	return fiber.StatusBadGateway
}

func errorBody(err error) fiber.Map {
	body := fiber.Map{"error": err.Error()}
	var apiErr *nextgen.Error
	if errors.As(err, &apiErr) {
		body["kind"] = apiErr.Kind.String()
		if apiErr.StatusCode != 0 {
			body["upstream_status"] = apiErr.StatusCode
		}
	}
	return body
}
