package serverutils

import (
	"errors"

	"promochat/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders handler errors as {"message": ...} with the status of
// a *fiber.Error, or 500 for anything else.
func ErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(), "path": ctx.Path(), "error": err.Error(),
			})
		}
		return ctx.Status(code).JSON(fiber.Map{"message": err.Error()})
	}
}
