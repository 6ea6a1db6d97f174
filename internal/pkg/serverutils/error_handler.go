package serverutils

import (
	"errors"

	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/digest/pipeline"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error kind to the HTTP status returned to clients.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindExtraction, apperr.KindEmbedding:
		return fiber.StatusUnprocessableEntity
	case apperr.KindProvider:
		return fiber.StatusBadGateway
	case apperr.KindProviderTransient:
		return fiber.StatusServiceUnavailable
	case apperr.KindCanceled:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error as an ErrorBody. Pipeline failures
// carry the failing stage and run id.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	body := ErrorBody{Message: err.Error()}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		body.Code = fiberErr.Code
		return ctx.Status(body.Code).JSON(body)
	}

	kind := apperr.KindOf(err)
	body.Kind = string(kind)
	body.Code = StatusFor(kind)

	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		body.Stage = string(runErr.Stage)
		body.RunId = runErr.RunID.String()
	}
	if body.Code == fiber.StatusInternalServerError {
		body.Message = "internal server error"
		if runErr != nil {
			body.Message = "digest run failed during " + string(runErr.Stage)
		}
	}
	return ctx.Status(body.Code).JSON(body)
}

// ErrorHandlerMiddleware converts errors returned by downstream handlers
// before fiber's default handler sees them.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return ErrorHandler(ctx, err)
	}
}
