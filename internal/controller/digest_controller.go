package controller

import (
	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/pkg/serverutils"
	"concept-digest-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDigestController interface {
	RegisterRoutes(r fiber.Router)
	Process(ctx *fiber.Ctx) error
}

type digestController struct {
	service service.IDigestService
}

func NewDigestController(service service.IDigestService) IDigestController {
	return &digestController{service: service}
}

func (c *digestController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/digest/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Process)
}

func (c *digestController) Process(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.DigestRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Process(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success process article", res))
}
