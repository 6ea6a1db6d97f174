package controller

import (
	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/pkg/serverutils"
	"concept-digest-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IConceptController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Domains(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
}

type conceptController struct {
	service service.IConceptService
}

func NewConceptController(service service.IConceptService) IConceptController {
	return &conceptController{service: service}
}

func (c *conceptController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/concept/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("", c.List)
	h.Get("domains", c.Domains)
	h.Get("stats", c.Stats)
	h.Get("search", c.Search)
}

func (c *conceptController) List(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.List(ctx.UserContext(), userId, ctx.Query("domain"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get concepts", res))
}

func (c *conceptController) Domains(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Domains(ctx.UserContext(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get domains", res))
}

func (c *conceptController) Stats(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Stats(ctx.UserContext(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get stats", res))
}

func (c *conceptController) Search(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ConceptSearchRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Search(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success search concepts", res))
}
