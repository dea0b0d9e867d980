package controller

import (
	"strconv"

	"ai-answer-engine-be/internal/pkg/logger"
	"ai-answer-engine-be/internal/pkg/serverutils"
	"ai-answer-engine-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	GetPipelineMetrics(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
}

type adminController struct {
	metricsService service.IMetricsService
	logger         logger.ILogger
}

func NewAdminController(metricsService service.IMetricsService, logger logger.ILogger) IAdminController {
	return &adminController{
		metricsService: metricsService,
		logger:         logger,
	}
}

func (c *adminController) adminMiddleware(ctx *fiber.Ctx) error {
	tokenStr := serverutils.TokenFromRequest(ctx)
	if tokenStr == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing or invalid authorization header"))
	}

	claims, err := serverutils.ParseToken(tokenStr)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid or expired token"))
	}

	role, ok := claims["role"].(string)
	if !ok {
		return ctx.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponse(403, "Access denied: Role missing"))
	}
	if role != "admin" {
		return ctx.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponse(403, "Access denied: Admins only"))
	}

	if userId, exists := claims["user_id"]; exists {
		ctx.Locals("user_id", userId)
	}

	return ctx.Next()
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(c.adminMiddleware)

	h.Get("/pipeline/metrics", c.GetPipelineMetrics)
	h.Get("/pipeline/logs", c.GetLogs)
}

func (c *adminController) GetPipelineMetrics(ctx *fiber.Ctx) error {
	snapshot, err := c.metricsService.Snapshot(ctx.Context())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Pipeline metrics", snapshot))
}

func (c *adminController) GetLogs(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	limit, _ := strconv.Atoi(ctx.Query("limit", "20"))
	level := ctx.Query("level", "")

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}

	logs, err := c.logger.GetLogs(level, limit, (page-1)*limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", logs))
}
