package controller

import (
	"context"
	"errors"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/internal/pkg/serverutils"
	"ai-answer-engine-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// streamDeadline bounds one websocket query end to end; deep mode with a
// replan can legitimately take tens of seconds.
const streamDeadline = 2 * time.Minute

type IQueryController interface {
	RegisterRoutes(r fiber.Router)
	Ask(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	Recommendations(ctx *fiber.Ctx) error
}

type queryController struct {
	queryService          service.IQueryService
	recommendationService service.IRecommendationService
}

func NewQueryController(queryService service.IQueryService, recommendationService service.IRecommendationService) IQueryController {
	return &queryController{
		queryService:          queryService,
		recommendationService: recommendationService,
	}
}

// authMiddleware accepts the token from the query string or bearer header;
// websocket clients cannot set headers on the upgrade request.
func (c *queryController) authMiddleware(ctx *fiber.Ctx) error {
	tokenStr := serverutils.TokenFromRequest(ctx)
	if tokenStr == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing or invalid authorization header"))
	}

	claims, err := serverutils.ParseToken(tokenStr)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid or expired token"))
	}

	if userId, exists := claims["user_id"]; exists {
		ctx.Locals("user_id", userId)
	}

	return ctx.Next()
}

func (c *queryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/query/v1")
	h.Use(c.authMiddleware)

	h.Post("", c.Ask)
	h.Get("stream", c.Stream)
	h.Get("recommendations", c.Recommendations)
}

func (c *queryController) Ask(ctx *fiber.Ctx) error {
	var req dto.QueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.queryService.Run(ctx.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			return ctx.Status(fiber.StatusTooManyRequests).
				JSON(serverutils.ErrorResponse(fiber.StatusTooManyRequests, "Server is at capacity, please retry shortly"))
		}
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success process query", res))
}

// Stream upgrades to a websocket, reads one QueryRequest frame and replays
// the pipeline result as a token stream.
func (c *queryController) Stream(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		var req dto.QueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			_ = conn.WriteJSON(dto.StreamEvent{Type: dto.StreamEventError, Error: "Invalid request frame"})
			return
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			_ = conn.WriteJSON(dto.StreamEvent{Type: dto.StreamEventError, Error: "Validation failed: " + err.Error()})
			return
		}

		// The fiber context dies with the upgrade, so the run gets its own.
		runCtx, cancel := context.WithTimeout(context.Background(), streamDeadline)
		defer cancel()

		_ = c.queryService.RunStream(runCtx, &req, func(event dto.StreamEvent) error {
			return conn.WriteJSON(event)
		})
	})(ctx)
}

func (c *queryController) Recommendations(ctx *fiber.Ctx) error {
	sessionId := ctx.Query("session_id")

	res, err := c.recommendationService.Recommend(ctx.UserContext(), sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success fetch recommendations", res))
}
