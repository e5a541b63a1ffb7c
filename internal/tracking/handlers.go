package tracking

import (
	"errors"

	"backend-territory/internal/loop"
	"backend-territory/internal/session"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user")
		}
		ws, err := svc.StartSession(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(ws)
	})

	r.Post("/sessions/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		var req loop.GpsPoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.TimestampMs == 0 {
			req.TimestampMs = svc.now().UnixMilli()
		}
		res, err := svc.AddPoint(c.Context(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})

	r.Post("/sessions/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		ws, err := svc.StopSession(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ws)
	})

	r.Get("/sessions/:id/summary", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		summary, err := svc.Summary(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(summary)
	})

	r.Get("/sessions/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		points, err := svc.Points(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(points)
	})

	r.Get("/sessions/:id/loops", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		loops, err := svc.Loops(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(loops)
	})

	r.Post("/loops/detect", authMiddleware, func(c *fiber.Ctx) error {
		var req DetectRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.Detect(req.Points, req.Config)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})
}

func httpError(err error) error {
	var verr *loop.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionEnded), errors.Is(err, loop.ErrStopped):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
