package xp

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/leaderboard", authMiddleware, func(c *fiber.Ctx) error {
		window := c.Query("window", "today")
		if _, err := WindowByName(window, svc.now(), svc.loc); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var scope string
		switch c.Query("scope", "global") {
		case "global":
		case "friends":
			userID, _ := c.Locals("user_id").(string)
			if userID == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "user required for friends scope")
			}
			scope = userID
		default:
			return fiber.NewError(fiber.StatusBadRequest, "scope must be global or friends")
		}

		entries, err := svc.Leaderboard(c.Context(), window, c.QueryInt("limit", DefaultLimit), scope)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if entries == nil {
			entries = []Entry{}
		}
		return c.JSON(entries)
	})

	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user")
		}
		window := c.Query("window", "today")
		if _, err := WindowByName(window, svc.now(), svc.loc); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		me, err := svc.Me(c.Context(), userID, window)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(me)
	})
}
