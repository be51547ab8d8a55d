package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"fortunemagnet/internal/auth"
	"fortunemagnet/internal/service"
)

// Actions accepted by the fortune-photo function besides the default finalize.
const (
	ActionFinalize = "FINALIZE"
	ActionSignOnly = "SIGN_ONLY"
	ActionDelete   = "DELETE"
)

// ticketRequest is the body of POST /functions/photo-ticket.
type ticketRequest struct {
	FortuneID    string `json:"fortune_id"`
	FortuneIDAlt string `json:"fortuneId"`
	Mime         string `json:"mime"`
}

// photoRequest is the body of POST /functions/fortune-photo.
type photoRequest struct {
	Action       string `json:"action"`
	FortuneID    string `json:"fortune_id"`
	FortuneIDAlt string `json:"fortuneId"`
	Bucket       string `json:"bucket"`
	Path         string `json:"path"`
	Mime         string `json:"mime"`
	Width        *int   `json:"width"`
	Height       *int   `json:"height"`
	SizeBytes    *int64 `json:"size_bytes"`
	TTLSec       int    `json:"ttlSec"`
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// IssueTicket authorizes a single photo upload.
//
// @Summary Issue an upload ticket
// @Tags photos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ticketRequest true "fortune and mime"
// @Success 200 {object} model.UploadTicket
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /functions/photo-ticket [post]
func IssueTicket(svc service.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ticketRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		ticket, err := svc.IssueTicket(c.UserContext(), auth.UserID(c), service.TicketInput{
			FortuneID: pick(req.FortuneID, req.FortuneIDAlt),
			Mime:      req.Mime,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(ticket.Wire())
	}
}

// FortunePhoto finalizes an upload, or runs SIGN_ONLY / DELETE when action is set.
//
// @Summary Finalize, re-sign or delete a fortune photo
// @Tags photos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body photoRequest true "finalize body or action"
// @Success 200 {object} service.FinalizeResult
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /functions/fortune-photo [post]
func FortunePhoto(svc service.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req photoRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		userID := auth.UserID(c)
		fortuneID := pick(req.FortuneID, req.FortuneIDAlt)

		switch strings.ToUpper(req.Action) {
		case "", ActionFinalize:
			res, err := svc.Finalize(c.UserContext(), userID, service.FinalizeInput{
				FortuneID: fortuneID,
				Bucket:    req.Bucket,
				Path:      req.Path,
				Mime:      req.Mime,
				Width:     req.Width,
				Height:    req.Height,
				SizeBytes: req.SizeBytes,
			})
			if err != nil {
				return writeServiceError(c, err)
			}
			return c.JSON(fiber.Map{"signedUrl": res.SignedURL, "replaced": res.Replaced})

		case ActionSignOnly:
			if req.TTLSec < 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_TTL", "ttlSec must not be negative")
			}
			u, err := svc.SignOnly(c.UserContext(), userID, fortuneID, time.Duration(req.TTLSec)*time.Second)
			if err != nil {
				return writeServiceError(c, err)
			}
			if u == "" {
				return c.JSON(fiber.Map{"signedUrl": nil})
			}
			return c.JSON(fiber.Map{"signedUrl": u})

		case ActionDelete:
			if err := svc.DeletePhoto(c.UserContext(), userID, fortuneID); err != nil {
				return writeServiceError(c, err)
			}
			return c.JSON(fiber.Map{"deleted": true})

		default:
			return writeError(c, fiber.StatusBadRequest, "UNKNOWN_ACTION", "unknown action")
		}
	}
}

// GetFortunePhoto returns the media record of a fortune.
//
// @Summary Get fortune photo metadata
// @Tags photos
// @Produce json
// @Security BearerAuth
// @Param fortune_id query string true "fortune id"
// @Success 200 {object} map[string]model.MediaRecord
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /functions/fortune-photo [get]
func GetFortunePhoto(svc service.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fortuneID := pick(c.Query("fortune_id"), c.Query("fortuneId"))
		rec, err := svc.GetMedia(c.UserContext(), auth.UserID(c), fortuneID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"entry": rec})
	}
}
