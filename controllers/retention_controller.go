package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/risk"
	"gympulse/utils"
	"gympulse/worker"
)

type RetentionController struct {
	DB     *gorm.DB
	Runner *worker.Runner
	Logger logrus.FieldLogger
	Now    func() time.Time
}

func NewRetentionController(db *gorm.DB, runner *worker.Runner, logger logrus.FieldLogger) *RetentionController {
	return &RetentionController{
		DB:     db,
		Runner: runner,
		Logger: logger,
		Now:    time.Now,
	}
}

// RunRetention runs the daily risk cycle for the caller's gym right away.
func (rc *RetentionController) RunRetention(c *fiber.Ctx) error {
	gym := gymID(c)
	summary, err := rc.Runner.RunRisk(c.UserContext(), gym)
	if errors.Is(err, worker.ErrRunInProgress) {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A run for this gym is already in progress", nil)
	}
	if err != nil {
		utils.LogError("retention_run", err, map[string]interface{}{"gym_id": gym})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to run retention cycle", err)
	}

	utils.LogEvent("retention_run", map[string]interface{}{
		"gym_id":                gym,
		"user_id":               userID(c),
		"members_analyzed":      summary.MembersAnalyzed,
		"alerts_processed":      summary.AlertsProcessed,
		"automations_triggered": summary.AutomationsTriggered,
	})
	return c.JSON(utils.SuccessResponse(summary))
}

// ResolveAlert closes an open risk alert on behalf of the caller.
func (rc *RetentionController) ResolveAlert(c *fiber.Ctx) error {
	alertID, err := c.ParamsInt("id")
	if err != nil || alertID <= 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid alert ID", err)
	}

	var input struct {
		Note string `json:"note" validate:"max=500"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
		if err := utils.ValidateStruct(input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
		}
	}

	uid := userID(c)
	alert, err := risk.ResolveAlert(c.UserContext(), rc.DB, gymID(c), uint(alertID), &uid, input.Note, rc.Now())
	if errors.Is(err, risk.ErrAlertNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Risk alert not found", nil)
	}
	if err != nil {
		utils.LogError("alert_resolve", err, map[string]interface{}{"gym_id": gymID(c), "alert_id": alertID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve alert", err)
	}
	return c.JSON(utils.SuccessResponse(alert))
}
