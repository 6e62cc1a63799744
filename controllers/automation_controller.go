package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/automation"
	"gympulse/models"
	"gympulse/utils"
	"gympulse/worker"
)

type AutomationController struct {
	DB     *gorm.DB
	Runner *worker.Runner
	Logger logrus.FieldLogger
}

func NewAutomationController(db *gorm.DB, runner *worker.Runner, logger logrus.FieldLogger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Runner: runner,
		Logger: logger,
	}
}

// RunAutomations evaluates the gym's active rules now.
func (ac *AutomationController) RunAutomations(c *fiber.Ctx) error {
	gym := gymID(c)
	results, err := ac.Runner.RunAutomations(c.UserContext(), gym)
	if errors.Is(err, worker.ErrRunInProgress) {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A run for this gym is already in progress", nil)
	}
	if err != nil {
		utils.LogError("automation_run", err, map[string]interface{}{"gym_id": gym})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to run automations", err)
	}

	triggered := 0
	for _, r := range results {
		if r.Triggered() {
			triggered++
		}
	}
	if results == nil {
		results = []automation.ExecutionResult{}
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"triggered": triggered,
		"results":   results,
	}))
}

func (ac *AutomationController) SeedDefaults(c *fiber.Ctx) error {
	rules, err := automation.SeedDefaultRules(c.UserContext(), ac.DB, gymID(c))
	if err != nil {
		utils.LogError("automation_seed", err, map[string]interface{}{"gym_id": gymID(c)})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to seed default rules", err)
	}
	if len(rules) == 0 {
		return c.JSON(utils.SuccessResponse(fiber.Map{"created": 0, "rules": []models.AutomationRule{}}))
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"created": len(rules),
		"rules":   rules,
	}))
}

func (ac *AutomationController) ListRules(c *fiber.Ctx) error {
	var rules []models.AutomationRule
	if err := ac.DB.WithContext(c.UserContext()).
		Scopes(models.ForGym(gymID(c))).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rules", err)
	}
	return c.JSON(utils.SuccessResponse(rules))
}

// UpdateRule toggles a rule on or off.
func (ac *AutomationController) UpdateRule(c *fiber.Ctx) error {
	ruleID, err := c.ParamsInt("id")
	if err != nil || ruleID <= 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid rule ID", err)
	}

	var input struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var rule models.AutomationRule
	err = ac.DB.WithContext(c.UserContext()).Scopes(models.ForGym(gymID(c))).First(&rule, ruleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule", err)
	}

	if err := ac.DB.WithContext(c.UserContext()).Model(&rule).Update("is_active", *input.IsActive).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update rule", err)
	}
	rule.IsActive = *input.IsActive
	ac.Logger.WithFields(logrus.Fields{
		"gym_id":    rule.GymID,
		"rule_id":   rule.ID,
		"is_active": rule.IsActive,
		"user_id":   userID(c),
	}).Info("automation rule updated")
	return c.JSON(utils.SuccessResponse(rule))
}
