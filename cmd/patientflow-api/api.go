// Package main provides the patientflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/dukex/patientflow/pkg/services"
	"github.com/dukex/patientflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      *engine.Engine
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	engine *engine.Engine,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		engine:      engine,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	flowService := services.NewFlow(a.persistence)
	executionService := services.NewExecution(a.persistence, a.engine)

	handlers := web.NewAPIHandlers(flowService, executionService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Patientflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
