// Package main provides the Stepline API server implementation.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepline/stepline/pkg/engine"
	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/otelhelper"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/services"
	"github.com/stepline/stepline/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App(tracer trace.Tracer) *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.logger)
	executionService := services.NewExecution(a.persistence, a.logger)
	runner := engine.NewEngine(a.logger, a.persistence, a.eventBus, tracer)

	handlers := web.NewAPIHandlers(workflowService, executionService, runner, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepline API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/upload", handlers.UploadWorkflow)
	w.Post("/run/:name", handlers.RunWorkflow)
	w.Get("/executions", handlers.GetExecutions)
	w.Get("/executions/:id", handlers.GetExecution)
	w.Get("/:name", handlers.GetWorkflow)
	w.Put("/:name", handlers.UpdateWorkflow)
	w.Delete("/:name", handlers.DeleteWorkflow)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	var tracer trace.Tracer

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		t, err := otelhelper.NewTracer(ctx, "stepline-api")
		if err != nil {
			return err
		}

		tracer = t
	}

	app := a.App(tracer)

	return app.Listen(":" + strconv.Itoa(port))
}
