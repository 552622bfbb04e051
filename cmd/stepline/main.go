// Package main provides the stepline CLI for one-shot workflow runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/engine"
	"github.com/stepline/stepline/pkg/log"
)

func main() {
	logger := log.WithModule("cli")

	command := &cli.Command{
		Name:                  "stepline",
		Usage:                 "Run HTTP call-chain workflows from the command line",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Execute a named workflow and print the result",
				ArgsUsage: "<workflow-name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "database-url",
						Usage:   "Database connection URL for persistence",
						Value:   "file://./data",
						Sources: cli.EnvVars("DATABASE_URL"),
					},
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Run input as a JSON object",
						Value:   "{}",
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "warn",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					workflowName := command.Args().First()
					if workflowName == "" {
						return errors.New("workflow name is required")
					}

					var input map[string]any

					err := json.Unmarshal([]byte(command.String("input")), &input)
					if err != nil {
						return fmt.Errorf("invalid input JSON: %w", err)
					}

					persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

					defer func() {
						err := persistence.Close(ctx)
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
						}
					}()

					runner := engine.NewEngine(logger, persistence, nil, nil)

					result, err := runner.Run(ctx, workflowName, input)
					if err != nil {
						return err
					}

					output, err := json.MarshalIndent(result, "", "  ")
					if err != nil {
						return err
					}

					fmt.Println(string(output))

					return nil
				},
			},
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
