// hyperbilling CLI - AWS HyperBilling cost datasource plugin
//
// Usage:
//   hyperbilling verify --request verify.json
//   hyperbilling get-tasks --request tasks.json
//   hyperbilling get-data --request data.json
//   hyperbilling serve --port 50051
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/spaceone"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/datasource"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/pipeline"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/planner"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/server"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "hyperbilling",
		Usage:   "AWS HyperBilling cost datasource plugin for SpaceONE",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},

		Commands: []*cli.Command{
			verifyCommand(),
			getTasksCommand(),
			getDataCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Verify the coordinator and billing-bucket credentials",
		Flags: []cli.Flag{requestFlag()},
		Action: func(c *cli.Context) error {
			log := newLogger(c)

			var req api.VerifyRequest
			if err := readRequest(c.String("request"), &req); err != nil {
				return err
			}

			if err := datasource.New(log).Verify(context.Background(), req.Options, req.SecretData, req.DomainID); err != nil {
				return err
			}

			fmt.Println("credentials verified")
			return nil
		},
	}
}

func getTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "get-tasks",
		Usage: "Plan the sync tasks for one collection pass",
		Flags: []cli.Flag{requestFlag()},
		Action: func(c *cli.Context) error {
			log := newLogger(c)
			ctx := context.Background()

			var req api.GetTasksRequest
			if err := readRequest(c.String("request"), &req); err != nil {
				return err
			}
			if req.Options == nil {
				req.Options = &api.Options{}
			}
			if err := datasource.ValidateOptions(req.Options); err != nil {
				return err
			}

			coordinator, err := spaceone.NewClient(req.SecretData, log)
			if err != nil && req.Options.TaskType != api.TaskTypeDirectory {
				return err
			}

			var lister planner.PrefixLister
			if req.Options.TaskType == api.TaskTypeDirectory {
				store, err := awss3.NewConnector(ctx, req.SecretData, log)
				if err != nil {
					return err
				}
				lister = store
			}

			resp, err := planner.New(coordinator, lister, log).GetTasks(ctx, &req)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func getDataCommand() *cli.Command {
	return &cli.Command{
		Name:  "get-data",
		Usage: "Stream normalized cost batches for one task as NDJSON",
		Flags: []cli.Flag{requestFlag()},
		Action: func(c *cli.Context) error {
			log := newLogger(c)
			ctx := context.Background()

			var req api.GetDataRequest
			if err := readRequest(c.String("request"), &req); err != nil {
				return err
			}
			if req.Options == nil {
				req.Options = &api.Options{}
			}
			if err := datasource.ValidateOptions(req.Options); err != nil {
				return err
			}

			store, err := awss3.NewConnector(ctx, req.SecretData, log)
			if err != nil {
				return err
			}

			var coordinator pipeline.Coordinator
			if task := req.TaskOptions; task != nil && task.TaskType != api.TaskTypeDirectory && task.IsSync == "false" {
				client, err := spaceone.NewClient(req.SecretData, log)
				if err != nil {
					return err
				}
				coordinator = client
			}

			stream, err := pipeline.New(store, coordinator, log).Stream(ctx, req.TaskOptions, req.Options.IncludeCredit)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			for stream.Next(ctx) {
				if err := encoder.Encode(stream.Batch()); err != nil {
					return err
				}
			}
			return stream.Err()
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the plugin HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Value:   "50051",
				Usage:   "Listen port",
				EnvVars: []string{"PORT"},
			},
		},
		Action: func(c *cli.Context) error {
			log := newLogger(c)

			port := c.String("port")
			log.Info().Str("port", port).Msg("starting AWS HyperBilling cost datasource plugin")
			return http.ListenAndServe(":"+port, server.New(log).Router())
		},
	}
}

func requestFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "request",
		Aliases: []string{"r"},
		Value:   "-",
		Usage:   "Path to the JSON request payload ('-' for stdin)",
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func readRequest(path string, out interface{}) error {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read request payload: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode request payload: %w", err)
	}
	return nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
