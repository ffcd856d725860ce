// Package main provides the aio-iiif command line tool. It runs the same
// parsing, resolution and rendering as the server, without HTTP in front.
//
//	iiif-cli plan 'http://example.org/cat.jpg/full/pct:50/0/default.jpg' --width 400 --height 300
//	iiif-cli info http://example.org/cat.jpg
//	iiif-cli render 'http://example.org/cat.jpg/square/max/!90/gray.png' -o cat.png
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/config"
	"github.com/greut/aio-iiif/internal/engine"
	"github.com/greut/aio-iiif/internal/fetch"
	"github.com/greut/aio-iiif/internal/iiif"
	"github.com/greut/aio-iiif/internal/metrics"
	"github.com/greut/aio-iiif/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "iiif-cli",
		Short:        "IIIF image tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("IIIF_CONFIG_PATH"), "path to a YAML config file")

	root.AddCommand(planCmd(), infoCmd(&configPath), renderCmd(&configPath))
	return root
}

// planOutput is what `plan` prints.
type planOutput struct {
	Plan   *iiif.TransformPlan `json:"plan"`
	Steps  []iiif.Step         `json:"steps"`
	Output iiif.Dimensions     `json:"output"`
}

func planCmd() *cobra.Command {
	var width, height int

	cmd := &cobra.Command{
		Use:   "plan <path>",
		Short: "Resolve an image request against source dimensions and print the plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.OutOrStdout(), args[0], iiif.Dimensions{Width: width, Height: height})
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "source width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "source height in pixels")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func runPlan(w io.Writer, path string, src iiif.Dimensions) error {
	req, err := iiif.ParseRequest(path)
	if err != nil {
		return err
	}
	plan, err := iiif.Resolve(req, src)
	if err != nil {
		return err
	}

	return printJSON(w, planOutput{
		Plan:   plan,
		Steps:  plan.Steps(),
		Output: plan.OutputDimensions(),
	})
}

func infoCmd(configPath *string) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "info <identifier>",
		Short: "Fetch a source image and print its info.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := iiif.ParseRequest(args[0] + "/info.json")
			if err != nil {
				return err
			}
			return withService(*configPath, func(ctx context.Context, svc *service.ImageService) error {
				info, err := svc.Info(ctx, req, baseURL)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "base URL used for @id")
	return cmd
}

func renderCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render <path>",
		Short: "Fetch, transform and write an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := iiif.ParseRequest(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = "out." + string(req.Format)
			}
			return withService(*configPath, func(ctx context.Context, svc *service.ImageService) error {
				res, err := svc.Image(ctx, req)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, res.Data, 0644); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s, %d bytes\n", output, res.Width, res.Height, res.ContentType, len(res.Data))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default out.<format>)")
	return cmd
}

// withService wires config, logging and an engine pool, and runs fn with a
// context cancelled by Ctrl+C.
func withService(configPath string, fn func(context.Context, *service.ImageService) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Always use development mode for CLI
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := engine.New(cfg.Engine.Backend, cfg.Engine.MaxPixels)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	pool := engine.NewPool(backend, 1, logger)
	defer pool.Stop()

	svc := service.NewImageService(fetch.NewHTTPFetcher(nil, cfg.Fetch, logger), pool, metrics.New(), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return fn(ctx, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
