package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tordrt/schemadocs"
	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/diagram"
	"github.com/tordrt/schemadocs/internal/logging"
	"github.com/tordrt/schemadocs/internal/runctx"
)

type options struct {
	genType          string
	connectionFile   string
	outputDir        string
	publish          bool
	confluenceConfig string
	diagramFormats   string
	diagramCommand   string
	excludeSchemas   string
	logLevel         string
	logFormat        string
	metricsFile      string
	envFile          string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "schemadocs",
		Short: "Generate and publish database documentation",
		Long: `schemadocs reads the catalogs of PostgreSQL, MySQL or SQLite databases and writes a data dictionary
workbook, a markdown overview and an entity-relationship diagram per schema. With --publish the
artifacts are uploaded to Confluence and older snapshot pages are pruned by age.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.genType, "type", schemadocs.TypeAll, "What to generate: all, dictionary or schema")
	f.StringVar(&opts.connectionFile, "connection-file", "config/connections.json", "Connections file (JSON or YAML)")
	f.StringVar(&opts.outputDir, "output-dir", schemadocs.DefaultOutputDir, "Output directory for generated artifacts")
	f.BoolVar(&opts.publish, "publish", false, "Publish the artifacts to Confluence")
	f.StringVar(&opts.confluenceConfig, "confluence-config", "config/confluence_config.json", "Confluence publisher config (JSON or YAML)")
	f.StringVar(&opts.diagramFormats, "diagram-formats", diagram.FormatPNG, "Diagram formats, comma-separated: png, svg")
	f.StringVar(&opts.diagramCommand, "diagram-command", "", "External diagram renderer, e.g. 'eralchemy -i {dsn} -o {output}'")
	f.StringVar(&opts.excludeSchemas, "exclude-schemas", "", "Schemas to skip in every database (comma-separated)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "auto", "Log format: text, json or auto")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	f.StringVar(&opts.envFile, "env-file", ".env", "Environment file with CONFLUENCE_* overrides")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.New(opts.logLevel, opts.logFormat, cmd.ErrOrStderr())

	// Variables already set in the environment win over the file.
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Config("load env file", err)
	}

	conns, err := config.LoadConnections(opts.connectionFile)
	if err != nil {
		return err
	}

	var pub *config.Publisher
	if opts.publish {
		pub, err = config.LoadPublisher(opts.confluenceConfig, nil)
		if err != nil {
			return err
		}
	}

	var renderer diagram.Renderer
	if opts.diagramCommand != "" {
		cr, err := diagram.NewCommandRenderer(opts.diagramCommand)
		if err != nil {
			return apperr.Config("diagram command", err)
		}
		renderer = cr
	}

	rc := runctx.New(logger)
	logger.Info("run started", "run_id", rc.ID, "databases", len(conns.Databases), "publish", opts.publish)

	if _, err := schemadocs.Run(ctx, rc, schemadocs.Options{
		Connections:    conns,
		Type:           opts.genType,
		OutputDir:      opts.outputDir,
		ExcludeSchemas: splitList(opts.excludeSchemas),
		DiagramFormats: splitList(opts.diagramFormats),
		Renderer:       renderer,
		Publisher:      pub,
	}); err != nil {
		return err
	}

	summary := rc.Summary()
	rc.Log(summary)
	fmt.Fprintln(cmd.OutOrStdout(), summary.Render())

	if opts.metricsFile != "" {
		if err := rc.WriteMetrics(opts.metricsFile); err != nil {
			logger.Warn("failed to write metrics file", "path", opts.metricsFile, "error", err)
		}
	}

	return nil
}

// splitList parses a comma-separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
