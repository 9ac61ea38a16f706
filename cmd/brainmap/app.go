package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"brainmap/internal/models"
	"brainmap/pkg/anatomy"
	"brainmap/pkg/config"
	"brainmap/pkg/pipeline"
	"brainmap/pkg/regions"
)

// maxInputBytes caps the request read from standard input.
const maxInputBytes = 8 << 20

// templateLoader fetches and decodes the anatomical template.
type templateLoader func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*models.Volume, error)

// app carries the process streams and flags shared by every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	cacheDir   string
	timeout    time.Duration
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	// reported is set once an error has been written to stderr
	reported bool

	loadTemplate templateLoader
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:        stdin,
		stdout:       stdout,
		stderr:       stderr,
		loadTemplate: loadFromStore,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "brainmap [request-json]",
		Short: "Render brain activation overlays for a list of experiences",
		Long: `brainmap paints Gaussian activation blobs for the brain regions named in a
JSON request onto the MNI152 template and prints a JSON result holding a
base64 PNG figure and a per-region summary.

The request is taken from the single argument, or from standard input when
the argument is absent or "-":

  {"experiences": [{"type": "learning", "intensity": 4, "brain_regions": ["hippocampus"]}]}`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runVisualize,
	}

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "brainmap.yaml", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", "", "Template cache directory (overrides config)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 5*time.Minute, "Overall run timeout")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(a.regionsCmd(), a.fetchCmd(), a.initConfigCmd())

	return root
}

// execute runs the command tree. Errors raised before the logger exists,
// such as bad flags, are printed to stderr as plain text.
func (a *app) execute() error {
	err := a.rootCmd().Execute()
	if err != nil && !a.reported {
		fmt.Fprintln(a.stderr, "brainmap:", err)
	}
	return err
}

// setup loads configuration and builds the stderr logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.cacheDir != "" {
		cfg.Template.CacheDir = a.cacheDir
	}
	if a.verbose {
		cfg.Output.Verbose = true
	}
	a.cfg = cfg

	level := zapcore.InfoLevel
	if cfg.Output.Verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(a.stderr)),
		level,
	)
	a.logger = zap.New(core).With(
		zap.String("run_id", uuid.NewString()),
		zap.String("command", cmd.Name()),
	)
	return nil
}

// fail logs err and returns it so cobra reports a non-zero exit.
func (a *app) fail(msg string, err error) error {
	a.logger.Error(msg, zap.Error(err))
	a.reported = true
	return err
}

func (a *app) runVisualize(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	input, err := a.readInput(args)
	if err != nil {
		return a.fail("Failed to read request", err)
	}

	// Reject bad requests before touching the template
	req, err := pipeline.ParseRequest(input)
	if err != nil {
		return a.fail("Invalid request", err)
	}
	table := regions.Default()
	if err := req.CheckRegions(table); err != nil {
		return a.fail("Invalid request", err)
	}

	template, err := a.loadTemplate(ctx, a.cfg, a.logger)
	if err != nil {
		return a.fail("Failed to load anatomical template", err)
	}

	p, err := pipeline.New(a.cfg, table, template, a.logger)
	if err != nil {
		return a.fail("Failed to initialize pipeline", err)
	}

	result, err := p.Process(ctx, req)
	if err != nil {
		return a.fail("Visualization failed", err)
	}

	// Encode fully before writing so stdout never carries a partial document
	out, err := json.Marshal(result)
	if err != nil {
		return a.fail("Failed to encode result", err)
	}
	if _, err := fmt.Fprintln(a.stdout, string(out)); err != nil {
		return a.fail("Failed to write result", err)
	}
	return nil
}

// readInput returns the request from the argument or standard input.
func (a *app) readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	data, err := io.ReadAll(io.LimitReader(a.stdin, maxInputBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxInputBytes {
		return nil, fmt.Errorf("request larger than %d bytes", maxInputBytes)
	}
	return data, nil
}

// newStore builds the template store described by cfg.
func newStore(cfg *config.Config, logger *zap.Logger) *anatomy.Store {
	return anatomy.NewStore(&anatomy.Params{
		Dir:           cfg.Template.CacheDir,
		Filename:      cfg.Template.Filename,
		Sources:       cfg.Template.Sources,
		Timeout:       cfg.Template.FetchTimeout,
		DefaultAffine: cfg.Template.DefaultAffine,
	}, nil, logger)
}

func loadFromStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*models.Volume, error) {
	return newStore(cfg, logger).Load(ctx)
}
