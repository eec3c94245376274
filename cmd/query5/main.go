package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"query5/internal/config"
	"query5/internal/engine"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// stageError tags a fatal error with the stage that produced it.
type stageError struct {
	stage string
	code  int
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func fail(stage string, code int, err error) error {
	return &stageError{stage: stage, code: code, err: err}
}

func oops(stage string, err error) {
	fmt.Fprintf(os.Stderr, "ERROR [%s] %s\n", color.RedString(stage), err)
}

// cliFlags mirrors the flag set; values are applied over the config file
// only when the flag was given.
type cliFlags struct {
	configPath   string
	regionName   string
	startDate    string
	endDate      string
	threads      int
	tablePath    string
	resultPath   string
	strictRegion bool
	logLevel     string
	logFile      string
	addr         string
}

func (f *cliFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "optional TOML config file")
	fs.StringVar(&f.tablePath, "table_path", "", "directory holding the .tbl files")
	fs.BoolVar(&f.strictRegion, "strict_region", false, "fail when the region name matches more than one region")
	fs.StringVar(&f.logLevel, "log_level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.logFile, "log_file", "", "write logs to this file with rotation instead of stderr")
}

func (f *cliFlags) registerQuery(fs *pflag.FlagSet) {
	fs.StringVar(&f.regionName, "r_name", "", "target region name")
	fs.StringVar(&f.startDate, "start_date", "", "inclusive lower bound on order date (YYYY-MM-DD)")
	fs.StringVar(&f.endDate, "end_date", "", "exclusive upper bound on order date (YYYY-MM-DD)")
	fs.IntVar(&f.threads, "threads", 0, "number of scan workers")
	fs.StringVar(&f.resultPath, "result_path", "", "output file path")
}

// buildConfig layers defaults, the config file and explicitly set flags.
func (f *cliFlags) buildConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		if err := config.LoadFile(f.configPath, cfg); err != nil {
			return nil, err
		}
	}
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("r_name", func() { cfg.RegionName = f.regionName })
	set("start_date", func() { cfg.StartDate = f.startDate })
	set("end_date", func() { cfg.EndDate = f.endDate })
	set("threads", func() { cfg.SetThreads(f.threads) })
	set("table_path", func() { cfg.TablePath = f.tablePath })
	set("result_path", func() { cfg.ResultPath = f.resultPath })
	set("strict_region", func() { cfg.StrictRegion = f.strictRegion })
	set("log_level", func() { cfg.Log.Level = f.logLevel })
	set("log_file", func() { cfg.Log.Filename = f.logFile })
	set("addr", func() { cfg.Serve.Addr = f.addr })
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	cmd := &cobra.Command{
		Use:           "query5",
		Short:         "Revenue by nation for one region and order date range",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.buildConfig(cmd.Flags())
			if err != nil {
				return fail("config", exitUsage, err)
			}
			if err := cfg.Validate(); err != nil {
				cmd.Usage()
				return fail("args", exitUsage, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runQuery(ctx, cfg)
		},
	}
	flags.register(cmd.PersistentFlags())
	flags.registerQuery(cmd.Flags())
	cmd.AddCommand(newServeCmd(flags))
	return cmd
}

func runQuery(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Log.Build()
	defer logger.Sync()

	loader := engine.NewLoader(cfg.TablePath, runtime.NumCPU(), logger)
	tables, _, err := loader.Load(ctx)
	if err != nil {
		return fail("load", exitFailure, err)
	}

	eng := engine.NewEngine(logger, cfg.StrictRegion)
	res, err := eng.Execute(ctx, tables, cfg.Query())
	if err != nil {
		stage := "query"
		if errors.Is(err, engine.ErrRegionNotFound) || errors.Is(err, engine.ErrAmbiguousRegion) {
			stage = "resolve"
		}
		return fail(stage, exitFailure, err)
	}

	if err := engine.WriteResult(cfg.ResultPath, res); err != nil {
		return fail("save", exitFailure, err)
	}
	logger.Info("result written",
		zap.String("query_id", res.QueryID),
		zap.String("path", cfg.ResultPath),
		zap.Int("nations", len(res.Rows)))
	return nil
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var se *stageError
		if errors.As(err, &se) {
			oops(se.stage, se.err)
			os.Exit(se.code)
		}
		// flag parsing and unknown commands
		oops("args", err)
		root.Usage()
		os.Exit(exitUsage)
	}
}
