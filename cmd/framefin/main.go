package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/framefin/framefin/pkg/config"
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/mirfile"
	"github.com/framefin/framefin/pkg/stacking"
	"github.com/framefin/framefin/pkg/target/a64"
)

var version = "0.1.0"

// Debug flags for dumping intermediate state
var (
	dMIR   bool
	dFrame bool
)

// Pass options, overriding the config file when set
var (
	configPath      string
	warnStackSize   uint64
	segmentedStacks bool
	showStats       bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "framefin [file]",
		Short: "framefin finalizes stack frames in machine-level test programs",
		Long: `framefin runs the stack frame finalization pass over machine-level
programs written in the YAML fixture format: callee-saved register
save/restore insertion, frame object layout, prologue and epilogue
emission, and frame index rewriting.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return finalizeFile(cmd, args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dMIR, "dmir", false, "Dump machine code before finalization")
	rootCmd.Flags().BoolVar(&dFrame, "dframe", false, "Dump machine code after finalization")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to framefin.toml")
	rootCmd.Flags().Uint64Var(&warnStackSize, "warn-stack-size", 0, "Warn when a frame exceeds this many bytes")
	rootCmd.Flags().BoolVar(&segmentedStacks, "segmented-stacks", false, "Enable segmented stack prologues")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "Print pass statistics")

	return rootCmd
}

func finalizeFile(cmd *cobra.Command, filename string, out, errOut io.Writer) error {
	cfg, err := loadConfig(filename)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("warn-stack-size") {
		cfg.Frame.WarnStackSize = warnStackSize
	}
	if cmd.Flags().Changed("segmented-stacks") {
		cfg.Frame.SegmentedStacks = segmentedStacks
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("framefin: %w", err)
	}

	tgt := a64.New()
	prog, err := mirfile.Decode(data, tgt)
	if err != nil {
		return err
	}

	if dMIR {
		mir.NewPrinter(out, tgt).PrintProgram(prog)
		return nil
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	pass := stacking.New(tgt, stacking.Config{
		WarnStackSize:         cfg.Frame.WarnStackSize,
		EnableSegmentedStacks: cfg.Frame.SegmentedStacks,
	}, log, nil)

	for _, fn := range prog.Functions {
		if err := mir.Verify(fn); err != nil {
			return fmt.Errorf("framefin: %s: %w", filename, err)
		}
		pass.Finalize(fn)
		if err := mir.Verify(fn); err != nil {
			return fmt.Errorf("framefin: %s: after finalization: %w", filename, err)
		}
	}

	if dFrame {
		mir.NewPrinter(out, tgt).PrintProgram(prog)
	}
	if showStats {
		st := pass.Stats()
		fmt.Fprintf(errOut, "framefin: %d stack bytes, %d scavenged registers\n",
			st.StackBytes, st.ScavengedRegs)
	}
	return nil
}

func loadConfig(inputPath string) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Find(inputPath)
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.WarnLevel
	if level != "" {
		var err error
		lvl, err = zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("framefin: bad log level %q", level)
		}
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
