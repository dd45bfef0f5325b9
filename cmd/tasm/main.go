package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asmkit/tasm"
	"github.com/asmkit/tasm/internal/version"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	root := newRootCommand(stdOut, stdErr)
	root.SetArgs(os.Args[1:])
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stdErr, "Error: %v\n", err)
		exit(1)
	}
	exit(0)
}

// globalOptions holds the persistent flags and the configuration resolved from them.
type globalOptions struct {
	configPath string
	arch       tasm.Architecture
	start      uint64
	scratch    []string
	strict     bool
	logLevel   string

	// cfg is set before any subcommand runs.
	cfg *tasm.Config
}

func newRootCommand(stdOut, stdErr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "tasm",
		Short: "Template-driven assembler and disassembler for x86-64 and SPARC",
		Long: `tasm assembles instruction lists into machine code and disassembles machine code,
using one declarative template catalog per architecture for both directions.

Defaults can be kept in a TOML file passed with --config. Flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd, stdErr)
		},
	}
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	pFlags := root.PersistentFlags()
	pFlags.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	pFlags.Var(&archValue{arch: &opts.arch}, "arch", "target architecture (amd64, sparc)")
	pFlags.Uint64Var(&opts.start, "start", 0, "address of the first byte of code")
	pFlags.StringSliceVar(&opts.scratch, "scratch", nil, "registers addressing sequences may clobber")
	pFlags.BoolVar(&opts.strict, "strict", true, "show non-canonical encodings as inline bytes")
	pFlags.StringVar(&opts.logLevel, "log-level", "warn", "log messages above specified level (trace, debug, info, warn, error)")

	root.AddCommand(
		newAsmCommand(opts, stdOut),
		newDisasmCommand(opts, stdOut),
		newTemplatesCommand(opts, stdOut),
		&cobra.Command{
			Use:   "version",
			Short: "Print the tasm version",
			Args:  cobra.NoArgs,
			Run: func(*cobra.Command, []string) {
				fmt.Fprintln(stdOut, version.GetTasmVersion())
			},
		},
	)
	return root
}

// resolve merges the configuration file with the flags set on the command line.
func (o *globalOptions) resolve(cmd *cobra.Command, stdErr io.Writer) error {
	s := defaultSettings()
	if o.configPath != "" {
		if err := loadSettings(o.configPath, &s); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("arch") {
		s.Arch = o.arch.String()
	}
	if flags.Changed("start") {
		s.StartAddress = o.start
	}
	if flags.Changed("scratch") {
		s.Scratch = o.scratch
	}
	if flags.Changed("strict") {
		s.Strict = &o.strict
	}
	if flags.Changed("log-level") {
		s.LogLevel = o.logLevel
	}

	cfg, level, err := s.build()
	if err != nil {
		return err
	}
	logrus.SetOutput(stdErr)
	logrus.SetLevel(level)
	logrus.Debugf("Called %s with %+v", cmd.Name(), s)
	o.cfg = cfg.WithLogger(logrus.StandardLogger())
	return nil
}
