// Package cmd implements the xlate command line: a bench harness over the
// translation pipeline plus a hidden schema generator. The CLI is tooling
// around the library, not part of the library boundary.
package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	xlog "xlate/internal/xlate/log"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "xlate",
	Short: "Cross-architecture instruction translation tooling",
	Long: "xlate exercises the cross-architecture translation pipeline: " +
		"synthesizes instruction blocks, translates them between x86_64, " +
		"arm64 and riscv64, and reports cache behavior.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		xlog.Setup(debugFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// Execute runs the root command. Fang's rendering is bypassed when output
// is piped so reports stay machine-readable.
func Execute() {
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
