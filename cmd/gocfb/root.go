package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// logger is the CLI's only logging surface; the cfb package itself never
// logs (see cfb.Error for how it reports failures instead).
var logger *slog.Logger

// Execute builds and runs the gocfb root command.
func Execute() error {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "gocfb",
		Short: "gocfb inspects and builds Microsoft Compound File Binary containers",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			logger = slog.New(handler)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newLsCommand())
	rootCmd.AddCommand(newCatCommand())
	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newChclsCommand())

	return rootCmd.Execute()
}

// parseTarget splits the "<file>:<inner-path>" argument form the ls/cat
// commands take. The inner path always starts with '/'; a bare "<file>"
// (no colon) means the root storage.
func parseTarget(arg string) (file, inner string, err error) {
	idx := strings.LastIndex(arg, ":")
	if idx < 0 {
		return arg, "/", nil
	}
	file = arg[:idx]
	inner = arg[idx+1:]
	if inner == "" {
		inner = "/"
	}
	if !strings.HasPrefix(inner, "/") {
		inner = "/" + inner
	}
	if file == "" {
		return "", "", fmt.Errorf("missing file path in %q", arg)
	}
	return file, inner, nil
}
