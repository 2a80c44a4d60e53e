package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kjk/gocfb/cfb"
)

func newCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "cat <file>:<inner-path>",
		Short:        "write a stream's bytes to standard output",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(args[0])
		},
	}
}

func runCat(target string) error {
	filePath, inner, err := parseTarget(target)
	if err != nil {
		return err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	cf, err := cfb.OpenReadOnly(f)
	if err != nil {
		return err
	}
	sv, err := cf.OpenStream(inner)
	if err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, sv)
	return err
}
