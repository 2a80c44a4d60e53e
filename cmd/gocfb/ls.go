package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjk/gocfb/cfb"
)

func newLsCommand() *cobra.Command {
	var long, all bool

	cmd := &cobra.Command{
		Use:          "ls <file>:<inner-path>",
		Short:        "list children of the resolved entry",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(args[0], long, all)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "append type flag, length, and modified date")
	cmd.Flags().BoolVar(&all, "all", false, "recurse into child storages")
	return cmd
}

func runLs(target string, long, all bool) error {
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
	logger.Debug("opened compound file", "path", filePath, "inner", inner)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if err := listPath(cf, w, inner, long, all); err != nil {
		return err
	}
	return w.Flush()
}

func listPath(cf *cfb.CompoundFile, w *tabwriter.Writer, path string, long, all bool) error {
	entries, err := cf.Walk(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		typeFlag := "S"
		if e.IsStorage {
			typeFlag = "D"
		}
		switch {
		case long:
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Name, typeFlag, e.Length, e.Modified.Format(time.RFC3339))
		default:
			fmt.Fprintln(w, e.Name)
		}
		if all && e.IsStorage {
			childPath := path
			if childPath == "/" {
				childPath = ""
			}
			if err := listPath(cf, w, childPath+"/"+e.Name, long, all); err != nil {
				return err
			}
		}
	}
	return nil
}
