package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kjk/gocfb/cfb"
)

// fixedTestPayload is the documented fixed payload the create command writes
// to the new stream; its exact bytes are part of the CLI's external
// contract, not the core library's.
var fixedTestPayload = []byte("gocfb test payload\n")

func newCreateCommand() *cobra.Command {
	var filePath, innerPath, streamName string

	cmd := &cobra.Command{
		Use:          "create",
		Short:        "create a stream with a fixed test payload",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(filePath, innerPath, streamName)
		},
	}
	cmd.Flags().StringVar(&filePath, "file-path", "", "compound file to create or modify")
	cmd.Flags().StringVar(&innerPath, "inner-path", "/", "storage the new stream is created under")
	cmd.Flags().StringVar(&streamName, "stream-name", "", "name of the new stream")
	cmd.MarkFlagRequired("file-path")
	cmd.MarkFlagRequired("stream-name")
	return cmd
}

func runCreate(filePath, innerPath, streamName string) error {
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var cf *cfb.CompoundFile
	if info.Size() == 0 {
		logger.Debug("creating new compound file", "path", filePath)
		cf, err = cfb.Create(f, cfb.Version3)
	} else {
		logger.Debug("opening existing compound file", "path", filePath)
		cf, err = cfb.Open(f)
	}
	if err != nil {
		return err
	}

	if innerPath != "" && innerPath != "/" && !cf.Exists(innerPath) {
		if err := cf.CreateStorage(innerPath); err != nil {
			return err
		}
	}

	streamPath := innerPath
	if streamPath == "" {
		streamPath = "/"
	}
	if streamPath[len(streamPath)-1] != '/' {
		streamPath += "/"
	}
	streamPath += streamName

	sv, err := cf.CreateStream(streamPath)
	if err != nil {
		return err
	}
	if _, err := sv.Write(fixedTestPayload); err != nil {
		return err
	}
	return cf.Flush()
}
