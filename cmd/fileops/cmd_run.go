package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fileops/internal/facade"
	"fileops/internal/model"
)

var requestPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a batch request",
	Long: `run reads a request envelope (operations + options) as JSON from
--request or stdin, executes it against the configured workspace root, and
prints the aggregate result as JSON to stdout.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the request JSON file (default: stdin)")
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := readRequest(requestPath)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	f, err := facade.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("received interrupt, aborting in-flight operations")
		cancel()
	}()
	defer signal.Stop(sigCh)

	progress := model.ProgressCallback(func(ev model.ProgressEvent) {
		logger.Sugar().Infof("operation %s -> %s %s", ev.OperationID, ev.Status, ev.Message)
	})

	agg := f.Execute(ctx, req, progress)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(agg); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if !agg.Success {
		os.Exit(1)
	}
	return nil
}

// readRequest decodes a request envelope from path, or stdin when path is
// empty, rejecting unknown fields per the request envelope's external
// interface contract.
func readRequest(path string) (model.Request, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return model.Request{}, fmt.Errorf("reading request file %s: %w", path, err)
		}
		r = bytes.NewReader(data)
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var req model.Request
	if err := dec.Decode(&req); err != nil {
		return model.Request{}, fmt.Errorf("parsing request: %w", err)
	}
	return req, nil
}
