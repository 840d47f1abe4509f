package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fileops/internal/facade"
)

var (
	validateRequestPath string
	listChecks          bool
)

var validateRequestCmd = &cobra.Command{
	Use:   "validate-request",
	Short: "Validate a request without executing it",
	Long: `validate-request runs every planning-time check (schema, path
containment, regex compilation, dependency and cycle validation) against a
request JSON file and reports whether it would be accepted, without opening
a transaction or touching any file.`,
	RunE: runValidateRequest,
}

func init() {
	validateRequestCmd.Flags().StringVarP(&validateRequestPath, "request", "r", "", "Path to the request JSON file (default: stdin)")
	validateRequestCmd.Flags().BoolVar(&listChecks, "list-checks", false, "List available validator check names and exit")
}

func runValidateRequest(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	f, err := facade.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer f.Close()

	if listChecks {
		for _, name := range f.Registry().Names() {
			fmt.Println(name)
		}
		return nil
	}

	req, err := readRequest(validateRequestPath)
	if err != nil {
		return err
	}

	plan, err := f.Plan(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rejected: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"accepted": true,
		"order":    plan.Order,
	})
}
