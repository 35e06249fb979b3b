// Package cli implements scanctl, the operator and maintenance tool for the
// verification service.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wms-platform/verification-service/internal/domain"
)

// NewRootCmd builds the scanctl command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scanctl",
		Short:         "Inspect scan payloads and verification plans",
		Long:          `scanctl decodes scan payloads, dry-runs scans against plan snapshots and imports plans into the configured store.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newImportCmd())
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPlan loads a plan snapshot from path, or stdin when path is "-".
func readPlan(path string) (*domain.Plan, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open plan: %w", err)
		}
		defer f.Close()
		r = f
	}

	var plan domain.Plan
	if err := json.NewDecoder(r).Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.ID == "" {
		return nil, fmt.Errorf("plan has no id")
	}
	plan.AttachLines()
	plan.SortLines()

	if err := domain.CheckInvariants(&plan); err != nil {
		return nil, fmt.Errorf("plan %s is inconsistent: %w", plan.ID, err)
	}
	return &plan, nil
}
