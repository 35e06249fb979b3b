package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wms-platform/verification-service/internal/config"
	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/internal/infrastructure/stores"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
)

type importOptions struct {
	staffPath      string
	skipDuplicates bool
}

// importTarget is the part of the store the import writes to
type importTarget struct {
	plans stores.PlanStore
	staff stores.StaffStore
}

// openTarget is replaced in tests.
var openTarget = func(ctx context.Context) (*importTarget, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	backend, err := stores.Open(ctx, cfg, cloudevents.NewEventFactory(cloudevents.SourceVerification))
	if err != nil {
		return nil, nil, err
	}
	return &importTarget{plans: backend.Plans, staff: backend.Staff},
		func() { _ = backend.Close(context.Background()) }, nil
}

func newImportCmd() *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import [plan.json...]",
		Short: "Import plans and staff into the configured store",
		Long: `Import writes plan snapshots and, with --staff, staff directory entries to the
store selected by STORE_BACKEND. Existing plans are never overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.staffPath == "" {
				return errors.New("nothing to import")
			}
			return runImport(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.staffPath, "staff", "", "staff JSON file: [{\"code\":..., \"name\":...}]")
	cmd.Flags().BoolVar(&opts.skipDuplicates, "skip-existing", false, "skip plans that already exist instead of failing")
	return cmd
}

func runImport(cmd *cobra.Command, opts *importOptions, planPaths []string) error {
	// Parse everything before connecting so a bad file writes nothing.
	plans := make([]*domain.Plan, 0, len(planPaths))
	for _, path := range planPaths {
		plan, err := readPlan(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		plans = append(plans, plan)
	}

	var staff []domain.Staff
	if opts.staffPath != "" {
		data, err := os.ReadFile(opts.staffPath)
		if err != nil {
			return fmt.Errorf("failed to read staff: %w", err)
		}
		if err := json.Unmarshal(data, &staff); err != nil {
			return fmt.Errorf("failed to parse staff: %w", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	target, closeTarget, err := openTarget(ctx)
	if err != nil {
		return err
	}
	defer closeTarget()

	out := cmd.OutOrStdout()
	for _, member := range staff {
		if member.Code == "" {
			return errors.New("staff entry without code")
		}
		if err := target.staff.UpsertStaff(ctx, member); err != nil {
			return fmt.Errorf("failed to import staff %s: %w", member.Code, err)
		}
	}
	if len(staff) > 0 {
		fmt.Fprintf(out, "imported %d staff\n", len(staff))
	}

	for _, plan := range plans {
		err := target.plans.ImportPlan(ctx, plan)
		switch {
		case err == nil:
			fmt.Fprintf(out, "imported plan %s (%d lines)\n", plan.ID, len(plan.Lines))
		case errors.Is(err, domain.ErrPlanExists) && opts.skipDuplicates:
			fmt.Fprintf(out, "skipped plan %s: already exists\n", plan.ID)
		default:
			return fmt.Errorf("failed to import plan %s: %w", plan.ID, err)
		}
	}
	return nil
}
