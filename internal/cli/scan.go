package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wms-platform/verification-service/internal/domain"
)

// errRejected makes a rejected dry run exit non-zero after printing it.
var errRejected = errors.New("scan rejected")

type scanOptions struct {
	planPath  string
	line      int
	actor     string
	actorName string
	raw       bool
	registry  string
	primary   string
}

type timestampWriteView struct {
	Mode  string     `json:"mode"`
	Value *time.Time `json:"value,omitempty"`
}

type lineWriteView struct {
	SequenceNo  int `json:"sequenceNo"`
	VerifiedQty int `json:"verifiedQty"`
	PreviousQty int `json:"previousQty"`
	RequiredQty int `json:"requiredQty"`
}

type writeSetView struct {
	PlanID          string             `json:"planId"`
	ExpectedVersion int64              `json:"expectedVersion"`
	Status          string             `json:"status"`
	PreviousStatus  string             `json:"previousStatus"`
	UpdatedBy       domain.Actor       `json:"updatedBy"`
	StartedAt       timestampWriteView `json:"startedAt"`
	StartedBy       *domain.Actor      `json:"startedBy,omitempty"`
	CompletedAt     timestampWriteView `json:"completedAt"`
	Lines           []lineWriteView    `json:"lines"`
	Events          []string           `json:"events"`
}

type scanResultView struct {
	Accepted   bool          `json:"accepted"`
	SequenceNo int           `json:"sequenceNo"`
	Scanned    string        `json:"scanned"`
	Reason     string        `json:"reason,omitempty"`
	Expected   string        `json:"expected,omitempty"`
	Next       int           `json:"nextSequenceNo,omitempty"`
	Proposed   *domain.Plan  `json:"proposed,omitempty"`
	WriteSet   *writeSetView `json:"writeSet,omitempty"`
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <payload>",
		Short: "Dry-run a scan against a plan snapshot",
		Long: `Scan applies one scanned payload to a plan snapshot read from a JSON file and
prints the proposed plan with the write set a store would apply. Nothing is
persisted. A rejected scan is printed and exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.planPath, "plan", "", `plan snapshot JSON file, "-" for stdin`)
	cmd.Flags().IntVar(&opts.line, "line", 0, "target sequence number (default first incomplete line)")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "staff code of the operator")
	cmd.Flags().StringVar(&opts.actorName, "actor-name", "", "display name of the operator")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "match the payload verbatim without decoding")
	cmd.Flags().StringVar(&opts.registry, "registry", "", "identifier widths used for decoding")
	cmd.Flags().StringVar(&opts.primary, "primary", "01", "identifier matched against expected codes")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions, payload string) error {
	plan, err := readPlan(opts.planPath)
	if err != nil {
		return err
	}

	scanned := unescapePayload(payload)
	if !opts.raw {
		decoder, err := newDecoder(opts.registry, opts.primary)
		if err != nil {
			return err
		}
		scanned, _ = decoder.Primary(scanned)
	}

	target := opts.line
	if target == 0 {
		target = domain.NextPointer(plan, plan.FirstSequenceNo())
	}
	actor := domain.Actor{Code: opts.actor, Name: opts.actorName}

	proposed, err := domain.AttemptScan(plan, target, scanned, actor)
	if err != nil {
		rejection, ok := domain.AsScanRejection(err)
		if !ok {
			return err
		}
		if werr := writeJSON(cmd.OutOrStdout(), scanResultView{
			SequenceNo: target,
			Scanned:    rejection.Scanned,
			Reason:     string(rejection.Reason),
			Expected:   rejection.Expected,
		}); werr != nil {
			return werr
		}
		return fmt.Errorf("%w: %s", errRejected, rejection.Reason)
	}

	update, err := domain.BuildUpdate(plan, proposed)
	if err != nil {
		return fmt.Errorf("failed to derive write set: %w", err)
	}

	view := toWriteSetView(update)
	for _, e := range domain.EventsFor(update, proposed, time.Now().UTC()) {
		view.Events = append(view.Events, e.EventType())
	}

	return writeJSON(cmd.OutOrStdout(), scanResultView{
		Accepted:   true,
		SequenceNo: target,
		Scanned:    scanned,
		Next:       domain.NextPointer(proposed, target),
		Proposed:   proposed,
		WriteSet:   view,
	})
}

func toTimestampWriteView(w domain.TimestampWrite) timestampWriteView {
	view := timestampWriteView{Mode: w.Mode.String()}
	if w.Mode == domain.WriteValue {
		v := w.Value
		view.Value = &v
	}
	return view
}

func toWriteSetView(u *domain.PlanUpdate) *writeSetView {
	view := &writeSetView{
		PlanID:          u.PlanID,
		ExpectedVersion: u.ExpectedVersion,
		Status:          string(u.Status),
		PreviousStatus:  string(u.PreviousStatus),
		UpdatedBy:       u.UpdatedBy,
		StartedAt:       toTimestampWriteView(u.StartedAt),
		CompletedAt:     toTimestampWriteView(u.CompletedAt),
		Lines:           make([]lineWriteView, 0, len(u.Lines)),
		Events:          []string{},
	}
	if u.StartedAt.Mode != domain.WriteKeep {
		startedBy := u.StartedBy
		view.StartedBy = &startedBy
	}
	for _, l := range u.Lines {
		view.Lines = append(view.Lines, lineWriteView{
			SequenceNo:  l.SequenceNo,
			VerifiedQty: l.VerifiedQty,
			PreviousQty: l.PreviousQty,
			RequiredQty: l.RequiredQty,
		})
	}
	return view
}
