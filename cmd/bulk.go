package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/selection"
)

// bulkCmd represents the bulk command
var bulkCmd = &cobra.Command{
	Use:   "bulk <status|priority|assign|export|archive|delete> [value]",
	Short: "Apply one operation to every case in a filtered view",
	Long: `Select every case matching the filters (or the cases named with --id that
also match them) and apply one operation to each of them. Every case is handled independently: a
failure on one case never stops the others and nothing is rolled back.

Examples:
  # Mark every open low-priority system case as in progress
  case-console bulk status in-progress --status open --priority low --source system

  # Escalate chest CTs with high AI confidence
  case-console bulk priority critical --image-type "CT Chest" --confidence high

  # Assign two cases
  case-console bulk assign "Dr. Osei" --id 3f2c... --id 91ab...

  # Export the manual uploads to a workbook
  case-console bulk export manual.xlsx --source manual

  # Archive completed cases without asking
  case-console bulk archive --status review-completed --yes`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBulk,
}

var (
	bulkFilters filterFlags
	bulkIDs     []string
	bulkYes     bool
	bulkDryRun  bool
	bulkWorkers int
	bulkRPS     float64
)

func init() {
	rootCmd.AddCommand(bulkCmd)

	bulkFilters.register(bulkCmd.Flags())
	bulkCmd.Flags().StringSliceVar(&bulkIDs, "id", nil, "Case ids to act on instead of the filtered view")
	bulkCmd.Flags().BoolVar(&bulkYes, "yes", false, "Do not ask before archiving or deleting")
	bulkCmd.Flags().BoolVar(&bulkDryRun, "dry-run", false, "Print the selected cases without changing anything")
	bulkCmd.Flags().IntVar(&bulkWorkers, "concurrency", 0, "Parallel sub-operations (overrides bulk.concurrency)")
	bulkCmd.Flags().Float64Var(&bulkRPS, "rps", 0, "Sub-operations per second (overrides bulk.rps)")
}

// parseOperation builds a bulk operation from its name and optional argument.
func parseOperation(kind string, args []string) (selection.Operation, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	var op selection.Operation
	switch selection.OpKind(strings.ToLower(kind)) {
	case selection.OpStatus:
		st, err := cases.ValidateStatus(arg)
		if err != nil {
			return op, err
		}
		op = selection.StatusOp(st)
	case selection.OpPriority:
		p, err := derive.ParsePriority(arg)
		if err != nil {
			return op, err
		}
		op = selection.PriorityOp(p)
	case selection.OpAssign:
		op = selection.AssignOp(arg)
	case selection.OpExport:
		op = selection.ExportOp(arg)
	case selection.OpArchive:
		op = selection.ArchiveOp()
	case selection.OpDelete:
		op = selection.DeleteOp()
	default:
		return op, fmt.Errorf("unknown bulk operation %q", kind)
	}
	return op, op.Validate()
}

func runBulk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	if cmd.Flags().Changed("concurrency") {
		config.Bulk.Concurrency = bulkWorkers
	}
	if cmd.Flags().Changed("rps") {
		config.Bulk.RPS = bulkRPS
	}

	op, err := parseOperation(args[0], args[1:])
	if err != nil {
		return err
	}

	logger, err := newLogger(config, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := openBackend(config, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	view, err := loadView(ctx, b.repo, &bulkFilters)
	if err != nil {
		return err
	}

	sel := b.selection(config, nil, actorFor(config))
	ids, dropped := selectTargets(sel, view, bulkIDs)
	for _, id := range dropped {
		fmt.Printf("Skipping %s: not in the filtered view\n", id)
	}
	if len(ids) == 0 {
		fmt.Println("No cases selected.")
		return nil
	}

	if bulkDryRun {
		fmt.Printf("Would %s %d case(s):\n", op.Kind, len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}

	if (op.Kind == selection.OpArchive || op.Kind == selection.OpDelete) && !bulkYes {
		if !confirm(fmt.Sprintf("Really %s %d case(s)?", op.Kind, len(ids))) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	res := sel.DispatchBulk(ctx, op, ids)
	fmt.Printf("bulk %s: %s\n", op.Kind, res.Summary())
	if res.ExportPath != "" {
		fmt.Printf("Exported to %s\n", res.ExportPath)
	}

	if err := res.Err(); err != nil {
		var pf *selection.PartialFailure
		if errors.As(err, &pf) {
			for _, item := range pf.Failed {
				fmt.Printf("  failed %s: %v\n", item.ID, item.Err)
			}
		}
		logger.Warn("bulk operation partially failed", zap.Error(err))
		return err
	}
	return nil
}

// selectTargets selects the cases to act on. Explicit ids are narrowed to
// the view; the ones outside it are returned as dropped.
func selectTargets(sel *selection.Coordinator, view []cases.Record, explicit []string) (ids, dropped []string) {
	if len(explicit) == 0 {
		sel.SelectAll(view)
		return sel.IDsIn(view), nil
	}
	for _, id := range explicit {
		sel.Select(id)
	}
	ids = sel.IDsIn(view)
	inView := make(map[string]bool, len(ids))
	for _, id := range ids {
		inView[id] = true
	}
	for _, id := range sel.IDs() {
		if !inView[id] {
			dropped = append(dropped, id)
			sel.Deselect(id)
		}
	}
	return ids, dropped
}

// actorFor names who bulk mutations are audited as.
func actorFor(cfg Config) string {
	if cfg.Principal.ID != "" {
		return cfg.Principal.ID
	}
	return "system"
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
