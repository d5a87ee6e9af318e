package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
	Long: `List the cases visible to the configured principal in a simple text format.
This command works in any terminal environment and accepts the same filters
the dashboard offers.

Examples:
  # List all open critical cases
  case-console list --priority critical --status open

  # Manual uploads of chest CTs, lowest confidence first
  case-console list --source manual --image-type "CT Chest" --sort confidence-low

  # Cases created this month as JSON
  case-console list --from 2026-10-01 --format json

  # Audit trail of one case
  case-console list --audit 3f2c9a10-...`,
	RunE: runList,
}

var (
	listFilters filterFlags
	listLimit   int
	listFormat  string
	listAudit   string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFilters.register(listCmd.Flags())
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of cases to show (0 for all)")
	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text, json")
	listCmd.Flags().StringVar(&listAudit, "audit", "", "Show the audit trail of this case id instead")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

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

	if listAudit != "" {
		return listAuditTrail(ctx, b, listAudit)
	}

	view, err := loadView(ctx, b.repo, &listFilters)
	if err != nil {
		return err
	}
	total := len(view)
	if listLimit > 0 && len(view) > listLimit {
		view = view[:listLimit]
	}

	switch strings.ToLower(listFormat) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "text", "":
		printCases(view, total)
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use 'text' or 'json')", listFormat)
	}
}

func printCases(view []cases.Record, total int) {
	if len(view) == 0 {
		fmt.Println("No cases found.")
		return
	}

	if total > len(view) {
		fmt.Printf("Showing %d of %d cases:\n\n", len(view), total)
	} else {
		fmt.Printf("Found %d cases:\n\n", total)
	}

	for i, c := range view {
		d := c.Display()
		fmt.Printf("%d. [%s] %s (%s)\n", i+1, strings.ToUpper(string(c.Priority)), c.PatientName, c.PatientID)
		fmt.Printf("   ID: %s\n", c.ID)
		fmt.Printf("   Image: %s\n", c.ImageType)
		fmt.Printf("   Status: %s\n", c.Status)
		fmt.Printf("   Severity: %d  AI confidence: %d%% (%s)\n", d.Severity, d.Confidence, d.ConfidenceBand)
		fmt.Printf("   Source: %s  Assigned: %s\n", c.Source, c.Assignee())
		if !c.CreatedAt.IsZero() {
			fmt.Printf("   Created: %s (%s)\n", c.CreatedAt.Format("2006-01-02 15:04:05"), c.ImageAge)
		}
		if c.Findings != "" {
			fmt.Printf("   Findings: %s\n", c.Findings)
		}
		fmt.Println()
	}
}

func listAuditTrail(ctx context.Context, b *backend, caseID string) error {
	if b.sql == nil {
		return fmt.Errorf("audit trail is only kept by the sql backend")
	}
	entries, err := b.sql.GetAuditEntries(ctx, caseID, listLimit)
	if err != nil {
		return fmt.Errorf("failed to get audit entries: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("No audit entries for case %s.\n", caseID)
		return nil
	}

	fmt.Printf("Audit trail for case %s:\n\n", caseID)
	for i, e := range entries {
		fmt.Printf("%d. %s by %s at %s\n", i+1, e.Action, e.Actor, e.Timestamp.Format("2006-01-02 15:04:05"))
		if id := e.Metadata["batch_id"]; id != "" {
			fmt.Printf("   Batch: %s (%s cases)\n", id, e.Metadata["batch_size"])
		}
		if len(e.Details) > 0 {
			details, _ := json.Marshal(e.Details)
			fmt.Printf("   Details: %s\n", details)
		}
	}
	return nil
}
