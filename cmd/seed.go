package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed sample imaging cases into the database",
	Long: `Seed a set of sample imaging studies. Studies marked as uploads are owned by
the configured principal and show up under manual uploads; the rest are
unowned system cases. This is useful for local testing with an empty database.`,
	RunE: runSeed,
}

var seedForce bool

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Seed even when cases already exist")
}

type sampleStudy struct {
	patient    string
	modality   string
	bodyPart   string
	severity   int
	confidence int
	status     string
	findings   string
	upload     bool
	age        time.Duration
}

var sampleStudies = []sampleStudy{
	{"Maria Garcia", "CT", "Chest", 9, 94, "open", "Large right-sided pneumothorax with mediastinal shift.", true, 40 * time.Minute},
	{"James Okafor", "MRI", "Brain", 8, 88, "open", "Acute infarct in the left MCA territory.", false, 3 * time.Hour},
	{"Wei Chen", "X-Ray", "Chest", 6, 76, "in-progress", "Right lower lobe consolidation. Severity: 7", false, 7 * time.Hour},
	{"Aisha Rahman", "CT", "Abdomen", 5, 67, "open", "Mild hepatic steatosis, no focal lesion.", true, 26 * time.Hour},
	{"Lukas Novak", "Ultrasound", "Abdomen", 3, 58, "open", "Gallbladder sludge without wall thickening.", false, 49 * time.Hour},
	{"Sofia Rossi", "X-Ray", "Knee", 2, 91, "review-completed", "No acute osseous abnormality.", false, 5 * 24 * time.Hour},
	{"Daniel Mensah", "MRI", "Spine", 7, 42, "open", "Possible L4-L5 disc extrusion. Confidence: 81%", true, 90 * time.Minute},
	{"Hana Sato", "Mammography", "Breast", 6, 83, "open", "BI-RADS 4 cluster of microcalcifications.", false, 12 * time.Hour},
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger, err := newLogger(config, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("component", "seed"))
	logger.Info("seeding sample cases")

	b, err := openBackend(config, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if !seedForce {
		rows, err := b.store.Query(ctx, store.Query{Table: store.TableCases, IncludeArchived: true, Limit: 1})
		if err != nil {
			return fmt.Errorf("failed to check for existing cases: %w", err)
		}
		if len(rows) > 0 {
			logger.Info("cases already present, skipping (use --force to seed anyway)")
			return nil
		}
	}

	now := time.Now()
	created := 0
	for _, s := range sampleStudies {
		row := store.Row{
			store.ColPatientName:     s.patient,
			store.ColModality:        s.modality,
			store.ColBodyPart:        s.bodyPart,
			store.ColSeverityRating:  s.severity,
			store.ColConfidenceScore: s.confidence,
			store.ColStatus:          s.status,
			store.ColFindings:        s.findings,
			store.ColCreatedAt:       now.Add(-s.age),
		}
		if s.upload {
			if config.Principal.ID == "" {
				logger.Warn("no principal configured, upload seeded as system case", zap.String("patient", s.patient))
			} else {
				row[store.ColUserID] = config.Principal.ID
			}
		}

		rec, err := b.repo.Create(ctx, row)
		if err != nil {
			logger.Warn("failed to create sample case", zap.String("patient", s.patient), zap.Error(err))
			continue
		}
		created++
		logger.Debug("created sample case",
			zap.String("case_id", rec.ID),
			zap.String("priority", string(rec.Priority)),
			zap.String("source", string(rec.Source)))
	}

	logger.Info("seeding completed", zap.Int("created", created), zap.Int("total", len(sampleStudies)))
	fmt.Printf("Seeded %d of %d sample cases.\n", created, len(sampleStudies))
	return nil
}
