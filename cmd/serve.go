package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/ui"
)

var (
	noTUI    bool
	forceTUI bool

	serveTheme       string
	serveMetricsAddr string
	serveWatch       bool
	serveWatchDir    string
	serveWatchOwner  string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the case dashboard and background services",
	Long: `Start the case console which includes:

1. Terminal dashboard for triaging cases
2. Periodic refresh of the case collection (poll.interval)
3. Refresh on case changes published by other consoles over Redis
4. Optional folder watch that creates cases from dropped files
5. Optional Prometheus /metrics endpoint

The serve command runs until interrupted (Ctrl+C or q in the dashboard).

Examples:
  # Start with the dashboard (default)
  case-console serve --principal 7c1e...

  # Start without the dashboard (headless mode)
  case-console serve --no-tui --metrics-addr :9102

  # Watch a drop folder for new studies
  case-console serve --watch --watch-dir ./data/incoming`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run in headless mode without the dashboard")
	serveCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force the dashboard even in unsupported terminals")
	serveCmd.Flags().StringVar(&serveTheme, "theme", "", "Dashboard theme (dark, light, neon)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Address for the /metrics endpoint (default metrics.addr, empty disables)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Watch a folder for new case files")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "", "Folder to watch (default ingest.dir, then data/incoming)")
	serveCmd.Flags().StringVar(&serveWatchOwner, "watch-owner", "", "Owner id stamped on watched records without user_id")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	if serveMetricsAddr != "" {
		config.Metrics.Addr = serveMetricsAddr
	}

	willUseTUI := determineTUIMode()
	if willUseTUI && !forceTUI && !canInitializeTUI() {
		// determineTUIMode only reports true here when script(1) can supply a terminal
		return runWithPseudoTTY()
	}

	// Dashboard mode keeps the terminal clean: logs go to logs/case-console.log
	var (
		logger *zap.Logger
		err    error
	)
	if willUseTUI {
		path, perr := tuiLogPath("case-console.log")
		if perr != nil {
			logger = zap.NewNop()
		} else {
			logger, err = newLogger(config, path)
		}
	} else {
		logger, err = newLogger(config, "stderr")
	}
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting case console", zap.String("terminal", getTerminalInfo()))

	baseDir := getWorkingDir()
	if config.Store.Backend == "" || config.Store.Backend == "sql" {
		config.Database.Path = resolvePathRelativeToBase(baseDir, config.Database.Path)
		logger.Info("using database", zap.String("path", config.Database.Path), zap.String("driver", config.Database.Driver))
	}

	b, err := openBackend(config, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	coordinator := &ServiceCoordinator{
		backend:     b,
		logger:      logger,
		ctx:         svcCtx,
		MetricsAddr: config.Metrics.Addr,
	}
	if serveWatch {
		dir := serveWatchDir
		if dir == "" {
			dir = config.Ingest.Dir
		}
		if dir == "" {
			dir = "data/incoming"
		}
		coordinator.WatchDir = resolvePathRelativeToBase(baseDir, dir)
		coordinator.WatchPatterns = splitPatterns(config.Ingest.Pattern)
		coordinator.WatchOwner = serveWatchOwner
	}

	var dashboard *ui.UI
	if willUseTUI {
		// Built before services start so it sees the first poll
		engine := filter.NewEngine()
		dashboard = ui.NewUI(svcCtx, ui.Deps{
			Repo:          b.repo,
			Engine:        engine,
			Selection:     b.selection(config, engine, actorFor(config)),
			Notifications: b.tee,
			Theme:         serveTheme,
			Logger:        logger,
		})
	} else {
		// Headless: notifications only reach the log
		b.tee.Listen(func(n bus.Notification) {
			switch n.Kind {
			case bus.KindError, bus.KindAuth:
				logger.Warn(n.Message, zap.String("kind", n.Kind))
			default:
				logger.Info(n.Message, zap.String("kind", n.Kind))
			}
		})
	}

	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}
	defer coordinator.Stop()

	if dashboard != nil {
		if err := dashboard.Start(svcCtx); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		logger.Info("dashboard exited, stopping background services")
		return nil
	}

	logger.Info("running in headless mode")
	<-ctx.Done()
	logger.Info("received shutdown signal")
	return nil
}
