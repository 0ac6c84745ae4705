/**
 * CONTEXT:   Command line entry point for the pattern mining pipeline
 * INPUT:     Subcommands (discover, export, clear, catalog) and their flags
 * OUTPUT:    Exit code 0 on success, non-zero on storage failure or missing input
 * BUSINESS:  The operator-facing surface of the mining system (spec.md §6)
 * CHANGE:    Initial CLI wiring the Engine, Store and Exporter into cobra commands
 * RISK:      Medium - exit codes drive how a supervisor/cron job reacts to failure
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ha-autopilot/miner/internal/catalog"
	"github.com/ha-autopilot/miner/internal/config"
	ctxbuilder "github.com/ha-autopilot/miner/internal/context"
	"github.com/ha-autopilot/miner/internal/engine"
	"github.com/ha-autopilot/miner/internal/errs"
	"github.com/ha-autopilot/miner/internal/export"
	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/internal/noise"
	"github.com/ha-autopilot/miner/internal/recorder"
	"github.com/ha-autopilot/miner/internal/store"
	"github.com/ha-autopilot/miner/pkg/logger"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgMagenta, color.Bold)
)

var (
	configPath string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "autopilot-miner",
	Short: "Home Assistant pattern mining pipeline",
	Long: `autopilot-miner reads a Home Assistant recorder database, discovers
association, sequence and temporal patterns in entity state history, and
stores validated candidates for review as automation suggestions.

  autopilot-miner discover --days=30         # run a full mining pass
  autopilot-miner discover --incremental      # mine only since the last run
  autopilot-miner export                      # re-export stored patterns
  autopilot-miner clear --confirm             # wipe the pattern store
  autopilot-miner catalog report              # show entity signal classification
  autopilot-miner catalog noise-report        # show per-entity event quality`,
}

func main() {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to miner config YAML (defaults embedded if absent)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	}

	rootCmd.AddCommand(discoverCmd, exportCmd, clearCmd, catalogCmd)

	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor implements spec.md §6's exit code contract: 0 on success,
// non-zero when the recorder could not be reached or required input is
// missing, so cron/supervisor wrappers can distinguish transient storage
// failure from "nothing to do".
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrStorageUnavailable):
		return 2
	case errors.Is(err, errs.ErrStorageTimeout):
		return 3
	case errors.Is(err, errs.ErrEmptyInput):
		return 4
	default:
		return 1
	}
}

func loadConfig() (*config.MinerConfig, error) {
	return config.Load(configPath)
}

var (
	discoverDays        int
	discoverIncremental bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a mining pass against the recorder database",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverDays, "days", 0, "days of history to analyze (default: from config)")
	discoverCmd.Flags().BoolVar(&discoverIncremental, "incremental", false, "mine only since the last recorded run")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	days := discoverDays
	if days <= 0 {
		days = cfg.Mining.Days
	}

	log := logger.NewDefaultLogger("autopilot-miner", cfg.Logging.Level)

	st, err := store.Open(cfg.Store.Path, log.With("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(cfg, st, log, cfg.Mining.SafetyEntities)

	headerColor.Println("Discovering patterns")
	fmt.Println(strings.Repeat("=", 40))

	ctx := context.Background()
	meta, err := eng.Discover(ctx, days, discoverIncremental || cfg.Mining.Incremental, time.Now())
	if err != nil {
		return err
	}

	if meta.Failed {
		errorColor.Printf("run failed: %s\n", meta.FailureReason)
		return fmt.Errorf("run %s failed: %s", meta.RunID, meta.FailureReason)
	}

	printRunSummary(meta)
	return exportArtifacts(cfg, st, log)
}

func printRunSummary(meta model.RunMetadata) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetRowSeparator(" ")
	table.Append([]string{"Run ID:", meta.RunID})
	table.Append([]string{"Days analyzed:", fmt.Sprintf("%d", meta.DaysAnalyzed)})
	table.Append([]string{"Events loaded:", fmt.Sprintf("%d", meta.EventsLoaded)})
	table.Append([]string{"Transactions built:", fmt.Sprintf("%d", meta.TransactionsBuilt)})
	table.Append([]string{"Patterns discovered:", fmt.Sprintf("%d", meta.PatternsDiscovered)})
	table.Append([]string{"Patterns validated:", fmt.Sprintf("%d", meta.PatternsValidated)})
	table.Append([]string{"Patterns stored:", fmt.Sprintf("%d", meta.PatternsStored)})
	table.Append([]string{"Duration:", fmt.Sprintf("%.1fs", meta.DurationSeconds)})
	table.Render()

	successColor.Println("run complete")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-export stored patterns for review",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewDefaultLogger("autopilot-miner", cfg.Logging.Level)

	st, err := store.Open(cfg.Store.Path, log.With("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	return exportArtifacts(cfg, st, log)
}

func exportArtifacts(cfg *config.MinerConfig, st *store.Store, log *logger.DefaultLogger) error {
	exporter, err := export.New(cfg.Export.Dir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	stored, err := st.Query(ctx, store.Filter{MinScore: 0.50})
	if err != nil {
		return err
	}

	patterns := make([]model.Pattern, len(stored))
	for i, sp := range stored {
		patterns[i] = sp.Pattern
	}

	now := time.Now()
	path, err := exporter.ExportPatterns(patterns, 0.50, now)
	if err != nil {
		return err
	}
	infoColor.Printf("patterns exported to %s\n", path)

	draftPath, err := exporter.ExportAutomationDraft(patterns, now)
	if err != nil {
		return err
	}
	infoColor.Printf("automation draft exported to %s\n", draftPath)

	return nil
}

var clearConfirm bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe every stored pattern, transaction and sequence step",
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearConfirm, "confirm", false, "required: confirm the store should be wiped")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearConfirm {
		return fmt.Errorf("refusing to clear the pattern store without --confirm")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewDefaultLogger("autopilot-miner", cfg.Logging.Level)
	st, err := store.Open(cfg.Store.Path, log.With("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ClearAll(context.Background()); err != nil {
		return err
	}

	warningColor.Println("pattern store cleared")
	return nil
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect entity classification and event quality",
}

var catalogReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show every entity's signal classification",
	RunE:  runCatalogReport,
}

func init() {
	catalogCmd.AddCommand(catalogReportCmd, catalogNoiseReportCmd)
}

func runCatalogReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewDefaultLogger("autopilot-miner", cfg.Logging.Level)
	conn, err := recorder.NewConnector(cfg.Recorder, log.With("recorder"))
	if err != nil {
		return err
	}
	defer conn.Close()

	cat := catalog.New(conn.DB(), log.With("catalog"), cfg.Mining.CustomIncludes, cfg.Mining.CustomExcludes)
	rep, err := cat.Report(context.Background())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Signal", "Count"})
	for _, level := range []model.SignalLevel{model.SignalHigh, model.SignalMedium, model.SignalLow, model.SignalExclude} {
		table.Append([]string{string(level), fmt.Sprintf("%d", rep.Counts[level])})
	}
	table.Render()

	return nil
}

var catalogNoiseReportCmd = &cobra.Command{
	Use:   "noise-report",
	Short: "Show per-entity event quality and flap statistics",
	RunE:  runCatalogNoiseReport,
}

func runCatalogNoiseReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewDefaultLogger("autopilot-miner", cfg.Logging.Level)
	conn, err := recorder.NewConnector(cfg.Recorder, log.With("recorder"))
	if err != nil {
		return err
	}
	defer conn.Close()
	defer conn.Reset()

	cat := catalog.New(conn.DB(), log.With("catalog"), cfg.Mining.CustomIncludes, cfg.Mining.CustomExcludes)
	entities, err := cat.GetFilteredEntities(context.Background(), model.SignalMedium)
	if err != nil {
		return err
	}
	entityIDs := make([]string, len(entities))
	for i, e := range entities {
		entityIDs[i] = e.EntityID
	}

	extractor := recorder.NewExtractor(conn)
	now := time.Now()
	start := now.AddDate(0, 0, -cfg.Mining.Days)

	changes, err := extractor.StateChanges(context.Background(), entityIDs, float64(start.Unix()), float64(now.Unix()))
	if err != nil {
		return err
	}

	builder := ctxbuilder.New(extractor, append(append([]string{}, entityIDs...), "sun.sun"))
	enriched, err := builder.BuildAll(context.Background(), changes)
	if err != nil {
		return err
	}

	rep := noise.New(log.With("noise")).EntityReport(enriched)

	entityIDsSorted := make([]string, 0, len(rep))
	for id := range rep {
		entityIDsSorted = append(entityIDsSorted, id)
	}
	sort.Strings(entityIDsSorted)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Entity", "Events", "Flap %", "Reliability", "Recommendation"})
	for _, id := range entityIDsSorted {
		r := rep[id]
		table.Append([]string{
			id,
			fmt.Sprintf("%d", r.TotalEvents),
			fmt.Sprintf("%.1f%%", r.FlapPercentage),
			fmt.Sprintf("%.2f", r.ReliabilityScore),
			r.Recommendation,
		})
	}
	table.Render()

	return nil
}
