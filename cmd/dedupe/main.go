package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dedupe-go/internal/app"
	"dedupe-go/internal/config"
	"dedupe-go/internal/dedup"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp creates a DedupApp from cfg. The caller must defer app.Close().
// operation names the CLI command being run (e.g. "Scan", "Reconcile").
func newApp(ctx context.Context, cfg *config.Config, operation string) (*app.DedupApp, error) {
	a, err := app.NewDedupApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a failure to archive without masking err.
func closeApp(a *app.DedupApp, err *error) {
	if cerr := a.Close(); cerr != nil {
		if *err == nil {
			*err = cerr
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.YellowString("warning:"), cerr)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:          "dedupe",
	Short:        "Find duplicate files and safely remove redundant copies",
	SilenceUsage: true,
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan ROOT",
	Short: "Report duplicate files below ROOT",
	Long: `Walks ROOT, groups files by size and fingerprint, and writes a machine
report and a Markdown report to the report directory. Nothing is deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		exclude, _ := cmd.Flags().GetStringArray("exclude")
		if cmd.Flags().Changed("min-size") {
			minSize, _ := cmd.Flags().GetInt64("min-size")
			cfg.Scan.MinSize = &minSize
		}
		if cmd.Flags().Changed("workers") {
			cfg.Scan.Workers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("format") {
			cfg.Scan.Format, _ = cmd.Flags().GetString("format")
		}
		if cmd.Flags().Changed("top") {
			cfg.Scan.Top, _ = cmd.Flags().GetInt("top")
		}

		a, err := newApp(cmd.Context(), cfg, "Scan")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Scan(cmd.Context(), args[0], exclude)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		printScan(res)
		return nil
	},
}

func printScan(res *app.ScanResult) {
	t := res.Report.Totals
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s %s\n\n", bold("Scanned"), res.Report.Root)
	fmt.Printf("  Files scanned:      %s (%s)\n", humanize.Comma(int64(t.FilesScanned)), humanize.IBytes(uint64(t.BytesScanned)))
	fmt.Printf("  Files indexed:      %s (>= %s)\n", humanize.Comma(int64(t.FilesIndexed)), humanize.IBytes(uint64(res.Report.MinSize)))
	fmt.Printf("  Duplicate clusters: %s\n", humanize.Comma(int64(t.Clusters)))
	fmt.Printf("  Duplicate files:    %s\n", humanize.Comma(int64(t.DuplicateFiles)))
	if t.WastedBytes > 0 {
		fmt.Printf("  Wasted space:       %s\n", color.YellowString(humanize.IBytes(uint64(t.WastedBytes))))
	} else {
		fmt.Printf("  Wasted space:       %s\n", color.GreenString("0 B"))
	}
	if t.Skipped > 0 {
		fmt.Printf("  Errors/skipped:     %s\n", color.RedString("%d", t.Skipped))
	}
	fmt.Printf("\n%s\n", color.CyanString("NO FILES DELETED"))
	fmt.Printf("Machine report:  %s\n", res.Files.Machine)
	fmt.Printf("Markdown report: %s\n", res.Files.Markdown)
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile VOLUME --scope DIR",
	Short: "Remove files inside a scope that have a verified copy elsewhere",
	Long: `Pairs each file inside --scope with files of the same name and size
elsewhere on VOLUME, verifies full content fingerprints, and records every
decision in the audit log. Runs are dry-run unless --live is given; live runs
ask for the typed token DELETE on an interactive terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		scope, _ := cmd.Flags().GetString("scope")
		exclude, _ := cmd.Flags().GetStringArray("exclude")
		live, _ := cmd.Flags().GetBool("live")
		retry, _ := cmd.Flags().GetBool("retry")
		if cmd.Flags().Changed("min-size") {
			minSize, _ := cmd.Flags().GetInt64("min-size")
			cfg.Reconcile.MinSize = &minSize
		}

		a, err := newApp(cmd.Context(), cfg, "Reconcile")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if !live {
			fmt.Printf("%s\n\n", color.YellowString("DRY RUN MODE - No files will be deleted"))
		}

		out, err := a.Reconcile(cmd.Context(), args[0], scope, app.ReconcileRequest{
			Exclude: exclude,
			Live:    live,
			Retry:   retry,
		})
		if out != nil && out.Result != nil && out.Result.Summary != nil {
			printReconcile(out)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("reconcile interrupted; decisions so far are recorded and the next run resumes")
			}
			return fmt.Errorf("reconcile failed: %w", err)
		}
		return nil
	},
}

func printReconcile(out *app.ReconcileOutput) {
	res := out.Result
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("Run #%d (%s)\n", res.RunID, res.Mode)
	fmt.Printf("  Candidates:      %d\n", res.Candidates)
	fmt.Printf("  Decided:         %d\n", res.Decided)
	fmt.Printf("  Already decided: %d\n", res.AlreadyDecided)
	if res.Recovered > 0 {
		fmt.Printf("  Recovered:       %d\n", res.Recovered)
	}
	if res.InProgress > 0 {
		fmt.Printf("  In progress:     %s\n", yellow(res.InProgress))
	}
	fmt.Println()

	for _, o := range dedup.Outcomes {
		count, bytes := res.Summary.Count(o), res.Summary.Bytes(o)
		line := fmt.Sprintf("  %-13s %6d  %s", strings.ToUpper(string(o)), count, humanize.IBytes(uint64(bytes)))
		switch {
		case count == 0:
			fmt.Println(line)
		case o == dedup.OutcomeDeleted || o == dedup.OutcomeWouldDelete:
			fmt.Println(green(line))
		case o == dedup.OutcomeSkipped:
			fmt.Println(yellow(line))
		default:
			fmt.Println(red(line))
		}
	}
	fmt.Println()

	if res.Mode == dedup.ModeLive {
		fmt.Printf("Space freed:       %s\n", green(humanize.IBytes(uint64(res.Summary.BytesFreed()))))
	} else {
		fmt.Printf("Space to be freed: %s\n", green(humanize.IBytes(uint64(res.Summary.BytesWouldFree()))))
	}
	if res.Interrupted {
		fmt.Println(red("INTERRUPTED"))
	}
	if out.SummaryPath != "" {
		fmt.Printf("Summary: %s\n", out.SummaryPath)
	}
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the deletion audit log",
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show decision totals by outcome",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		mode, _ := cmd.Flags().GetString("mode")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, "AuditSummary")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		sum, err := a.Summarize(mode)
		if err != nil {
			return err
		}
		if sum.Total() == 0 {
			fmt.Println("No decisions recorded.")
			return nil
		}
		for _, o := range dedup.Outcomes {
			fmt.Printf("%-13s %6d  %s\n", strings.ToUpper(string(o)), sum.Count(o), humanize.IBytes(uint64(sum.Bytes(o))))
		}
		fmt.Printf("\nSpace freed:           %s\n", humanize.IBytes(uint64(sum.BytesFreed())))
		fmt.Printf("Space to be freed:     %s\n", humanize.IBytes(uint64(sum.BytesWouldFree())))
		return nil
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent decisions",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, "AuditList")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		decisions, err := a.ListDecisions(outcome, limit)
		if err != nil {
			return err
		}
		if len(decisions) == 0 {
			fmt.Println("No decisions recorded.")
			return nil
		}
		for _, d := range decisions {
			fmt.Printf("#%-5d %s  %-7s  %-12s  %10s  %s\n",
				d.RunID,
				d.Timestamp.Local().Format("2006-01-02 15:04:05"),
				d.Mode,
				d.Outcome,
				humanize.IBytes(uint64(d.Size)),
				d.SourcePath,
			)
			if d.Reason != "" {
				fmt.Printf("       %s\n", d.Reason)
			}
		}
		return nil
	},
}

var auditPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Restore the audit log from the archive",
	Long: `Downloads the archived audit log for this host. The local audit log
must not exist; move it aside first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := app.PullAuditLog(cmd.Context(), cfg, func() (string, error) {
			return app.ReadPassphrase("Passphrase: ")
		})
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		fmt.Printf("Audit log restored to %s\n", path)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View reconcile run history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, "GetHistory")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-11s  %-10s  %s\n",
				r.ID,
				r.Operation,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.Parameters,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Host ID:  %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Report Dir:  %s\n", cfg.ReportDir)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Archive:     %s (encrypt=%t)\n", cfg.Archive.Type, cfg.Archive.Encrypt)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Scan:        min_size=%s workers=%d hidden_prefix=%q format=%s top=%d\n",
			humanize.IBytes(uint64(*cfg.Scan.MinSize)), cfg.Scan.Workers, *cfg.Scan.HiddenPrefix, cfg.Scan.Format, cfg.Scan.Top)
		fmt.Printf("Hashing:     quick>%s sample=%s escalate>%s chunk=%s\n",
			humanize.IBytes(uint64(cfg.Hashing.QuickThreshold)),
			humanize.IBytes(uint64(cfg.Hashing.SampleSize)),
			humanize.IBytes(uint64(cfg.Hashing.EscalationThreshold)),
			humanize.IBytes(uint64(cfg.Hashing.ChunkSize)))
		if cfg.Metrics.TextfilePath != "" {
			fmt.Printf("Metrics:     %s\n", cfg.Metrics.TextfilePath)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the age key pair used to encrypt archived audit logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pass, err := app.ReadPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		again, err := app.ReadPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != again {
			return fmt.Errorf("passphrases do not match")
		}

		pub, err := app.SetupKeys(cfg, pass)
		if err != nil {
			return fmt.Errorf("creating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", pub)
		fmt.Printf("Private key: %s (sealed with your passphrase)\n", cfg.Encryption.PrivateKeyPath)
		if cfg.Encryption.Type != "age" {
			fmt.Printf("%s set [encryption] type = \"age\" and [archive] encrypt = true to use it\n", color.YellowString("note:"))
		}
		return nil
	},
}

func init() {
	// scan
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringArray("exclude", nil, "Path to skip (repeatable; relative to ROOT unless absolute)")
	scanCmd.Flags().Int64("min-size", config.DefaultScanMinSize, "Ignore files smaller than this many bytes")
	scanCmd.Flags().Int("workers", config.DefaultWorkers, "Files hashed concurrently")
	scanCmd.Flags().String("format", config.DefaultFormat, "Machine report format: json or yaml")
	scanCmd.Flags().Int("top", config.DefaultTop, "Clusters listed in the Markdown report")

	// reconcile
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().String("scope", "", "Directory whose files may be deleted (required)")
	reconcileCmd.MarkFlagRequired("scope")
	reconcileCmd.Flags().StringArray("exclude", nil, "Path to skip (repeatable; relative to VOLUME unless absolute)")
	reconcileCmd.Flags().Bool("live", false, "Delete confirmed duplicates instead of reporting them")
	reconcileCmd.Flags().Bool("retry", false, "Re-evaluate sources already decided in this mode")
	reconcileCmd.Flags().Int64("min-size", config.DefaultReconcileMinSize, "Ignore files smaller than this many bytes")

	// audit
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditSummaryCmd)
	auditSummaryCmd.Flags().String("mode", "", "Only count decisions of this mode: dry-run or live")
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().String("outcome", "", "Only list decisions with this outcome")
	auditListCmd.Flags().IntP("limit", "n", 50, "Maximum number of decisions to show")
	auditCmd.AddCommand(auditPullCmd)

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	// config
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
}
