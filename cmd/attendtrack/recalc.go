package main

import (
	"fmt"

	"github.com/scalimax/attendtrack/internal/config"
	"github.com/scalimax/attendtrack/internal/tracker"
	"github.com/spf13/cobra"
)

var (
	recalcUserID   string
	recalcAll      bool
	recalcForce    bool
	recalcSchedule bool
	recalcKeepOld  bool
)

var recalcCmd = &cobra.Command{
	Use:   "recalc REGISTER_ID",
	Short: "Recalculate sessions and aggregates for a register",
	Long: `Recalc updates derived attendance data for one register. By default only
users with activity newer than their cached totals are recalculated. Use
--user for a single user (add --force for a full rebuild), --all to force a
full rebuild for every tracked user, or --schedule to mark the register for
the next scheduler pass instead of recalculating now.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecalc,
}

func init() {
	rootCmd.AddCommand(recalcCmd)

	recalcCmd.Flags().StringVarP(&recalcUserID, "user", "u", "", "Recalculate a single user")
	recalcCmd.Flags().BoolVarP(&recalcAll, "all", "a", false, "Force a full rebuild for every tracked user")
	recalcCmd.Flags().BoolVarP(&recalcForce, "force", "f", false, "Rebuild from scratch instead of updating incrementally (with --user)")
	recalcCmd.Flags().BoolVarP(&recalcSchedule, "schedule", "s", false, "Mark the register for recalculation on the next scheduler pass")
	recalcCmd.Flags().BoolVar(&recalcKeepOld, "keep-old", false, "Keep existing online sessions instead of deleting them first")
}

// cliProgress prints recalculation progress to stdout.
type cliProgress struct{}

func (cliProgress) Update(done, total int, message string) {
	if total > 0 {
		fmt.Printf("[%d/%d] %s\n", done, total, message)
		return
	}
	fmt.Println(message)
}

func (cliProgress) Finish(message string) {
	fmt.Println(message)
}

func runRecalc(cmd *cobra.Command, args []string) error {
	registerID := args[0]

	if recalcAll && recalcUserID != "" {
		return fmt.Errorf("--all and --user are mutually exclusive")
	}
	if recalcSchedule && (recalcAll || recalcUserID != "") {
		return fmt.Errorf("--schedule cannot be combined with --all or --user")
	}
	if recalcForce && recalcUserID == "" && !recalcAll {
		return fmt.Errorf("--force requires --user or --all")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	trk := tracker.New(store, tracker.Options{
		MaxOfflineSessionDuration: parseDuration(cfg.Tracking.MaxOfflineSessionDuration, tracker.DefaultMaxOfflineSessionDuration),
		LockOrphanAge:             parseDuration(cfg.Tracking.LockOrphanAge, tracker.DefaultLockOrphanAge),
		CourseCacheSize:           cfg.Tracking.TrackedCourseCacheSize,
		CourseCacheTTL:            parseDuration(cfg.Tracking.TrackedCourseCacheTTL, tracker.DefaultCourseCacheTTL),
	}, logger)

	ctx := cmd.Context()
	observer := cliProgress{}

	switch {
	case recalcSchedule:
		if err := trk.SetPendingRecalc(ctx, registerID, true); err != nil {
			return fmt.Errorf("failed to schedule recalculation: %w", err)
		}
		fmt.Printf("Register %s scheduled for recalculation\n", registerID)

	case recalcUserID != "" && recalcForce:
		if err := trk.ForceRecalcUser(ctx, registerID, recalcUserID, !recalcKeepOld, observer); err != nil {
			return fmt.Errorf("failed to recalculate user %s: %w", recalcUserID, err)
		}
		fmt.Printf("User %s recalculated\n", recalcUserID)

	case recalcUserID != "":
		found, err := trk.UpdateUserSessions(ctx, registerID, recalcUserID, observer)
		if err != nil {
			return fmt.Errorf("failed to update user %s: %w", recalcUserID, err)
		}
		if found {
			fmt.Printf("User %s updated\n", recalcUserID)
		} else {
			fmt.Printf("User %s already up to date\n", recalcUserID)
		}

	case recalcAll:
		count, err := trk.ForceRecalcAll(ctx, registerID, observer)
		if err != nil {
			return fmt.Errorf("failed to recalculate register: %w", err)
		}
		fmt.Printf("Recalculated %d users\n", count)

	default:
		count, err := trk.UpdateAllNeedingRecalculation(ctx, registerID, observer)
		if err != nil {
			return fmt.Errorf("failed to update register: %w", err)
		}
		fmt.Printf("Updated %d users with new sessions\n", count)
	}

	return nil
}
