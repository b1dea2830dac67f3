package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/scalimax/attendtrack/internal/config"
	"github.com/scalimax/attendtrack/internal/storage"
	"github.com/scalimax/attendtrack/internal/tracker"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [REGISTER_ID]",
	Short: "Show registers and their cached attendance totals",
	Long: `Status lists the configured registers and, for each, the cached per-user
duration totals. Pass a register id to restrict output to one register.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()

	registers, err := store.Registers().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list registers: %w", err)
	}
	if len(args) == 1 {
		filtered := registers[:0]
		for _, reg := range registers {
			if reg.ID == args[0] {
				filtered = append(filtered, reg)
			}
		}
		registers = filtered
		if len(registers) == 0 {
			return fmt.Errorf("register not found: %s", args[0])
		}
	}
	sort.Slice(registers, func(i, j int) bool { return registers[i].ID < registers[j].ID })

	users, err := store.Users().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName
	}

	header := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgYellow)
	ok := color.New(color.FgGreen)

	for _, reg := range registers {
		header.Printf("Register %s (%s)\n", reg.ID, reg.Name)
		fmt.Printf("  type=%s timeout=%s offline=%t", reg.Type, reg.SessionTimeout(), reg.OfflineSessions)
		if reg.CompletionEnabled() {
			fmt.Printf(" completion=%dm", reg.CompletionTotalMinutes)
		}
		fmt.Println()
		if reg.PendingRecalc {
			warn.Println("  pending full recalculation")
		}

		summaries, err := store.Aggregates().ListSummaries(ctx, reg.ID)
		if err != nil {
			return fmt.Errorf("failed to list aggregates for %s: %w", reg.ID, err)
		}
		printSummaries(reg, summaries, names, ok)
		fmt.Println()
	}

	return nil
}

// printSummaries renders the total rows for one register, grouped by user.
func printSummaries(reg storage.Register, rows []storage.Aggregate, names map[string]string, ok *color.Color) {
	byUser := make(map[string][]storage.Aggregate)
	var userIDs []string
	for _, row := range rows {
		if _, seen := byUser[row.UserID]; !seen {
			userIDs = append(userIDs, row.UserID)
		}
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}
	sort.Strings(userIDs)

	if len(userIDs) == 0 {
		fmt.Println("  no cached totals")
		return
	}

	for _, userID := range userIDs {
		name := names[userID]
		if name == "" {
			name = userID
		}

		var online, offline, grand int64
		var lastLogout time.Time
		for _, row := range byUser[userID] {
			switch row.Kind {
			case storage.KindOnlineTotal:
				online = row.DurationSeconds
			case storage.KindOfflineTotal:
				offline = row.DurationSeconds
			case storage.KindGrandTotal:
				grand = row.DurationSeconds
				lastLogout = row.LastOnlineLogout
			}
		}

		fmt.Printf("  %-24s online=%s offline=%s total=%s",
			name, formatSeconds(online), formatSeconds(offline), formatSeconds(grand))
		if !lastLogout.IsZero() {
			fmt.Printf(" last_logout=%s", lastLogout.Format(time.RFC3339))
		}
		if reg.CompletionEnabled() && tracker.MeetsCompletionThreshold(reg.CompletionTotalMinutes, grand) {
			fmt.Print(" ")
			ok.Print("complete")
		}
		fmt.Println()
	}
}

func formatSeconds(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
