package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/scalimax/attendtrack/internal/config"
	"github.com/scalimax/attendtrack/internal/storage"
	"github.com/scalimax/attendtrack/internal/tracker"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import registers, courses, users and activity from a JSON file",
	Long: `Import loads a JSON snapshot into storage. The file may carry any subset
of the top-level keys "registers", "courses", "users" and "activity"; records
with an existing id are overwritten, activity entries are appended.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// importFile is the on-disk snapshot format accepted by the import command.
type importFile struct {
	Registers []storage.Register      `json:"registers,omitempty"`
	Courses   []storage.Course        `json:"courses,omitempty"`
	Users     []storage.User          `json:"users,omitempty"`
	Activity  []storage.ActivityEntry `json:"activity,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	var snapshot importFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse import file: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	logger := setupLogger(cfg.Logging)
	trk := tracker.New(store, tracker.Options{}, logger)

	ctx := cmd.Context()

	for _, course := range snapshot.Courses {
		if course.ID == "" {
			return fmt.Errorf("course with empty id in import file")
		}
		if err := store.Courses().Upsert(ctx, course); err != nil {
			return fmt.Errorf("failed to import course %s: %w", course.ID, err)
		}
	}

	for _, reg := range snapshot.Registers {
		if reg.ID == "" {
			return fmt.Errorf("register with empty id in import file")
		}
		if reg.SessionTimeoutMinutes <= 0 {
			reg.SessionTimeoutMinutes = cfg.Tracking.DefaultSessionTimeoutMinutes
		}
		if reg.DaysCertifiable <= 0 {
			reg.DaysCertifiable = cfg.Tracking.DefaultDaysCertifiable
		}
		if err := trk.UpsertRegister(ctx, reg); err != nil {
			return fmt.Errorf("failed to import register %s: %w", reg.ID, err)
		}
	}

	for _, user := range snapshot.Users {
		if user.ID == "" {
			return fmt.Errorf("user with empty id in import file")
		}
		if err := store.Users().Upsert(ctx, user); err != nil {
			return fmt.Errorf("failed to import user %s: %w", user.ID, err)
		}
	}

	for _, entry := range snapshot.Activity {
		if entry.UserID == "" || entry.CourseID == "" || entry.Timestamp.IsZero() {
			return fmt.Errorf("activity entry missing user_id, course_id or timestamp")
		}
		if err := store.Activity().Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to import activity for user %s: %w", entry.UserID, err)
		}
	}

	fmt.Printf("Imported %d registers, %d courses, %d users, %d activity entries\n",
		len(snapshot.Registers), len(snapshot.Courses), len(snapshot.Users), len(snapshot.Activity))
	return nil
}
