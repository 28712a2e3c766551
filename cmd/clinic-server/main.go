package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chat-incom/agendamento/internal/config"
	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/domain/scheduling"
	"github.com/chat-incom/agendamento/internal/platform/db"
	"github.com/chat-incom/agendamento/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Clinic appointment scheduling API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(slotsCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.Files
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	dir, _ := cmd.Flags().GetString("dir")
	return db.NewMigrator(pool, migrationFiles(dir), newLogger(cfg)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("dir", "", "Migrations directory (defaults to the embedded schema)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the offline snapshot into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			snapshot, err := clinic.LoadSnapshot(cfg.OfflineSnapshot)
			if err != nil {
				return err
			}
			res, err := clinic.Seed(ctx, st.Primary, snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s store: %d specialties, %d insurances, %d doctors created.\n",
				st.Primary.Backend(), res.Specialties, res.Insurances, res.Doctors)
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print bookable dates, or the slots of one date",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			date, _ := cmd.Flags().GetString("date")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			svc := scheduling.NewService(st.Repo, nil, scheduling.Options{Location: loc, Lookahead: cfg.LookaheadDays}, logger)
			return printAvailability(ctx, cmd, svc, scope, date)
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("specialty", "", "Specialty id")
	cmd.Flags().String("date", "", "Date (YYYY-MM-DD); omit to list bookable dates")
	cmd.MarkFlagsMutuallyExclusive("doctor", "specialty")
	cmd.MarkFlagsOneRequired("doctor", "specialty")
	return cmd
}

func scopeFromFlags(cmd *cobra.Command) (scheduling.Scope, error) {
	if v, _ := cmd.Flags().GetString("doctor"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return scheduling.Scope{}, fmt.Errorf("invalid --doctor: %w", err)
		}
		return scheduling.ForDoctor(id), nil
	}
	v, _ := cmd.Flags().GetString("specialty")
	id, err := uuid.Parse(v)
	if err != nil {
		return scheduling.Scope{}, fmt.Errorf("invalid --specialty: %w", err)
	}
	return scheduling.ForSpecialty(id), nil
}

func printAvailability(ctx context.Context, cmd *cobra.Command, svc *scheduling.Service, scope scheduling.Scope, date string) error {
	out := cmd.OutOrStdout()
	if date == "" {
		dates, err := svc.GetAvailableDates(ctx, scope, 0)
		if err != nil {
			return err
		}
		if len(dates) == 0 {
			fmt.Fprintln(out, "No bookable dates.")
			return nil
		}
		fmt.Fprintln(out, strings.Join(dates, "\n"))
		return nil
	}

	slots, err := svc.GetAvailableSlots(ctx, scope, date)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-6s %-10s %s\n", "TIME", "STATUS", "DOCTOR")
	for _, s := range slots {
		status := "taken"
		if s.Available {
			status = "free"
		}
		fmt.Fprintf(out, "%-6s %-10s %s\n", s.Time, status, s.DoctorName)
	}
	return nil
}
