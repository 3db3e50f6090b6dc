// Command pvpctl runs one-off maintenance tasks against the PVP database:
// schema migrations and manual runs of the background jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/bootstrap"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/postgres"
)

func main() {
	app := &cli.App{
		Name:  "pvpctl",
		Usage: "PVP maintenance commands",
		Commands: []*cli.Command{
			migrateCommand(),
			sweepCommand(),
			snapshotCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pvpctl: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: config, a logger and a database.
type env struct {
	cfg  *config.Config
	log  *slog.Logger
	conn *postgres.Connection
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	log := bootstrap.NewLogger(cfg).Slog()

	conn, err := bootstrap.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, conn: conn}, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: func(c *cli.Context) error {
					e, err := openEnv(c.Context)
					if err != nil {
						return err
					}
					defer e.conn.Close()

					applied, err := postgres.NewMigrator(e.conn).Migrate(c.Context)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Println("No new migrations to run")
						return nil
					}
					fmt.Printf("Applied migrations: %v\n", applied)
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "roll back the last applied migration",
				Action: func(c *cli.Context) error {
					e, err := openEnv(c.Context)
					if err != nil {
						return err
					}
					defer e.conn.Close()

					version, err := postgres.NewMigrator(e.conn).Rollback(c.Context)
					if err != nil {
						return err
					}
					if version == 0 {
						fmt.Println("No migrations to roll back")
						return nil
					}
					fmt.Printf("Rolled back migration %d\n", version)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "list migrations and whether they are applied",
				Action: func(c *cli.Context) error {
					e, err := openEnv(c.Context)
					if err != nil {
						return err
					}
					defer e.conn.Close()

					migrations, err := postgres.NewMigrator(e.conn).Status(c.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
					for _, m := range migrations {
						applied := "pending"
						if m.IsApplied {
							applied = m.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
					}
					return w.Flush()
				},
			},
		},
	}
}

// withEngine opens the full stack for commands that run application
// handlers.
func withEngine(c *cli.Context, fn func(engine *bootstrap.Engine) error) error {
	e, err := openEnv(c.Context)
	if err != nil {
		return err
	}
	defer e.conn.Close()

	storage := bootstrap.PostgresStorage(e.conn, e.cfg.PVP.InitialRating)

	shared, err := bootstrap.OpenSharedState(c.Context, e.cfg, e.log)
	if err != nil {
		return err
	}
	defer shared.Close()

	events, err := bootstrap.OpenEvents(e.cfg, shared.RankingCache, e.log)
	if err != nil {
		return err
	}
	defer events.Close()

	return fn(bootstrap.NewEngine(e.cfg, storage, shared, events, nil, bootstrap.NewLogger(e.cfg)))
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "resolve matches whose time limit has passed",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "batch", Value: 100, Usage: "matches per pass"},
		},
		Action: func(c *cli.Context) error {
			return withEngine(c, func(engine *bootstrap.Engine) error {
				res, err := engine.SweepTimeouts.Handle(c.Context, command.SweepTimeoutsCommand{BatchSize: c.Int("batch")})
				if err != nil {
					return err
				}
				fmt.Printf("scanned=%d resolved=%d skipped=%d failed=%d\n", res.Scanned, res.Resolved, res.Skipped, res.Failed)
				return nil
			})
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "capture the season ranking used for rank change arrows",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "season", Usage: "season ID (default: active season)"},
		},
		Action: func(c *cli.Context) error {
			return withEngine(c, func(engine *bootstrap.Engine) error {
				res, err := engine.SnapshotRankings.Handle(c.Context, command.SnapshotRankingsCommand{SeasonID: c.Int64("season")})
				if err != nil {
					return err
				}
				fmt.Printf("snapshot %s: season=%d participants=%d pruned=%d\n",
					res.Snapshot.ID, res.Snapshot.SeasonID, res.Snapshot.Participants, res.Pruned)
				return nil
			})
		},
	}
}
