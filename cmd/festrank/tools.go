package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/config"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/internal/loadgen"
	"github.com/okian/festrank/pkg/logger"
)

var errNotFullCombo = errors.New("missed and striked notes must be zero")

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "normalize one full-combo play",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "perfect", Required: true},
			&cli.IntFlag{Name: "good"},
			&cli.IntFlag{Name: "missed"},
			&cli.IntFlag{Name: "striked"},
			&cli.Float64Flag{Name: "difficulty", Required: true},
		},
		Action: func(c *cli.Context) error {
			counts := scoring.Counts{
				Perfect: c.Int("perfect"),
				Good:    c.Int("good"),
				Missed:  c.Int("missed"),
				Striked: c.Int("striked"),
			}
			switch {
			case counts.Negative() || counts.Total() == 0:
				return fmt.Errorf("counts must be non-negative with at least one note")
			case counts.Missed != 0 || counts.Striked != 0:
				return errNotFullCombo
			case c.Float64("difficulty") <= 0:
				return fmt.Errorf("difficulty must be positive")
			}
			score := scoring.Normalize(counts, c.Float64("difficulty"))
			acc := scoring.WeightedAccuracy(counts.Perfect, counts.Good, counts.Total())
			_, err := fmt.Fprintf(c.App.Writer, "score: %.2f\naccuracy: %.2f\n", score, acc)
			return err
		},
	}
}

func invertCommand() *cli.Command {
	return &cli.Command{
		Name:  "invert",
		Usage: "recover perfect and good counts from a stored score",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "score", Required: true},
			&cli.Float64Flag{Name: "difficulty", Required: true},
			&cli.IntFlag{Name: "notes", Required: true, Usage: "total notes of the song"},
		},
		Action: func(c *cli.Context) error {
			if c.Float64("difficulty") <= 0 || c.Int("notes") <= 0 {
				return fmt.Errorf("difficulty and notes must be positive")
			}
			perfect, good := scoring.Invert(c.Float64("score"), c.Float64("difficulty"), c.Int("notes"))
			_, err := fmt.Fprintf(c.App.Writer, "perfect: %d\ngood: %d\n", perfect, good)
			return err
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a bearer token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", Required: true, EnvVars: []string{"FESTRANK_JWT_SECRET"}},
			&cli.StringFlag{Name: "user", Required: true},
			&cli.StringFlag{Name: "username"},
			&cli.StringFlag{Name: "role", Value: auth.RolePlayer, Usage: "player or rank_manager"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			role := c.String("role")
			if role != auth.RolePlayer && role != auth.RoleRankManager {
				return fmt.Errorf("unknown role %q", role)
			}
			p, err := auth.NewProvider(c.String("secret"))
			if err != nil {
				return err
			}
			tok, err := p.Issue(auth.Claims{
				UserID:   c.String("user"),
				Username: c.String("username"),
				Role:     role,
			}, c.Duration("ttl"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, tok)
			return err
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "load legacy song_info.json and player_data.json files",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "song-info"},
			&cli.PathFlag{Name: "player-data"},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	ctx := c.Context
	if c.Path("song-info") == "" && c.Path("player-data") == "" {
		return fmt.Errorf("nothing to import: pass --song-info and/or --player-data")
	}
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	deps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = deps.svc.Stop(stopCtx)
	}()

	// Songs first so player data resolves canonical names.
	if path := c.Path("song-info"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := deps.svc.ImportSongInfo(ctx, f)
		_ = f.Close()
		if err != nil {
			return err
		}
		log.Info(ctx, "song info imported", logger.Int("songs", n))
	}
	if path := c.Path("player-data"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		st, err := deps.svc.ImportPlayerData(ctx, f)
		_ = f.Close()
		if err != nil {
			return err
		}
		log.Info(ctx, "player data imported",
			logger.Int("players", st.Players),
			logger.Int("records", st.Records),
			logger.Int("bests", st.BestsRead),
			logger.Int("skipped", st.Skipped),
			logger.Int("bad_usernames", st.BadUsernames))
	}
	return nil
}

func loadgenCommand() *cli.Command {
	return &cli.Command{
		Name:  "loadgen",
		Usage: "drive a running server with generated plays and verify the leaderboards",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:9080"},
			&cli.StringFlag{Name: "secret", Required: true, EnvVars: []string{"FESTRANK_JWT_SECRET"}},
			&cli.IntFlag{Name: "players", Value: 200},
			&cli.IntFlag{Name: "songs", Value: 50},
			&cli.IntFlag{Name: "plays", Value: 20, Usage: "plays per player"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * 2},
			&cli.IntFlag{Name: "top", Value: 50},
			&cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano()},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second},
			&cli.StringFlag{Name: "output", Usage: "write generated plays to this JSON file"},
			&cli.BoolFlag{Name: "verbose"},
		},
		Action: func(c *cli.Context) error {
			if err := logger.Init(); err != nil {
				return err
			}
			tokens, err := auth.NewProvider(c.String("secret"))
			if err != nil {
				return err
			}
			// Replay with the same tables the server was configured with.
			cfg, err := config.Load(c.Context)
			if err != nil {
				return err
			}
			engine, err := scoring.New(cfg.EngineOptions()...)
			if err != nil {
				return err
			}
			_, err = loadgen.Run(c.Context, &loadgen.Config{
				BaseURL:        c.String("url"),
				Tokens:         tokens,
				Players:        c.Int("players"),
				Songs:          c.Int("songs"),
				PlaysPerPlayer: c.Int("plays"),
				Workers:        c.Int("workers"),
				Timeout:        c.Duration("timeout"),
				TopN:           c.Int("top"),
				Seed:           c.Int64("seed"),
				OutputFile:     c.String("output"),
				Verbose:        c.Bool("verbose"),
				Instruments:    cfg.Instruments,
			}, engine)
			return err
		},
	}
}
