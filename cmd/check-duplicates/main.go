// Command check-duplicates audits games for repeated turn submissions.
//
//	check-duplicates -match quantum        # report
//	check-duplicates -match quantum -purge # report and delete duplicates
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"twovue/internal/config"
	"twovue/internal/dedupe"
	"twovue/internal/gameid"
	"twovue/internal/logging"
	"twovue/internal/store/backend"

	"github.com/rs/zerolog/log"
)

func main() {
	match := flag.String("match", "", "substring of the game ids to audit")
	purge := flag.Bool("purge", false, "delete duplicate turns")
	flag.Parse()

	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	st, closeStore, err := backend.Open(ctx, cfg.Server)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer closeStore()

	if err := run(ctx, os.Stdout, st, *match, *purge); err != nil {
		log.Error().Err(err).Msg("duplicate audit failed")
		closeStore()
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, st backend.Store, match string, purge bool) error {
	games, err := st.FindGames(ctx, match)
	if err != nil {
		return fmt.Errorf("find games: %w", err)
	}
	if len(games) == 0 {
		fmt.Fprintf(out, "No games found matching %q\n", match)
		return nil
	}
	detector := dedupe.New(st)
	for _, g := range games {
		fmt.Fprintf(out, "Game %s [%s] (%s vs %s) status=%s\n", g.ID, gameid.Display(g.ID), g.Player1Name, orDash(g.Player2Name), g.Status)
		turns, err := st.ListTurns(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("list turns: %w", err)
		}
		report := dedupe.Classify(g.ID, turns)
		for _, t := range turns {
			fmt.Fprintf(out, "  turn %d %s by %s at %s\n", t.TurnNumber, t.PhotoURL, t.PlayerName, t.CreatedAt.Format(time.RFC3339))
		}
		if len(report.Duplicates) == 0 {
			fmt.Fprintln(out, "  no duplicates")
			continue
		}
		for _, d := range report.Duplicates {
			fmt.Fprintf(out, "  DUPLICATE turn %d (%s) repeats turn %d\n", d.Turn.TurnNumber, d.Turn.ID, d.Original.TurnNumber)
		}
		if !purge {
			continue
		}
		removed, err := detector.Purge(ctx, g.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  removed %d duplicate turns\n", removed)
	}
	return nil
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
