// Command loader imports a place catalog file into the SQLite store.
package main

import (
	"context"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"web/artmap/logger"
	"web/artmap/store"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input    string `short:"i" long:"input"    env:"INPUT_FILE"  description:"Places file to import (JSON array or GeoJSON)" required:"true"`
	Database string `short:"d" long:"database" env:"DATABASE"    description:"SQLite database path" default:"places.db"`
	Purge    bool   `long:"purge" description:"Delete places missing from the input file"`
	DryRun   bool   `short:"n" long:"dry-run"  description:"Parse and report without writing"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	places, err := (store.FileStore{Path: opts.Input}).FetchPlaces(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input file")
	}

	withCoords := 0
	for _, p := range places {
		if p.HasValidCoordinates() {
			withCoords++
		}
	}
	log.Info().
		Int("places", len(places)).
		Int("with_coordinates", withCoords).
		Str("input", opts.Input).
		Msg("Parsed input file")

	if opts.DryRun {
		return
	}

	db, err := store.OpenSQLite(opts.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	ctx := context.Background()

	existing := map[string]bool{}
	if opts.Purge {
		current, err := db.FetchPlaces(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read current catalog")
		}
		for _, p := range current {
			existing[p.ID] = true
		}
	}

	for _, p := range places {
		if p.ID == "" {
			log.Warn().Str("name", p.Name).Msg("Skipping place without an ID")
			continue
		}
		if err := db.UpsertPlace(ctx, p); err != nil {
			log.Fatal().Err(err).Str("id", p.ID).Msg("Failed to import place")
		}
		delete(existing, p.ID)
	}

	purged := 0
	for id := range existing {
		if err := db.DeletePlace(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to purge place")
			continue
		}
		purged++
	}

	log.Info().
		Int("imported", len(places)).
		Int("purged", purged).
		Str("database", opts.Database).
		Msg("Import finished")
}
