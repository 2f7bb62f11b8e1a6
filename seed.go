package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/database"
)

func seedCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Seed.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	seed, err := database.DefaultSeed()
	if args.Seed.File != "" {
		seed, err = database.LoadSeedFile(args.Seed.File)
	}
	if err != nil {
		return err
	}

	db, err := openDatabase(args.Seed.DatabaseArgs, logger, args.Seed.DryRun)
	if err != nil {
		return err
	}

	return db.Seed(ctx, seed)
}
