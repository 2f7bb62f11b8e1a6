package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/api"
)

func serveCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	db, err := openDatabase(args.Serve.DatabaseArgs, logger, false)
	if err != nil {
		return err
	}

	e := api.NewServer(db, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", args.Serve.Listen).Msg("serving patch history")
		errCh <- e.Start(args.Serve.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
