package cli

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/zkshare/internal/client/client"
	"github.com/dmitrijs2005/zkshare/internal/client/config"
	"github.com/dmitrijs2005/zkshare/internal/client/repositories/shares"
	"github.com/dmitrijs2005/zkshare/internal/client/services"
	"github.com/dmitrijs2005/zkshare/internal/keycache"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
)

type App struct {
	config  *config.Config
	svc     services.ShareService
	reader  *bufio.Reader
	out     io.Writer
	closers []func() error
}

// NewApp wires the pipeline, key cache, API client and optional history
// database described by c.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	popts, err := c.PipelineOptions()
	if err != nil {
		return nil, err
	}

	cache := keycache.New(c.KeyCacheOptions())
	p := pipeline.New(popts, cache, logger)

	api, err := client.NewHTTPClient(c.ServerURL, c.Timeout)
	if err != nil {
		return nil, err
	}

	app := &App{
		config: c,
		reader: bufio.NewReader(in),
		out:    out,
		closers: []func() error{
			func() error { cache.Purge(); return nil },
		},
	}

	var history shares.Repository
	if c.HistoryDB != "" {
		db, repo, err := client.InitDatabase(ctx, c.HistoryDB)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		history = repo
	}

	app.svc = services.NewShareService(api, p, history, logger)
	return app, nil
}

// Close releases the history database and disposes cached keys.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
