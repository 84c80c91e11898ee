package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/ctxmodule"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/lifecycle"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
	"golang.org/x/sync/errgroup"
)

// Run loads the document, binds it, replays the configured dispatches and
// writes the rendered document. With a healthcheck port it then keeps the
// engine running and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	doc, err := a.loadDocument(ctx)
	if err != nil {
		return err
	}

	queue := async.NewQueue()
	pool := async.NewPool(ctx, a.config.WorkerCount)
	defer pool.Close()
	rt := reactive.NewRuntime()

	loader := ctxmodule.New(ctxmodule.Options{
		Queue:    queue,
		Pool:     pool,
		Runtime:  rt,
		Registry: a.registry,
	})
	diagnostics := &diag.Recorder{}
	eng := lifecycle.New(doc, lifecycle.Options{
		Queue:    queue,
		Runtime:  rt,
		Loader:   loader,
		Reporter: diag.Tee{diag.LogReporter{}, diagnostics},
	})
	a.mu.Lock()
	a.engine = eng
	a.mu.Unlock()
	defer eng.Stop()

	eng.Start(ctx)
	if err := a.settle(ctx, eng); err != nil {
		return err
	}

	for _, d := range a.config.Dispatch {
		if err := a.dispatch(ctx, doc, d); err != nil {
			return err
		}
		if err := a.settle(ctx, eng); err != nil {
			return err
		}
	}

	stats := eng.Stats()
	a.logger.Info("Document bound.",
		"providers", stats.Providers,
		"bindings", stats.Bindings,
		"diagnostics", len(diagnostics.All()),
		"dispatched", len(a.config.Dispatch))

	var buf bytes.Buffer
	if err := tree.RenderHTML(&buf, doc.Root()); err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := a.outW.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	if a.config.HealthcheckPort > 0 {
		if err := a.serve(ctx, eng, queue, doc); err != nil {
			return err
		}
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) settle(ctx context.Context, eng *lifecycle.Engine) error {
	settleCtx, cancel := context.WithTimeout(ctx, a.config.SettleTimeout)
	defer cancel()
	if err := eng.Settle(settleCtx); err != nil {
		return fmt.Errorf("document did not settle within %s: %w", a.config.SettleTimeout, err)
	}
	return nil
}

func (a *App) dispatch(ctx context.Context, doc *tree.Document, d Dispatch) error {
	target := doc.ElementByID(d.Target)
	if target == nil {
		return fmt.Errorf("dispatch %s: no element with id %q", d, d.Target)
	}
	n := target.Dispatch(d.Type, nil)
	ctxlog.FromContext(ctx).Debug("Event dispatched.", "event", d.Type, "target", target.Path(), "listeners", n)
	return nil
}

// serve runs the engine loop and the healthcheck server until ctx is done.
func (a *App) serve(ctx context.Context, eng *lifecycle.Engine, queue *async.Queue, doc *tree.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthcheckServer(gctx, queue, doc)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
