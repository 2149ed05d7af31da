package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-catalog/internal/codec"
	"media-catalog/internal/config"
	"media-catalog/internal/crawler"
	"media-catalog/internal/logging"
	"media-catalog/internal/ops"
	"media-catalog/internal/preview"
	"media-catalog/internal/processor"
	"media-catalog/internal/reconciler"
	"media-catalog/internal/scanner"
	"media-catalog/internal/store"
	"media-catalog/internal/watcher"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "media-catalog",
		Short: "Index media files under configured base paths into a catalog",
		Long: "media-catalog crawls the configured base paths, extracts media " +
			"metadata and preview renditions into a SQLite catalog, and keeps " +
			"the catalog current through filesystem watches.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "media-catalog.toml", "path to the configuration file")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single full indexing pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan()
		},
	}
	rootCmd.AddCommand(scanCmd)

	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("%v", err)
	}
}

// catalog bundles the wired-up pipeline for one process lifetime.
type catalog struct {
	cfg  *config.Config
	st   *store.Store
	rec  *reconciler.Reconciler
	scan *scanner.Scanner
	proc *processor.Processor
}

func bootstrap(ctx context.Context) (*catalog, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	logging.Info("Media type rules loaded: %d extensions", rules.Len())

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	templates := make([]preview.Template, 0, len(cfg.Previews.Templates))
	for _, t := range cfg.Previews.Templates {
		templates = append(templates, preview.Template{Name: t.Name, Width: t.Width, Height: t.Height})
	}
	gen := preview.NewGenerator(templates, cfg.Previews.Quality)

	proc := processor.New(st, gen, codec.New())

	c := &catalog{
		cfg:  cfg,
		st:   st,
		rec:  reconciler.New(st, cfg.Paths),
		scan: scanner.New(cfg.Threads, cfg.MaxPassBytes, proc.Process),
		proc: proc,
	}
	return c, nil
}

// fullPass crawls and reconciles every base path, then runs one scan
// session over the combined work list. Directory reconciliation finishes
// before any file is dispatched.
func (c *catalog) fullPass(ctx context.Context) error {
	rules, err := c.cfg.Rules()
	if err != nil {
		return err
	}

	basePaths, err := c.rec.SyncBasePaths(ctx)
	if err != nil {
		return err
	}

	var items []processor.WorkItem
	for _, bp := range basePaths {
		crawled, err := crawler.Crawl(bp.Path, rules)
		if err != nil {
			logging.Error("Crawl of %s failed: %v", bp.Path, err)
			continue
		}
		work, err := c.rec.Reconcile(ctx, bp, crawled)
		if err != nil {
			logging.Error("Reconciliation of %s failed: %v", bp.Path, err)
			continue
		}
		items = append(items, work...)
	}

	c.scan.Run(ctx, items)
	return nil
}

func runScan() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.st.Close()

	if err := codec.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
	}
	defer codec.ShutdownVips()

	return c.fullPass(ctx)
}

func runService() error {
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.st.Close()

	if err := codec.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
	}
	defer codec.ShutdownVips()

	var srv *http.Server
	if c.cfg.OpsAddr != "" {
		srv = &http.Server{
			Addr: c.cfg.OpsAddr,
			Handler: ops.Router(func() interface{} {
				return map[string]interface{}{
					"scan":        c.scan.Progress(),
					"known_files": c.st.IndexSize(),
				}
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logging.Info("Ops endpoint listening on %s", c.cfg.OpsAddr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Ops server error: %v", err)
			}
		}()
	}

	if err := c.fullPass(ctx); err != nil {
		return err
	}

	rules, err := c.cfg.Rules()
	if err != nil {
		return err
	}
	basePaths, err := c.st.ListBasePaths(ctx)
	if err != nil {
		return err
	}

	var watchers []*watcher.Watcher
	for _, bp := range basePaths {
		w := watcher.New(bp, rules, c.st, c.proc)
		if err := w.Start(ctx); err != nil {
			logging.Error("Cannot watch %s: %v", bp.Path, err)
			continue
		}
		watchers = append(watchers, w)
	}

	logging.Info("Service ready in %s (%d base paths watched)", time.Since(startTime).Round(time.Millisecond), len(watchers))
	<-ctx.Done()

	logging.Info("Shutting down")
	for _, w := range watchers {
		w.Stop()
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Ops server shutdown: %v", err)
		}
	}
	return nil
}
