package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/meds-inspect/meds-inspect/aggregate"
	"github.com/meds-inspect/meds-inspect/cache"
	"github.com/meds-inspect/meds-inspect/codesearch"
	"github.com/meds-inspect/meds-inspect/config"
	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/dataset"
	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/meds-inspect/meds-inspect/server"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cfg *config.Config

	configFile   string
	logLevel     string
	invalidate   bool
	topN         int
	searchFields []string

	rootCmd = &cobra.Command{
		Use:   "meds-inspect [path]",
		Short: "Inspect a MEDS dataset",
		Long: `Computes the aggregate views of a MEDS dataset, caches them under
<path>/.meds_inspect_cache and prints the general statistics.`,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		RunE:              runInspect,
	}

	searchCmd = &cobra.Command{
		Use:   "search [path] [term]",
		Short: "Search the code metadata of a dataset",
		Args:  cobra.ExactArgs(2),
		RunE:  runSearch,
	}

	serveCmd = &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve cached views over HTTP and Arrow Flight",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the configuration")
	rootCmd.Flags().BoolVar(&invalidate, "invalidate", false, "delete the cache before computing")
	rootCmd.Flags().IntVar(&topN, "top", 10, "number of top codes to print")
	searchCmd.Flags().StringSliceVar(&searchFields, "field", nil, "fields to search: code, description, parent_codes")
	rootCmd.AddCommand(searchCmd, serveCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(configFile); err != nil {
		return err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return core.SetLevel(level)
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func newClient() (*querier.QueryClient, error) {
	client := querier.NewQueryClient()
	if err := client.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize query client: %w", err)
	}
	return client, nil
}

// inspectOutput is printed by the root command
type inspectOutput struct {
	Path       string                  `json:"path"`
	Statistics aggregate.Statistics    `json:"general_statistics"`
	Months     int                     `json:"months"`
	Subjects   int                     `json:"subjects"`
	TopCodes   []aggregate.CodeCount   `json:"top_codes"`
	CodingDict []aggregate.PrefixCount `json:"coding_dict"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root := cfg.RootDir(argOrEmpty(args))
	if root == "" {
		return fmt.Errorf("no dataset path given: %w", core.ErrInvalidPath)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	store := cache.NewStore(client, afero.NewOsFs())

	if invalidate {
		if err := store.Invalidate(ctx, root); err != nil {
			return err
		}
	}
	bundle, err := store.LoadOrCompute(ctx, root)
	if err != nil {
		return err
	}

	out := inspectOutput{
		Path:       root,
		Statistics: bundle.Statistics,
		Months:     len(bundle.Months),
		Subjects:   len(bundle.Subjects),
		TopCodes:   bundle.TopN(topN),
		CodingDict: bundle.CodingDict,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	fields := make([]codesearch.Field, 0, len(searchFields))
	for _, name := range searchFields {
		f, err := codesearch.ParseField(name)
		if err != nil {
			return err
		}
		fields = append(fields, f)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	searcher := codesearch.NewSearcher(client, afero.NewOsFs(), cfg.SearchLimit)

	res, err := searcher.Search(cmd.Context(), dataset.CodesPath(args[0]), args[1], fields)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message())
	if len(res.Matches) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(res.Matches, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root := cfg.RootDir(argOrEmpty(args))

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	fs := afero.NewOsFs()
	store := cache.NewStore(client, fs)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.NewServer(store, codesearch.NewSearcher(client, fs, cfg.SearchLimit), root),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	flightServer := server.NewFlightServer(store, root)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		core.Infof(ctx, "MEDS Inspect server running at http://localhost:%d", cfg.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if !cfg.DisableFlight {
		g.Go(func() error {
			core.Infof(ctx, "Flight server running on port %d", cfg.FlightPort)
			return server.StartFlightServer(cfg.FlightPort, flightServer)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		core.Infof(ctx, "Shutting down")
		flightServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
