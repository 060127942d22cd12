package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/becsim/internal/analysis"
	"github.com/san-kum/becsim/internal/config"
	"github.com/san-kum/becsim/internal/experiment"
	"github.com/san-kum/becsim/internal/export"
	"github.com/san-kum/becsim/internal/optim"
	"github.com/san-kum/becsim/internal/sim"
	"github.com/san-kum/becsim/internal/storage"
	"github.com/san-kum/becsim/internal/telemetry"
	"github.com/san-kum/becsim/internal/tui"
)

var (
	dataDir   string
	verbose   bool
	logFormat string

	configFile   string
	preset       string
	seed         uint64
	trajectories int
	interval     float64
	wigner       bool
	integration  string
	live         bool
	metricsAddr  string
	noStore      bool

	scanParams   []string
	scanSeries   string
	scanColumn   int
	scanMaximize bool

	outPath    string
	profile    bool
	sample     int
	components int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "becsim",
		Short:         "stochastic simulation of multi-component Bose-Einstein condensates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".becsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every sample point")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "logfmt", "log format (logfmt, json)")

	groundCmd := &cobra.Command{
		Use:   "ground",
		Short: "compute the ground state",
		Args:  cobra.NoArgs,
		RunE:  runGround,
	}
	addRunFlags(groundCmd)

	evolveCmd := &cobra.Command{
		Use:   "evolve",
		Short: "prepare the ground state and integrate in real time",
		Args:  cobra.NoArgs,
		RunE:  runEvolve,
	}
	addRunFlags(evolveCmd)
	evolveCmd.Flags().IntVar(&trajectories, "trajectories", config.DefaultTrajectories, "number of trajectories")
	evolveCmd.Flags().Float64Var(&interval, "interval", config.DefaultInterval, "integration interval")
	evolveCmd.Flags().BoolVar(&wigner, "wigner", false, "use the truncated Wigner representation")
	evolveCmd.Flags().StringVar(&integration, "integration", config.IntegrationFixed, "integration (fixed, adaptive)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [series]",
		Short: "plot a stored series",
		Args:  cobra.ExactArgs(2),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVarP(&outPath, "out", "o", "", "write an image (png, svg, pdf) instead of a terminal plot")
	plotCmd.Flags().BoolVar(&profile, "profile", false, "plot one sample of a vector series against the lattice index")
	plotCmd.Flags().IntVar(&sample, "sample", -1, "sample index for --profile (negative counts from the end)")
	plotCmd.Flags().IntVar(&components, "components", 1, "components in a --profile series")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id] [series]",
		Short: "frequency and decay analysis of a stored series",
		Args:  cobra.ExactArgs(2),
		RunE:  analyzeRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model/preset]",
		Short: "list presets, or print one as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "evolve over a grid of parameter values and rank the runs",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	addRunFlags(scanCmd)
	scanCmd.Flags().StringArrayVar(&scanParams, "param", nil, "parameter values, name=start:stop:count or name=v1,v2 (repeatable)")
	scanCmd.Flags().StringVar(&scanSeries, "series", "N", "series scored by its final ensemble mean")
	scanCmd.Flags().IntVar(&scanColumn, "column", 0, "column of the scored series")
	scanCmd.Flags().BoolVar(&scanMaximize, "maximize", false, "rank the largest value first")
	scanCmd.MarkFlagRequired("param")

	rootCmd.AddCommand(groundCmd, evolveCmd, scanCmd, listCmd, plotCmd, exportCmd, analyzeCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration (model/preset)")
	cmd.Flags().Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	cmd.Flags().BoolVar(&live, "live", false, "show live progress")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not save the run")
}

func newLogger() log.Logger {
	w := log.NewSyncWriter(os.Stderr)
	var logger log.Logger
	if logFormat == "json" {
		logger = log.NewJSONLogger(w)
	} else {
		logger = log.NewLogfmtLogger(w)
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	allow := level.AllowInfo()
	switch {
	case live:
		// the live view owns the terminal
		allow = level.AllowError()
	case verbose:
		allow = level.AllowDebug()
	}
	return level.NewFilter(logger, allow)
}

// loadConfig resolves --config and --preset, then applies explicitly set
// flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	var cfg *config.Config
	name := "default"

	switch {
	case configFile != "" && preset != "":
		return nil, "", fmt.Errorf("--config and --preset are mutually exclusive")
	case configFile != "":
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, "", err
		}
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	case preset != "":
		model, p, ok := strings.Cut(preset, "/")
		if cfg = config.GetPreset(model, p); !ok || cfg == nil {
			return nil, "", fmt.Errorf("unknown preset %q (see 'becsim presets')", preset)
		}
		name = preset
	default:
		cfg = config.DefaultConfig()
	}
	if cfg.Name != "" {
		name = cfg.Name
	}

	flags := cmd.Flags()
	if flags.Changed("seed") || cfg.Seed == 0 {
		cfg.Seed = seed
	}
	if flags.Changed("trajectories") {
		cfg.Evolution.Trajectories = trajectories
	}
	if flags.Changed("interval") {
		cfg.Evolution.Interval = interval
	}
	if flags.Changed("wigner") {
		cfg.Evolution.Wigner = wigner
	}
	if flags.Changed("integration") {
		cfg.Evolution.Integration = integration
	}
	return cfg, name, nil
}

// signalContext cancels on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// serveMetrics registers the integration metrics and, when --metrics-addr is
// set, serves them until the returned stop function is called.
func serveMetrics(logger log.Logger) (*telemetry.Metrics, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.New(reg)
	if metricsAddr == "" {
		return metrics, func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()
	level.Info(logger).Log("msg", "serving metrics", "addr", metricsAddr)

	return metrics, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func runGround(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()
	metrics, stop := serveMetrics(logger)
	defer stop()

	e, err := experiment.New(cfg,
		experiment.WithLogger(logger),
		experiment.WithIntegratorOptions(sim.WithLogger(logger), sim.WithMetrics(metrics)),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var res *sim.Result
	if live && cfg.Ground.Method == config.GroundImaginaryTime {
		m := tui.NewModel("ground state: "+name, 0, 0, []string{"E"}, nil)
		res, err = tui.Run(ctx, m, func(ctx context.Context, obs sim.Observer) (*sim.Result, error) {
			_, r, err := e.GroundState(ctx, sim.WithObserver(obs))
			return r, err
		})
	} else {
		_, res, err = e.GroundState(ctx)
	}
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Println("thomas-fermi ground state prepared; nothing to store")
		return nil
	}

	printSummary(res)
	if energy := res.Samples["E"].Last(); len(energy) > 0 {
		fmt.Printf("energy per particle: %.10g\n", energy[0])
	}
	return storeRun(name, "ground", cfg, res)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()
	metrics, stop := serveMetrics(logger)
	defer stop()

	e, err := experiment.New(cfg,
		experiment.WithLogger(logger),
		experiment.WithIntegratorOptions(sim.WithLogger(logger), sim.WithMetrics(metrics)),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ground, _, err := e.GroundState(ctx)
	if err != nil {
		return err
	}
	psi, err := e.Prepare(ground)
	if err != nil {
		return err
	}

	var res *sim.Result
	if live {
		tEnd := cfg.Evolution.Interval
		m := tui.NewModel("evolve: "+name, 0, tEnd, cfg.Evolution.Display, nil)
		res, err = tui.Run(ctx, m, func(ctx context.Context, obs sim.Observer) (*sim.Result, error) {
			return e.Evolve(ctx, psi, sim.WithObserver(obs))
		})
	} else {
		res, err = e.Evolve(ctx, psi)
	}

	// failed and canceled runs keep the samples taken so far
	if res != nil {
		printSummary(res)
		if serr := storeRun(name, "evolve", cfg, res); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

func runScan(cmd *cobra.Command, args []string) error {
	if _, _, err := loadConfig(cmd); err != nil {
		return err
	}
	params := make([]optim.Param, 0, len(scanParams))
	for _, raw := range scanParams {
		p, err := optim.ParseParam(raw)
		if err != nil {
			return err
		}
		params = append(params, p)
	}

	logger := newLogger()
	metrics, stop := serveMetrics(logger)
	defer stop()

	ctx, cancel := signalContext()
	defer cancel()

	base := func() *config.Config {
		cfg, _, _ := loadConfig(cmd)
		return cfg
	}
	run := func(ctx context.Context, cfg *config.Config) (*sim.Result, error) {
		e, err := experiment.New(cfg,
			experiment.WithLogger(logger),
			experiment.WithIntegratorOptions(sim.WithLogger(logger), sim.WithMetrics(metrics)),
		)
		if err != nil {
			return nil, err
		}
		return e.Run(ctx)
	}

	points, best, err := optim.NewGridSearch(params).Search(ctx, base, run, optim.FinalMean(scanSeries, scanColumn, scanMaximize))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, p := range params {
		fmt.Fprintf(w, "%s\t", p.Name)
	}
	fmt.Fprintf(w, "%s\n", scanSeries)
	for _, pt := range points {
		for _, p := range params {
			fmt.Fprintf(w, "%.6g\t", pt.Values[p.Name])
		}
		switch {
		case pt.Err != nil:
			fmt.Fprintf(w, "error: %v\n", pt.Err)
		case scanMaximize:
			fmt.Fprintf(w, "%.8g\n", -pt.Score)
		default:
			fmt.Fprintf(w, "%.8g\n", pt.Score)
		}
	}
	w.Flush()

	if best != nil {
		fmt.Print("best:")
		for _, p := range params {
			fmt.Printf(" %s=%.6g", p.Name, best.Values[p.Name])
		}
		fmt.Println()
	}
	return err
}

func printSummary(res *sim.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "status\t%s\n", res.Status)
	fmt.Fprintf(w, "t\t%.6g\n", res.Time)
	fmt.Fprintf(w, "samples\t%d\n", len(res.Times))
	fmt.Fprintf(w, "steps\t%d accepted, %d rejected\n", res.Accepted, res.Rejected)
	for name, e := range res.Errors {
		fmt.Fprintf(w, "error(%s)\t%.3g\n", name, e)
	}
	w.Flush()
}

func storeRun(name, kind string, cfg *config.Config, res *sim.Result) error {
	if noStore {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(name, kind, cfg, res)
	if err != nil {
		return err
	}
	fmt.Printf("saved run %s\n", runID)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tTIME\tSTATUS\tT\tSTEPS\tSERIES")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4g\t%d\t%s\n",
			run.ID[:8],
			run.Name,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Status,
			run.Time,
			run.Accepted,
			strings.Join(run.Series, ","),
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(meta.ID, args[1])
	if err != nil {
		return err
	}

	idx := sample
	if idx < 0 {
		idx += len(series.Mean)
	}

	if outPath != "" {
		var p *plot.Plot
		if profile {
			p, err = export.Profile(series, idx, components)
		} else {
			p, err = export.Series(series)
		}
		if err != nil {
			return err
		}
		if err := export.Save(p, outPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outPath)
		return nil
	}

	fmt.Printf("run: %s (%s)\n", meta.ID, meta.Name)
	fmt.Printf("samples: %d\n\n", len(series.Times))

	if profile {
		if idx < 0 || idx >= len(series.Mean) {
			return fmt.Errorf("sample %d out of range", sample)
		}
		graph := asciigraph.Plot(series.Mean[idx],
			asciigraph.Height(15),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s at t=%.4g", series.Name, series.Times[idx])),
		)
		fmt.Println(graph)
		return nil
	}

	width := len(series.Mean[0])
	const maxPlots = 6
	for col := 0; col < min(width, maxPlots); col++ {
		data := make([]float64, len(series.Mean))
		for i := range series.Mean {
			data[i] = series.Mean[i][col]
		}

		caption := series.Name
		if width > 1 {
			caption = fmt.Sprintf("%s[%d]", series.Name, col)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption+" vs time"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outPath == "" {
		return st.Export(os.Stdout, args[0])
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := st.Export(f, args[0]); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	series, err := st.LoadSeries(args[0], args[1])
	if err != nil {
		return err
	}

	values := make([]float64, len(series.Mean))
	for i, m := range series.Mean {
		values[i] = m[0]
	}

	fmt.Printf("analysis of %s[0]\n\n", series.Name)

	freqs, power, err := analysis.Spectrum(series.Times, values)
	if err != nil {
		return err
	}
	graph := asciigraph.Plot(power[1:],
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption("power spectrum"),
	)
	fmt.Println(graph)
	fmt.Println()

	if f, err := analysis.DominantFrequency(series.Times, values); err == nil {
		fmt.Printf("dominant frequency: %.4g (resolution %.3g)\n", f, freqs[1])
		if f > 0 {
			fmt.Printf("period: %.4g\n", 1/f)
		}
	}
	if rate, n0, err := analysis.DecayRate(series.Times, values); err == nil {
		fmt.Printf("exponential fit: %.4g * exp(-%.4g t)\n", n0, rate)
	}
	return nil
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		model, p, _ := strings.Cut(args[0], "/")
		cfg := config.GetPreset(model, p)
		if cfg == nil {
			return fmt.Errorf("unknown preset %q", args[0])
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPRESETS")
	for _, model := range config.ListModels() {
		fmt.Fprintf(w, "%s\t%s\n", model, strings.Join(config.ListPresets(model), ", "))
	}
	return w.Flush()
}
