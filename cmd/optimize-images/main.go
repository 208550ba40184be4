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
	"syscall"
	"time"

	"portfolio-images/internal/config"
	"portfolio-images/internal/extractor"
	"portfolio-images/internal/generator"
	"portfolio-images/internal/logger"
	"portfolio-images/internal/picture"
	"portfolio-images/internal/statistics"
	"portfolio-images/internal/verifier"
	"portfolio-images/internal/watcher"
	"portfolio-images/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile     string
	verbose     bool
	quiet       bool
	port        int
	watch       bool
	useExiftool bool
)

// rootCmd generates the responsive image set.
var rootCmd = &cobra.Command{
	Use:   "optimize-images",
	Short: "Generate responsive portrait images for the portfolio site",
	Long: `optimize-images resizes the portfolio portrait into a fixed set of widths
and writes two encodings per width into the site's image directory:

  {basename}-{width}.webp  (quality 75)
  {basename}-{width}.jpg   (quality 78)

With no configuration file it reads public/images/me.jpg and writes
me-320, me-800 and me-1200 next to it.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate()
	},
}

// planCmd lists the artifacts a run would write.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the files a run would write without writing them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan()
	},
}

// verifyCmd checks the generated files.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every generated file exists with the expected dimensions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify()
	},
}

// srcsetCmd prints the markup the site uses to reference the files.
var srcsetCmd = &cobra.Command{
	Use:   "srcset",
	Short: "Print the <picture> markup for the generated image set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSrcset()
	},
}

// inspectCmd prints source image metadata.
var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Show dimensions and EXIF metadata of the source image",
	Long: `Shows dimensions, orientation and capture metadata of an image.
Defaults to the configured source. Use --exiftool to read metadata
through exiftool when it is installed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args)
	},
}

// serveCmd starts the preview server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a preview server for the generated image set",
	Long: `Starts a local web server that renders the <picture> element the way the
portfolio does, serves the generated files and can regenerate them.
With --watch the set is regenerated whenever the source image changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// configCmd prints the effective configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./optimize-images.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	inspectCmd.Flags().BoolVar(&useExiftool, "exiftool", false, "read metadata with exiftool")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run the preview server on (default from config, 8080)")
	serveCmd.Flags().BoolVar(&watch, "watch", false, "regenerate when the source image changes")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(srcsetCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// runGenerate executes the generation run.
func runGenerate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	logSourceInfo(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := statistics.NewStatistics()
	gen := generator.NewDefaultGeneratorWithProgress(log, stats, func(width int, results []generator.Result) {
		if quiet {
			return
		}
		names := make([]string, 0, len(results))
		for _, r := range results {
			names = append(names, filepath.Base(r.Path))
		}
		fmt.Printf("Written: %s\n", strings.Join(names, "  "))
	})

	if _, err := gen.Generate(ctx, generator.ParamsFromConfig(cfg)); err != nil {
		log.Debug(stats.GetErrorSummary())
		return err
	}

	log.Info(stats.GetSummary())
	if !quiet {
		fmt.Println("All sizes generated successfully.")
	}
	return nil
}

// runPlan prints the planned artifacts.
func runPlan() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	params := generator.ParamsFromConfig(cfg)
	for _, a := range generator.PlanArtifacts(params) {
		fmt.Printf("%-5d %-5s q%-3d %s\n", a.Width, a.Encoding.Format, a.Encoding.Quality, a.Path)
	}
	return nil
}

// runVerify checks the generated artifacts.
func runVerify() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	report, err := verifier.New(log).Verify(generator.ParamsFromConfig(cfg))
	if err != nil {
		return err
	}

	if !quiet || !report.OK() {
		fmt.Println(report.Summary())
	}
	if !report.OK() {
		return fmt.Errorf("verification failed with %d issues", len(report.Issues))
	}
	return nil
}

// runSrcset prints the <picture> markup.
func runSrcset() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	markup, err := picture.Markup(picture.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Println(markup)
	return nil
}

// runInspect prints metadata for a file, defaulting to the configured source.
func runInspect(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filePath := cfg.SourcePath
	if len(args) > 0 {
		filePath = args[0]
	}
	if !fileExists(filePath) {
		return &generator.MissingSourceError{Path: filePath}
	}

	log := setupLogger(cfg)
	ex, closeFn := extractor.NewBestExtractor(log, useExiftool)
	defer closeFn()

	info, err := ex.Extract(filePath)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", filePath, err)
	}

	fmt.Println(info.Describe())

	w, h := info.Width, info.Height
	if cfg.Resize.AutoOrient {
		w, h = info.DisplaySize()
	}
	for _, width := range cfg.SortedWidths() {
		fmt.Printf("  %-5d -> %dx%d\n", width, width, generator.ExpectedHeight(w, h, width))
	}
	return nil
}

// runServe starts the preview server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Preview.Port = port
	}
	if cmd.Flags().Changed("watch") {
		cfg.Preview.Watch = watch
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Preview.Watch {
		w, err := watcher.NewWatcher(cfg.SourcePath, watcher.DefaultDebounce, log, func(path string) {
			log.Infof("Source changed, regenerating: %s", path)
			if err := server.Regenerate(ctx); err != nil {
				if errors.Is(err, web.ErrBusy) {
					log.Warn("Skipped regeneration: a run is already in progress")
					return
				}
				log.Errorf("Regeneration failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Preview.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("Preview server started at http://localhost:%d\n", cfg.Preview.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}
	fmt.Println("\nShutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// runConfig prints the effective configuration.
func runConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// loadConfig loads the configuration file, if any, and reports which one was used.
func loadConfig() (*config.Config, error) {
	cfg, used, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if used != "" && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.WarnLevel)
	}

	return log
}

// logSourceInfo logs source metadata at debug level and warns about a
// rotated source that will not be turned upright. Failures are ignored; the
// generator reports a missing or unreadable source itself.
func logSourceInfo(log *logrus.Logger, cfg *config.Config) {
	if !fileExists(cfg.SourcePath) {
		return
	}
	info, err := extractor.NewEXIFExtractor(log).Extract(cfg.SourcePath)
	if err != nil {
		log.Debugf("Could not read source metadata: %v", err)
		return
	}
	log.WithFields(logrus.Fields{
		"source":      info.Path,
		"format":      info.Format,
		"width":       info.Width,
		"height":      info.Height,
		"orientation": int(info.Orientation),
	}).Debug("Source image")
	if info.Orientation != extractor.OrientationNormal && !cfg.Resize.AutoOrient {
		log.Warnf("Source has EXIF orientation %q; set resize.auto_orient to rotate it upright", info.Orientation)
	}
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
