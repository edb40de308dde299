package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cgourdon/MangaToEpub/internal/config"
	"github.com/cgourdon/MangaToEpub/internal/converter"
	"github.com/cgourdon/MangaToEpub/internal/pageproc"
	"github.com/cgourdon/MangaToEpub/internal/source"
)

var errSkipped = errors.New("some inputs were skipped")

// cliOptions is everything a command needs after flag parsing.
type cliOptions struct {
	converter.ConvertOptions
	Strict     bool
	NoProgress bool

	logFile io.Closer
}

func (o cliOptions) close() {
	if o.logFile != nil {
		o.logFile.Close()
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manga2epub [flags] <input>...",
		Short: "Convert manga images and archives to an EPUB",
		Long: `manga2epub turns a list of page images, folders and RAR/TAR/ZIP
archives (cbr, cbt, cbz included) into one EPUB sized for e-reader screens.

Double-page spreads can be split or rotated, white borders trimmed and every
page is placed on a fixed-size canvas at the requested height.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConvert,
	}

	f := cmd.Flags()
	f.StringP("output", "o", "", "Output file path (default: <out-dir>/<name>.epub)")
	f.String("out-dir", "", "Output folder (default: folder of the first input)")
	f.String("name", "", "Output base filename (default: name of the first input)")
	f.String("title", "", "Book title (default: output base filename)")
	f.String("author", "", "Book author")
	f.Bool("strict", false, "Exit with an error when any input was skipped")
	f.Bool("no-progress", false, "Disable the progress bar")
	addRenderFlags(cmd)

	cmd.AddCommand(newPreviewCmd(), newInspectCmd())
	return cmd
}

// addRenderFlags registers the flags shared by convert and preview. Defaults
// mirror config.Defaults; a flag only overrides the profile when it is set.
func addRenderFlags(cmd *cobra.Command) {
	d := config.Defaults()
	f := cmd.Flags()
	f.String("config", "", "YAML render profile")
	f.Int("height", d.Height, "Page height in pixels")
	f.Bool("grayscale", d.Grayscale, "Convert pages to grayscale")
	f.Bool("trim", d.Trimming, "Trim white borders")
	f.String("trim-level", d.TrimLevel, "Trim sensitivity: high, medium, low, none")
	f.Int("trim-threshold", 0, "Explicit trim threshold 0-255, overrides --trim-level")
	f.String("trim-method", d.TrimMethod, "Border detection: absolute, average")
	f.String("double-page", d.DoublePage, "Double page handling: "+strings.Join(pageproc.DoublePageKeys(), ", "))
	f.Int("offset", d.Offset, "Split offset in pixels, positive enlarges the left half")
	f.Float64("margin", d.LeftMargin, "Share of the free width placed left of the page (0-1)")
	f.Int("quality", d.Quality, "JPEG quality (60-100)")
	f.Int("max-image-size", 0, "Soft per-page size limit in KB, 0 disables")
	f.Int("workers", 0, "Concurrent page workers (default: number of CPUs)")
	f.String("work-dir", "", "Parent directory of the temporary workspace")
	f.String("language", d.Language, "Book language")

	f.String("log-level", d.Logging.Level, "Log level: debug, info, warn, error")
	f.String("log-format", d.Logging.Format, "Log format: text, json")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
	f.BoolP("verbose", "v", false, "Enable debug logging")
}

// readRenderOptions builds the render settings and logger from the profile
// and the render flags.
func readRenderOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	f := cmd.Flags()

	prof := config.Defaults()
	if path, _ := f.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cliOptions{}, err
		}
		prof = loaded
	}
	if err := applyRenderFlags(cmd, &prof); err != nil {
		return cliOptions{}, err
	}
	if err := prof.Validate(); err != nil {
		return cliOptions{}, err
	}
	settings, err := prof.Settings()
	if err != nil {
		return cliOptions{}, err
	}

	logger, logFile, err := loggerFromFlags(cmd, prof.Logging)
	if err != nil {
		return cliOptions{}, err
	}
	workDir, _ := f.GetString("work-dir")

	return cliOptions{
		ConvertOptions: converter.ConvertOptions{
			Inputs:   args,
			Language: prof.Language,
			Settings: settings,
			Workers:  prof.Workers,
			WorkDir:  workDir,
			Logger:   logger,
		},
		logFile: logFile,
	}, nil
}

func applyRenderFlags(cmd *cobra.Command, prof *config.Profile) error {
	f := cmd.Flags()
	if f.Changed("height") {
		v, _ := f.GetInt("height")
		if v <= 0 {
			return fmt.Errorf("--height must be positive, got %d", v)
		}
		prof.Height = v
	}
	if f.Changed("grayscale") {
		prof.Grayscale, _ = f.GetBool("grayscale")
	}
	if f.Changed("trim") {
		prof.Trimming, _ = f.GetBool("trim")
	}
	if f.Changed("trim-level") {
		v, _ := f.GetString("trim-level")
		if _, err := pageproc.ParseTrimLevel(v); err != nil {
			return fmt.Errorf("--trim-level: %w", err)
		}
		prof.TrimLevel = v
	}
	if f.Changed("trim-threshold") {
		v, _ := f.GetInt("trim-threshold")
		if v < 0 || v > 255 {
			return fmt.Errorf("--trim-threshold must be between 0 and 255, got %d", v)
		}
		prof.TrimThreshold = &v
	}
	if f.Changed("trim-method") {
		v, _ := f.GetString("trim-method")
		if _, err := pageproc.ParseTrimMethod(v); err != nil {
			return fmt.Errorf("--trim-method: %w", err)
		}
		prof.TrimMethod = v
	}
	if f.Changed("double-page") {
		v, _ := f.GetString("double-page")
		if _, err := pageproc.ParseDoublePage(v); err != nil {
			return fmt.Errorf("--double-page: %w", err)
		}
		prof.DoublePage = v
	}
	if f.Changed("offset") {
		prof.Offset, _ = f.GetInt("offset")
	}
	if f.Changed("margin") {
		v, _ := f.GetFloat64("margin")
		if v < 0 || v > 1 {
			return fmt.Errorf("--margin must be between 0 and 1, got %g", v)
		}
		prof.LeftMargin = v
	}
	if f.Changed("quality") {
		v, _ := f.GetInt("quality")
		if v < 60 || v > 100 {
			return fmt.Errorf("--quality must be between 60 and 100, got %d", v)
		}
		prof.Quality = v
	}
	if f.Changed("max-image-size") {
		v, _ := f.GetInt("max-image-size")
		if v < 0 {
			return fmt.Errorf("--max-image-size must not be negative, got %d", v)
		}
		prof.MaxImageSize = v * 1024
	}
	if f.Changed("workers") {
		v, _ := f.GetInt("workers")
		if v < 0 {
			return fmt.Errorf("--workers must not be negative, got %d", v)
		}
		prof.Workers = v
	}
	if f.Changed("language") {
		prof.Language, _ = f.GetString("language")
	}
	return nil
}

// readCLIOptions reads the convert command's flags on top of the render
// options.
func readCLIOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	opts, err := readRenderOptions(cmd, args)
	if err != nil {
		return cliOptions{}, err
	}
	f := cmd.Flags()

	output, _ := f.GetString("output")
	if output == "" {
		dir, _ := f.GetString("out-dir")
		name, _ := f.GetString("name")
		if name == "" && len(args) > 0 {
			name = inputBaseName(args[0])
		}
		if dir == "" && len(args) > 0 {
			dir = filepath.Dir(filepath.Clean(args[0]))
		}
		output = defaultOutputPath(dir, name)
	}
	opts.OutputPath = output

	opts.Title, _ = f.GetString("title")
	if opts.Title == "" {
		base := filepath.Base(output)
		opts.Title = base[:len(base)-len(filepath.Ext(base))]
	}
	opts.Author, _ = f.GetString("author")
	opts.Strict, _ = f.GetBool("strict")
	opts.NoProgress, _ = f.GetBool("no-progress")
	return opts, nil
}

func loggerFromFlags(cmd *cobra.Command, defaults config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	f := cmd.Flags()
	level, format, file := defaults.Level, defaults.Format, defaults.File
	if f.Changed("log-level") {
		level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		format, _ = f.GetString("log-format")
	}
	if f.Changed("log-file") {
		file, _ = f.GetString("log-file")
	}
	if verbose, _ := f.GetBool("verbose"); verbose {
		level = "debug"
	}

	if _, err := parseLogLevel(level); err != nil {
		return nil, nil, fmt.Errorf("--log-level: %w", err)
	}
	switch strings.ToLower(format) {
	case "text", "json":
	default:
		return nil, nil, fmt.Errorf("--log-format must be text or json, got %q", format)
	}

	var w io.Writer = cmd.ErrOrStderr()
	var closer io.Closer
	if file != "" {
		lj := &lumberjack.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		w = io.MultiWriter(w, lj)
		closer = lj
	}
	return buildLogger(w, level, format), closer, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q, want debug, info, warn or error", level)
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := parseLogLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// defaultOutputPath joins dir and name, adding ".epub" unless name already
// ends with it.
func defaultOutputPath(dir, name string) string {
	if !strings.EqualFold(filepath.Ext(name), ".epub") {
		name += ".epub"
	}
	return filepath.Join(dir, name)
}

// inputBaseName strips archive and image extensions from an input's name.
func inputBaseName(input string) string {
	base := filepath.Base(filepath.Clean(input))
	if suffix := source.ArchiveSuffix(base); suffix != "" {
		return base[:len(base)-len(suffix)]
	}
	if source.IsImage(base) {
		return base[:len(base)-len(filepath.Ext(base))]
	}
	return base
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runConvert(cmd *cobra.Command, args []string) error {
	opts, err := readCLIOptions(cmd, args)
	if err != nil {
		return err
	}
	defer opts.close()

	if !opts.NoProgress {
		opts.OnProgress = newProgress(cmd.ErrOrStderr())
	}
	opts.Logger.Info("converting", "inputs", len(opts.Inputs), "output", opts.OutputPath)

	res, err := converter.NewPipeline(opts.ConvertOptions).Convert(commandContext(cmd))
	if res != nil && !res.Report.Empty() {
		fmt.Fprint(cmd.ErrOrStderr(), res.Report.Summary())
	}
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages\n", opts.OutputPath, res.Pages)
	if opts.Strict && !res.Report.Empty() {
		return fmt.Errorf("%w: %d", errSkipped, res.Report.Len())
	}
	return nil
}

// newProgress returns an OnProgress callback drawing a bar on w. The bar is
// created on the first call, once the page total is known.
func newProgress(w io.Writer) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription("Converting pages"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		bar.Set(done)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
