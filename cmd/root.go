package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hseinmoussa/tzbuddy/internal/config"
	"github.com/hseinmoussa/tzbuddy/internal/delivery"
	"github.com/hseinmoussa/tzbuddy/internal/engine"
	"github.com/hseinmoussa/tzbuddy/internal/fileutil"
	"github.com/hseinmoussa/tzbuddy/internal/format"
	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/lock"
	"github.com/hseinmoussa/tzbuddy/internal/logging"
	"github.com/hseinmoussa/tzbuddy/internal/parser"
	"github.com/hseinmoussa/tzbuddy/internal/resolver"
	"github.com/hseinmoussa/tzbuddy/internal/store"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

// Global flag values. Empty means "use config".
var (
	flagDBPath    string
	flagLogLevel  string
	flagLogFormat string
)

// rootCmd is the top-level cobra command for tzbuddy.
var rootCmd = &cobra.Command{
	Use:   "tzbuddy",
	Short: "Convert times mentioned in chat messages into everyone's timezone",
	Long: "tzbuddy finds clock times in Discord and Telegram messages (English and Russian) " +
		"and replies with the same moment in each participant's timezone.",
	SilenceUsage: true,
}

// SetVersion sets the CLI version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// ── runtime ─────────────────────────────────────────────────────────────

// app bundles what most commands need: effective config, logger, directory
// and, when opened, the store.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	dir   *tzdir.Directory
	store *store.Store
}

// overrides maps global flags onto config keys.
func overrides() map[string]string {
	o := map[string]string{}
	if flagDBPath != "" {
		o["db_path"] = flagDBPath
	}
	if flagLogLevel != "" {
		o["log_level"] = flagLogLevel
	}
	if flagLogFormat != "" {
		o["log_format"] = flagLogFormat
	}
	return o
}

func openApp(ctx context.Context, withStore bool) (*app, error) {
	cfg, err := config.Load(overrides())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	dir, err := tzdir.Load(config.DirectoryFilePath())
	if err != nil {
		return nil, fmt.Errorf("load timezone directory: %w", err)
	}

	a := &app{cfg: cfg, log: log, dir: dir}
	if withStore {
		st, err := store.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
	}
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close store", "error", err)
		}
	}
}

func (a *app) engine(now func() time.Time) (*engine.Engine, error) {
	return engine.New(a.dir, a.store, engine.Options{
		MaxMentions:     a.cfg.MaxMentions,
		MaxTargets:      a.cfg.MaxActiveTimezones,
		RespondToEdited: a.cfg.RespondToEdited,
		IgnoreBots:      a.cfg.IgnoreBots,
		Now:             now,
		Logger:          a.log,
	})
}

// ── convert ─────────────────────────────────────────────────────────────

var convertCmd = &cobra.Command{
	Use:   "convert [message]",
	Short: "Convert the times in one message",
	Long: `Convert the times in one message.

With --from/--to the conversion runs against the given zones only. With
--chat it runs as a Telegram group reply using stored profiles; with
--clicker it runs as a Discord button click.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var (
	convertFrom    string
	convertTo      []string
	convertGroup   bool
	convertNow     string
	convertExplain bool
	convertChat    string
	convertSender  string
	convertClicker string
)

func runConvert(cmd *cobra.Command, args []string) error {
	text := args[0]
	now, err := parseNow(convertNow)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stored := convertChat != "" || convertClicker != ""
	if stored && (convertFrom != "" || len(convertTo) > 0) {
		return fmt.Errorf("--from/--to cannot be combined with --chat or --clicker")
	}

	a, err := openApp(ctx, stored)
	if err != nil {
		return err
	}
	defer a.Close()

	if convertExplain {
		explain(parser.New(a.dir, parser.Options{MaxMentions: a.cfg.MaxMentions}).Parse(text))
	}

	if !stored {
		return convertDirect(a, text, now)
	}

	e, err := a.engine(now)
	if err != nil {
		return err
	}
	var r engine.Reply
	if convertChat != "" {
		r, err = e.TelegramPublic(ctx, engine.TelegramMessage{ChatID: convertChat, SenderID: convertSender, Text: text})
	} else {
		r, err = e.DiscordConvert(ctx, text, convertSender, convertClicker)
	}
	if err != nil {
		return err
	}
	printReply(r.Outcome.String(), r.Text)
	return nil
}

// convertDirect runs parser, resolver and formatter without storage.
func convertDirect(a *app, text string, now func() time.Time) error {
	parsed := parser.New(a.dir, parser.Options{MaxMentions: a.cfg.MaxMentions}).Parse(text)
	res := resolver.New(a.dir, now).Resolve(parsed, convertFrom, convertTo)
	for _, s := range res.Skipped {
		a.log.Warn("skipped target zone", "zone", s)
	}

	f, err := format.New(a.dir, format.Options{MaxTargets: a.cfg.MaxActiveTimezones})
	if err != nil {
		return err
	}
	tag := parsed.Language.Or(lang.EN)

	switch res.Outcome {
	case resolver.NoMention:
		printReply(res.Outcome.String(), "")
	case resolver.NeedsOnboarding:
		printReply(res.Outcome.String(), "no source timezone: pass --from or name one in the message")
	case resolver.UnknownTimezone:
		printReply(res.Outcome.String(), f.UnknownTimezone(tag, res.RawToken))
	default:
		mode := format.PairMode
		if convertGroup {
			mode = format.GroupMode
		}
		printReply(res.Outcome.String(), f.Format(res, tag, mode))
	}
	return nil
}

func printReply(outcome, text string) {
	if text == "" {
		fmt.Printf("(%s)\n", outcome)
		return
	}
	fmt.Println(text)
}

func explain(r parser.Result) {
	fmt.Printf("language: %s\n", r.Language)
	if r.Anchor != nil {
		fmt.Printf("anchor:   %s %q\n", r.Anchor.Kind, r.Anchor.Raw)
	}
	if r.Timezone != nil {
		fmt.Printf("timezone: %s %q\n", r.Timezone.Kind, r.Timezone.Raw)
	}
	for i, m := range r.Mentions {
		rng := ""
		if m.IsRangeEndpoint() {
			rng = fmt.Sprintf(" range=%d", m.RangeID)
		}
		fmt.Printf("mention %d: %02d:%02d %s %q via %s%s\n", i+1, m.Hour, m.Minute, m.Style, m.Raw, m.Matcher(), rng)
	}
	fmt.Println()
}

func parseNow(s string) (func() time.Time, error) {
	if s == "" {
		return time.Now, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("--now must be RFC3339 (e.g. 2026-01-22T12:00:00Z): %w", err)
	}
	return func() time.Time { return t }, nil
}

// ── serve ───────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process JSON-lines chat events from stdin and write replies to stdout",
	RunE:  runServe,
}

var serveInput string

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := lock.Acquire(filepath.Join(config.RunDir(), "serve.lock"), "serve", a.cfg.DBPath)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("another serve is running: %w", err)
		}
		return err
	}
	defer l.Release()

	var in io.Reader = os.Stdin
	if serveInput != "" && serveInput != "-" {
		f, err := os.Open(serveInput)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	e, err := a.engine(nil)
	if err != nil {
		return err
	}
	sink := delivery.NewSink(os.Stdout, a.cfg.WebhookURL, a.log)

	a.log.Info("serve started", "db_path", a.cfg.DBPath, "webhook", a.cfg.WebhookURL != "")
	stats, err := delivery.Serve(ctx, in, e, sink, a.log)
	a.log.Info("serve finished", "events", stats.Events, "replies", stats.Replies, "errors", stats.Errors)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ── clean ───────────────────────────────────────────────────────────────

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphan temp files and, optionally, old analytics events",
	RunE:  runClean,
}

var (
	cleanTempAge   time.Duration
	cleanEventsAge time.Duration
)

func runClean(cmd *cobra.Command, args []string) error {
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	a, err := openApp(cmd.Context(), cleanEventsAge > 0)
	if err != nil {
		return err
	}
	defer a.Close()

	dirs := []string{config.BaseDir(), config.RunDir()}
	if d := filepath.Dir(a.cfg.DBPath); d != config.BaseDir() {
		dirs = append(dirs, d)
	}
	n, err := fileutil.CleanOrphanTemps(dirs, cleanTempAge)
	if err != nil {
		return fmt.Errorf("clean orphan temps: %w", err)
	}

	var pruned int64
	if cleanEventsAge > 0 {
		pruned, err = a.store.PruneEvents(cmd.Context(), time.Now().Add(-cleanEventsAge))
		if err != nil {
			return err
		}
	}

	fmt.Printf("Cleaned artifacts: %d temp files, %d events\n", n, pruned)
	return nil
}

// ── config ──────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := config.ValidateKey(key); err != nil {
		return err
	}
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := config.SetConfigValue(key, value); err != nil {
		return fmt.Errorf("set config: %w", err)
	}

	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	val, err := config.GetConfigValue(key)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s (source: %s)\n", key, val, resolveSource(key))
	return nil
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	RunE:  runConfigList,
}

func runConfigList(cmd *cobra.Command, args []string) error {
	values, err := config.ListConfig()
	if err != nil {
		return fmt.Errorf("list config: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%-22s = %-30s (source: %s)\n", k, values[k], resolveSource(k))
	}
	return nil
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.ConfigFilePath())
	},
}

// resolveSource determines which configuration layer provided the effective
// value for a key: env, file, or default.
func resolveSource(key string) string {
	envKey := config.EnvPrefix + "_" + strings.ToUpper(key)
	if _, ok := os.LookupEnv(envKey); ok {
		return "env"
	}

	data, err := os.ReadFile(config.ConfigFilePath())
	if err == nil && len(data) > 0 {
		var raw map[string]interface{}
		if yaml.Unmarshal(data, &raw) == nil {
			if _, ok := raw[key]; ok {
				return "file"
			}
		}
	}
	return "default"
}

// ── init & execute ──────────────────────────────────────────────────────

func init() {
	// Global flags.
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDBPath, "db", "", "database path (default: config db_path)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: text or json")

	// convert command flags.
	convertCmd.Flags().StringVar(&convertFrom, "from", "", "source timezone when the message names none")
	convertCmd.Flags().StringSliceVar(&convertTo, "to", nil, "target timezones (comma separated)")
	convertCmd.Flags().BoolVar(&convertGroup, "group", false, "render one group line instead of source → target pairs")
	convertCmd.Flags().StringVar(&convertNow, "now", "", "reference time, RFC3339 (default: current time)")
	convertCmd.Flags().BoolVar(&convertExplain, "explain", false, "print what the parser detected first")
	convertCmd.Flags().StringVar(&convertChat, "chat", "", "Telegram chat id: reply as in that group")
	convertCmd.Flags().StringVar(&convertSender, "sender", "", "sender user id (with --chat or --clicker)")
	convertCmd.Flags().StringVar(&convertClicker, "clicker", "", "Discord user id clicking the convert button")

	// serve command flags.
	serveCmd.Flags().StringVar(&serveInput, "input", "-", "JSON-lines event file (- for stdin)")

	// clean command flags.
	cleanCmd.Flags().DurationVar(&cleanTempAge, "temp-age", fileutil.DefaultOrphanAge, "remove temp files older than this even if their writer is alive")
	cleanCmd.Flags().DurationVar(&cleanEventsAge, "events-older-than", 0, "also delete analytics events older than this (0 keeps all)")

	// config subcommands.
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)

	// Register all commands on root.
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
	registerAdmin()
}

// Execute runs the root command and returns any error. The caller (main.go)
// is responsible for calling os.Exit on error.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
