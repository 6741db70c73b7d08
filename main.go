// Package main provides the entry point for the voicebox CLI application.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atotto/clipboard"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voicebox/internal/audio"
	"github.com/dgnsrekt/voicebox/internal/voicepack"
	"github.com/dgnsrekt/voicebox/tts"
	"github.com/dgnsrekt/voicebox/tts/bridge"
	"github.com/dgnsrekt/voicebox/tts/engines/neural"
	"github.com/dgnsrekt/voicebox/tts/engines/system"
	"github.com/dgnsrekt/voicebox/ui"
	"github.com/dgnsrekt/voicebox/utils"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	modeName      string
	rate          float64
	balancedVoice string
	bestVoice     string
	fallbackVoice string
	systemVoice   string
	piperBinary   string
	cacheDir      string
	autoFallback  bool
	useClipboard  bool
	debug         bool

	rootCmd = &cobra.Command{
		Use:   "voicebox [TEXT|FILE]",
		Short: "Read text aloud, with pizzazz!",
		Long: paragraph(
			fmt.Sprintf("\nRead text aloud on the CLI, %s!", keyword("with pizzazz")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, args)
		},
	}
)

// envOverrides are runtime knobs read from the environment, taking
// precedence over the config file.
type envOverrides struct {
	PiperBinary  string `env:"VOICEBOX_PIPER"`
	CacheDir     string `env:"VOICEBOX_CACHE_DIR"`
	VoiceBaseURL string `env:"VOICEBOX_VOICE_BASE_URL"`
}

func validateOptions(cmd *cobra.Command) error {
	modeName = viper.GetString("mode")
	rate = viper.GetFloat64("rate")
	balancedVoice = viper.GetString("voices.balanced")
	bestVoice = viper.GetString("voices.best")
	fallbackVoice = viper.GetString("voices.fallback")
	systemVoice = viper.GetString("voice")
	piperBinary = viper.GetString("piper.binary")
	cacheDir = viper.GetString("cache.dir")
	autoFallback = viper.GetBool("auto_start_fallback")
	debug = viper.GetBool("debug")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if _, ok := tts.ParseMode(modeName); !ok {
		return fmt.Errorf("'%s' is not a valid mode: use fastest, balanced, or best", modeName)
	}
	if rate < 0.5 || rate > 2.0 {
		return fmt.Errorf("rate %.2f is out of range: use a value between 0.5 and 2.0", rate)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// resolveText finds the text to read: the clipboard, piped stdin, a text
// file path, or the argument itself.
func resolveText(args []string) (string, error) {
	if useClipboard {
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		return s, nil
	}

	if pipe, err := stdinIsPipe(); err != nil {
		return "", err
	} else if pipe {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read stdin: %w", err)
		}
		return string(b), nil
	}

	if len(args) == 0 {
		return "", nil
	}
	arg := args[0]
	path := utils.ExpandPath(arg)
	if info, err := os.Stat(path); err == nil && !info.IsDir() && utils.IsTextFile(path) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unable to read %s: %w", arg, err)
		}
		return string(b), nil
	}
	return arg, nil
}

func execute(cmd *cobra.Command, args []string) error {
	if err := validateOptions(cmd); err != nil {
		return err
	}

	text, err := resolveText(args)
	if err != nil {
		return err
	}

	pipe, err := stdinIsPipe()
	if err != nil {
		return err
	}
	if pipe || !term.IsTerminal(int(os.Stdout.Fd())) {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("nothing to speak: pass TEXT, a file, or pipe input")
		}
		return executeCLI(text)
	}
	return runTUI(text)
}

// core wires the playback stack: voice-pack store, worker bridge, audio
// sink, both engine sessions, and the orchestrator on top.
type core struct {
	store  *voicepack.Store
	sink   tts.AudioSink
	ctrl   *tts.Controller
	cancel context.CancelFunc
}

func buildCore(view tts.View, logger *log.Logger) (*core, error) {
	overrides, err := env.ParseAs[envOverrides]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	dir := cacheDir
	if overrides.CacheDir != "" {
		dir = overrides.CacheDir
	}
	if dir == "" {
		if dir, err = voicepack.DefaultDir(); err != nil {
			return nil, fmt.Errorf("unable to locate cache directory: %w", err)
		}
	}
	store, err := voicepack.New(utils.ExpandPath(dir), logger)
	if err != nil {
		return nil, fmt.Errorf("unable to open voice-pack store: %w", err)
	}

	binary := piperBinary
	if overrides.PiperBinary != "" {
		binary = overrides.PiperBinary
	}
	pcfg := bridge.PiperConfig{
		Binary:  utils.ExpandPath(binary),
		BaseURL: overrides.VoiceBaseURL,
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := bridge.Pipe(ctx, func(context.Context) (bridge.Client, error) {
		return bridge.NewPiperClient(pcfg, store, logger)
	}, logger)

	sink, err := audio.NewPlayer(audio.DefaultConfig())
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, fmt.Errorf("unable to open audio device: %w", err)
	}

	var fallback tts.FallbackSession
	if sys, err := system.New(logger); err != nil {
		logger.Warn("system speech unavailable", "err", err)
		fallback = unavailableFallback{err: err}
	} else {
		fallback = sys
	}

	mode, _ := tts.ParseMode(modeName)
	cfg := tts.Config{
		Mode:              mode,
		Rate:              rate,
		BalancedVoiceID:   balancedVoice,
		BestVoiceID:       bestVoice,
		FallbackVoiceID:   fallbackVoice,
		SystemVoiceURI:    systemVoice,
		AutoStartFallback: autoFallback,
	}
	ctrl := tts.NewController(cfg, neural.New(b, sink, logger), fallback, view, logger)

	if err := store.Watch(func() {
		ctrl.RefreshVoicePack(context.Background())
	}); err != nil {
		logger.Warn("voice-pack watcher unavailable", "err", err)
	}

	return &core{store: store, sink: sink, ctrl: ctrl, cancel: cancel}, nil
}

func (c *core) close() {
	c.ctrl.Stop()
	c.cancel()
	_ = c.sink.Close()
	_ = c.store.Close()
}

// unavailableFallback stands in when no platform speech command exists, so
// the rest of the stack still runs.
type unavailableFallback struct{ err error }

func (u unavailableFallback) LoadVoices(context.Context, bool) ([]tts.Voice, error) {
	return nil, u.err
}

func (u unavailableFallback) Play(context.Context, string, string, float64) error {
	return u.err
}

func (unavailableFallback) Pause()                  {}
func (unavailableFallback) Resume()                 {}
func (unavailableFallback) Stop()                   {}
func (unavailableFallback) On(string, tts.Listener) {}

func runTUI(text string) error {
	logger := log.Default()
	view := ui.NewView()
	c, err := buildCore(view, logger)
	if err != nil {
		return err
	}
	defer c.close()

	m := ui.NewModel(c.ctrl, text, logger)
	p := ui.NewProgram(m)
	view.Attach(p)
	go c.ctrl.RefreshVoicePack(context.Background())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// cliView drives a one-shot speak: it discards display updates and signals
// when playback returns to rest after having started.
type cliView struct {
	armed atomic.Bool
	once  sync.Once
	done  chan struct{}
}

func newCLIView() *cliView {
	return &cliView{done: make(chan struct{})}
}

func (v *cliView) SetStatus(text string, opts tts.StatusOpts) {
	if opts.ShowProgress {
		log.Debug("status", "text", text, "progress", opts.Progress)
		return
	}
	log.Debug("status", "text", text)
}

func (v *cliView) SetButtons(b tts.ButtonState) {
	if b.Playing || b.Paused || b.Busy {
		v.armed.Store(true)
		return
	}
	if v.armed.Load() {
		v.once.Do(func() { close(v.done) })
	}
}

func (v *cliView) SetVoicePack(status tts.VoicePackStatus) {
	log.Debug("voice pack", "status", status.String())
}

func (v *cliView) ShowModal(message string) {
	fmt.Fprintln(os.Stderr, message)
}

func (v *cliView) HideModal() {}

func executeCLI(text string) error {
	view := newCLIView()
	c, err := buildCore(view, log.Default())
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.ctrl.Play(context.Background(), text); err != nil {
		return err
	}
	<-view.done
	return nil
}

var voicesCmd = &cobra.Command{
	Use:   "voices [FILTER]",
	Short: "List neural and system voices",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOptions(cmd); err != nil {
			return err
		}
		filter := ""
		if len(args) == 1 {
			filter = args[0]
		}
		return listVoices(cmd.Context(), filter)
	},
}

func listVoices(ctx context.Context, filter string) error {
	logger := log.Default()

	dir := cacheDir
	if dir == "" {
		var err error
		if dir, err = voicepack.DefaultDir(); err != nil {
			return fmt.Errorf("unable to locate cache directory: %w", err)
		}
	}
	store, err := voicepack.New(utils.ExpandPath(dir), logger)
	if err != nil {
		return fmt.Errorf("unable to open voice-pack store: %w", err)
	}
	defer func() { _ = store.Close() }()

	client, err := bridge.NewPiperClient(bridge.PiperConfig{Binary: piperBinary}, store, logger)
	if err != nil {
		logger.Warn("neural engine unavailable", "err", err)
	} else if raw, err := client.Voices(ctx); err != nil {
		logger.Warn("unable to list neural voices", "err", err)
	} else {
		fmt.Println("Neural voices:")
		for _, id := range filterNames(tts.NormalizeVoiceList(raw), filter) {
			if store.Has(id) {
				fmt.Printf("  %s (cached)\n", id)
			} else {
				fmt.Printf("  %s\n", id)
			}
		}
	}

	sys, err := system.New(logger)
	if err != nil {
		logger.Warn("system speech unavailable", "err", err)
		return nil
	}
	voices, err := sys.LoadVoices(ctx, false)
	if err != nil {
		return fmt.Errorf("unable to list system voices: %w", err)
	}
	names := make([]string, len(voices))
	byName := make(map[string]tts.Voice, len(voices))
	for i, v := range voices {
		names[i] = v.Name
		byName[v.Name] = v
	}
	fmt.Println("System voices:")
	for _, name := range filterNames(names, filter) {
		v := byName[name]
		if v.Lang != "" {
			fmt.Printf("  %s (%s)\n", v.Name, v.Lang)
		} else {
			fmt.Printf("  %s\n", v.Name)
		}
	}
	return nil
}

// filterNames narrows names with fuzzy matching; an empty filter keeps all.
func filterNames(names []string, filter string) []string {
	if filter == "" {
		return names
	}
	matches := fuzzy.Find(filter, names)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}
	return out
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Delete all downloaded voice packs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := validateOptions(cmd); err != nil {
			return err
		}
		logger := log.Default()

		dir := cacheDir
		if dir == "" {
			var err error
			if dir, err = voicepack.DefaultDir(); err != nil {
				return fmt.Errorf("unable to locate cache directory: %w", err)
			}
		}
		store, err := voicepack.New(utils.ExpandPath(dir), logger)
		if err != nil {
			return fmt.Errorf("unable to open voice-pack store: %w", err)
		}
		defer func() { _ = store.Close() }()

		freed := dirSize(store.Dir())
		if err := store.Flush(); err != nil {
			return fmt.Errorf("unable to flush voice packs: %w", err)
		}
		fmt.Printf("Flushed voice packs from %s (%s freed)\n", store.Dir(), humanize.Bytes(freed))
		return nil
	},
}

func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size()) //nolint:gosec
		}
		return nil
	})
	return total
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&modeName, "mode", "m", "fastest", "engine mode (fastest/balanced/best)")
	rootCmd.Flags().Float64VarP(&rate, "rate", "r", 1.0, "speaking rate multiplier (0.5 to 2.0)")
	rootCmd.Flags().StringVar(&systemVoice, "voice", "", "platform voice for the fastest mode")
	rootCmd.Flags().StringVar(&balancedVoice, "balanced-voice", "", "neural voice for the balanced mode")
	rootCmd.Flags().StringVar(&bestVoice, "best-voice", "", "neural voice for the best mode")
	rootCmd.Flags().StringVar(&fallbackVoice, "fallback-voice", "", "neural voice substituted when the target is unavailable")
	rootCmd.Flags().StringVar(&piperBinary, "piper", "", "piper executable")
	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "voice-pack cache directory")
	rootCmd.Flags().BoolVar(&autoFallback, "auto-fallback", false, "restart on the fastest engine right after a neural failure")
	rootCmd.Flags().BoolVarP(&useClipboard, "clipboard", "c", false, "read the text from the clipboard")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "debug logging (see VOICEBOX_LOGFILE)")

	// Config bindings
	_ = viper.BindPFlag("mode", rootCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("voices.balanced", rootCmd.Flags().Lookup("balanced-voice"))
	_ = viper.BindPFlag("voices.best", rootCmd.Flags().Lookup("best-voice"))
	_ = viper.BindPFlag("voices.fallback", rootCmd.Flags().Lookup("fallback-voice"))
	_ = viper.BindPFlag("piper.binary", rootCmd.Flags().Lookup("piper"))
	_ = viper.BindPFlag("cache.dir", rootCmd.Flags().Lookup("cache-dir"))
	_ = viper.BindPFlag("auto_start_fallback", rootCmd.Flags().Lookup("auto-fallback"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))

	defaults := tts.DefaultConfig()
	viper.SetDefault("mode", defaults.Mode.String())
	viper.SetDefault("rate", defaults.Rate)
	viper.SetDefault("voice", "")
	viper.SetDefault("voices.balanced", defaults.BalancedVoiceID)
	viper.SetDefault("voices.best", defaults.BestVoiceID)
	viper.SetDefault("voices.fallback", defaults.FallbackVoiceID)
	viper.SetDefault("piper.binary", "piper")
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("auto_start_fallback", false)

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, flushCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "voicebox")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "voicebox")}, dirs...)
	}

	if c := os.Getenv("VOICEBOX_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("voicebox")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("voicebox")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "voicebox.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
