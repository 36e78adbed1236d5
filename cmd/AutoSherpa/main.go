package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/AutoSherpa/internal/api"
	"github.com/BTreeMap/AutoSherpa/internal/classifier"
	"github.com/BTreeMap/AutoSherpa/internal/content"
	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/genai"
	"github.com/BTreeMap/AutoSherpa/internal/lockfile"
	"github.com/BTreeMap/AutoSherpa/internal/messaging"
	"github.com/BTreeMap/AutoSherpa/internal/metrics"
	"github.com/BTreeMap/AutoSherpa/internal/session"
	"github.com/BTreeMap/AutoSherpa/internal/store"
	"github.com/BTreeMap/AutoSherpa/internal/twiliowhatsapp"
	"github.com/BTreeMap/AutoSherpa/internal/util"
	"github.com/BTreeMap/AutoSherpa/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for AutoSherpa state data
	DefaultStateDir = "/var/lib/autosherpa"
	// DefaultAppDBFileName is the default SQLite database filename
	DefaultAppDBFileName = "autosherpa.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// MemoryDSN selects the in-memory store with the demo inventory
	MemoryDSN = "memory"
	// DefaultTimezone is used for test drive dates
	DefaultTimezone = "Asia/Kolkata"
	// DefaultLogLevel matches the verbose default of earlier releases
	DefaultLogLevel = "debug"
)

// Supported messaging channels.
const (
	ChannelCloud     = "cloud"
	ChannelWhatsmeow = "whatsmeow"
	ChannelTwilio    = "twilio"
)

// Config holds environment configuration
type Config struct {
	StateDir            string
	DatabaseDSN         string
	WhatsAppDBDSN       string
	RedisURL            string
	SessionTTL          time.Duration
	Channel             string
	VerifyToken         string
	AppSecret           string
	OpenAIKey           string
	OpenAIModel         string
	GeminiKey           string
	GeminiModel         string
	ClassifierTimeout   time.Duration
	ConfidenceThreshold float64
	PageSize            int
	ContentFile         string
	Timezone            string
	APIAddr             string
	LogLevel            string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	redisURL    *string
	channel     *string
	openaiKey   *string
	geminiKey   *string
	contentFile *string
	apiAddr     *string
	logLevel    *string
}

func main() {
	initializeLogger(DefaultLogLevel)

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	config = applyFlags(config, flags)
	initializeLogger(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping AutoSherpa", "channel", config.Channel, "state_dir", config.StateDir, "api_addr", config.APIAddr)
	if err := run(ctx, config, flags); err != nil {
		slog.Error("AutoSherpa failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("AutoSherpa exited successfully")
}

// initializeLogger installs a text slog handler at the given level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelDebug
	}
	return l
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:            util.GetenvDefault("AUTOSHERPA_STATE_DIR", DefaultStateDir),
		DatabaseDSN:         os.Getenv("DATABASE_URL"),
		WhatsAppDBDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		RedisURL:            os.Getenv("REDIS_URL"),
		SessionTTL:          util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
		Channel:             strings.ToLower(util.GetenvDefault("CHANNEL", ChannelCloud)),
		VerifyToken:         util.GetenvDefault("VERIFY_TOKEN", messaging.DefaultVerifyToken),
		AppSecret:           os.Getenv("WHATSAPP_APP_SECRET"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         util.GetenvDefault("OPENAI_MODEL", genai.DefaultModel),
		GeminiKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         util.GetenvDefault("GEMINI_MODEL", genai.DefaultGeminiModel),
		ClassifierTimeout:   util.ParseDurationEnv("CLASSIFIER_TIMEOUT", dialogue.DefaultClassifierTimeout),
		ConfidenceThreshold: util.ParseFloatEnv("CONFIDENCE_THRESHOLD", dialogue.DefaultConfidenceThreshold),
		PageSize:            util.ParseIntEnv("PAGE_SIZE", dialogue.DefaultPageSize),
		ContentFile:         os.Getenv("CONTENT_FILE"),
		Timezone:            util.GetenvDefault("TIMEZONE", DefaultTimezone),
		APIAddr:             util.GetenvDefault("API_ADDR", api.DefaultServerAddress),
		LogLevel:            util.GetenvDefault("LOG_LEVEL", DefaultLogLevel),
	}
	config = fillDefaultDSNs(config)

	slog.Debug("environment variables loaded",
		"AUTOSHERPA_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"CHANNEL", config.Channel,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"SESSION_TTL", config.SessionTTL,
		"API_ADDR", config.APIAddr)
	return config
}

// fillDefaultDSNs points unset database DSNs at SQLite files in the state directory.
func fillDefaultDSNs(config Config) Config {
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		qrOutput:    fs.String("qr-output", "", "path to write login QR code (whatsmeow channel)"),
		numeric:     fs.Bool("numeric-code", false, "use numeric login code instead of QR code (whatsmeow channel)"),
		stateDir:    fs.String("state-dir", config.StateDir, "state directory for AutoSherpa data (overrides $AUTOSHERPA_STATE_DIR)"),
		dbDSN:       fs.String("db-dsn", config.DatabaseDSN, "application database DSN, or \"memory\" (overrides $DATABASE_URL)"),
		waDSN:       fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		redisURL:    fs.String("redis-url", config.RedisURL, "Redis URL for sessions; empty keeps them in memory (overrides $REDIS_URL)"),
		channel:     fs.String("channel", config.Channel, "messaging channel: cloud, whatsmeow or twilio (overrides $CHANNEL)"),
		openaiKey:   fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		geminiKey:   fs.String("gemini-api-key", config.GeminiKey, "Gemini API key (overrides $GEMINI_API_KEY)"),
		contentFile: fs.String("content-file", config.ContentFile, "YAML file overriding dealership copy (overrides $CONTENT_FILE)"),
		apiAddr:     fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		logLevel:    fs.String("log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)"),
	}
	if err := fs.Parse(args); err != nil {
		slog.Warn("failed to parse flags", "error", err)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisURL_set", *flags.redisURL != "",
		"channel", *flags.channel,
		"apiAddr", *flags.apiAddr)
	return flags
}

// applyFlags overrides config with flag values. Database DSNs derived from the
// state directory follow a -state-dir override.
func applyFlags(config Config, flags Flags) Config {
	derived := fillDefaultDSNs(Config{StateDir: config.StateDir})
	out := config
	out.StateDir = *flags.stateDir
	out.DatabaseDSN = *flags.dbDSN
	out.WhatsAppDBDSN = *flags.waDSN
	if out.StateDir != config.StateDir {
		moved := fillDefaultDSNs(Config{StateDir: out.StateDir})
		if out.DatabaseDSN == derived.DatabaseDSN {
			out.DatabaseDSN = moved.DatabaseDSN
		}
		if out.WhatsAppDBDSN == derived.WhatsAppDBDSN {
			out.WhatsAppDBDSN = moved.WhatsAppDBDSN
		}
	}
	out.RedisURL = *flags.redisURL
	out.Channel = strings.ToLower(*flags.channel)
	out.OpenAIKey = *flags.openaiKey
	out.GeminiKey = *flags.geminiKey
	out.ContentFile = *flags.contentFile
	out.APIAddr = *flags.apiAddr
	out.LogLevel = *flags.logLevel
	return out
}

// run assembles every component and blocks until ctx is cancelled.
func run(ctx context.Context, config Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(ctx, config)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := buildSessionStore(ctx, config)
	if err != nil {
		return err
	}
	defer sessions.Close()

	cls, closeClassifier, err := buildClassifier(ctx, config)
	if err != nil {
		return err
	}
	defer closeClassifier()

	routerOpts, err := buildRouterOptions(config)
	if err != nil {
		return err
	}
	recorder := metrics.NewRecorder()
	routerOpts = append(routerOpts, dialogue.WithReporter(recorder))
	router := dialogue.NewRouter(cls, st, st, routerOpts...)

	channel, closeChannel, err := buildChannel(ctx, config, flags)
	if err != nil {
		return err
	}
	defer closeChannel()

	return api.Run(ctx, api.Deps{
		Channel:  channel,
		Sessions: session.NewManager(sessions),
		Router:   router,
		Store:    st,
		Metrics:  recorder,
	}, api.WithAddr(config.APIAddr))
}

// openStore opens the application database and seeds the demo inventory into an empty one.
func openStore(ctx context.Context, config Config) (store.Store, error) {
	dsn := config.DatabaseDSN
	if strings.EqualFold(dsn, MemoryDSN) {
		dsn = ""
	}
	st, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if dsn != "" {
		n, err := store.SeedIfEmpty(ctx, st, store.DemoInventory())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to seed inventory: %w", err)
		}
		if n > 0 {
			slog.Info("Seeded demo inventory", "cars", n)
		}
	}
	slog.Debug("Store ready", "type", storeType(dsn))
	return st, nil
}

func storeType(dsn string) string {
	if dsn == "" {
		return MemoryDSN
	}
	return store.DetectDSNType(dsn)
}

// buildSessionStore returns a Redis store when a URL is configured, otherwise an in-memory one.
func buildSessionStore(ctx context.Context, config Config) (session.Store, error) {
	if config.RedisURL == "" {
		slog.Debug("No REDIS_URL set, keeping sessions in memory", "ttl", config.SessionTTL)
		return session.NewMemoryStore(config.SessionTTL), nil
	}
	rs, err := session.NewRedisStoreFromURL(ctx, config.RedisURL, config.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Debug("Sessions stored in Redis", "ttl", config.SessionTTL)
	return rs, nil
}

// buildClassifier chains the configured LLM classifiers ahead of the keyword rules.
func buildClassifier(ctx context.Context, config Config) (dialogue.Classifier, func(), error) {
	var (
		links   []classifier.Link
		closers []func()
	)
	if config.OpenAIKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(config.OpenAIKey), genai.WithModel(config.OpenAIModel))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		links = append(links, classifier.Link{Name: "openai", Classifier: classifier.NewLLM(client, 0)})
	}
	if config.GeminiKey != "" {
		client, err := genai.NewGeminiClient(ctx, config.GeminiKey, config.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		links = append(links, classifier.Link{Name: "gemini", Classifier: classifier.NewLLM(client, 0)})
	}
	links = append(links, classifier.Link{Name: "rules", Classifier: classifier.Rules{}})

	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Name)
	}
	slog.Info("Classifier chain configured", "links", strings.Join(names, ","))

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return classifier.NewChain(config.ClassifierTimeout, links...), closeAll, nil
}

// buildRouterOptions converts configuration into router options.
func buildRouterOptions(config Config) ([]dialogue.Option, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", config.Timezone, err)
	}
	opts := []dialogue.Option{
		dialogue.WithConfidenceThreshold(config.ConfidenceThreshold),
		dialogue.WithPageSize(config.PageSize),
		dialogue.WithClassifierTimeout(config.ClassifierTimeout),
		dialogue.WithLocation(loc),
	}
	if config.ContentFile != "" {
		c, err := content.Load(config.ContentFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dialogue.WithContent(c))
	}
	return opts, nil
}

// buildChannel creates the messaging service selected by config.Channel.
func buildChannel(ctx context.Context, config Config, flags Flags) (messaging.Service, func(), error) {
	noop := func() {}
	switch config.Channel {
	case ChannelCloud:
		svc, err := messaging.NewCloudAPIService(
			messaging.WithVerifyToken(config.VerifyToken),
			messaging.WithAppSecret(config.AppSecret),
		)
		if err != nil {
			return nil, nil, err
		}
		return svc, noop, nil
	case ChannelWhatsmeow:
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(config.WhatsAppDBDSN),
			whatsapp.WithLogLevel(strings.ToUpper(config.LogLevel)),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), client.Disconnect, nil
	case ChannelTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), noop, nil
	default:
		return nil, nil, errors.New("unknown channel " + config.Channel + ": use cloud, whatsmeow or twilio")
	}
}
