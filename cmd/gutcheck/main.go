package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/gutcheck/gutcheck/internal/api"
	"github.com/gutcheck/gutcheck/internal/config"
	"github.com/gutcheck/gutcheck/internal/genai"
	"github.com/gutcheck/gutcheck/internal/store"
	"github.com/gutcheck/gutcheck/internal/util"
	"github.com/joho/godotenv"
)

func main() {
	settings := loadEnvironmentConfig()
	initializeLogger(settings)

	flags := parseCommandLineFlags(settings)

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping GutCheck with configured modules", "env", settings.Environment())
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("GutCheck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GutCheck exited successfully")
}

// Flags holds command line flag values.
type Flags struct {
	dbDSN         *string
	redisAddr     *string
	redisDB       *int
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	defaultRegion *string
}

// initializeLogger sets up structured logging from the configured level.
// GUTCHECK_LOG_JSON switches to the JSON handler for log aggregation.
func initializeLogger(settings config.Settings) {
	opts := &slog.HandlerOptions{Level: settings.SlogLevel()}
	var handler slog.Handler
	if util.ParseBoolEnv("GUTCHECK_LOG_JSON", settings.Environment().IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
func loadEnvironmentConfig() config.Settings {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	settings, err := config.Load()
	if err != nil {
		slog.Error("Failed to load environment configuration", "error", err)
		os.Exit(1)
	}
	return settings
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(settings config.Settings) Flags {
	flags := Flags{
		dbDSN:         flag.String("db-dsn", settings.DBDSN, "database DSN, PostgreSQL URL or SQLite file path (overrides $DATABASE_URL)"),
		redisAddr:     flag.String("redis-addr", settings.RedisAddr, "Redis server address for session storage (overrides $REDIS_ADDR)"),
		redisDB:       flag.Int("redis-db", settings.RedisDB, "Redis logical database (overrides $REDIS_DB)"),
		openaiKey:     flag.String("openai-api-key", settings.OpenAIAPIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", settings.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", settings.APIAddr, "API server address (overrides $API_ADDR)"),
		defaultRegion: flag.String("default-region", settings.DefaultRegion, "helpline region assumed when a profile has none (overrides $DEFAULT_REGION)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"defaultRegion", *flags.defaultRegion)

	return flags
}

// buildStoreOptions constructs store configuration options. Redis takes
// precedence for session-style deployments; otherwise the DSN type picks
// PostgreSQL or SQLite, and no configuration at all means in-memory.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	switch {
	case *flags.redisAddr != "":
		slog.Debug("Configuring Redis store", "addr", *flags.redisAddr, "db", *flags.redisDB)
		storeOpts = append(storeOpts, store.WithRedisAddr(*flags.redisAddr), store.WithRedisDB(*flags.redisDB))
	case *flags.dbDSN != "":
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	default:
		slog.Debug("No storage configured, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs completion client configuration options.
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options.
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.defaultRegion != "" {
		apiOpts = append(apiOpts, api.WithDefaultRegion(*flags.defaultRegion))
	}
	return apiOpts
}
