// Package servecmder provides the serve command that runs the tana-helper API.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/tana-helper/api"
	"github.com/papercomputeco/tana-helper/api/auth"
	"github.com/papercomputeco/tana-helper/api/mcp"
	"github.com/papercomputeco/tana-helper/pkg/cliui"
	"github.com/papercomputeco/tana-helper/pkg/config"
	"github.com/papercomputeco/tana-helper/pkg/credentials"
	embeddingutils "github.com/papercomputeco/tana-helper/pkg/embeddings/utils"
	eventstreamutils "github.com/papercomputeco/tana-helper/pkg/eventstream/utils"
	"github.com/papercomputeco/tana-helper/pkg/logger"
	"github.com/papercomputeco/tana-helper/pkg/translator"
	"github.com/papercomputeco/tana-helper/pkg/vector"
	vectorutils "github.com/papercomputeco/tana-helper/pkg/vector/utils"
	"github.com/papercomputeco/tana-helper/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

// serveFlags are the flags of the serve command, keyed by registry key.
var serveFlags = config.FlagSet{
	config.FlagHost:            {Name: "host", ViperKey: "server.host", Description: "Address to listen on"},
	config.FlagPort:            {Name: "port", Shorthand: "p", ViperKey: "server.port", Description: "Port to listen on"},
	config.FlagLocalService:    {Name: "local-service", ViperKey: "server.local_service", Description: "Skip bearer token authentication"},
	config.FlagVerbose:         {Name: "verbose-logging", ViperKey: "server.verbose_logging", Description: "Log payloads and per-match score decisions"},
	config.FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (openai, ollama)"},
	config.FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider base URL"},
	config.FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model"},
	config.FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store (pinecone, qdrant, chroma, sqlitevec, inmemory)"},
	config.FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store address"},
	config.FlagIndex:           {Name: "index", ViperKey: "vector_store.index", Description: "Vector store index or collection"},
	config.FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "vector_store.sqlite_path", Description: "Path to the sqlitevec database"},
	config.FlagMCP:             {Name: "mcp", ViperKey: "mcp.enabled", Description: "Serve the MCP endpoint at /mcp"},
	config.FlagEventsProv:      {Name: "events-provider", ViperKey: "events.provider", Description: "Record event stream (nop, kafka)"},
}

var serveFlagKeys = []string{
	config.FlagHost,
	config.FlagPort,
	config.FlagLocalService,
	config.FlagVerbose,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagIndex,
	config.FlagSQLite,
	config.FlagMCP,
	config.FlagEventsProv,
}

type serveCommander struct {
	host          string
	port          uint
	localService  bool
	verbose       bool
	embeddingProv string
	embeddingTgt  string
	embeddingMdl  string
	vectorProv    string
	vectorTgt     string
	index         string
	sqlitePath    string
	mcpEnabled    bool
	eventsProv    string

	debug     bool
	configDir string
	viper     *viper.Viper
	logger    *slog.Logger
}

const serveLongDesc string = `Run the tana-helper API.

Tana commands POST node payloads to this server, which embeds their text and
stores or queries it in the configured vector store. Query results come back
in Tana Paste Format.

Configuration is resolved from flags, then TANA_HELPER_* environment
variables (and the legacy OPENAI_API_KEY, PINECONE_API_KEY, ... names), then
config.toml, then defaults.`

const serveShortDesc string = "Run the tana-helper API"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(cmder.viper, cmd, serveFlags, serveFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagHost, &cmder.host)
	config.AddUintFlag(cmd, serveFlags, config.FlagPort, &cmder.port)
	config.AddBoolFlag(cmd, serveFlags, config.FlagLocalService, &cmder.localService)
	config.AddBoolFlag(cmd, serveFlags, config.FlagVerbose, &cmder.verbose)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embeddingMdl)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.vectorProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.vectorTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagIndex, &cmder.index)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddBoolFlag(cmd, serveFlags, config.FlagMCP, &cmder.mcpEnabled)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsProv, &cmder.eventsProv)

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.FromViper(c.viper)
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	c.logger = logger.New(
		logger.WithDebug(c.debug || cfg.Server.VerboseLogging),
		logger.WithPretty(true),
	)

	embeddingOpts := embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
	}
	vectorOpts := vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    cfg.VectorStore.Target,
		APIKey:       cfg.VectorStore.APIKey,
		Environment:  cfg.VectorStore.Environment,
		Index:        cfg.VectorStore.Index,
		Namespace:    cfg.VectorStore.Namespace,
		Dimensions:   cfg.VectorStore.Dimensions,
		SQLitePath:   cfg.VectorStore.SQLitePath,
		Logger:       c.logger,
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingOpts)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	var driver vector.Driver
	err = cliui.Step(os.Stderr, "Connecting to "+cfg.VectorStore.Provider, func() error {
		var derr error
		driver, derr = vectorutils.NewVectorDriver(ctx, &vectorOpts)
		return derr
	})
	if err != nil {
		return fmt.Errorf("creating vector driver: %w", err)
	}
	defer driver.Close()

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: cfg.Events.Provider,
		Brokers:      cfg.Events.BrokerList(),
		Topic:        cfg.Events.Topic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	service, err := translator.New(translator.Config{
		Embedder: embedder,
		Driver:   driver,
		Defaults: defaultCredentials(cfg),
		Factory: &translator.ProviderFactory{
			Embedding: embeddingOpts,
			Vector:    vectorOpts,
		},
		Events: pool,
		Options: translator.Options{
			Namespace:       cfg.VectorStore.Namespace,
			Category:        cfg.VectorStore.Category,
			DefaultScore:    &cfg.Translator.DefaultScore,
			DefaultTop:      cfg.Translator.DefaultTop,
			EnableTagFilter: cfg.Translator.EnableTagFilter,
			VerboseLogging:  cfg.Server.VerboseLogging,
		},
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating translator: %w", err)
	}

	apiConfig, err := c.apiConfig(ctx, cfg, service)
	if err != nil {
		return err
	}

	server, err := api.NewServer(apiConfig, service, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

func (c *serveCommander) apiConfig(ctx context.Context, cfg *config.Config, service *translator.Service) (api.Config, error) {
	apiConfig := api.Config{
		ListenAddr:   cfg.Server.Listen(),
		CORSOrigin:   cfg.Server.CORSOrigin,
		LocalService: cfg.Server.LocalService,
	}

	if !cfg.Server.LocalService {
		verifier, err := auth.New(ctx, auth.Config{
			Domain:   cfg.Auth.Domain,
			Audience: cfg.Auth.Audience,
			Logger:   c.logger,
		})
		if err != nil {
			return api.Config{}, fmt.Errorf("creating token verifier: %w", err)
		}
		apiConfig.Verifier = verifier
	}

	if cfg.MCP.Enabled {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Searcher: service,
			Logger:   c.logger,
		})
		if err != nil {
			return api.Config{}, fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCPHandler = mcpServer.Handler()
	}

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return api.Config{}, fmt.Errorf("loading config: %w", err)
	}
	apiConfig.Settings = cfger

	return apiConfig, nil
}

func defaultCredentials(cfg *config.Config) credentials.Set {
	return credentials.Set{
		OpenAIKey:      cfg.Embedding.APIKey,
		EmbeddingModel: cfg.Embedding.Model,
		PineconeKey:    cfg.VectorStore.APIKey,
		Environment:    cfg.VectorStore.Environment,
		Index:          cfg.VectorStore.Index,
	}
}
