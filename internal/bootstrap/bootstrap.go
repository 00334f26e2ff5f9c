// Package bootstrap provides dependency initialization for the meditation engine.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/NeijiApp/meditation-engine/internal/assembly"
	"github.com/NeijiApp/meditation-engine/internal/cache"
	"github.com/NeijiApp/meditation-engine/internal/config"
	"github.com/NeijiApp/meditation-engine/internal/embedding"
	"github.com/NeijiApp/meditation-engine/internal/media"
	"github.com/NeijiApp/meditation-engine/internal/meditation"
	"github.com/NeijiApp/meditation-engine/internal/storage"
	"github.com/NeijiApp/meditation-engine/internal/textgen"
	"github.com/NeijiApp/meditation-engine/internal/tts"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Planner   *meditation.Planner
	Agent     *meditation.Agent
	Assembler *assembly.Service
	Cache     *cache.Cache

	natsConn *nats.Conn
}

// Close releases long-lived resources: the cache's backfill workers and the
// NATS connection, if any.
func (d *Dependencies) Close() {
	if d.Cache != nil {
		d.Cache.Close()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	providerClient := &http.Client{Timeout: time.Duration(cfg.ProviderTimeoutSec) * time.Second}

	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	audioStore := storage.NewAudioStore(store)

	// Initialize the semantic cache: durable NATS tier when configured,
	// in-memory only otherwise.
	audioCache, natsConn, err := initCache(cfg, logger, providerClient, audioStore)
	if err != nil {
		return nil, err
	}

	// Initialize text generation
	textClient, err := textgen.NewClient(cfg.TextAPIKey,
		textgen.WithBaseURL(cfg.TextBaseURL),
		textgen.WithModel(cfg.TextModel),
		textgen.WithHTTPClient(providerClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create text client: %w", err)
	}

	// Initialize TTS: primary provider plus optional fallback chain
	synth, err := initTTS(cfg, logger, providerClient)
	if err != nil {
		return nil, err
	}

	// Initialize planner and orchestration agent
	planner := meditation.NewPlanner(cfg.WordsPerMinute)
	agent := meditation.NewAgent(audioCache, textClient, synth, audioStore,
		meditation.WithThresholds(meditation.DecisionThresholds{
			Medium: cfg.Similarity.Medium,
			High:   cfg.Similarity.High,
			Exact:  cfg.Similarity.Exact,
		}),
		meditation.WithMaxConcurrent(cfg.MaxConcurrentSegments),
		meditation.WithWordsPerMinute(cfg.WordsPerMinute),
		meditation.WithAgentLogger(logger),
	)

	// Initialize assembly
	engine := media.NewEngine(cfg.FFmpegPath)
	assembler := assembly.NewService(
		assembly.NewMemoryRepository(),
		engine,
		store,
		assembly.WithLogger(logger),
		assembly.WithTimeout(time.Duration(cfg.AssemblyTimeoutSec)*time.Second),
	)

	return &Dependencies{
		Planner:   planner,
		Agent:     agent,
		Assembler: assembler,
		Cache:     audioCache,
		natsConn:  natsConn,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initCache wires the semantic audio cache. The durable tier and the
// embedder are both optional; without them the cache degrades to
// exact-match in-memory lookups.
func initCache(cfg *config.Config, logger *slog.Logger, hc *http.Client, blobs cache.BlobStore) (*cache.Cache, *nats.Conn, error) {
	var embedder cache.Embedder
	if cfg.EmbeddingAPIKey != "" {
		client, err := embedding.NewClient(cfg.EmbeddingAPIKey,
			embedding.WithBaseURL(cfg.EmbeddingBaseURL),
			embedding.WithModel(cfg.EmbeddingModel),
			embedding.WithHTTPClient(hc),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create embedding client: %w", err)
		}
		embedder = client
	} else {
		logger.Warn("no embedding provider configured, similarity reuse disabled")
	}

	if !cfg.NATSEnabled() {
		logger.Warn("no durable cache store configured, cache is in-memory only")
		return cache.New(nil, embedder, cache.WithLogger(logger), cache.WithBlobStore(blobs)), nil, nil
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open JetStream context: %w", err)
	}
	natsStore, err := cache.NewNatsStore(js, cfg.CacheBucket)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("bind cache bucket: %w", err)
	}

	logger.Info("durable cache configured",
		slog.String("nats_url", cfg.NATSURL),
		slog.String("bucket", cfg.CacheBucket),
	)
	return cache.New(natsStore, embedder, cache.WithLogger(logger), cache.WithBlobStore(blobs)), nc, nil
}

// initTTS builds the synthesizer chain: ElevenLabs primary, optional
// OpenAI fallback when a fallback key is configured.
func initTTS(cfg *config.Config, logger *slog.Logger, hc *http.Client) (tts.Synthesizer, error) {
	primary, err := tts.NewElevenLabsClient(cfg.TTSAPIKey,
		tts.WithElevenLabsBaseURL(cfg.TTSBaseURL),
		tts.WithElevenLabsHTTPClient(hc),
	)
	if err != nil {
		return nil, fmt.Errorf("create TTS client: %w", err)
	}

	providers := []tts.Synthesizer{primary}
	if cfg.TTSFallbackAPIKey != "" {
		fallbackOpts := []tts.OpenAIOption{tts.WithOpenAIHTTPClient(hc)}
		if cfg.TTSFallbackBaseURL != "" {
			fallbackOpts = append(fallbackOpts, tts.WithOpenAIBaseURL(cfg.TTSFallbackBaseURL))
		}
		fallback, err := tts.NewOpenAIClient(cfg.TTSFallbackAPIKey, fallbackOpts...)
		if err != nil {
			return nil, fmt.Errorf("create fallback TTS client: %w", err)
		}
		providers = append(providers, fallback)
		logger.Info("TTS fallback configured")
	}

	chain, err := tts.NewChain(logger, providers...)
	if err != nil {
		return nil, fmt.Errorf("create TTS chain: %w", err)
	}
	return chain, nil
}
