package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moonwatch/signalrun/internal/cache"
	"github.com/moonwatch/signalrun/internal/config"
	"github.com/moonwatch/signalrun/internal/deadtoken"
	"github.com/moonwatch/signalrun/internal/detect"
	"github.com/moonwatch/signalrun/internal/filter"
	"github.com/moonwatch/signalrun/internal/histprice"
	"github.com/moonwatch/signalrun/internal/httpapi"
	"github.com/moonwatch/signalrun/internal/metrics"
	"github.com/moonwatch/signalrun/internal/outcome"
	"github.com/moonwatch/signalrun/internal/pipeline"
	"github.com/moonwatch/signalrun/internal/providers"
	"github.com/moonwatch/signalrun/internal/queue"
	"github.com/moonwatch/signalrun/internal/ratelimit"
	"github.com/moonwatch/signalrun/internal/reputation"
	"github.com/moonwatch/signalrun/internal/resolve"
	"github.com/moonwatch/signalrun/internal/scheduler"
	"github.com/moonwatch/signalrun/internal/score"
	"github.com/moonwatch/signalrun/internal/sink"
	"github.com/moonwatch/signalrun/internal/source"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full ingestion and tracking pipeline",
		RunE:  runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repDir := filepath.Join(cfg.Data.Dir, "reputation")
	for _, dir := range []string{cfg.Data.Dir, repDir, cfg.Historical.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}

	tickers, keywords := loadVocabulary(cfg.Detect)
	detector := detect.NewDetector(tickers, keywords)
	if !detector.Functional() {
		return fmt.Errorf("detection vocabulary is empty: check detect.tickers_file and detect.keywords_file")
	}
	log.Info().Int("tickers", detector.TickerCount()).Int("keywords", len(keywords)).Msg("detector loaded")

	policies := make(map[string]ratelimit.Policy, len(ratelimit.DefaultPolicies))
	for name, p := range ratelimit.DefaultPolicies {
		policies[name] = p
	}
	for _, p := range cfg.Providers.RateLimits {
		policies[p.Provider] = p
	}
	limits := ratelimit.NewManager(policies)

	dex := providers.NewDexScreener("", limits)
	gecko := providers.NewCoinGecko("", cfg.Providers.CoinGeckoAPIKey, limits)
	llama := providers.NewDefiLlama("", limits)
	explorer := providers.NewExplorer("", cfg.Providers.ExplorerAPIKey, cfg.Providers.ExplorerChainID, limits)
	security := providers.NewSecurityProvider(cfg.Providers.SecurityAPIBase, strconv.Itoa(cfg.Providers.ExplorerChainID), limits)
	var onchain *providers.OnChain
	if cfg.Providers.EVMRPCEndpoint != "" {
		onchain = providers.NewOnChain(cfg.Providers.EVMRPCEndpoint, limits)
	}
	engine := providers.NewEngine(providers.EngineDeps{
		DexScreener: dex,
		CoinGecko:   gecko,
		DefiLlama:   llama,
		Explorer:    explorer,
		Security:    security,
		OnChain:     onchain,
	})

	var pools resolve.PoolReader
	if onchain != nil {
		pools = onchain
	}
	resolver := resolve.NewResolver(dex, pools)

	histCache, err := histprice.NewCache(filepath.Join(cfg.Historical.CacheDir, "historical_prices.json"))
	if err != nil {
		return fmt.Errorf("open historical cache: %w", err)
	}
	candles := histprice.NewCryptoCompare("", cfg.Providers.CryptoCompareAPIKey, limits)
	hist := histprice.NewService(candles, llama, histCache, cfg.Pipeline.OHLCFetchTimeout)

	store, err := outcome.NewStore(repDir)
	if err != nil {
		return fmt.Errorf("open outcome store: %w", err)
	}
	tracker := outcome.NewTracker(store, hist)

	rep, err := reputation.NewEngine(filepath.Join(repDir, "channels.json"), cfg.Reputation.TDUpdate)
	if err != nil {
		return fmt.Errorf("open reputation store: %w", err)
	}
	cross, err := reputation.NewCrossChannel(filepath.Join(repDir, "coins_cross_channel.json"))
	if err != nil {
		return fmt.Errorf("open cross-channel store: %w", err)
	}

	blacklist, err := deadtoken.NewBlacklist(filepath.Join(cfg.Data.Dir, "dead_tokens_blacklist.json"))
	if err != nil {
		return fmt.Errorf("open blacklist: %w", err)
	}
	deadTokens := deadtoken.NewDetector(explorer, blacklist)

	priceCache := buildPriceCache(ctx, cfg.Sinks)

	appenders, publishers, err := buildSinks(cfg.Sinks)
	if err != nil {
		return err
	}

	reg := metrics.New()

	pipe := pipeline.New(pipeline.Deps{
		Detector:   detector,
		Resolver:   resolver,
		Engine:     engine,
		Filter:     filter.New(filter.Config{MinPrice: cfg.Filter.MinPrice, MinMarketCap: cfg.Filter.MinMarketCap, AllowMissingMarketCap: cfg.Filter.AllowMissingMarketCap, Majors: filter.DefaultMajors()}),
		HDRB:       score.NewHDRBScorer(cfg.Scorer.MaxIC),
		Sentiment:  score.NewPatternSentiment(cfg.Scorer.PositivePatterns, cfg.Scorer.NegativePatterns),
		Confidence: score.NewConfidenceScorer(cfg.Pipeline.ConfidenceThreshold),
		Tracker:    tracker,
		Reputation: rep,
		DeadTokens: deadTokens,
		PriceCache: priceCache,
		Appenders:  appenders,
		Metrics:    reg,
		Console:    os.Stdout,
	})

	q := queue.New(cfg.Pipeline.MaxQueueSize, rep.Score)
	consumer := queue.NewConsumer(q, ratelimit.NewGlobal(cfg.Pipeline.MessagesPerSecond), pipe.Handle,
		time.Duration(cfg.Pipeline.DrainTimeoutSecs)*time.Second)
	consumer.Start(ctx)

	interval := time.Duration(cfg.Pipeline.ReputationIntervalSecs) * time.Second
	sched := scheduler.New(interval, 0, store, tracker, rep, cross, publishers)
	go sched.Run(ctx)

	directory := source.NewDirectory()
	bridge := source.NewBridge(directory, cfg.Source.Buffer)
	bridgeServer := startBridgeServer(cfg.Source.ListenAddr, bridge)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-bridge.Events():
				if !ok {
					return
				}
				if !q.Enqueue(msg) {
					reg.QueueDropped.Inc()
				}
				reg.QueueDepth.Set(float64(q.Len()))
			}
		}
	}()

	monitor := httpapi.New(cfg.Monitor.ListenAddr, &statusSource{
		queue:     q,
		engine:    engine,
		store:     store,
		rep:       rep,
		blacklist: blacklist,
	}, reg)
	monitor.Start()

	go refreshLoop(ctx, pipe, store, interval)
	go reportLoop(ctx, pipe)

	log.Info().
		Str("bridge", cfg.Source.ListenAddr).
		Str("monitor", cfg.Monitor.ListenAddr).
		Dur("scheduler_interval", interval).
		Msg("signalrun started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := bridgeServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("bridge server shutdown failed")
	}
	consumer.Stop()
	if err := monitor.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("monitor shutdown failed")
	}
	pipe.Report().Emit()
	return nil
}

// refreshLoop re-prices every active signal on the scheduler cadence so
// checkpoints and completions advance between admissions.
func refreshLoop(ctx context.Context, pipe *pipeline.Pipeline, store *outcome.Store, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pipe.RefreshActive(ctx, store)
		}
	}
}

func reportLoop(ctx context.Context, pipe *pipeline.Pipeline) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pipe.Report().Emit()
		}
	}
}

func startBridgeServer(addr string, bridge *source.Bridge) *http.Server {
	r := mux.NewRouter()
	r.Handle("/ws", bridge)
	// No read timeout: bridge connections are long-lived websockets.
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("message bridge listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("bridge server failed")
		}
	}()
	return srv
}

// buildPriceCache prefers Redis when configured and reachable, falling back
// to the in-process cache.
func buildPriceCache(ctx context.Context, cfg config.SinksConfig) cache.PriceCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	r := cache.NewRedis(cfg.RedisAddr, "", cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		log.Warn().Str("addr", cfg.RedisAddr).Err(err).Msg("redis unreachable, using in-memory price cache")
		return cache.NewMemory()
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis price cache connected")
	return r
}

func buildSinks(cfg config.SinksConfig) ([]sink.Appender, []sink.Publisher, error) {
	csv, err := sink.NewCSVSink(filepath.Join(cfg.CSVDir, "messages.csv"))
	if err != nil {
		return nil, nil, fmt.Errorf("open csv sink: %w", err)
	}
	appenders := []sink.Appender{csv}

	var publishers []sink.Publisher
	if cfg.PostgresDSN != "" {
		pg, err := sink.NewPostgresSink(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres sink: %w", err)
		}
		publishers = append(publishers, pg)
	}
	return appenders, publishers, nil
}

// loadVocabulary reads the detector's data files. Missing files degrade to an
// empty vocabulary with a warning rather than aborting startup.
func loadVocabulary(cfg config.DetectConfig) (map[string][]string, []string) {
	tickers := make(map[string][]string)
	if cfg.TickersFile != "" {
		data, err := os.ReadFile(cfg.TickersFile)
		if err != nil {
			log.Warn().Str("path", cfg.TickersFile).Err(err).Msg("tickers file unavailable")
		} else if err := yaml.Unmarshal(data, &tickers); err != nil {
			log.Warn().Str("path", cfg.TickersFile).Err(err).Msg("tickers file malformed")
		}
	}

	var keywords []string
	if cfg.KeywordsFile != "" {
		data, err := os.ReadFile(cfg.KeywordsFile)
		if err != nil {
			log.Warn().Str("path", cfg.KeywordsFile).Err(err).Msg("keywords file unavailable")
		} else if err := yaml.Unmarshal(data, &keywords); err != nil {
			log.Warn().Str("path", cfg.KeywordsFile).Err(err).Msg("keywords file malformed")
		}
	}
	return tickers, keywords
}

// statusSource snapshots running state for the monitor's /status endpoint.
type statusSource struct {
	queue     *queue.Queue
	engine    *providers.Engine
	store     *outcome.Store
	rep       *reputation.Engine
	blacklist *deadtoken.Blacklist
}

func (s *statusSource) QueueDepth() int                  { return s.queue.Len() }
func (s *statusSource) QueueStats() (int64, int64)       { return s.queue.Stats() }
func (s *statusSource) BreakerStates() map[string]string { return s.engine.BreakerStates() }
func (s *statusSource) TrackingCounts() (int, int)       { return s.store.Counts() }
func (s *statusSource) ReputationCount() int             { return len(s.rep.All()) }
func (s *statusSource) BlacklistSize() int               { return s.blacklist.Len() }
