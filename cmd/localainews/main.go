package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/LiamFearon/LocalAINews/internal/config"
	"github.com/LiamFearon/LocalAINews/internal/crawler"
	"github.com/LiamFearon/LocalAINews/internal/dedup"
	"github.com/LiamFearon/LocalAINews/internal/drafts"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
	"github.com/LiamFearon/LocalAINews/internal/pipeline"
	"github.com/LiamFearon/LocalAINews/internal/publish"
	"github.com/LiamFearon/LocalAINews/internal/review"
	"github.com/LiamFearon/LocalAINews/internal/server"
	"github.com/LiamFearon/LocalAINews/internal/summarizer"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
	"github.com/LiamFearon/LocalAINews/pkg/providers"
	"github.com/LiamFearon/LocalAINews/pkg/publishers"
)

const serviceName = "localainews"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.ConfigPath, flags.EnvFile)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Environment: cfg.Env, Level: cfg.Log.Level, ServiceName: serviceName})
	if err != nil {
		return err
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := dedup.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := summarizer.New(summarizer.Options{
		BaseURL:     cfg.LMStudio.BaseURL,
		APIKey:      cfg.LMStudio.APIKey,
		Model:       cfg.LMStudio.Model,
		Timeout:     cfg.LMStudio.Timeout,
		UseTools:    cfg.LMStudio.UseTools,
		MaxTokens:   cfg.LMStudio.MaxTokens,
		Temperature: cfg.LMStudio.Temperature,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	preflightCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	sum.Preflight(preflightCtx)
	cancel()

	dc, err := discord.New(discord.Options{
		Token:    cfg.Discord.Token,
		APIBase:  cfg.Discord.APIBase,
		Timeout:  cfg.Discord.Timeout,
		Attempts: cfg.Discord.SendAttempts,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	checkChannels(ctx, dc, log, cfg.Discord.ReviewChannelID, cfg.Discord.PublicChannelID)

	var publicKey []byte
	if cfg.Discord.PublicKey != "" {
		key, err := discord.ParsePublicKey(cfg.Discord.PublicKey)
		if err != nil {
			return fmt.Errorf("discord.public_key: %w", err)
		}
		publicKey = key
	}

	manager := drafts.NewManager(drafts.Options{ReviewWindow: cfg.Review.Window, Logger: log})
	gateway, err := review.New(review.Options{
		Messenger:    dc,
		ChannelID:    cfg.Discord.ReviewChannelID,
		QueueSize:    cfg.Review.QueueSize,
		AdminUserIDs: cfg.Review.AdminUserIDs,
		AdminRoleIDs: cfg.Review.AdminRoleIDs,
		PublicKey:    publicKey,
		Logger:       log,
		Metrics:      m,
	})
	if err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, cfg.Publishers.File, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publishers.CloseAll(sinks); err != nil {
			log.WarnObj("closing sinks failed", "service_sinks_close_failed", map[string]any{"error": err.Error()})
		}
	}()
	publisher, err := publish.New(publish.Options{
		Sender:    dc,
		ChannelID: cfg.Discord.PublicChannelID,
		Sinks:     sinks,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		return err
	}
	defer publisher.Wait()

	fetchers, err := buildFetchers(cfg, log)
	if err != nil {
		return err
	}
	topics, err := config.LoadTopics(cfg.Topics)
	if err != nil {
		return err
	}

	var enricher pipeline.Enricher
	if cfg.Crawler.Enabled {
		enricher = crawler.NewScraper(crawler.Options{Workers: cfg.Crawler.Workers, Timeout: cfg.Crawler.Timeout, Logger: log})
	}

	orch, err := pipeline.New(pipeline.Options{
		Fetchers:          fetchers,
		Topics:            providers.NewRotation(topics),
		Store:             store,
		Summarizer:        sum,
		Drafts:            manager,
		Reviewer:          gateway,
		Publisher:         publisher,
		Enricher:          enricher,
		MaxDraftsPerCycle: cfg.Pipeline.MaxDraftsPerCycle,
		SummarizeTimeout:  cfg.Pipeline.SummarizeTimeout,
		ExpiryInterval:    cfg.Review.ExpiryInterval,
		RateLimitCooldown: cfg.Pipeline.RateLimitCooldown,
		Logger:            log,
		Metrics:           m,
	})
	if err != nil {
		return err
	}

	log.InfoObj("service configured", "service_configured", map[string]any{
		"topics":   len(topics),
		"fetchers": len(fetchers),
		"sinks":    len(sinks),
		"store":    cfg.Store.Backend,
		"kafka":    cfg.Kafka.Enabled,
	})

	if flags.Once {
		report, err := orch.RunCycle(ctx)
		log.InfoObj("single cycle finished", "service_once_done", map[string]any{
			"result":  report.Result,
			"drafted": report.Drafted,
		})
		return err
	}

	return serve(ctx, cfg, log, orch, gateway, manager, reg)
}

// serve runs the decision loop, the interactions server, the scheduler and the
// optional Kafka source until ctx is cancelled.
func serve(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
	orch *pipeline.Orchestrator,
	gateway *review.Gateway,
	manager *drafts.Manager,
	reg *prometheus.Registry,
) error {
	g, gctx := errgroup.WithContext(ctx)

	var src *review.KafkaSource
	if cfg.Kafka.Enabled {
		var err error
		src, err = review.NewKafkaSource(review.KafkaOptions{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, gateway, log)
		if err != nil {
			return err
		}
		defer src.Close()
	}

	sched, err := pipeline.NewScheduler(gctx, orch, cfg.Pipeline.Schedule, cfg.Pipeline.TopicReset, log)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: server.NewRouter(server.Options{
			Interactions: gateway.HandleInteraction,
			Drafts:       manager,
			Cycles:       orch,
			Gatherer:     reg,
			BaseContext:  gctx,
			AdminToken:   cfg.HTTP.AdminToken,
			Logger:       log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error {
		log.InfoObj("http server listening", "http_listen", map[string]any{"addr": cfg.HTTP.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if src != nil {
		g.Go(func() error { return src.Run(gctx) })
	}

	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if cfg.Pipeline.RunOnStart {
		if err := orch.StartCycle(gctx); err != nil {
			log.WarnObj("startup cycle skipped", "service_startup_cycle_skipped", map[string]any{"error": err.Error()})
		}
	}

	log.InfoObj("service started", "service_started", map[string]any{
		"schedule":    cfg.Pipeline.Schedule,
		"topic_reset": cfg.Pipeline.TopicReset,
	})
	err = g.Wait()
	orch.Wait()
	log.InfoObj("service stopped", "service_stopped", nil)
	return err
}

func buildFetchers(cfg *config.Config, log logger.Logger) ([]providers.Fetcher, error) {
	registry := providers.NewRegistry()

	if cfg.NewsAPI.Enabled {
		f, err := providers.NewNewsAPIFetcher(providers.DefaultHTTPClient(cfg.NewsAPI.Timeout, httpclient.WithLogger(log)), providers.NewsAPIOptions{
			BaseURL:  cfg.NewsAPI.BaseURL,
			APIKey:   cfg.NewsAPI.APIKey,
			Language: cfg.NewsAPI.Language,
			PageSize: cfg.NewsAPI.PageSize,
			Lookback: cfg.NewsAPI.Lookback,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(f)
	}

	rssClient := providers.DefaultHTTPClient(cfg.RSS.Timeout, httpclient.WithLogger(log))
	if len(cfg.RSS.Feeds) > 0 {
		f, err := providers.NewRSSFetcher(rssClient, cfg.RSS.Feeds)
		if err != nil {
			return nil, err
		}
		registry.Register(f)
	}
	if cfg.RSS.GoogleNews {
		registry.Register(providers.NewGoogleNewsFetcher(rssClient, cfg.RSS.GoogleNewsLang))
	}

	if registry.Len() == 0 {
		return nil, errors.New("no article fetchers configured")
	}
	return registry.All(), nil
}

func buildSinks(ctx context.Context, path string, log logger.Logger) ([]publishers.Publisher, error) {
	if path == "" {
		return nil, nil
	}
	catalog, err := publishers.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return publishers.BuildAll(ctx, publishers.DefaultRegistry(), catalog.Enabled(), log)
}

type channelGetter interface {
	GetChannel(ctx context.Context, channelID string) (discord.Channel, error)
}

// checkChannels logs whether the bot can see each channel. An unreachable channel is
// reported and startup continues; posts to it fail per draft.
func checkChannels(ctx context.Context, dc channelGetter, log logger.Logger, ids ...string) int {
	reachable := 0
	for _, id := range ids {
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		ch, err := dc.GetChannel(checkCtx, id)
		cancel()
		if err != nil {
			log.WarnObj("discord channel unreachable", "discord_channel_unreachable", map[string]any{
				"channel_id": id,
				"error":      err.Error(),
			})
			continue
		}
		reachable++
		log.InfoObj("discord channel reachable", "discord_channel_ok", map[string]any{
			"channel_id": ch.ID,
			"name":       ch.Name,
		})
	}
	return reachable
}
