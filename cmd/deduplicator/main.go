// Command deduplicator runs the address-deduplication engine end to
// end: ingest from one or more sources, build the collision index,
// generate and rank candidate pairs, merge equivalence classes, pick a
// survivor per class, and emit the result (spec.md §4, §6). Wiring
// order (logger, then config, then the normaliser and storage, then
// every other collaborator, then the run) and the signal-triggered
// graceful shutdown follow the teacher's top-level main().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"

	"github.com/qwant/addresses-deduplicator/internal/audit"
	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/emit"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
	"github.com/qwant/addresses-deduplicator/internal/normcache"
	"github.com/qwant/addresses-deduplicator/internal/pipeline"
	"github.com/qwant/addresses-deduplicator/internal/statusserver"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

// Exit codes per spec.md §6.
const (
	exitOK           = 0
	exitBadArgs      = 1
	exitIOError      = 2
	exitNoNormaliser = 3
)

type cliFlags struct {
	osmPath       string
	banoPath      string
	oaPath        string
	output        string
	dbPath        string
	configPath    string
	skipFilters   bool
	keepDB        bool
	maxDistance   float64
	statusAddr    string
	noFallback    bool
	normCacheSize int
	redisAddr     string
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("deduplicator", flag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.osmPath, "osm", "", "path to OSM PBF extract")
	fs.StringVar(&f.banoPath, "bano", "", "path to BANO CSV extract")
	fs.StringVar(&f.oaPath, "openaddresses", "", "path to OpenAddresses folder")
	fs.StringVar(&f.output, "output", "", "output path (.csv.gz); absent means in-place dedup")
	fs.StringVar(&f.output, "o", "", "shorthand for --output")
	fs.StringVar(&f.dbPath, "db", "addresses.db", "staging store path")
	fs.StringVar(&f.configPath, "config", "", "optional YAML config overriding defaults")
	fs.BoolVar(&f.skipFilters, "skip-source-filters", false, "disable all source filters")
	fs.BoolVar(&f.keepDB, "keep-db", false, "keep the staging store file after the run")
	fs.Float64Var(&f.maxDistance, "max-distance", 0, "override D_max in metres (0 keeps the configured default)")
	fs.StringVar(&f.statusAddr, "status-addr", "", "optional address to serve /healthz and /stats on, e.g. :8090")
	fs.BoolVar(&f.noFallback, "no-fallback", false, "fail with exit code 3 instead of falling back when libpostal is unavailable")
	fs.IntVar(&f.normCacheSize, "norm-cache-size", 100_000, "in-process LRU entries memoising normaliser calls (0 disables the cache)")
	fs.StringVar(&f.redisAddr, "redis-addr", "", "optional Redis address sharing normaliser results across worker processes")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.osmPath == "" && f.banoPath == "" && f.oaPath == "" {
		return f, fmt.Errorf("at least one of --osm, --bano, --openaddresses is required")
	}
	return f, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArgs
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Error("load config", zap.Error(err))
		return exitIOError
	}
	if flags.skipFilters {
		cfg.Filters.SkipSourceFilters = true
	}
	if flags.maxDistance > 0 {
		cfg.Thresholds.DMaxMetres = flags.maxDistance
	}

	norm, err := normalize.NewStrict(cfg, logger, !flags.noFallback)
	if err != nil {
		logger.Error("normaliser unavailable", zap.Error(err))
		return exitNoNormaliser
	}
	norm, closeNormCache, err := wrapNormCache(norm, flags, logger)
	if err != nil {
		logger.Error("normaliser cache setup", zap.Error(err))
		return exitIOError
	}
	defer closeNormCache()

	st, err := store.Open(flags.dbPath)
	if err != nil {
		logger.Error("open staging store", zap.Error(err))
		return exitIOError
	}
	defer func() {
		st.Close()
		if !flags.keepDB {
			os.Remove(flags.dbPath)
		}
	}()

	auditSink, cleanupAudit := maybeOpenAudit(logger)
	defer cleanupAudit()

	counters := &statusserver.Counters{}
	statusSrv := maybeStartStatusServer(flags.statusAddr, counters, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("received shutdown signal, cancelling run")
		cancel()
	}()

	p := pipeline.New(st, cfg, norm, auditSink, counters, logger)

	if code := ingestAll(ctx, p, flags, logger); code != exitOK {
		return code
	}

	res, err := p.RunDedup(ctx)
	if err != nil {
		logger.Error("dedup run failed", zap.Error(err))
		return exitIOError
	}

	e := emit.New(st, logger)
	if err := p.Emit(ctx, e, flags.output, res); err != nil {
		logger.Error("emit failed", zap.Error(err))
		return exitIOError
	}

	logger.Info("dedup run complete",
		zap.Int("non_survivors", len(res.NonSurvivors)),
		zap.Int("unresolved_pairs", len(res.Unknowns)),
	)

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		statusSrv.Shutdown(shutdownCtx)
	}

	return exitOK
}

func ingestAll(ctx context.Context, p *pipeline.Pipeline, flags cliFlags, logger *zap.Logger) int {
	if flags.osmPath != "" {
		if err := importOSM(flags.osmPath); err != nil {
			logger.Error("osm import", zap.Error(err))
			return exitIOError
		}
	}
	if flags.banoPath != "" {
		n, rejected, err := importCSV(ctx, p, flags.banoPath, model.SourceBANO)
		if err != nil {
			logger.Error("bano import", zap.Error(err))
			return exitIOError
		}
		logger.Info("bano import complete", zap.Int("ingested", n), zap.Int("rejected", rejected))
	}
	if flags.oaPath != "" {
		n, rejected, err := importOpenAddresses(ctx, p, flags.oaPath)
		if err != nil {
			logger.Error("openaddresses import", zap.Error(err))
			return exitIOError
		}
		logger.Info("openaddresses import complete", zap.Int("ingested", n), zap.Int("rejected", rejected))
	}
	return exitOK
}

// wrapNormCache fronts norm with internal/normcache's LRU (and an
// optional Redis L2) so repeated Expand/NearDupeHashes calls on the
// same street text, common across a large staging store, don't re-run
// the normaliser. A cache size of 0 disables wrapping entirely.
func wrapNormCache(norm normalize.Normalizer, flags cliFlags, logger *zap.Logger) (normalize.Normalizer, func(), error) {
	if flags.normCacheSize <= 0 {
		return norm, func() {}, nil
	}

	var client *redis.Client
	if flags.redisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: flags.redisAddr})
	}

	cache, err := normcache.New(norm, flags.normCacheSize, client, logger)
	if err != nil {
		return nil, func() {}, err
	}

	cleanup := func() {}
	if client != nil {
		cleanup = func() { client.Close() }
	}
	return cache, cleanup, nil
}

// maybeOpenAudit wires the optional Mongo-backed audit sink (spec's
// audit sink is optional) only when MONGO_URI is set, the way
// cmd/api/main.go's initMongoDB connects and pings before use. A
// connection failure is logged and treated as "sink not configured"
// rather than aborting the run, since auditing is diagnostic, not
// load-bearing.
func maybeOpenAudit(logger *zap.Logger) (*audit.Sink, func()) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		return nil, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Warn("audit sink: mongo connect failed, continuing without it", zap.Error(err))
		return nil, func() {}
	}
	if err := client.Ping(ctx, nil); err != nil {
		logger.Warn("audit sink: mongo ping failed, continuing without it", zap.Error(err))
		return nil, func() {}
	}

	sink, err := audit.New(client.Database("addresses_deduplicator"), logger)
	if err != nil {
		logger.Warn("audit sink: setup failed, continuing without it", zap.Error(err))
		return nil, func() { client.Disconnect(context.Background()) }
	}

	logger.Info("audit sink connected", zap.String("uri", uri))
	return sink, func() { client.Disconnect(context.Background()) }
}

// maybeStartStatusServer starts the /healthz and /stats server in the
// background when addr is non-empty, mirroring cmd/api/main.go's
// "go router.Run(...)" pattern.
func maybeStartStatusServer(addr string, counters *statusserver.Counters, logger *zap.Logger) *statusserver.Server {
	if addr == "" {
		return nil
	}
	s := statusserver.New(counters, logger)
	go func() {
		if err := s.ListenAndServe(addr); err != nil {
			logger.Warn("status server stopped", zap.Error(err))
		}
	}()
	return s
}
