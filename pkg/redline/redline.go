// Package redline is the suggestion engine facade: entity extraction,
// domain detection, producer fan-out, adjustment, ranking and feedback
// learning behind one API. The facade wires the sub-packages together;
// each stage's behavior lives in its own package.
package redline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cognicore/redline/pkg/redline/cache"
	"github.com/cognicore/redline/pkg/redline/config"
	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/feedback"
	"github.com/cognicore/redline/pkg/redline/internalerr"
	"github.com/cognicore/redline/pkg/redline/rank"
	"github.com/cognicore/redline/pkg/redline/store"
	"github.com/cognicore/redline/pkg/redline/store/memstore"
	"github.com/cognicore/redline/pkg/redline/suggest"
	"github.com/cognicore/redline/pkg/redline/throttle"
)

// Options configures an Engine. Every field is optional: a zero Options
// gives an in-memory engine with pattern+NLP extraction and the
// heuristic producer only.
type Options struct {
	// Config holds the tunables. Nil means config.Default().
	Config *config.Config

	// Logger for the whole engine. Nil means no logging.
	Logger *zap.Logger

	// Store persists feedback state across restarts. Nil means a fresh
	// in-memory store.
	Store store.Store

	// AIOracle backs the ai and contextual producers. Nil disables
	// both.
	AIOracle suggest.Oracle

	// NEROracle adds the external NER pass to entity extraction. Nil
	// leaves pattern+NLP extraction only.
	NEROracle entity.Oracle

	// Glossary backs the brandkit producer. Nil disables it.
	Glossary *suggest.Glossary

	// Clock for feedback timestamps. Nil means time.Now.
	Clock func() time.Time
}

// Result is one request's outcome.
type Result struct {
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Domain      domain.Context       `json:"domain"`
	Entities    []entity.Entity      `json:"entities"`

	// CacheHit marks a result served from the suggestion cache.
	CacheHit bool `json:"-"`
	// Elapsed is this caller's wall time for the request.
	Elapsed time.Duration `json:"-"`
	// Err carries a per-item failure inside a batch.
	Err error `json:"-"`
}

// Stats is a point-in-time view of the engine's moving parts.
type Stats struct {
	Cache        cache.Stats `json:"cache"`
	InFlight     int         `json:"inFlight"`
	Queued       int         `json:"queued"`
	TrackedPairs int         `json:"trackedPairs"`
}

// Engine runs the suggestion pipeline. Safe for concurrent use.
type Engine struct {
	log   *zap.Logger
	cfg   atomic.Pointer[config.Config]
	clock func() time.Time

	store     store.Store
	aiOracle  suggest.Oracle
	nerOracle entity.Oracle
	glossary  *suggest.Glossary

	canon    *entity.Canonicalizer
	tagger   *entity.Tagger
	detector *domain.Detector
	feedback *feedback.Service
	cache    *cache.Cache
	limiter  *throttle.Limiter
	pool     *throttle.Pool
	sched    *feedback.Scheduler

	flight    singleflight.Group
	closeOnce sync.Once
	closeErr  error
}

// New builds an engine, loads persisted feedback state and starts the
// calibration scheduler when one is configured. Call Close when done.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	st := opts.Store
	if st == nil {
		st = memstore.New()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	canon := entity.NewCanonicalizer()
	e := &Engine{
		log:       log,
		clock:     clock,
		store:     st,
		aiOracle:  opts.AIOracle,
		nerOracle: opts.NEROracle,
		glossary:  opts.Glossary,
		canon:     canon,
		tagger:    entity.NewTagger(canon),
		detector:  domain.NewDetector(cfg.DetectorConfig(), log),
		feedback:  feedback.NewService(cfg.FeedbackConfig(), st, log),
		cache:     cache.New(cfg.CacheConfig(), log),
		limiter:   throttle.NewLimiter(cfg.ThrottleConfig()),
		pool:      throttle.NewPool(cfg.Throttle.PoolWorkers, cfg.Throttle.PoolQueue, log),
	}
	e.cfg.Store(cfg)

	if err := e.feedback.Load(context.Background()); err != nil {
		e.pool.Stop()
		e.cache.Close()
		return nil, fmt.Errorf("load feedback state: %w", err)
	}

	if schedule := cfg.Engine.CalibrationSchedule; schedule != "" {
		sched, err := feedback.NewScheduler(e.feedback, schedule, log)
		if err != nil {
			e.pool.Stop()
			e.cache.Close()
			return nil, err
		}
		sched.Start()
		e.sched = sched
	}

	return e, nil
}

// UpdateConfig swaps the live tunables after validating them. Producer,
// ranking, adjustment and timeout settings take effect on the next
// request; construction-time sizes (cache bytes, pool workers, queue
// slots) keep their original values until restart.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg.Store(cfg)
	e.log.Info("engine config updated")
	return nil
}

// GenerateSuggestions runs the full pipeline for one request. Identical
// concurrent requests share one computation; completed results are
// cached by request fingerprint.
func (e *Engine) GenerateSuggestions(ctx context.Context, req suggest.Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: empty text", internalerr.ErrInvalidInput)
	}

	cfg := e.cfg.Load()
	start := time.Now()

	key := req.Fingerprint(0)
	if res, ok := e.cached(key); ok {
		res.CacheHit = true
		res.Elapsed = time.Since(start)
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Engine.RequestTimeout))
	defer cancel()

	v, err, _ := e.flight.Do(key, func() (any, error) {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer e.limiter.Release()

		// A concurrent writer may have filled the cache while this
		// caller queued for a slot.
		if res, ok := e.cached(key); ok {
			res.CacheHit = true
			return res, nil
		}

		res, err := e.compute(ctx, cfg, req)
		if err != nil {
			return nil, err
		}
		e.cacheStore(key, res, cfg)
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	// Copy so concurrent sharers of one flight don't race on the
	// per-caller fields.
	res := *(v.(*Result))
	res.Elapsed = time.Since(start)
	return &res, nil
}

// GenerateBatch processes several requests, serving cache hits
// immediately and splitting misses into pooled chunks. Per-item
// failures land in that item's Result.Err; the batch itself only fails
// when the engine is shutting down.
func (e *Engine) GenerateBatch(ctx context.Context, reqs []suggest.Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))

	var misses []int
	for i, r := range reqs {
		if strings.TrimSpace(r.Text) == "" {
			results[i] = &Result{Err: fmt.Errorf("%w: empty text", internalerr.ErrInvalidInput)}
			continue
		}
		if res, ok := e.cached(r.Fingerprint(0)); ok {
			res.CacheHit = true
			results[i] = res
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return results, nil
	}

	chunkSize := e.cfg.Load().Engine.BatchChunkSize
	var wg sync.WaitGroup
	for lo := 0; lo < len(misses); lo += chunkSize {
		part := misses[lo:min(lo+chunkSize, len(misses))]
		wg.Add(1)
		err := e.pool.Submit(func(context.Context) {
			defer wg.Done()
			for _, i := range part {
				res, err := e.GenerateSuggestions(ctx, reqs[i])
				if err != nil {
					results[i] = &Result{Err: err}
					continue
				}
				results[i] = res
			}
		})
		if err != nil {
			wg.Done()
			for _, i := range part {
				results[i] = &Result{Err: err}
			}
		}
	}
	wg.Wait()

	return results, nil
}

// RecordFeedback stores one editor decision and updates the learning
// state it affects.
func (e *Engine) RecordFeedback(ctx context.Context, ev feedback.Event) (feedback.Event, error) {
	return e.feedback.Record(ctx, ev)
}

// Calibrate runs one threshold calibration sweep and returns its
// report.
func (e *Engine) Calibrate(ctx context.Context) (feedback.Report, error) {
	return e.feedback.Calibrate(ctx)
}

// Feedback exposes the feedback service for maintenance flows such as
// glossary export.
func (e *Engine) Feedback() *feedback.Service {
	return e.feedback
}

// Stats reports cache, throttle and learning-state counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cache:        e.cache.Stats(),
		InFlight:     e.limiter.InFlight(),
		Queued:       e.limiter.Queued(),
		TrackedPairs: len(e.feedback.Thresholds()),
	}
}

// Close stops the scheduler, pool and cache, then closes the store.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.sched != nil {
			e.sched.Stop()
		}
		e.pool.Stop()
		e.cache.Close()
		e.closeErr = e.store.Close()
	})
	return e.closeErr
}

// compute is the uncached pipeline: extract, detect, fan out producers,
// adjust, rank.
func (e *Engine) compute(ctx context.Context, cfg *config.Config, req suggest.Request) (*Result, error) {
	ents := e.extract(ctx, cfg, req.Text)
	dc := e.detector.Detect(ctx, req)

	producerTimeout := time.Duration(cfg.Engine.ProducerTimeout)

	var mu sync.Mutex
	var all []suggest.Suggestion
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range e.producers(cfg, req) {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, producerTimeout)
			defer cancel()

			out, err := p.Produce(pctx, req, ents)
			if err != nil {
				// Degrade, never fail the request over one producer.
				e.log.Warn("producer degraded to zero suggestions",
					zap.String("producer", p.Name()),
					zap.Error(err))
				return nil
			}

			floor := cfg.MinConfidence(suggest.Source(p.Name()))
			mu.Lock()
			for _, s := range out {
				if s.Confidence >= floor {
					all = append(all, s)
				}
			}
			completed++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if completed == 0 && ctx.Err() != nil {
		return nil, fmt.Errorf("no producer completed: %w", ctx.Err())
	}

	adjuster := domain.NewAdjuster(cfg.AdjusterConfig(), e.feedback)
	adjuster.Apply(dc, req, all)

	scorer := rank.NewScorer(cfg.RankConfig(), e.feedback.ThresholdFor)
	ranked := scorer.Rank(req, all)

	return &Result{Suggestions: ranked, Domain: dc, Entities: ents}, nil
}

// extract merges the three extraction passes. A failing NER oracle
// degrades to pattern+NLP extraction.
func (e *Engine) extract(ctx context.Context, cfg *config.Config, text string) []entity.Entity {
	pattern := entity.ExtractPatterns(text)
	nlp := e.tagger.Extract(text)

	var ner []entity.Entity
	if e.nerOracle != nil {
		nctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Engine.ProducerTimeout))
		spans, err := e.nerOracle.Extract(nctx, text)
		cancel()
		if err != nil {
			e.log.Warn("ner oracle degraded", zap.Error(err))
		} else {
			ner = e.canon.ResolveAll(spans, entity.SourceNER)
		}
	}

	return entity.Merge(pattern, nlp, ner)
}

// producers assembles the active producer set for one request from the
// wired collaborators.
func (e *Engine) producers(cfg *config.Config, req suggest.Request) []suggest.Producer {
	ps := []suggest.Producer{suggest.NewHeuristic(cfg.HeuristicConfig())}
	if e.glossary != nil {
		ps = append(ps, suggest.NewBrandkit(e.glossary))
	}
	if e.aiOracle != nil {
		ps = append(ps, suggest.NewAI(cfg.AIConfig(), e.aiOracle, e.log))
		if req.Rule != nil {
			ps = append(ps, suggest.NewContextual(cfg.ContextualConfig(), e.aiOracle, e.log))
		}
	}
	return ps
}

// cached decodes a cache entry. A payload that no longer decodes is
// evicted and treated as a miss.
func (e *Engine) cached(key string) (*Result, bool) {
	data, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		e.cache.Delete(key)
		e.log.Warn("evicted undecodable cache entry",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %v", internalerr.ErrCacheCorrupt, err)))
		return nil, false
	}
	return &res, true
}

func (e *Engine) cacheStore(key string, res *Result, cfg *config.Config) {
	data, err := json.Marshal(res)
	if err != nil {
		e.log.Warn("result not cacheable", zap.Error(err))
		return
	}
	e.cache.Set(key, data, time.Duration(cfg.Cache.TTL))
}
