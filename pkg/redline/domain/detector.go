package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cognicore/redline/pkg/redline/suggest"
)

// DetectorConfig tunes detection caching.
type DetectorConfig struct {
	// CacheTTL is how long a detection result stays valid for the same
	// fingerprint.
	// Default: 10m
	CacheTTL time.Duration

	// CacheSize caps the number of cached detections; the oldest
	// entries go first.
	// Default: 512
	CacheSize int

	// FingerprintRunes is how much of the text participates in the
	// cache fingerprint.
	// Default: 100
	FingerprintRunes int
}

// DefaultDetectorConfig returns the stock cache settings.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CacheTTL:         10 * time.Minute,
		CacheSize:        512,
		FingerprintRunes: 100,
	}
}

// Detector classifies requests into domains using keyword rulesets,
// content-type mappings and metadata scans. Results are cached by
// request fingerprint; concurrent identical requests detect once.
type Detector struct {
	cfg    DetectorConfig
	logger *zap.Logger

	rulesMu      sync.RWMutex
	order        []string            // rulesets in priority order
	rules        map[string][]string // domain -> lowercase keywords
	contentTypes map[string]string   // content-type uid -> domain

	flight singleflight.Group
	mu     sync.Mutex
	cache  map[string]cachedDetection
	clock  func() time.Time
}

type cachedDetection struct {
	ctx     Context
	savedAt time.Time
}

// Keyword rulesets for the canonical domains. Matching is on word
// boundaries for single words and substring for phrases.
var defaultRules = map[string][]string{
	Healthcare: {
		"patient", "clinical", "diagnosis", "treatment", "medical",
		"hipaa", "physician", "symptom", "dosage", "prescription",
	},
	Finance: {
		"invoice", "payment", "portfolio", "apr", "interest rate",
		"transaction", "banking", "loan", "credit", "compliance",
	},
	Legal: {
		"contract", "liability", "pursuant", "plaintiff", "defendant",
		"jurisdiction", "clause", "indemnify", "statute", "hereby",
	},
	Technology: {
		"api", "deployment", "latency", "kubernetes", "database",
		"microservice", "sdk", "frontend", "backend", "devops",
	},
	Ecommerce: {
		"cart", "checkout", "sku", "shipping", "inventory",
		"storefront", "catalog", "discount", "refund", "order",
	},
}

// Content types whose uid alone places them in a domain.
var defaultContentTypes = map[string]string{
	"medical_article":  Healthcare,
	"patient_guide":    Healthcare,
	"invoice_template": Finance,
	"financial_report": Finance,
	"contract":         Legal,
	"terms_of_service": Legal,
	"api_reference":    Technology,
	"release_notes":    Technology,
	"product_page":     Ecommerce,
	"checkout_flow":    Ecommerce,
}

// NewDetector builds a detector with the stock rulesets.
func NewDetector(cfg DetectorConfig, logger *zap.Logger) *Detector {
	def := DefaultDetectorConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.FingerprintRunes <= 0 {
		cfg.FingerprintRunes = def.FingerprintRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Detector{
		cfg:          cfg,
		logger:       logger,
		rules:        make(map[string][]string),
		contentTypes: make(map[string]string),
		cache:        make(map[string]cachedDetection),
		clock:        time.Now,
	}
	for _, name := range PriorityOrder() {
		d.order = append(d.order, name)
		d.rules[name] = defaultRules[name]
	}
	for uid, dom := range defaultContentTypes {
		d.contentTypes[uid] = dom
	}
	return d
}

// AddDomain registers a custom ruleset. Custom domains rank after the
// canonical five: the first one whose keywords match wins among them.
// Safe to call while Detect is serving.
func (d *Detector) AddDomain(name string, keywords []string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == General {
		return
	}
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = strings.ToLower(kw)
	}
	d.rulesMu.Lock()
	defer d.rulesMu.Unlock()
	if _, exists := d.rules[name]; !exists {
		d.order = append(d.order, name)
	}
	d.rules[name] = normalized
}

// MapContentType registers a content-type uid as belonging to a domain.
// Safe to call while Detect is serving.
func (d *Detector) MapContentType(uid, domain string) {
	d.rulesMu.Lock()
	defer d.rulesMu.Unlock()
	d.contentTypes[strings.ToLower(strings.TrimSpace(uid))] = domain
}

// Detect classifies the request, consulting the fingerprint cache
// first. Identical concurrent requests share one classification. A
// canceled context reports general without touching the cache.
func (d *Detector) Detect(ctx context.Context, req suggest.Request) Context {
	if ctx.Err() != nil {
		return Context{Domain: General, Confidence: 0.3}
	}
	key := req.Fingerprint(d.cfg.FingerprintRunes)

	if dc, ok := d.lookup(key); ok {
		return dc
	}

	v, _, _ := d.flight.Do(key, func() (any, error) {
		if dc, ok := d.lookup(key); ok {
			return dc, nil
		}
		dc := d.classify(req)
		d.save(key, dc)
		return dc, nil
	})
	return v.(Context)
}

func (d *Detector) lookup(key string) (Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dc, ok := d.cache[key]
	if !ok {
		return Context{}, false
	}
	if d.clock().Sub(dc.savedAt) > d.cfg.CacheTTL {
		delete(d.cache, key)
		return Context{}, false
	}
	return dc.ctx, true
}

func (d *Detector) save(key string, dc Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.cache) >= d.cfg.CacheSize {
		d.evictOldestLocked()
	}
	d.cache[key] = cachedDetection{ctx: dc, savedAt: d.clock()}
}

func (d *Detector) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, v := range d.cache {
		if oldestKey == "" || v.savedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = v.savedAt
		}
	}
	if oldestKey != "" {
		delete(d.cache, oldestKey)
	}
}

// classify runs the actual rulesets.
func (d *Detector) classify(req suggest.Request) Context {
	d.rulesMu.RLock()
	defer d.rulesMu.RUnlock()

	haystack := strings.ToLower(req.Text)
	tokens := tokenSet(haystack)

	// Metadata values join the scan; the content-type mapping is a
	// direct signal for its domain.
	var metaParts []string
	for _, v := range req.Metadata {
		metaParts = append(metaParts, strings.ToLower(v))
	}
	sort.Strings(metaParts)
	metaText := strings.Join(metaParts, " ")
	metaTokens := tokenSet(metaText)

	matches := make(map[string][]string)
	total := 0
	for _, name := range d.order {
		for _, kw := range d.rules[name] {
			if matchKeyword(haystack, tokens, kw) {
				matches[name] = append(matches[name], kw)
				total++
			} else if metaText != "" && matchKeyword(metaText, metaTokens, kw) {
				matches[name] = append(matches[name], "meta:"+kw)
				total++
			}
		}
	}

	if uid := strings.ToLower(strings.TrimSpace(req.ContentType)); uid != "" {
		if dom, ok := d.contentTypes[uid]; ok {
			matches[dom] = append(matches[dom], "content-type:"+uid)
			total++
		}
	}

	for _, name := range d.order {
		signals, ok := matches[name]
		if !ok {
			continue
		}
		conf := float64(len(signals)) / float64(total)
		if conf < 0.5 {
			conf = 0.5
		}
		d.logger.Debug("domain detected",
			zap.String("domain", name),
			zap.Float64("confidence", conf),
			zap.Strings("signals", signals))
		return Context{Domain: name, Confidence: conf, Signals: signals}
	}

	return Context{Domain: General, Confidence: 0.3}
}

// matchKeyword checks a single keyword against the text: token-set
// membership for single words, substring for phrases.
func matchKeyword(haystack string, tokens map[string]struct{}, kw string) bool {
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(haystack, kw)
	}
	_, ok := tokens[kw]
	return ok
}

func tokenSet(lower string) map[string]struct{} {
	set := make(map[string]struct{})
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			set[cur.String()] = struct{}{}
			cur.Reset()
		}
	}
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}

// CacheLen reports the number of live cached detections.
func (d *Detector) CacheLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// String renders a context for logs.
func (c Context) String() string {
	return fmt.Sprintf("%s (%.2f)", c.Domain, c.Confidence)
}
