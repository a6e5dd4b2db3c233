// Package fetch loads pages of a remote resource for the parameters of a
// query controller. Identical parameter tuples share one network call and a
// freshness cache; a generation counter drops responses that a newer request
// has superseded.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/query"
	"github.com/xaviermatuz/formdesk/model"
)

// DefaultStaleTime is how long a page is served from cache.
const DefaultStaleTime = 5 * time.Minute

// ErrStale is returned by a load whose response arrived after a newer load
// had started. The response is not applied.
var ErrStale = errors.New("fetch: response superseded by a newer request")

// Loader performs the network call for one parameter tuple.
type Loader[R model.Resource] func(ctx context.Context, p query.Params) (model.Page[R], error)

// State is the observable fetch state. Data survives a failed or in-flight
// load so callers can keep showing the previous rows.
type State[R model.Resource] struct {
	Loading    bool
	Error      error
	Data       *model.Page[R]
	Params     query.Params
	Generation uint64
	UpdatedAt  time.Time
}

// Items returns the loaded rows, or nil before the first success.
func (s State[R]) Items() []model.Row[R] {
	if s.Data == nil {
		return nil
	}
	return s.Data.Results
}

type settings struct {
	cache   Cache
	ttl     time.Duration
	scope   string
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures an Adapter.
type Option func(*settings)

// WithCache sets the page cache and its freshness window.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *settings) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithScope namespaces cache entries, typically per resource and user so
// that rows fetched under one identity are never served to another.
func WithScope(scope string) Option {
	return func(s *settings) { s.scope = scope }
}

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics records fetch outcomes, cache use and stale responses.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// Adapter loads pages for one resource. Safe for concurrent use.
type Adapter[R model.Resource] struct {
	resource string
	load     Loader[R]
	s        settings
	group    singleflight.Group

	mu     sync.Mutex
	state  State[R]
	latest uint64
	epoch  uint64 // bumped by forced loads and Invalidate; older loads do not write the cache
	closed bool
	ctrl   *query.Controller
	unsub  func()

	base    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an Adapter. Without WithCache it uses a private MemoryCache
// with DefaultStaleTime.
func New[R model.Resource](resource string, load Loader[R], opts ...Option) *Adapter[R] {
	s := settings{ttl: DefaultStaleTime, scope: resource, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Adapter[R]{
		resource: resource,
		load:     load,
		s:        s,
		base:     base,
		cancel:   cancel,
	}
}

// Bind reports every load's count to ctrl and loads in the background
// whenever ctrl's parameters change.
func (a *Adapter[R]) Bind(ctrl *query.Controller) {
	a.mu.Lock()
	a.ctrl = ctrl
	a.mu.Unlock()

	unsub := ctrl.Subscribe(func(st query.State) {
		a.spawn(st.Params())
	})

	a.mu.Lock()
	a.unsub = unsub
	a.mu.Unlock()
}

// State returns a copy of the current state.
func (a *Adapter[R]) State() State[R] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Load fetches p, from cache when fresh.
func (a *Adapter[R]) Load(ctx context.Context, p query.Params) (model.Page[R], error) {
	return a.fetch(ctx, p, false)
}

// syncAttempts bounds how often Sync retries after being overtaken by a
// newer load.
const syncAttempts = 3

// Sync loads the bound controller's current parameters and returns the
// resulting state. Fetch errors are carried in State.Error.
func (a *Adapter[R]) Sync(ctx context.Context) State[R] {
	for i := 0; i < syncAttempts; i++ {
		if _, err := a.fetch(ctx, a.params(), false); !errors.Is(err, ErrStale) {
			break
		}
	}
	return a.State()
}

// Refetch reloads the current parameters, bypassing the cache.
func (a *Adapter[R]) Refetch(ctx context.Context) (State[R], error) {
	_, err := a.fetch(ctx, a.params(), true)
	return a.State(), err
}

// Invalidate drops every cached page of this adapter's scope. Loads already
// in flight will not write their pages back.
func (a *Adapter[R]) Invalidate(ctx context.Context) error {
	a.mu.Lock()
	a.epoch++
	a.mu.Unlock()
	return a.s.cache.DeletePrefix(ctx, a.s.scope+"|")
}

// Start refreshes the current parameters every interval until ctx is done
// or the adapter is closed. Only the first call has an effect.
func (a *Adapter[R]) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.base.Done():
				return
			case <-ticker.C:
				a.s.metrics.RecordBackgroundRefresh(a.resource)
				if _, err := a.Refetch(a.base); err != nil && !errors.Is(err, ErrStale) {
					a.s.logger.Warn("fetch: background refresh failed",
						zap.String("resource", a.resource), zap.Error(err))
				}
			}
		}
	}()
}

// Close stops background work and waits for it to finish.
func (a *Adapter[R]) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	unsub := a.unsub
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	a.cancel()
	a.wg.Wait()
}

func (a *Adapter[R]) params() query.Params {
	a.mu.Lock()
	ctrl, last := a.ctrl, a.state.Params
	a.mu.Unlock()
	if ctrl != nil {
		return ctrl.Params()
	}
	return last
}

func (a *Adapter[R]) spawn(p query.Params) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		if _, err := a.fetch(a.base, p, false); err != nil && !errors.Is(err, ErrStale) && a.base.Err() == nil {
			a.s.logger.Debug("fetch: load after parameter change failed",
				zap.String("resource", a.resource), zap.Error(err))
		}
	}()
}

// fetch loads p. A forced load skips the cache read and never joins a
// call already in flight, since that call may predate a mutation.
func (a *Adapter[R]) fetch(ctx context.Context, p query.Params, force bool) (model.Page[R], error) {
	gen, epoch := a.begin(p, force)
	key := a.s.scope + "|" + p.Key()
	flight := key
	if force {
		flight = "force|" + key
	}

	if !force {
		if page, ok := a.cached(ctx, key); ok {
			return a.apply(gen, p, page, nil)
		}
	}

	ctx, span := observability.StartSpan(ctx, "fetch.load",
		observability.AttrResource.String(a.resource),
		observability.AttrGeneration.Int64(int64(gen)),
		observability.AttrCacheHit.Bool(false),
	)
	v, err, _ := a.group.Do(flight, func() (any, error) {
		page, err := a.load(ctx, p)
		if err != nil {
			return nil, err
		}
		a.store(ctx, key, epoch, page)
		return page, nil
	})
	observability.EndSpan(span, err)

	var page model.Page[R]
	if err != nil {
		a.s.metrics.RecordFetch(a.resource, "failure")
	} else {
		a.s.metrics.RecordFetch(a.resource, "success")
		page = v.(model.Page[R])
	}
	return a.apply(gen, p, page, err)
}

func (a *Adapter[R]) begin(p query.Params, force bool) (gen, epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest++
	if force {
		a.epoch++
	}
	a.state.Loading = true
	a.state.Params = p
	return a.latest, a.epoch
}

func (a *Adapter[R]) apply(gen uint64, p query.Params, page model.Page[R], err error) (model.Page[R], error) {
	a.mu.Lock()
	if gen != a.latest {
		a.mu.Unlock()
		a.s.metrics.RecordStaleResponse(a.resource)
		a.s.logger.Debug("fetch: dropped stale response",
			zap.String("resource", a.resource), zap.Uint64("generation", gen))
		return page, ErrStale
	}

	a.state.Loading = false
	a.state.Params = p
	a.state.Generation = gen
	if err != nil {
		a.state.Error = err
		a.mu.Unlock()
		return page, err
	}
	a.state.Error = nil
	a.state.Data = &page
	a.state.UpdatedAt = time.Now()
	ctrl := a.ctrl
	a.mu.Unlock()

	if ctrl != nil {
		ctrl.SetTotalCount(page.Count)
	}
	return page, nil
}

func (a *Adapter[R]) cached(ctx context.Context, key string) (model.Page[R], bool) {
	var page model.Page[R]
	data, ok, err := a.s.cache.Get(ctx, key)
	if err != nil {
		a.s.logger.Warn("fetch: cache read failed", zap.String("resource", a.resource), zap.Error(err))
	}
	if !ok || err != nil || json.Unmarshal(data, &page) != nil {
		a.s.metrics.RecordFetchCacheMiss(a.resource)
		return page, false
	}
	a.s.metrics.RecordFetchCacheHit(a.resource)
	return page, true
}

func (a *Adapter[R]) store(ctx context.Context, key string, epoch uint64, page model.Page[R]) {
	a.mu.Lock()
	current := a.epoch == epoch
	a.mu.Unlock()
	if !current {
		return
	}
	data, err := json.Marshal(page)
	if err == nil {
		err = a.s.cache.Set(ctx, key, data, a.s.ttl)
	}
	if err != nil {
		a.s.logger.Warn("fetch: cache write failed", zap.String("resource", a.resource), zap.Error(err))
	}
}

// Values encodes p as query parameters for the forms API.
func Values(p query.Params) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("page_size", strconv.Itoa(p.PageSize))
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Ordering != "" {
		v.Set("ordering", p.Ordering)
	}
	for k, val := range p.Filters {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}
