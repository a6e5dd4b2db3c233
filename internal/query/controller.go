// Package query holds the client-side query state of a paginated table:
// page, page size, search (immediate and debounced), sort and filters.
package query

import (
	"errors"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xaviermatuz/formdesk/model"
)

// PageSizes are the accepted page sizes.
var PageSizes = []int{5, 10, 20, 50, 100}

// Defaults.
const (
	DefaultPageSize = 10
	DefaultDebounce = 600 * time.Millisecond
)

// ErrInvalidPageSize is returned by SetPageSize for sizes outside PageSizes.
var ErrInvalidPageSize = errors.New("query: page size must be one of 5, 10, 20, 50, 100")

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// State is a snapshot of the query state.
type State struct {
	Page            int
	PageSize        int
	Search          string
	DebouncedSearch string
	Sort            *model.SortConfig
	Filters         map[string]string
	TotalCount      int
}

// TotalPages is max(1, ceil(TotalCount/PageSize)).
func (s State) TotalPages() int {
	return TotalPages(s.TotalCount, s.PageSize)
}

// Params returns the parameters that drive a fetch. The immediate search is
// deliberately absent: only the debounced value reaches the remote API.
func (s State) Params() Params {
	filters := make(map[string]string, len(s.Filters))
	for k, v := range s.Filters {
		filters[k] = v
	}
	return Params{
		Page:     s.Page,
		PageSize: s.PageSize,
		Search:   s.DebouncedSearch,
		Ordering: s.Sort.Ordering(),
		Filters:  filters,
	}
}

// TotalPages computes max(1, ceil(total/size)).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// Params is the parameter tuple of one fetch.
type Params struct {
	Page     int
	PageSize int
	Search   string
	Ordering string
	Filters  map[string]string
}

// Key returns a canonical string identifying the tuple.
func (p Params) Key() string {
	var b strings.Builder
	b.WriteString("page=")
	b.WriteString(strconv.Itoa(p.Page))
	b.WriteString("&page_size=")
	b.WriteString(strconv.Itoa(p.PageSize))
	b.WriteString("&search=")
	b.WriteString(p.Search)
	b.WriteString("&ordering=")
	b.WriteString(p.Ordering)

	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(p.Filters[k])
	}
	return b.String()
}

// PageUpdate computes the next page from the current one.
type PageUpdate func(current int) int

// To sets a literal page.
func To(n int) PageUpdate {
	return func(int) int { return n }
}

// By derives the page from the current one.
func By(fn func(current int) int) PageUpdate {
	return PageUpdate(fn)
}

// ToNumber sets a literal page from an untyped number. NaN and infinities
// become page 1; fractions are truncated.
func ToNumber(f float64) PageUpdate {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return To(1)
	}
	return To(int(math.Trunc(f)))
}

// Parse reads a page from user input. Unparseable input becomes page 1.
func Parse(s string) PageUpdate {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return To(1)
	}
	return ToNumber(f)
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize sets the initial page size. Invalid sizes are ignored.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if ValidPageSize(n) {
			c.state.PageSize = n
		}
	}
}

// WithDebounce sets the search quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithSort sets the initial sort.
func WithSort(s *model.SortConfig) Option {
	return func(c *Controller) {
		c.state.Sort = cloneSort(s)
	}
}

// WithFilters sets the initial filter values.
func WithFilters(filters map[string]string) Option {
	return func(c *Controller) {
		for k, v := range filters {
			c.state.Filters[k] = v
		}
	}
}

// WithAfterFunc replaces the timer used for debouncing.
func WithAfterFunc(after AfterFunc) Option {
	return func(c *Controller) {
		c.after = after
	}
}

// Controller owns the query state of one table. All methods are safe for
// concurrent use. Subscribers are called outside the lock whenever the fetch
// parameters change.
type Controller struct {
	delay    time.Duration
	after    AfterFunc
	debounce *Debouncer

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewController creates a Controller at page 1 with the default page size.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		delay: DefaultDebounce,
		state: State{
			Page:     1,
			PageSize: DefaultPageSize,
			Filters:  make(map[string]string),
		},
		subs: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.debounce = NewDebouncer(c.delay, c.after)
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Params returns the current fetch parameters.
func (c *Controller) Params() Params {
	return c.Snapshot().Params()
}

// TotalPages returns the derived page count.
func (c *Controller) TotalPages() int {
	return c.Snapshot().TotalPages()
}

// Subscribe registers fn for parameter changes and returns a function that
// removes it.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SetPage applies u to the current page and clamps the result to
// [1, TotalPages]. It never fails.
func (c *Controller) SetPage(u PageUpdate) {
	c.update(func(s *State) {
		next := 1
		if u != nil {
			next = u(s.Page)
		}
		s.Page = clamp(next, s.TotalPages())
	})
}

// NextPage moves forward one page, stopping at the last page.
func (c *Controller) NextPage() {
	c.SetPage(By(func(p int) int { return p + 1 }))
}

// PrevPage moves back one page, stopping at page 1.
func (c *Controller) PrevPage() {
	c.SetPage(By(func(p int) int { return p - 1 }))
}

// SetPageSize changes the page size and returns to page 1.
func (c *Controller) SetPageSize(n int) error {
	if !ValidPageSize(n) {
		return ErrInvalidPageSize
	}
	c.update(func(s *State) {
		s.PageSize = n
		s.Page = 1
	})
	return nil
}

// SetTotalCount records the total reported by the last fetch and re-clamps
// the page.
func (c *Controller) SetTotalCount(n int) {
	if n < 0 {
		n = 0
	}
	c.update(func(s *State) {
		s.TotalCount = n
		s.Page = clamp(s.Page, s.TotalPages())
	})
}

// SetSearch updates the immediate search text, returns to page 1 and
// restarts the quiet period after which the debounced search follows.
func (c *Controller) SetSearch(text string) {
	c.update(func(s *State) {
		s.Search = text
		s.Page = 1
	})
	c.debounce.Trigger(func() {
		c.applyDebounced(text)
	})
}

// FlushSearch applies the immediate search without waiting.
func (c *Controller) FlushSearch() {
	c.debounce.Stop()
	c.applyDebounced(c.Snapshot().Search)
}

func (c *Controller) applyDebounced(text string) {
	c.update(func(s *State) {
		if s.DebouncedSearch == text {
			return
		}
		s.DebouncedSearch = text
		s.Page = 1
	})
}

// SetSort replaces the active sort. A nil config clears it.
func (c *Controller) SetSort(cfg *model.SortConfig) {
	c.update(func(s *State) {
		s.Sort = cloneSort(cfg)
	})
}

// SetFilter sets one filter value and returns to page 1. An empty value
// removes the filter.
func (c *Controller) SetFilter(name, value string) {
	c.update(func(s *State) {
		if value == "" {
			delete(s.Filters, name)
		} else {
			s.Filters[name] = value
		}
		s.Page = 1
	})
}

// Reset returns to page 1 and forgets the total.
func (c *Controller) Reset() {
	c.update(func(s *State) {
		s.Page = 1
		s.TotalCount = 0
	})
}

// Close cancels any pending debounced search.
func (c *Controller) Close() {
	c.debounce.Stop()
}

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	before := c.state.Params().Key()
	fn(&c.state)
	after := c.snapshotLocked()
	changed := after.Params().Key() != before
	var subs []func(State)
	if changed {
		subs = make([]func(State), 0, len(c.subs))
		for _, s := range c.subs {
			subs = append(subs, s)
		}
	}
	c.mu.Unlock()

	for _, s := range subs {
		s(after)
	}
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	s.Sort = cloneSort(c.state.Sort)
	s.Filters = make(map[string]string, len(c.state.Filters))
	for k, v := range c.state.Filters {
		s.Filters[k] = v
	}
	return s
}

func clamp(page, total int) int {
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}

func cloneSort(s *model.SortConfig) *model.SortConfig {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
