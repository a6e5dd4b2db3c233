package query

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xaviermatuz/formdesk/model"
)

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeTimers) {
	t.Helper()
	ft := &fakeTimers{}
	c := NewController(append([]Option{WithAfterFunc(ft.after)}, opts...)...)
	t.Cleanup(c.Close)
	return c, ft
}

// recorder collects the states delivered to a subscriber.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

// --- Derived total pages ---

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 10, 10},
		{100, 5, 20},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

// --- Page navigation ---

func TestController_SetPage_clamps(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(95)

	c.SetPage(To(999))
	if got := c.Snapshot().Page; got != 10 {
		t.Errorf("Page after To(999) = %d, want 10", got)
	}

	c.SetPage(To(0))
	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page after To(0) = %d, want 1", got)
	}

	c.SetPage(To(-4))
	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page after To(-4) = %d, want 1", got)
	}
}

func TestController_SetPage_functional(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(50)
	c.SetPage(To(3))

	c.SetPage(By(func(p int) int { return p * 2 }))
	if got := c.Snapshot().Page; got != 5 {
		t.Errorf("Page = %d, want 5", got)
	}
}

func TestController_SetPage_nonFinite(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(50)
	c.SetPage(To(4))

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		c.SetPage(To(4))
		c.SetPage(ToNumber(f))
		if got := c.Snapshot().Page; got != 1 {
			t.Errorf("Page after ToNumber(%v) = %d, want 1", f, got)
		}
	}

	c.SetPage(Parse("not-a-number"))
	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page after Parse(garbage) = %d, want 1", got)
	}
	c.SetPage(Parse("3.7"))
	if got := c.Snapshot().Page; got != 3 {
		t.Errorf("Page after Parse(3.7) = %d, want 3", got)
	}
}

func TestController_NextPrev(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(25)

	c.NextPage()
	c.NextPage()
	c.NextPage()
	if got := c.Snapshot().Page; got != 3 {
		t.Errorf("Page after 3x NextPage = %d, want 3", got)
	}

	c.PrevPage()
	c.PrevPage()
	c.PrevPage()
	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page after 3x PrevPage = %d, want 1", got)
	}
}

func TestController_SetTotalCount_reclamps(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(100)
	c.SetPage(To(10))

	c.SetTotalCount(41)
	if got := c.Snapshot().Page; got != 5 {
		t.Errorf("Page after shrinking total = %d, want 5", got)
	}
}

// --- Page size ---

func TestController_SetPageSize(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(200)
	c.SetPage(To(7))

	if err := c.SetPageSize(50); err != nil {
		t.Fatalf("SetPageSize(50) error = %v", err)
	}
	s := c.Snapshot()
	if s.PageSize != 50 || s.Page != 1 {
		t.Errorf("state = page %d size %d, want page 1 size 50", s.Page, s.PageSize)
	}
	if s.TotalPages() != 4 {
		t.Errorf("TotalPages() = %d, want 4", s.TotalPages())
	}
}

func TestController_SetPageSize_rejectsUnknown(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.SetPageSize(15); err != ErrInvalidPageSize {
		t.Errorf("SetPageSize(15) error = %v, want ErrInvalidPageSize", err)
	}
	if got := c.Snapshot().PageSize; got != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", got, DefaultPageSize)
	}
}

func TestController_Reset(t *testing.T) {
	c, _ := newTestController(t)
	c.SetTotalCount(30)
	c.SetPage(To(3))

	c.Reset()
	s := c.Snapshot()
	if s.Page != 1 || s.TotalCount != 0 {
		t.Errorf("after Reset page=%d total=%d, want 1 and 0", s.Page, s.TotalCount)
	}
}

// --- Search ---

func TestController_SetSearch_debounced(t *testing.T) {
	c, ft := newTestController(t)
	rec := &recorder{}
	c.Subscribe(rec.record)

	c.SetSearch("i")
	c.SetSearch("in")
	c.SetSearch("inv")

	s := c.Snapshot()
	if s.Search != "inv" {
		t.Errorf("Search = %q, want inv", s.Search)
	}
	if s.DebouncedSearch != "" {
		t.Errorf("DebouncedSearch = %q before quiet period, want empty", s.DebouncedSearch)
	}
	if rec.len() != 0 {
		t.Fatalf("subscriber called %d times before quiet period", rec.len())
	}

	ft.fire()

	if rec.len() != 1 {
		t.Fatalf("subscriber called %d times, want 1", rec.len())
	}
	if got := rec.last().Params().Search; got != "inv" {
		t.Errorf("Params().Search = %q, want inv", got)
	}
}

func TestController_SetSearch_resetsPage(t *testing.T) {
	c, ft := newTestController(t)
	c.SetTotalCount(100)
	c.SetPage(To(4))

	c.SetSearch("x")
	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page after SetSearch = %d, want 1", got)
	}
	ft.fire()
	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page after debounce = %d, want 1", got)
	}
}

func TestController_FlushSearch(t *testing.T) {
	c, ft := newTestController(t)
	c.SetSearch("report")
	c.FlushSearch()

	if got := c.Snapshot().DebouncedSearch; got != "report" {
		t.Errorf("DebouncedSearch = %q, want report", got)
	}
	if ft.count() != 0 {
		ft.fire()
	}
	if got := c.Snapshot().DebouncedSearch; got != "report" {
		t.Errorf("DebouncedSearch after stray timer = %q, want report", got)
	}
}

// --- Subscriptions ---

func TestController_Subscribe_onlyOnParamChange(t *testing.T) {
	c, _ := newTestController(t)
	rec := &recorder{}
	unsubscribe := c.Subscribe(rec.record)

	c.SetPage(To(1)) // unchanged
	if rec.len() != 0 {
		t.Errorf("subscriber called for a no-op, calls = %d", rec.len())
	}

	c.SetSort(&model.SortConfig{Key: "name", Direction: model.SortAsc})
	c.SetFilter("state", "deleted")
	if rec.len() != 2 {
		t.Errorf("calls = %d, want 2", rec.len())
	}

	unsubscribe()
	c.SetFilter("state", "active")
	if rec.len() != 2 {
		t.Errorf("calls after unsubscribe = %d, want 2", rec.len())
	}
}

func TestController_Params(t *testing.T) {
	c, _ := newTestController(t,
		WithPageSize(20),
		WithSort(&model.SortConfig{Key: "created_at", Direction: model.SortDesc}),
		WithFilters(map[string]string{"state": "active"}),
	)

	want := Params{
		Page:     1,
		PageSize: 20,
		Ordering: "-created_at",
		Filters:  map[string]string{"state": "active"},
	}
	if diff := cmp.Diff(want, c.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}

func TestParams_Key_stableFilterOrder(t *testing.T) {
	a := Params{Page: 1, PageSize: 10, Filters: map[string]string{"state": "active", "latest_only": "false"}}
	b := Params{Page: 1, PageSize: 10, Filters: map[string]string{"latest_only": "false", "state": "active"}}
	if a.Key() != b.Key() {
		t.Errorf("Key() differs for equal filters: %q vs %q", a.Key(), b.Key())
	}
}

func TestController_Snapshot_isCopy(t *testing.T) {
	c, _ := newTestController(t, WithFilters(map[string]string{"state": "active"}))
	s := c.Snapshot()
	s.Filters["state"] = "deleted"

	if got := c.Snapshot().Filters["state"]; got != "active" {
		t.Errorf("mutating snapshot leaked into controller: %q", got)
	}
}
