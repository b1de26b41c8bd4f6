package listctl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/listpulse/pkg/namespace"
	"gitlab.com/tinyland/lab/listpulse/pkg/poll"
	"gitlab.com/tinyland/lab/listpulse/pkg/query"
	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
	"gitlab.com/tinyland/lab/listpulse/pkg/settings"
	"gitlab.com/tinyland/lab/listpulse/pkg/status"
	"gitlab.com/tinyland/lab/listpulse/pkg/transport"
)

const podsBody = `{
  "listMeta": {"totalItems": 12},
  "pods": [
    {"objectMeta": {"name": "web-1"}, "status": "Running"},
    {"objectMeta": {"name": "web-2"}, "status": "Pending"}
  ],
  "errors": [{"message": "metrics unavailable", "code": 503, "reason": "ServiceUnavailable"}]
}`

const emptyBody = `{"listMeta": {"totalItems": 0}, "pods": []}`

var podsConfig = Config{
	ID:         "podList",
	GroupID:    "workloads",
	Endpoint:   "api/v1/pod/:namespace",
	Collection: "pods",
	Columns:    []string{"statusicon", "name", "created"},
}

type recordingNotifier struct {
	mu     sync.Mutex
	source []string
	errs   []resource.Error
}

func (n *recordingNotifier) PushErrors(source string, errs []resource.Error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.source = append(n.source, source)
	n.errs = append(n.errs, errs...)
}

func (n *recordingNotifier) pushed() ([]string, []resource.Error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.source...), append([]resource.Error(nil), n.errs...)
}

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	src := poll.New(transport.NewMockGetter(transport.WithBody([]byte(emptyBody))))
	t.Cleanup(src.Close)
	c, err := New(cfg, Deps{Source: src, Paginator: settings.Default()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// start runs c until the test ends and returns a channel of its events.
func start(t *testing.T, c *Controller) <-chan ChangeEvent {
	t.Helper()
	events := make(chan ChangeEvent, 16)
	c.OnChange(func(ev ChangeEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return events
}

func nextEvent(t *testing.T, events <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return ChangeEvent{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func lastCall(g *transport.MockGetter) transport.Call {
	calls := g.Calls()
	return calls[len(calls)-1]
}

func TestNewConfigErrors(t *testing.T) {
	src := poll.New(transport.NewMockGetter())
	defer src.Close()
	pager := settings.Default()

	tests := []struct {
		name string
		cfg  Config
		deps Deps
		want error
	}{
		{"missing id", Config{}, Deps{Source: src, Paginator: pager}, ErrMissingID},
		{"missing paginator", Config{ID: "x"}, Deps{Source: src}, ErrMissingPaginator},
		{"missing source", Config{ID: "x"}, Deps{Paginator: pager}, ErrMissingSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.deps); !errors.Is(err, tt.want) {
				t.Errorf("New err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunOnlyOnce(t *testing.T) {
	c := newTestController(t, Config{ID: "x"})
	start(t, c)
	waitFor(t, func() bool { return c.running.Load() })
	if err := c.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run err = %v, want ErrAlreadyRunning", err)
	}
}

func TestCompletedFetchUpdatesStateAndEmits(t *testing.T) {
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	src := poll.New(getter)
	defer src.Close()
	notifier := &recordingNotifier{}
	ns := namespace.NewService("default")

	c, err := New(podsConfig, Deps{Source: src, Paginator: settings.Default(), Namespace: ns, Notifier: notifier})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status.RegisterPodBindings(c.StatusRegistry())
	if !c.Loading() {
		t.Error("controller should start loading")
	}

	ev := nextEvent(t, start(t, c))
	if ev.ListID != "podList" || ev.GroupID != "workloads" {
		t.Errorf("event ids = %q/%q", ev.ListID, ev.GroupID)
	}
	if ev.ItemCount != 12 || ev.Filtered {
		t.Errorf("event count/filtered = %d/%v, want 12/false", ev.ItemCount, ev.Filtered)
	}
	if len(ev.Result.Items) != 2 {
		t.Errorf("event items = %d, want 2", len(ev.Result.Items))
	}

	call := lastCall(getter)
	if call.Endpoint != "api/v1/pod/default" {
		t.Errorf("endpoint = %q", call.Endpoint)
	}
	if call.Params.Get(query.ParamItemsPerPage) != "10" || call.Params.Get(query.ParamPage) != "1" {
		t.Errorf("params = %v", call.Params)
	}

	sources, errs := notifier.pushed()
	if len(errs) != 1 || errs[0].Code != 503 || sources[0] != "podList" {
		t.Errorf("notifier got %v %v", sources, errs)
	}

	snap := c.Snapshot()
	if snap.Loading || snap.TotalItems != 12 || snap.Namespace != "default" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Statuses) != 2 || snap.Statuses[0].Tooltip != "Running" || snap.Statuses[1].Tooltip != "Pending" {
		t.Errorf("statuses = %+v", snap.Statuses)
	}
	if got := c.StatusOf(ev.Result.Items[0]); got.IconClass != status.ClassSuccess {
		t.Errorf("StatusOf = %+v", got)
	}
}

func TestTriggersStartNewCycle(t *testing.T) {
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	src := poll.New(getter)
	defer src.Close()

	c, err := New(podsConfig, Deps{Source: src, Paginator: settings.Default()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := start(t, c)
	nextEvent(t, events)

	c.Dispatch(PageChanged{Index: 2})
	nextEvent(t, events)
	if got := lastCall(getter).Params.Get(query.ParamPage); got != "3" {
		t.Errorf("page after PageChanged = %q, want 3", got)
	}

	c.Dispatch(SortChanged{Sort: query.Sort{Column: "name", Ascending: true, Set: true}})
	nextEvent(t, events)
	call := lastCall(getter)
	if call.Params.Get(query.ParamPage) != "1" || call.Params.Get(query.ParamSortBy) != "a,name" {
		t.Errorf("params after SortChanged = %v", call.Params)
	}

	c.Dispatch(FilterChanged{Filter: "nginx"})
	ev := nextEvent(t, events)
	if !ev.Filtered || !c.IsFiltered() {
		t.Error("filter should mark the list filtered")
	}
	if got := lastCall(getter).Params.Get(query.ParamFilterBy); got != "name,nginx" {
		t.Errorf("filterBy = %q", got)
	}

	// Search outside a search context is not sent and does not count as a
	// filter.
	c.Dispatch(FilterChanged{})
	c.Dispatch(SearchChanged("web"))
	nextEvent(t, events)
	if got := lastCall(getter).Params.Get(query.ParamFilterBy); got != "" {
		t.Errorf("filterBy = %q, want none", got)
	}
	if c.IsFiltered() {
		t.Error("search must not count as a local filter")
	}
	waitFor(t, func() bool { return src.Active() == 1 })
}

func TestNamespaceChangeResolvesEndpoint(t *testing.T) {
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	src := poll.New(getter)
	defer src.Close()
	ns := namespace.NewService("default")

	c, err := New(podsConfig, Deps{Source: src, Paginator: settings.Default(), Namespace: ns})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.RegisterDynamicColumn("namespace", "name", c.MultiNamespace)
	events := start(t, c)
	nextEvent(t, events)
	if c.MultiNamespace() {
		t.Error("single namespace reported as multi")
	}

	c.Dispatch(PageChanged{Index: 1})
	nextEvent(t, events)

	ns.Set(namespace.All)
	nextEvent(t, events)
	call := lastCall(getter)
	if call.Endpoint != "api/v1/pod/" {
		t.Errorf("endpoint = %q, want all-namespaces path", call.Endpoint)
	}
	if call.Params.Get(query.ParamPage) != "1" {
		t.Errorf("namespace change should reset the page, got %q", call.Params.Get(query.ParamPage))
	}
	if !c.MultiNamespace() {
		t.Error("all namespaces should be multi")
	}
	cols := c.Columns()
	if len(cols) != 4 || cols[2] != "namespace" {
		t.Errorf("Columns = %v, want namespace after name", cols)
	}
}

func TestItemsPerPageChangeOnly(t *testing.T) {
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	src := poll.New(getter)
	defer src.Close()
	prefs := settings.Default()

	c, err := New(podsConfig, Deps{Source: src, Paginator: prefs, Settings: prefs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := start(t, c)
	nextEvent(t, events)

	prefs.SetRefreshIntervalSeconds(30)
	select {
	case ev := <-events:
		t.Fatalf("unrelated settings change started a cycle: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if n := getter.CallCount(); n != 1 {
		t.Fatalf("CallCount = %d, want 1", n)
	}

	prefs.SetItemsPerPage(25)
	nextEvent(t, events)
	if got := lastCall(getter).Params.Get(query.ParamItemsPerPage); got != "25" {
		t.Errorf("itemsPerPage = %q, want 25", got)
	}
}

func TestHiddenWhenEmptyAndUnfiltered(t *testing.T) {
	getter := transport.NewMockGetter(transport.WithBody([]byte(emptyBody)))
	src := poll.New(getter)
	defer src.Close()

	cfg := podsConfig
	cfg.Hideable = true
	c, err := New(cfg, Deps{Source: src, Paginator: settings.Default()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := start(t, c)

	ev := nextEvent(t, events)
	if ev.ItemCount != 0 || !c.Hidden() {
		t.Errorf("empty unfiltered hideable list: count=%d hidden=%v", ev.ItemCount, c.Hidden())
	}

	c.Dispatch(FilterChanged{Filter: "nothing-matches"})
	ev = nextEvent(t, events)
	if !ev.Filtered || c.Hidden() {
		t.Errorf("empty filtered list must stay visible: filtered=%v hidden=%v", ev.Filtered, c.Hidden())
	}

	plain := newTestController(t, Config{ID: "nodeList"})
	if plain.Hidden() {
		t.Error("non-hideable list reported hidden")
	}
}

func TestStaleAndFailedTicksLeaveStateUntouched(t *testing.T) {
	c := newTestController(t, podsConfig)
	var emitted int
	c.OnChange(func(ChangeEvent) { emitted++ })

	c.key = "current"
	list := &resource.List{ListMeta: resource.ListMeta{TotalItems: 7}}

	c.handleTick(poll.Tick{Key: "superseded", Result: list})
	c.handleTick(poll.Tick{Key: "current", Err: errors.New("timeout")})
	if emitted != 0 || c.TotalItems() != 0 || !c.Loading() {
		t.Fatalf("state changed: emitted=%d total=%d loading=%v", emitted, c.TotalItems(), c.Loading())
	}

	c.handleTick(poll.Tick{Key: "current", Result: list})
	if emitted != 1 || c.TotalItems() != 7 || c.Loading() {
		t.Errorf("current tick not applied: emitted=%d total=%d loading=%v", emitted, c.TotalItems(), c.Loading())
	}
}

// A hidden page polls once and resumes when it becomes visible again.
func TestHiddenPageFetchesOnce(t *testing.T) {
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	prefs := settings.New(settings.Values{ItemsPerPage: 10, RefreshIntervalSeconds: 5, PageVisible: false})
	src := poll.New(getter, poll.WithInterval(prefs.EffectiveInterval))
	defer src.Close()
	defer prefs.OnUpdate(func(settings.Values) { src.Rearm() })()

	c, err := New(podsConfig, Deps{Source: src, Paginator: prefs, Settings: prefs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := start(t, c)
	nextEvent(t, events)

	time.Sleep(100 * time.Millisecond)
	if n := getter.CallCount(); n != 1 {
		t.Fatalf("CallCount while hidden = %d, want 1", n)
	}

	prefs.SetPageVisible(true)
	nextEvent(t, events)
	if n := getter.CallCount(); n != 2 {
		t.Errorf("CallCount after becoming visible = %d, want 2", n)
	}
}
