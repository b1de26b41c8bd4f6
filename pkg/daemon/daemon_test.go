package daemon

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/listpulse/pkg/config"
	"gitlab.com/tinyland/lab/listpulse/pkg/listctl"
	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
	"gitlab.com/tinyland/lab/listpulse/pkg/status"
	"gitlab.com/tinyland/lab/listpulse/pkg/transport"
)

const podsBody = `{
  "listMeta": {"totalItems": 1},
  "pods": [{"objectMeta": {"name": "web", "namespace": "default"}, "status": "Running"}],
  "errors": []
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.General.CacheDir = t.TempDir()
	cfg.General.Preset = config.PresetMinimal
	cfg.Daemon.Listen = ""
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, getter transport.Getter) *Daemon {
	t.Helper()
	d, err := New(Options{Config: cfg, Getter: getter, Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// startDaemon runs d in the background. The returned function stops it and
// waits for Run to return.
func startDaemon(t *testing.T, d *Daemon) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	}
	t.Cleanup(stop)
	return stop
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func counted(d *Daemon, id string, want int) func() bool {
	return func() bool {
		n, ok := d.Overview().Count(id)
		return ok && n == want
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Mode = "ftp"
	if _, err := New(Options{Config: cfg}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New error = %v, want ErrInvalid", err)
	}
}

func TestNewGetter(t *testing.T) {
	g, err := NewGetter(config.BackendConfig{Mode: config.BackendHTTP, BaseURL: "http://dashboard:8000"})
	if err != nil {
		t.Fatalf("NewGetter: %v", err)
	}
	hg, ok := g.(*transport.HTTPGetter)
	if !ok {
		t.Fatalf("NewGetter returned %T, want *transport.HTTPGetter", g)
	}
	if hg.BaseURL() != "http://dashboard:8000" {
		t.Errorf("BaseURL = %q", hg.BaseURL())
	}

	if _, err := NewGetter(config.BackendConfig{Mode: "grpc"}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("unknown mode error = %v, want ErrInvalid", err)
	}
}

func TestNewWiresListsFromPreset(t *testing.T) {
	cfg := testConfig(t)
	cfg.General.Preset = config.PresetFull
	d := newTestDaemon(t, cfg, transport.NewMockGetter())

	want := config.ListPreset(config.PresetFull)
	lists := d.Lists()
	if len(lists) != len(want) {
		t.Fatalf("got %d lists, want %d", len(lists), len(want))
	}
	for i, lc := range want {
		if lists[i].ID() != lc.ID || lists[i].GroupID() != lc.Group {
			t.Errorf("lists[%d] = %s/%s, want %s/%s", i, lists[i].GroupID(), lists[i].ID(), lc.Group, lc.ID)
		}
	}

	pods, ok := d.List("podList")
	if !ok {
		t.Fatal("podList not registered")
	}
	cols := pods.Columns()
	if !slices.Contains(cols, listctl.ActionColumnPrefix+"menu") {
		t.Errorf("Columns() = %v, want the menu action column", cols)
	}
	if slices.Contains(cols, "namespace") {
		t.Errorf("Columns() = %v, namespace column shown for a single namespace", cols)
	}
	running := resource.Resource{"status": "Running"}
	if got := pods.StatusOf(running); got.IconClass != status.ClassSuccess {
		t.Errorf("StatusOf(Running) = %+v, want success class", got)
	}

	if _, ok := d.List("nope"); ok {
		t.Error("List found an unknown id")
	}
}

func TestDynamicColumnFollowsNamespace(t *testing.T) {
	cfg := testConfig(t)
	cfg.General.Namespace = "_all"
	d := newTestDaemon(t, cfg, transport.NewMockGetter(transport.WithBody([]byte(podsBody))))

	pods, _ := d.List("podList")
	cols := pods.Columns()
	i := slices.Index(cols, "name")
	if i < 0 || i+1 >= len(cols) || cols[i+1] != "namespace" {
		t.Errorf("Columns() = %v, want namespace right after name", cols)
	}
}

func TestRunPersistsOverviewAndHealth(t *testing.T) {
	cfg := testConfig(t)
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	d := newTestDaemon(t, cfg, getter)
	stop := startDaemon(t, d)

	waitFor(t, counted(d, "podList", 1))
	waitFor(t, func() bool {
		_, err := ReadPID(PIDPath(cfg))
		return err == nil
	})
	if call := getter.Calls()[0]; call.Endpoint != "api/v1/pod/default" {
		t.Errorf("first call endpoint = %q, want api/v1/pod/default", call.Endpoint)
	}

	stop()

	snap, _, ok := ReadOverview(cfg)
	if !ok {
		t.Fatal("overview not persisted")
	}
	if snap.Lists["podList"] != 1 {
		t.Errorf("persisted Lists = %v, want podList=1", snap.Lists)
	}
	if snap.Cluster != "http://localhost:8000" {
		t.Errorf("Cluster = %q", snap.Cluster)
	}

	h, err := ReadHealthFile(HealthPath(cfg))
	if err != nil {
		t.Fatalf("ReadHealthFile: %v", err)
	}
	if h.PID != os.Getpid() || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}
	if _, err := os.Stat(PIDPath(cfg)); !os.IsNotExist(err) {
		t.Errorf("PID file left behind: %v", err)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	pidPath := PIDPath(cfg)
	if err := os.MkdirAll(cfg.General.CacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pidPath, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if os.Getpid() == 1 || !IsProcessAlive(1) {
		t.Skip("PID 1 is this process or not visible")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d := newTestDaemon(t, cfg, transport.NewMockGetter(transport.WithBody([]byte(podsBody))))
	if err := d.Run(ctx); err == nil {
		t.Error("Run succeeded while another daemon holds the PID file")
	}
}

func TestRunOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.General.Preset = config.PresetWorkloads
	d := newTestDaemon(t, cfg, transport.NewMockGetter(transport.WithBody([]byte(podsBody))))

	snap, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if snap.Lists["podList"] != 1 {
		t.Errorf("Lists = %v, want podList=1", snap.Lists)
	}
	if len(snap.Lists) != len(config.ListPreset(config.PresetWorkloads)) {
		t.Errorf("got %d lists, want every workload list", len(snap.Lists))
	}

	cached, _, ok := ReadOverview(cfg)
	if !ok || cached.Lists["podList"] != 1 {
		t.Errorf("cached overview = %+v, ok=%v", cached, ok)
	}
}

func TestRunOnceReportsIncompleteLists(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg, transport.NewMockGetter(transport.WithError(errors.New("connection refused"))))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := d.RunOnce(ctx)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("RunOnce error = %v, want ErrIncomplete", err)
	}
}

func TestVisibilityChangeRearmsStreams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.RefreshInterval = config.Duration{Duration: time.Hour}
	getter := transport.NewMockGetter(transport.WithBody([]byte(podsBody)))
	d := newTestDaemon(t, cfg, getter)
	startDaemon(t, d)

	waitFor(t, counted(d, "podList", 1))
	before := getter.CallCount()

	d.Settings().SetPageVisible(false)
	waitFor(t, func() bool { return getter.CallCount() > before })

	// Same effective interval: no extra fetch.
	after := getter.CallCount()
	d.Settings().SetRefreshIntervalSeconds(7200)
	time.Sleep(50 * time.Millisecond)
	if got := getter.CallCount(); got != after {
		t.Errorf("CallCount = %d after a change hidden pages ignore, want %d", got, after)
	}
}
