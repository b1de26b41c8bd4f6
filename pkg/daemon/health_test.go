package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.com/tinyland/lab/listpulse/pkg/poll"
)

func TestHealthFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", healthFileName)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := &HealthStatus{
		Healthy:   true,
		PID:       42,
		Version:   "1.2.3",
		StartedAt: started,
		UpdatedAt: started.Add(time.Minute),
		Uptime:    "1m0s",
		Namespace: "default",
		Streams: []poll.StreamStatus{
			{Key: "api/v1/pod/default?itemsPerPage=10&page=1&sortBy=d,creationTimestamp#pods", Endpoint: "api/v1/pod/default", Subscribers: 1, Healthy: true, RunCount: 3},
		},
		Lists:         map[string]int{"podList": 4},
		Notifications: 1,
	}

	if err := WriteHealthFile(path, want); err != nil {
		t.Fatalf("WriteHealthFile: %v", err)
	}
	got, err := ReadHealthFile(path)
	if err != nil {
		t.Fatalf("ReadHealthFile: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestReadHealthFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadHealthFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHealthFile(bad); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestHealthy(t *testing.T) {
	tests := []struct {
		name    string
		streams []poll.StreamStatus
		want    bool
	}{
		{"no streams", nil, true},
		{"all healthy", []poll.StreamStatus{{Healthy: true}, {Healthy: true}}, true},
		{"one failing", []poll.StreamStatus{{Healthy: true}, {Healthy: false}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := healthy(tt.streams); got != tt.want {
				t.Errorf("healthy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAcquirePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", pidFileName)

	if err := AcquirePID(path); err != nil {
		t.Fatalf("AcquirePID: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID = %d, want %d", pid, os.Getpid())
	}

	// Re-acquiring from the owning process succeeds.
	if err := AcquirePID(path); err != nil {
		t.Errorf("re-acquire: %v", err)
	}

	if err := ReleasePID(path); err != nil {
		t.Fatalf("ReleasePID: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("PID file still present after release: %v", err)
	}
	if err := ReleasePID(path); err != nil {
		t.Errorf("releasing a missing file: %v", err)
	}
}

func TestAcquirePIDHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFileName)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AcquirePID(path); err == nil {
		t.Error("expected error while the parent process holds the file")
	}
}

func TestAcquirePIDReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), pidFileName)
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AcquirePID(path); err != nil {
		t.Fatalf("AcquirePID over unreadable file: %v", err)
	}
	if pid, _ := ReadPID(path); pid != os.Getpid() {
		t.Errorf("ReadPID = %d, want %d", pid, os.Getpid())
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("current process reported dead")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive PIDs reported alive")
	}
}
