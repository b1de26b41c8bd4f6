package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"gitlab.com/tinyland/lab/listpulse/pkg/poll"
)

// HealthStatus is what the daemon reports about itself, both on /healthz and
// in the health file next to the cache.
type HealthStatus struct {
	Healthy       bool                `json:"healthy"`
	PID           int                 `json:"pid"`
	Version       string              `json:"version,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Uptime        string              `json:"uptime"`
	Namespace     string              `json:"namespace"`
	Streams       []poll.StreamStatus `json:"streams"`
	Lists         map[string]int      `json:"lists"`
	Notifications int                 `json:"notifications"`
}

// WriteHealthFile writes the health status as indented JSON to path. Readers
// never observe a partial file.
func WriteHealthFile(path string, status *HealthStatus) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create health directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write health file: %w", err)
	}
	return nil
}

// ReadHealthFile reads and parses the health status JSON from path.
func ReadHealthFile(path string) (*HealthStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read health file: %w", err)
	}

	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal health file: %w", err)
	}
	return &status, nil
}

// healthy reports whether every stream's last fetch succeeded. A daemon with
// no streams yet is healthy.
func healthy(streams []poll.StreamStatus) bool {
	for _, s := range streams {
		if !s.Healthy {
			return false
		}
	}
	return true
}
