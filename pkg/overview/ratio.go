package overview

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
)

// Mode selects which status counts a kind's ratio is made of.
type Mode int

const (
	// ModeDefault covers running, failed and pending.
	ModeDefault Mode = iota
	// ModeSuspendable covers running and suspended.
	ModeSuspendable
	// ModeCompletable covers running, failed, pending and succeeded.
	ModeCompletable
)

// ratioModes is the closed set of list ids that carry a resource ratio.
var ratioModes = map[string]Mode{
	"cronJobList":               ModeSuspendable,
	"daemonSetList":             ModeDefault,
	"deploymentList":            ModeDefault,
	"jobList":                   ModeCompletable,
	"podList":                   ModeCompletable,
	"replicaSetList":            ModeDefault,
	"replicationControllerList": ModeDefault,
	"statefulSetList":           ModeDefault,
}

// RatioModeOf returns the ratio mode for listID, or false if the list does
// not contribute a ratio.
func RatioModeOf(listID string) (Mode, bool) {
	m, ok := ratioModes[listID]
	return m, ok
}

// RatioItem is one slice of a ratio chart, e.g. {"Running: 3", 75}.
type RatioItem struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

const suspended = "Suspended"

// Ratio computes the percentage breakdown of st over total. A zero total
// yields no items.
func Ratio(mode Mode, st resource.Status, total int) []RatioItem {
	if total <= 0 {
		return nil
	}
	item := func(name string, n int64) RatioItem {
		return RatioItem{
			Name:  fmt.Sprintf("%s: %d", name, n),
			Value: float64(n) / float64(total) * 100,
		}
	}

	switch mode {
	case ModeSuspendable:
		return []RatioItem{
			item(string(corev1.PodRunning), st.Running),
			item(suspended, st.Suspended),
		}
	case ModeCompletable:
		return []RatioItem{
			item(string(corev1.PodRunning), st.Running),
			item(string(corev1.PodFailed), st.Failed),
			item(string(corev1.PodPending), st.Pending),
			item(string(corev1.PodSucceeded), st.Succeeded),
		}
	default:
		return []RatioItem{
			item(string(corev1.PodRunning), st.Running),
			item(string(corev1.PodFailed), st.Failed),
			item(string(corev1.PodPending), st.Pending),
		}
	}
}
