package status

import (
	corev1 "k8s.io/api/core/v1"

	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
)

func podPhase(phase corev1.PodPhase) Predicate {
	return func(r resource.Resource) bool {
		return r.String("status") == string(phase)
	}
}

// RegisterPodBindings registers the bindings pod lists use. Pod rows carry
// their phase as a plain "status" string and a "warnings" array.
func RegisterPodBindings(r *Registry) {
	r.Register(ClassError, func(res resource.Resource) bool {
		return res.String("status") == string(corev1.PodFailed) || res.Len("warnings") > 0
	}, "Failed")
	r.Register(ClassWarning, podPhase(corev1.PodPending), "Pending")
	r.Register(ClassSuccess, podPhase(corev1.PodRunning), "Running")
	r.Register(ClassSuccess, podPhase(corev1.PodSucceeded), "Completed", WithIcon("check_circle_outline"))
	r.Register(ClassMuted, podPhase(corev1.PodUnknown), "Unknown")
}

// RegisterWorkloadBindings registers the bindings for controllers that
// report a "pods" info block (deployments, daemon sets, replica sets,
// stateful sets, replication controllers, jobs).
func RegisterWorkloadBindings(r *Registry) {
	r.Register(ClassError, func(res resource.Resource) bool {
		return res.Int("pods", "failed") > 0 || res.Len("pods", "warnings") > 0
	}, "Failed")
	r.Register(ClassWarning, func(res resource.Resource) bool {
		return res.Int("pods", "pending") > 0
	}, "Pending")
	r.Register(ClassSuccess, func(res resource.Resource) bool {
		return res.Has("pods") && res.Int("pods", "running") == res.Int("pods", "desired")
	}, "Running")
	r.Register(ClassWarning, func(res resource.Resource) bool {
		return res.Int("pods", "running") < res.Int("pods", "desired")
	}, "Scaling")
}
