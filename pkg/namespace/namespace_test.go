package namespace

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		template string
		ns       string
		want     string
	}{
		{"api/v1/pod/:namespace", "default", "api/v1/pod/default"},
		{"api/v1/pod/:namespace", All, "api/v1/pod/"},
		{"api/v1/pod/:namespace", "", "api/v1/pod/"},
		{"api/v1/node", "kube-system", "api/v1/node"},
	}
	for _, tt := range tests {
		if got := Resolve(tt.template, tt.ns); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.template, tt.ns, got, tt.want)
		}
	}
}

func TestIsNamespaced(t *testing.T) {
	if !IsNamespaced("api/v1/pod/:namespace") {
		t.Error("pod endpoint should be namespaced")
	}
	if IsNamespaced("api/v1/node") {
		t.Error("node endpoint should not be namespaced")
	}
}

func TestServiceSetNotifiesOnChangeOnly(t *testing.T) {
	s := NewService("")
	if s.Current() != Default {
		t.Fatalf("Current() = %q, want %q", s.Current(), Default)
	}

	var seen []string
	cancel := s.OnChange(func(ns string) { seen = append(seen, ns) })

	s.Set("kube-system")
	s.Set("kube-system") // no change, no notification
	s.Set("")            // all namespaces

	if len(seen) != 2 || seen[0] != "kube-system" || seen[1] != All {
		t.Errorf("notifications = %v, want [kube-system %s]", seen, All)
	}
	if got := s.Resolve("api/v1/pod/:namespace"); got != "api/v1/pod/" {
		t.Errorf("Resolve = %q", got)
	}

	cancel()
	s.Set("default")
	if len(seen) != 2 {
		t.Errorf("notified after cancel: %v", seen)
	}
}
