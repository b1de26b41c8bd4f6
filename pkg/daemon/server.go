package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/tinyland/lab/listpulse/pkg/listctl"
	"gitlab.com/tinyland/lab/listpulse/pkg/metrics"
	"gitlab.com/tinyland/lab/listpulse/pkg/query"
	"gitlab.com/tinyland/lab/listpulse/pkg/settings"
)

var (
	requestsTotal = metrics.MustRegisterCounterVec("http", "requests_total",
		"Control surface requests by route and status code.", "route", "code")
	requestDuration = metrics.MustRegisterHistogramVec("http", "request_duration_seconds",
		"Control surface request latency.", nil, "route")
)

// Handler returns the HTTP control surface.
//
//	GET  /healthz               health status
//	GET  /overview              overview snapshot
//	GET  /lists                 every list snapshot
//	GET  /lists/{id}            one list snapshot
//	PUT  /lists/{id}/page       {"index": 2}
//	PUT  /lists/{id}/sort       {"column": "name", "ascending": true}
//	PUT  /lists/{id}/filter     {"filter": "web"}
//	PUT  /namespace             {"namespace": "kube-system"}
//	PUT  /search                {"term": "nginx"}
//	PUT  /settings              {"items_per_page": 20, "page_visible": false}
//	POST /refresh               fetch every stream now
//	GET  /streams               polling stream statuses
//	GET  /notifications         recent backend errors
//	GET  /metrics               prometheus metrics
func (d *Daemon) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", d.apiHealth)
	r.Get("/overview", d.apiOverview)
	r.Get("/streams", d.apiStreams)
	r.Get("/notifications", d.apiNotifications)
	r.Put("/namespace", d.apiSetNamespace)
	r.Put("/search", d.apiSearch)
	r.Put("/settings", d.apiSettings)
	r.Post("/refresh", d.apiRefresh)

	r.Route("/lists", func(r chi.Router) {
		r.Get("/", d.apiLists)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", d.apiList)
			r.Put("/page", d.apiPage)
			r.Put("/sort", d.apiSort)
			r.Put("/filter", d.apiFilter)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
		metrics.ObserveSince(requestDuration.WithLabelValues(route), start)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (d *Daemon) list(w http.ResponseWriter, r *http.Request) (*listctl.Controller, bool) {
	id := chi.URLParam(r, "id")
	c, ok := d.List(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown list "+strconv.Quote(id))
	}
	return c, ok
}

func (d *Daemon) apiHealth(w http.ResponseWriter, r *http.Request) {
	h := d.Health()
	code := http.StatusOK
	if !h.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (d *Daemon) apiOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.overview.Snapshot())
}

func (d *Daemon) apiStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.source.Statuses())
}

func (d *Daemon) apiNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.notes.Recent())
}

func (d *Daemon) apiLists(w http.ResponseWriter, r *http.Request) {
	snaps := make([]listctl.Snapshot, 0, len(d.lists))
	for _, c := range d.lists {
		snaps = append(snaps, c.Snapshot())
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (d *Daemon) apiList(w http.ResponseWriter, r *http.Request) {
	c, ok := d.list(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (d *Daemon) apiPage(w http.ResponseWriter, r *http.Request) {
	c, ok := d.list(w, r)
	if !ok {
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	c.Dispatch(listctl.PageChanged{Index: req.Index})
	accepted(w)
}

func (d *Daemon) apiSort(w http.ResponseWriter, r *http.Request) {
	c, ok := d.list(w, r)
	if !ok {
		return
	}
	var req struct {
		Column    string `json:"column"`
		Ascending bool   `json:"ascending"`
	}
	if !decode(w, r, &req) {
		return
	}
	c.Dispatch(listctl.SortChanged{Sort: query.Sort{Column: req.Column, Ascending: req.Ascending, Set: true}})
	accepted(w)
}

func (d *Daemon) apiFilter(w http.ResponseWriter, r *http.Request) {
	c, ok := d.list(w, r)
	if !ok {
		return
	}
	var req struct {
		Filter string `json:"filter"`
	}
	if !decode(w, r, &req) {
		return
	}
	c.Dispatch(listctl.FilterChanged{Filter: req.Filter})
	accepted(w)
}

func (d *Daemon) apiSetNamespace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Namespace string `json:"namespace"`
	}
	if !decode(w, r, &req) {
		return
	}
	d.ns.Set(req.Namespace)
	accepted(w)
}

func (d *Daemon) apiSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term string `json:"term"`
	}
	if !decode(w, r, &req) {
		return
	}
	d.Search(req.Term)
	accepted(w)
}

func (d *Daemon) apiSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemsPerPage           *int  `json:"items_per_page"`
		RefreshIntervalSeconds *int  `json:"refresh_interval_seconds"`
		PageVisible            *bool `json:"page_visible"`
	}
	if !decode(w, r, &req) {
		return
	}
	d.prefs.Update(func(v *settings.Values) {
		if req.ItemsPerPage != nil {
			v.ItemsPerPage = *req.ItemsPerPage
		}
		if req.RefreshIntervalSeconds != nil {
			v.RefreshIntervalSeconds = *req.RefreshIntervalSeconds
		}
		if req.PageVisible != nil {
			v.PageVisible = *req.PageVisible
		}
	})
	writeJSON(w, http.StatusOK, d.prefs.Values())
}

func (d *Daemon) apiRefresh(w http.ResponseWriter, r *http.Request) {
	d.Refresh()
	accepted(w)
}
