package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters for HTTP requests, auth
// boundary decisions, and gallery activity. It coordinates concurrent
// writers via a RWMutex and renders Prometheus text exposition on demand.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authDecisions   map[string]uint64
	galleryEvents   map[string]uint64
	publishFailures map[string]uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authDecisions:   make(map[string]uint64),
		galleryEvents:   make(map[string]uint64),
		publishFailures: make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation
// pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAuthDecision records an auth boundary outcome: "authenticated",
// "anonymous", "rejected", or "forbidden".
func (r *Recorder) ObserveAuthDecision(decision string) {
	normalized := normalizeName(decision)
	r.mu.Lock()
	r.authDecisions[normalized]++
	r.mu.Unlock()
}

// ObserveGalleryEvent records a gallery mutation by type (e.g. "upload",
// "like_added", "comment_created").
func (r *Recorder) ObserveGalleryEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.galleryEvents[normalized]++
	r.mu.Unlock()
}

// ObservePublishFailure records a failed event publish keyed by stream name.
func (r *Recorder) ObservePublishFailure(stream string) {
	normalized := normalizeName(stream)
	r.mu.Lock()
	r.publishFailures[normalized]++
	r.mu.Unlock()
}

// AuthDecisionCounts returns a copy of the auth decision counters for
// testing and reporting purposes.
func (r *Recorder) AuthDecisionCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.authDecisions))
	for k, v := range r.authDecisions {
		counts[k] = v
	}
	return counts
}

// GalleryEventCounts returns a copy of the gallery event counters.
func (r *Recorder) GalleryEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.galleryEvents))
	for k, v := range r.galleryEvents {
		counts[k] = v
	}
	return counts
}

// Reset clears all counters on the recorder. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authDecisions = make(map[string]uint64)
	r.galleryEvents = make(map[string]uint64)
	r.publishFailures = make(map[string]uint64)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus
// text exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authDecisions := sortedKeys(r.authDecisions)
	galleryEvents := sortedKeys(r.galleryEvents)
	publishFailures := sortedKeys(r.publishFailures)

	fmt.Fprintln(w, "# HELP imagehub_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE imagehub_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "imagehub_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP imagehub_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE imagehub_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "imagehub_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP imagehub_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE imagehub_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "imagehub_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP imagehub_auth_decisions_total Auth boundary outcomes by decision")
	fmt.Fprintln(w, "# TYPE imagehub_auth_decisions_total counter")
	for _, decision := range authDecisions {
		fmt.Fprintf(w, "imagehub_auth_decisions_total{decision=\"%s\"} %d\n", decision, r.authDecisions[decision])
	}

	fmt.Fprintln(w, "# HELP imagehub_gallery_events_total Gallery mutations by type")
	fmt.Fprintln(w, "# TYPE imagehub_gallery_events_total counter")
	for _, event := range galleryEvents {
		fmt.Fprintf(w, "imagehub_gallery_events_total{event=\"%s\"} %d\n", event, r.galleryEvents[event])
	}

	fmt.Fprintln(w, "# HELP imagehub_event_publish_failures_total Failed event stream publishes by stream")
	fmt.Fprintln(w, "# TYPE imagehub_event_publish_failures_total counter")
	for _, stream := range publishFailures {
		fmt.Fprintf(w, "imagehub_event_publish_failures_total{stream=\"%s\"} %d\n", stream, r.publishFailures[stream])
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses identifier-like path segments so per-record IDs do
// not explode label cardinality.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveAuthDecision records an auth outcome on the default recorder.
func ObserveAuthDecision(decision string) {
	defaultRecorder.ObserveAuthDecision(decision)
}

// ObserveGalleryEvent records a gallery mutation on the default recorder.
func ObserveGalleryEvent(event string) {
	defaultRecorder.ObserveGalleryEvent(event)
}

// ObservePublishFailure records a failed publish on the default recorder.
func ObservePublishFailure(stream string) {
	defaultRecorder.ObservePublishFailure(stream)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
