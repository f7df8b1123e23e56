package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hospadmin"

var (
	once sync.Once

	policyDecode = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decode_total",
			Help:      "Count of calendar names decoded, by whether a policy block was found.",
		},
		[]string{"result"},
	)

	weeklyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weekly_windows_dropped_total",
			Help:      "Count of weekly window entries dropped during normalization.",
		},
	)

	calendarSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_saves_total",
			Help:      "Count of calendar saves by result.",
		},
		[]string{"result"},
	)

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Count of calendar backend requests by method and status code.",
		},
		[]string{"method", "status"},
	)

	presetSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preset_sync_total",
			Help:      "Count of preset sync runs by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(policyDecode, weeklyDropped, calendarSaves, backendRequests, presetSync, httpRequests)
	})
}

func IncPolicyDecode(parsed bool) {
	result := "defaults"
	if parsed {
		result = "parsed"
	}
	policyDecode.WithLabelValues(result).Inc()
}

func AddWeeklyDropped(n int) {
	if n > 0 {
		weeklyDropped.Add(float64(n))
	}
}

func IncCalendarSave(result string) {
	calendarSaves.WithLabelValues(result).Inc()
}

// IncBackendRequest records a backend call; status 0 means a transport error.
func IncBackendRequest(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	backendRequests.WithLabelValues(method, label).Inc()
}

func IncPresetSync(result string) {
	presetSync.WithLabelValues(result).Inc()
}

func IncHTTPRequest(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
