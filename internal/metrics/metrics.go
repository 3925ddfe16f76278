package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codehive",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codehive",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codehive",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codehive",
		Name:      "active_rooms",
		Help:      "Rooms currently held in the session registry",
	})

	connectedParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codehive",
		Name:      "connected_participants",
		Help:      "Participants currently joined to a room",
	})

	relayedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codehive",
		Name:      "relayed_events_total",
		Help:      "Inbound collaboration events processed, by type",
	}, []string{"type"})

	remoteParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codehive",
		Name:      "remote_participants",
		Help:      "Participants joined on other instances, from bridge presence events",
	})
)

// Domain instrument helpers, called from the session registry and the
// connection handler.

func RoomCreated() { activeRooms.Inc() }

func RoomClosed() { activeRooms.Dec() }

func ParticipantJoined() { connectedParticipants.Inc() }

func ParticipantLeft() { connectedParticipants.Dec() }

func RelayedEvent(kind string) { relayedEvents.WithLabelValues(kind).Inc() }

func RemoteParticipantJoined() { remoteParticipants.Inc() }

func RemoteParticipantLeft() { remoteParticipants.Dec() }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack must be forwarded or the WebSocket upgrade breaks behind this
// middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
