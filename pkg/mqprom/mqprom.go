// Package mqprom is a Hook implementation that records connection, write,
// read, and flow-control metrics to Prometheus, built on the Hook seam
// pkg/mqc/hooks.go exposes.
package mqprom

import (
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nclabs/mqgo/pkg/wire"
)

// Metrics implements mqc.ConnectHook, mqc.WriteHook, mqc.ReadHook,
// mqc.DisconnectHook, and mqc.ThrottleHook. Pass *Metrics as an mqc.Hook via
// mqc.WithHooks.
type Metrics struct {
	registry *prometheus.Registry

	connectsTotal    prometheus.Counter
	connectErrors    prometheus.Counter
	connectDuration  prometheus.Histogram
	disconnectsTotal prometheus.Counter

	bytesWritten  prometheus.Counter
	bytesRead     prometheus.Counter
	writesTotal   *prometheus.CounterVec
	readsTotal    *prometheus.CounterVec
	writeWait     *prometheus.HistogramVec
	writeDuration *prometheus.HistogramVec
	readWait      *prometheus.HistogramVec
	readDuration  *prometheus.HistogramVec

	throttleEvents  prometheus.Counter
	throttleSeconds prometheus.Histogram
}

// Opts configures NewMetrics. Namespace and Subsystem follow the usual
// Prometheus naming convention (e.g. Namespace "myapp", Subsystem "mqgo").
type Opts struct {
	Namespace string
	Subsystem string
	Registry  *prometheus.Registry
}

// NewMetrics builds and registers the collector set against opts.Registry
// (a fresh prometheus.NewRegistry() if nil).
func NewMetrics(opts Opts) *Metrics {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "connects_total", Help: "Total broker connect attempts.",
		}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "connect_errors_total", Help: "Total failed broker connect attempts.",
		}),
		connectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "connect_duration_seconds", Help: "Time spent dialing the broker.",
			Buckets: prometheus.DefBuckets,
		}),
		disconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "disconnects_total", Help: "Total broker disconnects.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "bytes_written_total", Help: "Total bytes written to the broker.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "bytes_read_total", Help: "Total bytes read from the broker.",
		}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "writes_total", Help: "Total packet writes by type and outcome.",
		}, []string{"packet_type", "outcome"}),
		readsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "reads_total", Help: "Total packet reads by type and outcome.",
		}, []string{"packet_type", "outcome"}),
		writeWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "write_wait_seconds", Help: "Time a write waited before starting, by packet type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"packet_type"}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "write_duration_seconds", Help: "Time spent writing a packet, by packet type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"packet_type"}),
		readWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "read_wait_seconds", Help: "Time a read waited before starting, by packet type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"packet_type"}),
		readDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "read_duration_seconds", Help: "Time spent reading a packet, by packet type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"packet_type"}),
		throttleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "throttle_events_total", Help: "Total producer flow-control throttle events.",
		}),
		throttleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem,
			Name: "throttle_seconds", Help: "Duration producers spent blocked by flow control.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.connectsTotal, m.connectErrors, m.connectDuration, m.disconnectsTotal,
		m.bytesWritten, m.bytesRead, m.writesTotal, m.readsTotal,
		m.writeWait, m.writeDuration, m.readWait, m.readDuration,
		m.throttleEvents, m.throttleSeconds,
	)
	return m
}

// Registry returns the Prometheus registry metrics were registered against,
// for mounting with promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// OnConnect implements mqc.ConnectHook.
func (m *Metrics) OnConnect(addr string, dialDur time.Duration, conn net.Conn, err error) {
	m.connectsTotal.Inc()
	m.connectDuration.Observe(dialDur.Seconds())
	if err != nil {
		m.connectErrors.Inc()
	}
}

// OnDisconnect implements mqc.DisconnectHook.
func (m *Metrics) OnDisconnect(addr string, conn net.Conn) {
	m.disconnectsTotal.Inc()
}

// OnWrite implements mqc.WriteHook.
func (m *Metrics) OnWrite(packetType wire.PacketType, bytesWritten int, writeWait, timeToWrite time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pt := packetType.String()
	m.bytesWritten.Add(float64(bytesWritten))
	m.writesTotal.WithLabelValues(pt, outcome).Inc()
	m.writeWait.WithLabelValues(pt).Observe(writeWait.Seconds())
	m.writeDuration.WithLabelValues(pt).Observe(timeToWrite.Seconds())
}

// OnRead implements mqc.ReadHook.
func (m *Metrics) OnRead(packetType wire.PacketType, bytesRead int, readWait, timeToRead time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pt := packetType.String()
	m.bytesRead.Add(float64(bytesRead))
	m.readsTotal.WithLabelValues(pt, outcome).Inc()
	m.readWait.WithLabelValues(pt).Observe(readWait.Seconds())
	m.readDuration.WithLabelValues(pt).Observe(timeToRead.Seconds())
}

// OnThrottle implements mqc.ThrottleHook.
func (m *Metrics) OnThrottle(producerID uint64, dur time.Duration) {
	m.throttleEvents.Inc()
	m.throttleSeconds.Observe(dur.Seconds())
}
