package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector using Prometheus metrics.
type PrometheusCollector struct {
	foldersOpenTotal  *prometheus.CounterVec
	foldersCloseTotal *prometheus.CounterVec

	cacheHitsTotal    prometheus.Counter
	cacheMissesTotal  prometheus.Counter
	cacheExpiredTotal prometheus.Counter

	smtpConnectionsTotal  prometheus.Counter
	smtpConnectionsActive prometheus.Gauge
	smtpTLSTotal          prometheus.Counter
	smtpAuthAttemptsTotal *prometheus.CounterVec
	smtpCommandsTotal     *prometheus.CounterVec
	smtpMessageSizeBytes  prometheus.Histogram
}

// NewPrometheusCollector creates a PrometheusCollector with all metrics
// registered against reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		foldersOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprucemail_folders_opened_total",
			Help: "Total number of folders opened, by store kind.",
		}, []string{"kind"}),
		foldersCloseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprucemail_folders_closed_total",
			Help: "Total number of folders closed, by store kind.",
		}, []string{"kind"}),

		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprucemail_cache_hits_total",
			Help: "Total number of stream cache Get calls that found a committed key.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprucemail_cache_misses_total",
			Help: "Total number of stream cache Get calls that found no committed key.",
		}),
		cacheExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprucemail_cache_expired_total",
			Help: "Total number of stream cache entries removed by Expire/ExpireAll.",
		}),

		smtpConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprucemail_smtp_connections_total",
			Help: "Total number of SMTP transport connections opened.",
		}),
		smtpConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sprucemail_smtp_connections_active",
			Help: "Number of currently open SMTP transport connections.",
		}),
		smtpTLSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprucemail_smtp_tls_established_total",
			Help: "Total number of SMTP connections that completed a STARTTLS upgrade.",
		}),
		smtpAuthAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprucemail_smtp_auth_attempts_total",
			Help: "Total number of SMTP AUTH attempts, by mechanism and result.",
		}, []string{"mechanism", "result"}),
		smtpCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprucemail_smtp_commands_total",
			Help: "Total number of SMTP commands sent, by verb.",
		}, []string{"command"}),
		smtpMessageSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sprucemail_smtp_message_size_bytes",
			Help:    "Size of messages sent over the SMTP transport, in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400},
		}),
	}

	reg.MustRegister(
		c.foldersOpenTotal,
		c.foldersCloseTotal,
		c.cacheHitsTotal,
		c.cacheMissesTotal,
		c.cacheExpiredTotal,
		c.smtpConnectionsTotal,
		c.smtpConnectionsActive,
		c.smtpTLSTotal,
		c.smtpAuthAttemptsTotal,
		c.smtpCommandsTotal,
		c.smtpMessageSizeBytes,
	)

	return c
}

// FolderOpened increments the folder-opened counter for kind.
func (c *PrometheusCollector) FolderOpened(kind string) {
	c.foldersOpenTotal.WithLabelValues(kind).Inc()
}

// FolderClosed increments the folder-closed counter for kind.
func (c *PrometheusCollector) FolderClosed(kind string) {
	c.foldersCloseTotal.WithLabelValues(kind).Inc()
}

// CacheHit increments the cache hit counter.
func (c *PrometheusCollector) CacheHit() { c.cacheHitsTotal.Inc() }

// CacheMiss increments the cache miss counter.
func (c *PrometheusCollector) CacheMiss() { c.cacheMissesTotal.Inc() }

// CacheExpired adds count to the cache expired counter.
func (c *PrometheusCollector) CacheExpired(count int) {
	c.cacheExpiredTotal.Add(float64(count))
}

// SMTPConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) SMTPConnectionOpened() {
	c.smtpConnectionsTotal.Inc()
	c.smtpConnectionsActive.Inc()
}

// SMTPConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) SMTPConnectionClosed() {
	c.smtpConnectionsActive.Dec()
}

// SMTPTLSEstablished increments the TLS upgrade counter.
func (c *PrometheusCollector) SMTPTLSEstablished() { c.smtpTLSTotal.Inc() }

// SMTPAuthAttempt increments the auth attempts counter.
func (c *PrometheusCollector) SMTPAuthAttempt(mechanism string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.smtpAuthAttemptsTotal.WithLabelValues(mechanism, result).Inc()
}

// SMTPCommandSent increments the command counter.
func (c *PrometheusCollector) SMTPCommandSent(command string) {
	c.smtpCommandsTotal.WithLabelValues(command).Inc()
}

// SMTPMessageSent observes the size of a sent message.
func (c *PrometheusCollector) SMTPMessageSent(sizeBytes int64) {
	c.smtpMessageSizeBytes.Observe(float64(sizeBytes))
}
