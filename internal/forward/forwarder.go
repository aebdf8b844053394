// Package forward relays derived payloads to the CRM and analytics sinks on
// a separate execution path from the request. Primary ingestion never waits
// on a sink and never fails because of one.
package forward

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/checoluis2212/backend-b2b/internal/identity"
	"github.com/checoluis2212/backend-b2b/internal/models"
	"github.com/checoluis2212/backend-b2b/internal/sinks"
)

// CRMSink is the CRM-channel collaborator contract.
type CRMSink interface {
	SubmitForm(ctx context.Context, portalID, formID string, sub sinks.FormSubmission) error
}

// AnalyticsSink is the analytics-channel collaborator contract.
type AnalyticsSink interface {
	SendEvent(ctx context.Context, clientID, eventName string, utm models.UTM, params map[string]any) error
}

// Config bounds the forwarder's resource usage and scopes its channels.
// CRMEnabled false covers both the explicit kill-switch and missing sink
// credentials; either way the channel is skipped silently after a single
// startup log line.
type Config struct {
	CRMEnabled       bool
	AnalyticsEnabled bool
	CRMPortalID      string
	CRMFormID        string
	QueueDepth       int
	Workers          int
	CallTimeout      time.Duration
	RetryOnce        bool
}

func (c Config) withDefaults() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 12 * time.Second
	}
	return c
}

type crmJob struct {
	correlationID string
	key           string
	kind          models.EventKind
	submission    sinks.FormSubmission
}

type analyticsJob struct {
	correlationID string
	key           string
	kind          models.EventKind
	clientID      string
	eventName     string
	utm           models.UTM
	params        map[string]any
}

// Forwarder owns one bounded queue and worker pool per sink. When a queue is
// full the task is dropped with a warning rather than queued indefinitely.
type Forwarder struct {
	cfg       Config
	crm       CRMSink
	analytics AnalyticsSink
	metrics   *Metrics
	log       *zap.Logger

	crmJobs       chan crmJob
	analyticsJobs chan analyticsJob
	wg            sync.WaitGroup

	// mu serializes enqueues against Close so a send never races the
	// channel close. Dispatch holds the read side, Close the write side.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New starts the worker pools for the enabled channels.
func New(cfg Config, crm CRMSink, analytics AnalyticsSink, metrics *Metrics, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if crm == nil {
		cfg.CRMEnabled = false
	}
	if analytics == nil {
		cfg.AnalyticsEnabled = false
	}

	f := &Forwarder{
		cfg:       cfg,
		crm:       crm,
		analytics: analytics,
		metrics:   metrics,
		log:       log,
	}

	if cfg.CRMEnabled {
		f.crmJobs = make(chan crmJob, cfg.QueueDepth)
		for i := 0; i < cfg.Workers; i++ {
			f.wg.Add(1)
			go f.crmWorker()
		}
	} else {
		log.Info("crm forwarding disabled")
	}

	if cfg.AnalyticsEnabled {
		f.analyticsJobs = make(chan analyticsJob, cfg.QueueDepth)
		for i := 0; i < cfg.Workers; i++ {
			f.wg.Add(1)
			go f.analyticsWorker()
		}
	} else {
		log.Info("analytics forwarding disabled")
	}

	return f
}

// Dispatch enqueues the forwarding work derived from one merged event.
// Fire-and-forget: the caller has already responded by the time anything
// here runs, and no outcome propagates back.
func (f *Forwarder) Dispatch(key identity.Key, ev *models.NormalizedEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	correlationID := uuid.New().String()

	if f.cfg.CRMEnabled && ev.Kind == models.EventFormSubmit {
		job := crmJob{
			correlationID: correlationID,
			key:           key.String(),
			kind:          ev.Kind,
			submission:    crmSubmission(ev),
		}
		select {
		case f.crmJobs <- job:
		default:
			f.drop("crm", key.String(), ev.Kind)
		}
	}

	// The collector needs a stable client id; events without a visitorId
	// are not representable there.
	if f.cfg.AnalyticsEnabled && ev.VisitorID != "" {
		name := analyticsEventName(ev.Kind)
		if name == "" {
			return
		}
		job := analyticsJob{
			correlationID: correlationID,
			key:           key.String(),
			kind:          ev.Kind,
			clientID:      ev.VisitorID,
			eventName:     name,
			utm:           ev.Context.UTM,
			params:        analyticsParams(ev),
		}
		select {
		case f.analyticsJobs <- job:
		default:
			f.drop("analytics", key.String(), ev.Kind)
		}
	}
}

// Close stops accepting work and waits for in-flight deliveries. Used at
// shutdown and by tests to observe completion.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		if f.crmJobs != nil {
			close(f.crmJobs)
		}
		if f.analyticsJobs != nil {
			close(f.analyticsJobs)
		}
		f.mu.Unlock()

		f.wg.Wait()
	})
}

func (f *Forwarder) crmWorker() {
	defer f.wg.Done()
	for job := range f.crmJobs {
		f.deliver("crm", job.key, job.kind, job.correlationID, func(ctx context.Context) error {
			return f.crm.SubmitForm(ctx, f.cfg.CRMPortalID, f.cfg.CRMFormID, job.submission)
		})
	}
}

func (f *Forwarder) analyticsWorker() {
	defer f.wg.Done()
	for job := range f.analyticsJobs {
		f.deliver("analytics", job.key, job.kind, job.correlationID, func(ctx context.Context) error {
			return f.analytics.SendEvent(ctx, job.clientID, job.eventName, job.utm, job.params)
		})
	}
}

// deliver runs one sink call with a bounded timeout, retried at most once.
// Terminal failures are logged with enough context for manual replay.
func (f *Forwarder) deliver(sink, key string, kind models.EventKind, correlationID string, call func(context.Context) error) {
	attempts := 1
	if f.cfg.RetryOnce {
		attempts = 2
	}

	var err error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.CallTimeout)
		err = call(ctx)
		cancel()
		if err == nil {
			if f.metrics != nil {
				f.metrics.dispatched.WithLabelValues(sink).Inc()
			}
			return
		}
	}

	if f.metrics != nil {
		f.metrics.failures.WithLabelValues(sink).Inc()
	}
	fields := []zap.Field{
		zap.String("sink", sink),
		zap.String("key", key),
		zap.String("event_kind", string(kind)),
		zap.String("correlation_id", correlationID),
		zap.Error(err),
	}
	var sinkErr *sinks.SinkError
	if errors.As(err, &sinkErr) {
		fields = append(fields,
			zap.Int("status", sinkErr.Status),
			zap.String("body", sinkErr.Body))
	}
	f.log.Warn("sink forward failed", fields...)
}

func (f *Forwarder) drop(sink, key string, kind models.EventKind) {
	if f.metrics != nil {
		f.metrics.dropped.WithLabelValues(sink).Inc()
	}
	f.log.Warn("sink queue full, task dropped",
		zap.String("sink", sink),
		zap.String("key", key),
		zap.String("event_kind", string(kind)))
}
