package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SubmissionEvent represents a submission lifecycle event
type SubmissionEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	SubmissionID string                 `json:"submission_id"`
	State        string                 `json:"state,omitempty"`
	ReportID     string                 `json:"report_id,omitempty"`
	Duration     time.Duration          `json:"duration,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of submission event
type EventType string

const (
	// SubmissionAccepted when an image is accepted and detection begins
	SubmissionAccepted EventType = "submission_accepted"
	// StateChanged on every pipeline transition
	StateChanged EventType = "submission_state_changed"
	// SubmissionSaved when the report is persisted
	SubmissionSaved EventType = "submission_saved"
	// SubmissionRejected for the recoverable outcomes: no hazards or no location
	SubmissionRejected EventType = "submission_rejected"
	// SubmissionFailed when an external call fails
	SubmissionFailed EventType = "submission_failed"
	// CompensationCompleted when an orphaned upload was deleted
	CompensationCompleted EventType = "compensation_completed"
	// CompensationFailed when deleting an orphaned upload failed
	CompensationFailed EventType = "compensation_failed"
	// SubmissionReset when scratch state is released
	SubmissionReset EventType = "submission_reset"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SubmissionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SubmissionEvent)
}

// LoggingObserver logs submission events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles submission events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event SubmissionEvent) {
	fields := logrus.Fields{
		"event_type":    event.EventType,
		"submission_id": event.SubmissionID,
	}
	if event.State != "" {
		fields["state"] = event.State
	}
	if event.ReportID != "" {
		fields["report_id"] = event.ReportID
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case SubmissionAccepted:
		entry.Info("Submission accepted")
	case StateChanged:
		entry.Debug("Submission state changed")
	case SubmissionSaved:
		entry.Info("Hazard report saved")
	case SubmissionRejected:
		entry.Warn("Submission rejected")
	case SubmissionFailed:
		entry.Error("Submission failed")
	case CompensationCompleted:
		entry.Info("Orphaned upload deleted")
	case CompensationFailed:
		entry.Error("Failed to delete orphaned upload")
	case SubmissionReset:
		entry.Debug("Submission reset")
	default:
		entry.Info("Submission event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from submission events
type MetricsObserver struct {
	mu                   sync.RWMutex
	accepted             int64
	saved                int64
	rejected             int64
	failed               int64
	compensations        int64
	compensationFailures int64
	totalSaveTime        time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles submission events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event SubmissionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case SubmissionAccepted:
		o.accepted++
	case SubmissionSaved:
		o.saved++
		o.totalSaveTime += event.Duration
	case SubmissionRejected:
		o.rejected++
	case SubmissionFailed:
		o.failed++
	case CompensationCompleted:
		o.compensations++
	case CompensationFailed:
		o.compensations++
		o.compensationFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgSaveTime := time.Duration(0)
	if o.saved > 0 {
		avgSaveTime = o.totalSaveTime / time.Duration(o.saved)
	}

	return map[string]interface{}{
		"submissions_accepted":  o.accepted,
		"reports_saved":         o.saved,
		"submissions_rejected":  o.rejected,
		"submissions_failed":    o.failed,
		"compensations":         o.compensations,
		"compensation_failures": o.compensationFailures,
		"avg_save_time_ms":      avgSaveTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription order on
// the caller's goroutine, so each observer sees a submission's events in order.
// Observers must not block.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SubmissionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event SubmissionEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
