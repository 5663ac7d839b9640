// Package submission runs a hazard photo from detection to a persisted report:
// detect, annotate, resolve location, upload, allocate an id and persist. Once
// the artifact is uploaded, any later failure deletes it again.
package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"hazard-reporter/internal/annotate"
	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/geo"
	"hazard-reporter/internal/inference"
	"hazard-reporter/internal/logger"
	"hazard-reporter/internal/observer"
	"hazard-reporter/internal/storage"
	"hazard-reporter/pkg/models"

	"github.com/google/uuid"
)

// LocationResolver finds the embedded position of an image
type LocationResolver interface {
	Resolve(ref geo.ImageRef) *models.GeoCoordinate
}

// IDAllocator hands out report ids. It never fails; it falls back internally.
type IDAllocator interface {
	Next(ctx context.Context) string
}

// ReportWriter persists reports
type ReportWriter interface {
	Save(ctx context.Context, id string, report *models.Report) error
}

// Dependencies are the collaborators the pipeline drives
type Dependencies struct {
	Detector  inference.Detector
	Renderer  annotate.Renderer
	Resolver  LocationResolver
	Geocoder  geo.ReverseGeocoder
	Store     storage.ArtifactStore
	Allocator IDAllocator
	Reports   ReportWriter
	Events    observer.Subject
}

// Options tunes pipeline timing
type Options struct {
	// GracePeriod is how long a saved submission is kept before it resets.
	// A negative value disables the automatic reset.
	GracePeriod time.Duration
	// CompensationTimeout bounds the delete of an orphaned upload
	CompensationTimeout time.Duration
	// Clock stamps report dates
	Clock func() time.Time
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		GracePeriod:         5 * time.Second,
		CompensationTimeout: 15 * time.Second,
		Clock:               time.Now,
	}
}

// Pipeline orchestrates submissions. It is safe for concurrent use; steps
// within one submission run strictly in order.
type Pipeline struct {
	deps Dependencies
	opts Options
}

// NewPipeline creates a pipeline. Events may be nil.
func NewPipeline(deps Dependencies, opts Options) *Pipeline {
	if deps.Events == nil {
		publisher := observer.NewEventPublisher()
		publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
		deps.Events = publisher
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = DefaultOptions().CompensationTimeout
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Analyze accepts an image, resolves its GPS position and runs detection and
// annotation. A detection or render failure returns the error and keeps no
// state. An empty detection list returns a submission in DetectionsEmpty.
func (p *Pipeline) Analyze(ctx context.Context, ref geo.ImageRef, reportedBy string) (*Submission, error) {
	if ref == nil {
		return nil, apperrors.NewValidationError("image is required", nil)
	}
	data, err := readAll(ref)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read image", err)
	}
	if reportedBy == "" {
		reportedBy = models.AnonymousReporter
	}

	sub := &Submission{
		ID:         uuid.NewString(),
		ReportedBy: reportedBy,
		CreatedAt:  p.opts.Clock(),
		state:      StateIdle,
		events:     p.deps.Events,
	}
	p.publish(ctx, sub, observer.SubmissionEvent{
		EventType: observer.SubmissionAccepted,
		Metadata:  map[string]interface{}{"bytes": len(data), "reported_by": reportedBy},
	})

	// Location comes from the image as it was accepted, not from anything later.
	sub.coordinate = p.deps.Resolver.Resolve(ref)

	p.transition(ctx, sub, StateDetecting)
	result, err := p.deps.Detector.Detect(ctx, data)
	if err != nil {
		p.abandon(ctx, sub, err)
		return nil, err
	}
	sub.mu.Lock()
	sub.detections = result
	sub.mu.Unlock()

	if result.Empty() {
		rejection := apperrors.NewRejectedError(apperrors.MsgNoHazards)
		sub.mu.Lock()
		sub.err = rejection
		sub.mu.Unlock()
		p.transition(ctx, sub, StateDetectionsEmpty)
		p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.SubmissionRejected, ErrorMessage: rejection.Message})
		return sub, nil
	}

	p.transition(ctx, sub, StateDetectionsPresent)
	p.transition(ctx, sub, StateAnnotating)
	artifact, err := p.deps.Renderer.Render(data, result)
	if err != nil {
		p.abandon(ctx, sub, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// abandoned before anything left the process: just drop the scratch file
		artifact.Release()
		p.abandon(ctx, sub, err)
		return nil, err
	}

	sub.mu.Lock()
	sub.artifact = artifact
	sub.mu.Unlock()
	p.transition(ctx, sub, StateAnnotated)
	return sub, nil
}

// Save resolves the address, uploads the artifact, allocates an id and
// persists the report. Once the upload succeeded, a failure or cancellation
// deletes the upload exactly once before the original error is returned.
func (p *Pipeline) Save(ctx context.Context, sub *Submission) (*models.Report, error) {
	if sub == nil {
		return nil, apperrors.NewValidationError("submission is required", nil)
	}
	start := p.opts.Clock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.beginSave(sub, cancel); err != nil {
		return nil, err
	}
	defer p.endSave(sub)
	p.publishState(ctx, sub, StateResolvingLocation)

	sub.mu.Lock()
	coord := sub.coordinate
	artifact := sub.artifact
	result := sub.detections
	sub.mu.Unlock()

	if coord == nil {
		rejection := apperrors.NewRejectedError(apperrors.MsgNoLocation)
		p.finish(ctx, sub, StateRejectedNoLocation, rejection)
		p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.SubmissionRejected, ErrorMessage: rejection.Message})
		return nil, rejection
	}
	address := geo.AddressOrUnknown(ctx, p.deps.Geocoder, *coord)

	if err := ctx.Err(); err != nil {
		return nil, p.cancelled(ctx, sub, err)
	}

	p.transition(ctx, sub, StateUploading)
	data, err := artifact.Bytes()
	if err != nil {
		return nil, p.fail(ctx, sub, apperrors.NewInternalError("annotated image is no longer available", err))
	}
	// The upload is not cut short by cancellation: once it has started, its
	// result is needed to delete it again.
	upload, err := p.deps.Store.Upload(context.WithoutCancel(ctx), data, artifact.ContentType)
	if err != nil {
		return nil, p.fail(ctx, sub, err)
	}

	// From here on the upload is orphaned unless the report is persisted.
	if err := ctx.Err(); err != nil {
		p.compensate(ctx, sub, upload.PublicID)
		return nil, p.cancelled(ctx, sub, err)
	}

	p.transition(ctx, sub, StateAllocating)
	id := p.deps.Allocator.Next(ctx)
	if err := ctx.Err(); err != nil {
		p.compensate(ctx, sub, upload.PublicID)
		return nil, p.cancelled(ctx, sub, err)
	}

	primary, _ := result.Primary()
	report := &models.Report{
		ID:          id,
		HazardType:  primary.Label,
		Location:    address,
		Coordinates: &models.GeoCoordinate{Latitude: coord.Latitude, Longitude: coord.Longitude},
		Date:        p.opts.Clock().Format(models.DateLayout),
		ImageURL:    upload.URL,
		Status:      models.ReportStatusNew,
		ReportedBy:  sub.ReportedBy,
	}

	p.transition(ctx, sub, StatePersisting)
	if err := p.deps.Reports.Save(ctx, id, report); err != nil {
		p.compensate(ctx, sub, upload.PublicID)
		return nil, p.fail(ctx, sub, err)
	}

	if !p.succeed(ctx, sub, report) {
		// reset while persisting: the report stands, there is nothing left to show
		return report, nil
	}
	p.publish(ctx, sub, observer.SubmissionEvent{
		EventType: observer.SubmissionSaved,
		ReportID:  id,
		Duration:  p.opts.Clock().Sub(start),
		Metadata:  map[string]interface{}{"hazard_type": report.HazardType, "image_url": report.ImageURL},
	})
	sub.scheduleReset(p.opts.GracePeriod)
	return report, nil
}

// Submit runs Analyze and Save back to back
func (p *Pipeline) Submit(ctx context.Context, ref geo.ImageRef, reportedBy string) (*models.Report, *Submission, error) {
	sub, err := p.Analyze(ctx, ref, reportedBy)
	if err != nil {
		return nil, nil, err
	}
	if sub.State() == StateDetectionsEmpty {
		return nil, sub, sub.Err()
	}
	report, err := p.Save(ctx, sub)
	return report, sub, err
}

func (p *Pipeline) beginSave(sub *Submission, cancel context.CancelFunc) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	switch {
	case sub.state == StateDetectionsEmpty:
		return apperrors.NewRejectedError(apperrors.MsgNoHazards)
	case sub.state.saving():
		return apperrors.NewConflictError("submission is already being saved", nil)
	case sub.state == StateSaved:
		return apperrors.NewConflictError("submission is already saved", nil)
	case sub.state == StateIdle:
		return apperrors.NewConflictError("submission was reset", nil)
	case sub.artifact == nil:
		return apperrors.NewConflictError("submission has no annotated image", nil)
	}

	sub.state = StateResolvingLocation
	sub.err = nil
	sub.cancelSave = cancel
	return nil
}

func (p *Pipeline) endSave(sub *Submission) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.cancelSave = nil
}

// transition moves sub to state unless it was reset in the meantime
func (p *Pipeline) transition(ctx context.Context, sub *Submission, state State) bool {
	sub.mu.Lock()
	if sub.state == StateIdle && state != StateDetecting {
		sub.mu.Unlock()
		return false
	}
	sub.state = state
	sub.mu.Unlock()

	p.publishState(ctx, sub, state)
	return true
}

func (p *Pipeline) publishState(ctx context.Context, sub *Submission, state State) {
	p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.StateChanged, State: string(state)})
}

// finish records the outcome of a save attempt. It reports false when the
// submission was reset while the attempt was running.
func (p *Pipeline) finish(ctx context.Context, sub *Submission, state State, err error) bool {
	sub.mu.Lock()
	if sub.state == StateIdle {
		sub.mu.Unlock()
		return false
	}
	sub.state = state
	sub.err = err
	sub.mu.Unlock()

	p.publishState(ctx, sub, state)
	return true
}

func (p *Pipeline) succeed(ctx context.Context, sub *Submission, report *models.Report) bool {
	sub.mu.Lock()
	if sub.state == StateIdle {
		sub.mu.Unlock()
		return false
	}
	sub.state = StateSaved
	sub.err = nil
	sub.report = report
	sub.mu.Unlock()

	p.publishState(ctx, sub, StateSaved)
	return true
}

func (p *Pipeline) fail(ctx context.Context, sub *Submission, err error) error {
	if p.finish(ctx, sub, StateFailed, err) {
		p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.SubmissionFailed, ErrorMessage: err.Error()})
	}
	return err
}

// cancelled ends an abandoned save. The scratch artifact is released since
// nobody is left to look at it.
func (p *Pipeline) cancelled(ctx context.Context, sub *Submission, err error) error {
	wrapped := fmt.Errorf("submission abandoned: %w", err)
	if p.finish(ctx, sub, StateFailed, wrapped) {
		p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.SubmissionFailed, ErrorMessage: wrapped.Error()})
		sub.mu.Lock()
		artifact := sub.artifact
		sub.artifact = nil
		sub.mu.Unlock()
		artifact.Release()
	}
	return wrapped
}

// abandon drops a submission that failed before it was handed to the caller
func (p *Pipeline) abandon(ctx context.Context, sub *Submission, err error) {
	sub.mu.Lock()
	sub.state = StateIdle
	sub.detections = nil
	sub.coordinate = nil
	sub.mu.Unlock()

	p.publish(ctx, sub, observer.SubmissionEvent{
		EventType:    observer.SubmissionFailed,
		State:        string(StateIdle),
		ErrorMessage: err.Error(),
	})
}

// compensate deletes an orphaned upload once. The caller's cancellation does
// not apply; the delete gets its own timeout. Failures are only logged.
func (p *Pipeline) compensate(ctx context.Context, sub *Submission, publicID string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CompensationTimeout)
	defer cancel()

	meta := map[string]interface{}{"public_id": publicID}
	if err := p.deps.Store.Delete(dctx, publicID); err != nil {
		p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.CompensationFailed, ErrorMessage: err.Error(), Metadata: meta})
		return
	}
	p.publish(ctx, sub, observer.SubmissionEvent{EventType: observer.CompensationCompleted, Metadata: meta})
}

func (p *Pipeline) publish(ctx context.Context, sub *Submission, event observer.SubmissionEvent) {
	event.SubmissionID = sub.ID
	if event.State == "" && event.EventType != observer.StateChanged {
		event.State = string(sub.State())
	}
	p.deps.Events.NotifyObservers(context.WithoutCancel(ctx), event)
}

func readAll(ref geo.ImageRef) ([]byte, error) {
	rc, err := ref.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

func userMessage(err error) string {
	return apperrors.UserMessage(err)
}
