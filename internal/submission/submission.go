package submission

import (
	"context"
	"sync"
	"time"

	"hazard-reporter/internal/annotate"
	"hazard-reporter/internal/logger"
	"hazard-reporter/internal/observer"
	"hazard-reporter/pkg/models"
)

// Submission is one photo moving through the pipeline. It exclusively owns its
// detections and scratch artifact until it is reset.
type Submission struct {
	ID         string
	ReportedBy string
	CreatedAt  time.Time

	mu         sync.Mutex
	state      State
	detections *models.DetectionResult
	coordinate *models.GeoCoordinate
	artifact   *annotate.Artifact
	report     *models.Report
	err        error
	cancelSave context.CancelFunc
	resetTimer *time.Timer
	onReset    []func(*Submission)
	events     observer.Subject
}

// State returns the current state
func (s *Submission) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Artifact returns the rendered image, or nil once released
func (s *Submission) Artifact() *annotate.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Report returns the persisted report once saved
func (s *Submission) Report() *models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Err returns the error that ended the last attempt, if any
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnReset registers fn to run after the submission is reset
func (s *Submission) OnReset(fn func(*Submission)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = append(s.onReset, fn)
}

// Snapshot returns the tagged state shown to clients
func (s *Submission) Snapshot() models.SubmissionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := models.SubmissionView{
		ID:          s.ID,
		State:       string(s.state),
		ReportedBy:  s.ReportedBy,
		Detections:  s.detections,
		Coordinates: s.coordinate,
		HasArtifact: s.artifact != nil,
		Report:      s.report,
	}
	if s.err != nil {
		view.Error = userMessage(s.err)
	}
	return view
}

// Reset returns the submission to Idle. It cancels an in-flight save, stops the
// grace timer and always releases the scratch artifact.
func (s *Submission) Reset() {
	s.mu.Lock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	if s.cancelSave != nil {
		s.cancelSave()
		s.cancelSave = nil
	}
	artifact := s.artifact
	s.artifact = nil
	s.state = StateIdle
	s.detections = nil
	s.coordinate = nil
	s.report = nil
	s.err = nil
	hooks := s.onReset
	s.onReset = nil
	events := s.events
	s.mu.Unlock()

	if err := artifact.Release(); err != nil {
		logger.WithError(err).WithField("submission_id", s.ID).Warn("Failed to release scratch artifact")
	}
	if events != nil {
		events.NotifyObservers(context.Background(), observer.SubmissionEvent{
			EventType:    observer.SubmissionReset,
			SubmissionID: s.ID,
			State:        string(StateIdle),
		})
	}
	for _, fn := range hooks {
		fn(s)
	}
}

func (s *Submission) scheduleReset(after time.Duration) {
	if after < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(after, s.Reset)
}
