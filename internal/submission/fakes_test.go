package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hazard-reporter/internal/annotate"
	"hazard-reporter/internal/geo"
	"hazard-reporter/internal/observer"
	"hazard-reporter/internal/reportid"
	"hazard-reporter/pkg/models"

	"github.com/stretchr/testify/require"
)

var errPersist = errors.New("document store rejected write")

type fakeDetector struct {
	result *models.DetectionResult
	err    error
	calls  int
}

func (f *fakeDetector) Detect(context.Context, []byte) (*models.DetectionResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	uploadErr error
	deleteErr error
	uploads   int
	deletes   []string
	// onUpload runs inside Upload, before it returns
	onUpload func()
}

func (f *fakeStore) Upload(_ context.Context, data []byte, contentType string) (models.UploadResult, error) {
	f.mu.Lock()
	f.uploads++
	n := f.uploads
	hook := f.onUpload
	err := f.uploadErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return models.UploadResult{}, err
	}
	if len(data) == 0 || contentType == "" {
		return models.UploadResult{}, errors.New("empty upload")
	}
	return models.UploadResult{
		URL:      fmt.Sprintf("https://cdn.example.com/road_hazard_reports/%d.jpg", n),
		PublicID: fmt.Sprintf("road_hazard_reports/%d", n),
	}, nil
}

func (f *fakeStore) Delete(ctx context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.deletes = append(f.deletes, publicID)
	return f.deleteErr
}

func (f *fakeStore) counts() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, append([]string(nil), f.deletes...)
}

type fakeRepo struct {
	mu      sync.Mutex
	ids     []string
	listErr error
	saveErr error
	saved   map[string]*models.Report
	lists   int
}

func newFakeRepo(ids ...string) *fakeRepo {
	return &fakeRepo{ids: ids, saved: map[string]*models.Report{}}
}

func (f *fakeRepo) ListReportIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return append([]string(nil), f.ids...), f.listErr
}

func (f *fakeRepo) Save(_ context.Context, id string, report *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[id] = report
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeRepo) calls() (lists, saves int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists, len(f.saved)
}

type stubGeocoder struct{ address string }

func (s stubGeocoder) Reverse(context.Context, models.GeoCoordinate) (string, bool) {
	return s.address, s.address != ""
}

type stateRecorder struct {
	mu     sync.Mutex
	states []string
	events []observer.SubmissionEvent
}

func (r *stateRecorder) OnEvent(_ context.Context, e observer.SubmissionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if e.EventType == observer.StateChanged {
		r.states = append(r.states, e.State)
	}
}

func (r *stateRecorder) GetObserverName() string { return "state_recorder" }

func (r *stateRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func (r *stateRecorder) count(t observer.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

var fixedNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.Local)

type harness struct {
	pipeline *Pipeline
	detector *fakeDetector
	store    *fakeStore
	repo     *fakeRepo
	events   *stateRecorder
}

func newHarness(t *testing.T, result *models.DetectionResult) *harness {
	t.Helper()
	renderer, err := annotate.NewAnnotator(annotate.Options{ScratchDir: t.TempDir(), Format: annotate.FormatJPEG, Quality: 90})
	require.NoError(t, err)

	h := &harness{
		detector: &fakeDetector{result: result},
		store:    &fakeStore{},
		repo:     newFakeRepo(),
		events:   &stateRecorder{},
	}
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(h.events)

	h.pipeline = NewPipeline(Dependencies{
		Detector:  h.detector,
		Renderer:  renderer,
		Resolver:  geo.NewResolver(),
		Geocoder:  stubGeocoder{address: "Herzl Street, Tel Aviv"},
		Store:     h.store,
		Allocator: reportid.NewAllocator(h.repo).WithClock(func() time.Time { return fixedNow }),
		Reports:   h.repo,
		Events:    publisher,
	}, Options{
		GracePeriod:         -1,
		CompensationTimeout: time.Second,
		Clock:               func() time.Time { return fixedNow },
	})
	return h
}

func potholeResult() *models.DetectionResult {
	return &models.DetectionResult{
		Detections:  []models.Detection{{BBox: [4]float64{10, 10, 50, 50}, Label: "pothole", Confidence: 0.92}},
		ImageWidth:  1000,
		ImageHeight: 1000,
	}
}

