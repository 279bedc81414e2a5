package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/RubachokBoss/interview-proctoring/internal/metrics"
	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventRepo struct {
	mu        sync.Mutex
	events    []models.ProctoringEvent
	appendErr error
	listErr   error
}

func (r *fakeEventRepo) Append(ctx context.Context, event *models.ProctoringEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeEventRepo) ListByCandidateInterview(ctx context.Context, candidateID, interviewID string) ([]models.ProctoringEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.ProctoringEvent
	for _, e := range r.events {
		if e.CandidateID == candidateID && e.InterviewID == interviewID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) Ping(ctx context.Context) error { return nil }

type fakeCandidateRepo struct {
	mu          sync.Mutex
	risk        map[string]models.RiskAssessment
	malpractice map[string]int
	updateErr   error
}

func newFakeCandidateRepo() *fakeCandidateRepo {
	return &fakeCandidateRepo{risk: map[string]models.RiskAssessment{}, malpractice: map[string]int{}}
}

func (r *fakeCandidateRepo) GetIntegrity(ctx context.Context, candidateID string) (*models.CandidateIntegrity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	risk, ok := r.risk[candidateID]
	if !ok && r.malpractice[candidateID] == 0 {
		return nil, models.ErrCandidateNotFound
	}
	return &models.CandidateIntegrity{
		CandidateID: candidateID,
		Malpractice: r.malpractice[candidateID] > 0,
		RiskScore:   risk.Score,
		RiskLevel:   risk.Level,
	}, nil
}

func (r *fakeCandidateRepo) UpdateRisk(ctx context.Context, candidateID string, assessment models.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.risk[candidateID] = assessment
	return nil
}

func (r *fakeCandidateRepo) MarkMalpractice(ctx context.Context, candidateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.malpractice[candidateID]++
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]interface{}
	err      error
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, routingKey string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = map[string][]interface{}{}
	}
	p.messages[routingKey] = append(p.messages[routingKey], v)
	return p.err
}

func newTestEventLog(events *fakeEventRepo, candidates *fakeCandidateRepo, pub *recordingPublisher) EventLogService {
	return NewEventLogService(events, candidates, pub, "proctoring.risk_updated", metrics.New(nil), zerolog.Nop())
}

func TestLogEventAppendsAndRecomputes(t *testing.T) {
	events := &fakeEventRepo{}
	candidates := newFakeCandidateRepo()
	pub := &recordingPublisher{}
	svc := newTestEventLog(events, candidates, pub)
	ctx := context.Background()

	for _, et := range []models.EventType{models.EventTypeCopyPaste, models.EventTypeCopyPaste} {
		res := svc.LogEvent(ctx, "c1", "i1", et, json.RawMessage(`{"message":"copy"}`))
		require.True(t, res.Success, res.Error)
		assert.NotEmpty(t, res.EventID)
	}
	res := svc.LogEvent(ctx, "c1", "i1", models.EventTypeFullscreenExit, nil)
	require.True(t, res.Success)
	require.NotNil(t, res.Risk)

	assert.Equal(t, 40, res.Risk.Score)
	assert.Equal(t, models.RiskLevelMedium, res.Risk.Level)
	assert.Equal(t, models.ProctoringSummary{CopyPaste: 2, FullscreenExits: 1}, res.Risk.Summary)
	assert.Equal(t, *res.Risk, candidates.risk["c1"])
	assert.Len(t, pub.messages["proctoring.risk_updated"], 3)
}

func TestLogEventScopesHistoryToSession(t *testing.T) {
	events := &fakeEventRepo{}
	candidates := newFakeCandidateRepo()
	svc := newTestEventLog(events, candidates, &recordingPublisher{})
	ctx := context.Background()

	svc.LogEvent(ctx, "c1", "other-interview", models.EventTypeMultipleFaces, nil)
	res := svc.LogEvent(ctx, "c1", "i1", models.EventTypeTabSwitch, nil)

	require.True(t, res.Success)
	assert.Equal(t, 5, res.Risk.Score)
}

func TestLogEventWriteFailureIsReportedNotRaised(t *testing.T) {
	events := &fakeEventRepo{appendErr: errors.New("connection reset")}
	candidates := newFakeCandidateRepo()
	svc := newTestEventLog(events, candidates, &recordingPublisher{})

	res := svc.LogEvent(context.Background(), "c1", "i1", models.EventTypeTabSwitch, nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection reset")
	assert.NotErrorIs(t, res.Err, models.ErrInvalidEvent)
	assert.Empty(t, candidates.risk)
}

func TestLogEventRecomputeFailureKeepsEvent(t *testing.T) {
	events := &fakeEventRepo{}
	candidates := newFakeCandidateRepo()
	candidates.updateErr = errors.New("deadlock")
	svc := newTestEventLog(events, candidates, &recordingPublisher{})

	res := svc.LogEvent(context.Background(), "c1", "i1", models.EventTypeTabSwitch, nil)

	assert.True(t, res.Success)
	assert.Nil(t, res.Risk)
	assert.Len(t, events.events, 1)
}

func TestLogEventValidation(t *testing.T) {
	svc := newTestEventLog(&fakeEventRepo{}, newFakeCandidateRepo(), &recordingPublisher{})
	ctx := context.Background()

	for _, res := range []models.LogEventResult{
		svc.LogEvent(ctx, "", "i1", models.EventTypeTabSwitch, nil),
		svc.LogEvent(ctx, "c1", "i1", "", nil),
		svc.LogEvent(ctx, "c1", "i1", models.EventTypeTabSwitch, json.RawMessage(`{broken`)),
	} {
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err, models.ErrInvalidEvent)
		assert.NotEmpty(t, res.Error)
	}
}

func TestLogEventAcceptsUnknownTypes(t *testing.T) {
	svc := newTestEventLog(&fakeEventRepo{}, newFakeCandidateRepo(), &recordingPublisher{})

	res := svc.LogEvent(context.Background(), "c1", "i1", "GAZE_AWAY", nil)

	require.True(t, res.Success)
	assert.Equal(t, 0, res.Risk.Score)
}

func TestLogEventPublishFailureIsNonFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestEventLog(&fakeEventRepo{}, newFakeCandidateRepo(), pub)

	res := svc.LogEvent(context.Background(), "c1", "i1", models.EventTypeCamOff, nil)

	assert.True(t, res.Success)
	assert.Equal(t, 5, res.Risk.Score)
}

func TestMarkMalpracticePublishesTermination(t *testing.T) {
	candidates := newFakeCandidateRepo()
	pub := &recordingPublisher{}
	svc := NewIntegrityService(candidates, pub, "proctoring.session_terminated", zerolog.Nop())

	require.NoError(t, svc.MarkMalpractice(context.Background(), "c1", "i1", "fullscreen exit"))

	assert.Equal(t, 1, candidates.malpractice["c1"])
	require.Len(t, pub.messages["proctoring.session_terminated"], 1)
	event := pub.messages["proctoring.session_terminated"][0].(models.SessionTerminatedEvent)
	assert.Equal(t, "fullscreen exit", event.Reason)

	got, err := svc.GetCandidate(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, got.Malpractice)
}
