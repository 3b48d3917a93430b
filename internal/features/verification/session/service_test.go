package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/features/provider/registry"
	"proof-contrib-backend/internal/features/verification/attestation"
	"proof-contrib-backend/internal/features/verification/channel"
	"proof-contrib-backend/internal/features/verification/models"
	"proof-contrib-backend/internal/features/verification/normalizer"
	"proof-contrib-backend/internal/features/verification/recovery"
)

const (
	publicOrigin   = "https://api.contrib.example.com"
	loopbackOrigin = "http://localhost:8080"
)

func testTimings() Timings {
	return Timings{
		PollInitialDelay:  5 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		PollAttempts:      5,
		HiddenGraceWindow: 150 * time.Millisecond,
	}
}

type fakeAttestor struct {
	mu        sync.Mutex
	initCalls []attestation.InitRequest
	initFunc  func(req attestation.InitRequest) (*attestation.InitResult, error)
	awaitFunc func(ctx context.Context) (json.RawMessage, error)
}

func (f *fakeAttestor) InitSession(_ context.Context, req attestation.InitRequest) (*attestation.InitResult, error) {
	f.mu.Lock()
	f.initCalls = append(f.initCalls, req)
	f.mu.Unlock()
	if f.initFunc != nil {
		return f.initFunc(req)
	}
	return &attestation.InitResult{RequestURL: "https://verify.example/qr", AttestationID: "att-1"}, nil
}

func (f *fakeAttestor) AwaitResult(ctx context.Context, _ string) (json.RawMessage, error) {
	if f.awaitFunc != nil {
		return f.awaitFunc(ctx)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeRelay struct {
	mu       sync.Mutex
	proof    json.RawMessage
	afterN   int
	calls    int32
	consumed int32
}

func (f *fakeRelay) Proof(_ context.Context, _ string) (json.RawMessage, error) {
	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proof != nil && int(n) >= f.afterN {
		return f.proof, nil
	}
	return nil, nil
}

func (f *fakeRelay) Consume(_ context.Context, _ string) {
	atomic.AddInt32(&f.consumed, 1)
}

type fakeSubmitter struct {
	mu   sync.Mutex
	got  []models.ContributionRequest
	err  error
	pts  float64
}

func (f *fakeSubmitter) Submit(_ context.Context, _ int64, req models.ContributionRequest) (*models.ContributionResult, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.ContributionResult{Accepted: true, PointsAwarded: f.pts}, nil
}

func (f *fakeSubmitter) requests() []models.ContributionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ContributionRequest(nil), f.got...)
}

func newTestService(origin string, att *fakeAttestor, relay *fakeRelay, sub *fakeSubmitter) *Service {
	return NewService(
		registry.New(),
		channel.NewSelector(origin),
		att,
		relay,
		normalizer.New(),
		sub,
		recovery.NewTapRouter(),
		testTimings(),
	)
}

func waitStatus(t *testing.T, s *Service, userID int64, want models.Status, within time.Duration) models.SessionView {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		view, err := s.Status(userID)
		require.NoError(t, err)
		if view.Status == want {
			return view
		}
		time.Sleep(2 * time.Millisecond)
	}
	view, _ := s.Status(userID)
	t.Fatalf("status %q not reached within %s (last %q, err %q)", want, within, view.Status, view.ErrorMessage)
	return models.SessionView{}
}

func zomatoEnvelope(t *testing.T, orders int) json.RawMessage {
	t.Helper()
	items := ""
	for i := 0; i < orders; i++ {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"items":["Dosa"],"price":%d,"timestamp":%d,"restaurant":"R%d"}`, 100+i, i, i)
	}
	ctx, err := json.Marshal(map[string]interface{}{
		"extractedParameters": map[string]string{"orders": "[" + items + "]"},
	})
	require.NoError(t, err)
	env, err := json.Marshal(map[string]interface{}{
		"identifier": "0xe2e",
		"claimData":  map[string]interface{}{"provider": "zomato", "context": string(ctx)},
	})
	require.NoError(t, err)
	return env
}

func TestStartRelayChannelEndToEnd(t *testing.T) {
	att := &fakeAttestor{}
	relay := &fakeRelay{afterN: 2}
	sub := &fakeSubmitter{pts: 30}
	s := newTestService(publicOrigin, att, relay, sub)
	defer s.Close()

	relay.mu.Lock()
	relay.proof = zomatoEnvelope(t, 3)
	relay.mu.Unlock()

	view, err := s.Start(context.Background(), 1, "zomato", "")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRelayPolling, view.Channel)
	assert.Equal(t, "https://verify.example/qr", view.RequestURL)
	assert.Contains(t, att.initCalls[0].CallbackURL, "session=")

	final := waitStatus(t, s, 1, models.StatusSucceeded, 2*time.Second)
	assert.Equal(t, 30.0, final.Points)
	assert.Equal(t, []string{"orders"}, final.FieldsMatched)

	reqs := sub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "0xe2e", reqs[0].ProofIdentifier)
	assert.Len(t, reqs[0].NormalizedRecord.List("orders"), 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&relay.consumed))
}

func TestRelayPollingExhaustedIsTimeout(t *testing.T) {
	att := &fakeAttestor{}
	relay := &fakeRelay{}
	sub := &fakeSubmitter{}
	s := newTestService(publicOrigin, att, relay, sub)
	defer s.Close()

	_, err := s.Start(context.Background(), 1, "uber", "")
	require.NoError(t, err)

	final := waitStatus(t, s, 1, models.StatusFailed, 2*time.Second)
	assert.Equal(t, string(apperrors.ErrCodeProofTimeout), final.ErrorCode)
	assert.True(t, final.RefreshHint)

	// No more polling calls once the session is terminal.
	settled := atomic.LoadInt32(&relay.calls)
	assert.Equal(t, int32(testTimings().PollAttempts), settled)
	time.Sleep(5 * testTimings().PollInterval)
	assert.Equal(t, settled, atomic.LoadInt32(&relay.calls))
	assert.Empty(t, sub.requests())
}

func TestDirectChannelSuccess(t *testing.T) {
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		return zomatoEnvelope(t, 1), nil
	}
	sub := &fakeSubmitter{pts: 10}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, sub)
	defer s.Close()

	view, err := s.Start(context.Background(), 2, "zomato", "")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelDirect, view.Channel)
	assert.Empty(t, att.initCalls[0].CallbackURL)

	waitStatus(t, s, 2, models.StatusSucceeded, 2*time.Second)
	require.Len(t, sub.requests(), 1)
}

func TestDeferredFailureWhileHidden(t *testing.T) {
	errAt := make(chan struct{})
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		<-errAt
		return nil, errors.New("interval ended without receiving proof")
	}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	_, err := s.Start(context.Background(), 3, "github", "")
	require.NoError(t, err)
	require.NoError(t, s.SetVisibility(3, false))
	time.Sleep(20 * time.Millisecond) // let the visibility event drain

	close(errAt) // SDK error fires while the tab is hidden

	// Within the grace window nothing surfaces.
	time.Sleep(50 * time.Millisecond)
	view, err := s.Status(3)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingProof, view.Status)

	// The moment the tab returns, the held failure surfaces.
	require.NoError(t, s.SetVisibility(3, true))
	final := waitStatus(t, s, 3, models.StatusFailed, time.Second)
	assert.Equal(t, string(apperrors.ErrCodeProofTimeout), final.ErrorCode)
	assert.True(t, final.RefreshHint)
}

func TestDeferredFailureGraceExpiry(t *testing.T) {
	errAt := make(chan struct{})
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		<-errAt
		return nil, errors.New("request timed out")
	}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	start := time.Now()
	_, err := s.Start(context.Background(), 4, "github", "")
	require.NoError(t, err)
	require.NoError(t, s.SetVisibility(4, false))
	time.Sleep(20 * time.Millisecond)
	close(errAt)

	final := waitStatus(t, s, 4, models.StatusFailed, time.Second)
	// Surfaced at the grace boundary with no visibility change.
	assert.GreaterOrEqual(t, time.Since(start), testTimings().HiddenGraceWindow-20*time.Millisecond)
	assert.Equal(t, string(apperrors.ErrCodeTransientNetwork), final.ErrorCode)
	assert.True(t, final.Retryable)
}

func TestVisibleSDKErrorSurfacesImmediately(t *testing.T) {
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("verification cancelled by user")
	}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	_, err := s.Start(context.Background(), 5, "netflix", "")
	require.NoError(t, err)

	final := waitStatus(t, s, 5, models.StatusFailed, time.Second)
	assert.Equal(t, string(apperrors.ErrCodeUserCancelled), final.ErrorCode)
	assert.False(t, final.Retryable)
}

func TestCancelStopsSession(t *testing.T) {
	att := &fakeAttestor{}
	s := newTestService(publicOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	_, err := s.Start(context.Background(), 6, "uber", "")
	require.NoError(t, err)
	require.NoError(t, s.Cancel(6))

	final := waitStatus(t, s, 6, models.StatusFailed, time.Second)
	assert.Equal(t, string(apperrors.ErrCodeUserCancelled), final.ErrorCode)
	assert.False(t, final.Retryable)
}

func TestCallbackRejectedFallsBackToDirect(t *testing.T) {
	att := &fakeAttestor{}
	att.initFunc = func(req attestation.InitRequest) (*attestation.InitResult, error) {
		if req.CallbackURL != "" {
			return nil, fmt.Errorf("%w: http 400", attestation.ErrCallbackRejected)
		}
		return &attestation.InitResult{RequestURL: "https://verify.example/qr", AttestationID: "att-2"}, nil
	}
	s := newTestService(publicOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	view, err := s.Start(context.Background(), 7, "zomato", "")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelDirect, view.Channel)
	require.Len(t, att.initCalls, 2)
	assert.Empty(t, att.initCalls[1].CallbackURL)
	assert.NotEmpty(t, att.initCalls[1].SessionID)
}

func TestSecondSessionRejectedWhileActive(t *testing.T) {
	att := &fakeAttestor{}
	s := newTestService(publicOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	_, err := s.Start(context.Background(), 8, "zomato", "")
	require.NoError(t, err)

	_, err = s.Start(context.Background(), 8, "uber", "")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeSessionActive, appErr.Code)

	// A different user is unaffected.
	_, err = s.Start(context.Background(), 9, "uber", "")
	require.NoError(t, err)
}

func TestUnknownProviderRejected(t *testing.T) {
	s := newTestService(publicOrigin, &fakeAttestor{}, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	_, err := s.Start(context.Background(), 10, "myspace", "")
	require.Error(t, err)
	appErr, _ := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.ErrCodeProviderUnknown, appErr.Code)
}

func TestSideChannelRecoversProofOnError(t *testing.T) {
	att := &fakeAttestor{}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, &fakeSubmitter{pts: 12})

	env := zomatoEnvelope(t, 2)
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		// The SDK echoes the proof into diagnostics, then errors out of
		// its own success path.
		line, _ := json.Marshal(map[string]interface{}{"message": "validating", "body": json.RawMessage(env)})
		_, _ = s.taps.Write(line)
		return nil, errors.New("internal validation rejected proof")
	}
	defer s.Close()

	_, err := s.Start(context.Background(), 11, "zomato", "")
	require.NoError(t, err)

	final := waitStatus(t, s, 11, models.StatusSucceeded, time.Second)
	assert.Equal(t, 12.0, final.Points)
}

func TestDirectBareMessageStringDoesNotFailHard(t *testing.T) {
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`"proof sent via message channel"`), nil
	}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	_, err := s.Start(context.Background(), 12, "zomato", "")
	require.NoError(t, err)

	final := waitStatus(t, s, 12, models.StatusFailed, time.Second)
	// Not a hard failure: timeout taxonomy plus a refresh suggestion.
	assert.Equal(t, string(apperrors.ErrCodeProofTimeout), final.ErrorCode)
	assert.True(t, final.RefreshHint)
}

func TestRelayChannelBareMessageStringKeepsPolling(t *testing.T) {
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`"check message"`), nil
	}
	relay := &fakeRelay{afterN: 2}
	sub := &fakeSubmitter{pts: 5}
	s := newTestService(publicOrigin, att, relay, sub)
	defer s.Close()

	relay.mu.Lock()
	relay.proof = zomatoEnvelope(t, 1)
	relay.mu.Unlock()

	_, err := s.Start(context.Background(), 13, "zomato", "")
	require.NoError(t, err)

	waitStatus(t, s, 13, models.StatusSucceeded, 2*time.Second)
	require.Len(t, sub.requests(), 1)
}

func TestLedgerRejectionSurfacedVerbatim(t *testing.T) {
	att := &fakeAttestor{}
	att.awaitFunc = func(ctx context.Context) (json.RawMessage, error) {
		return zomatoEnvelope(t, 1), nil
	}
	sub := &fakeSubmitter{err: apperrors.NewLedgerRejectedError("duplicate proof already credited")}
	s := newTestService(loopbackOrigin, att, &fakeRelay{}, sub)
	defer s.Close()

	_, err := s.Start(context.Background(), 14, "zomato", "")
	require.NoError(t, err)

	final := waitStatus(t, s, 14, models.StatusFailed, time.Second)
	assert.Equal(t, string(apperrors.ErrCodeLedgerRejected), final.ErrorCode)
	assert.Equal(t, "duplicate proof already credited", final.ErrorMessage)
}

func TestRecoverFragmentEndToEnd(t *testing.T) {
	sub := &fakeSubmitter{pts: 21}
	s := newTestService(publicOrigin, &fakeAttestor{}, &fakeRelay{}, sub)
	defer s.Close()

	proof := `{"identifier":"0xrecovered","claimData":{"provider":"http-zomato-orders","context":"{\"extractedParameters\":{\"orders\":\"[{\\\"items\\\":[\\\"Idli\\\"],\\\"price\\\":90,\\\"timestamp\\\":5,\\\"restaurant\\\":\\\"Udupi\\\"}]\"}}"}}`
	fragment := "#reclaim_proof=" + base64.RawURLEncoding.EncodeToString([]byte(proof))

	view, err := s.Recover(context.Background(), 15, fragment, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, view.Status)
	assert.Equal(t, models.ChannelRedirectRecovery, view.Channel)
	assert.Equal(t, "zomato", view.ProviderID)
	assert.Equal(t, 21.0, view.Points)

	reqs := sub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "0xrecovered", reqs[0].ProofIdentifier)
}

func TestRecoverFragmentError(t *testing.T) {
	s := newTestService(publicOrigin, &fakeAttestor{}, &fakeRelay{}, &fakeSubmitter{})
	defer s.Close()

	view, err := s.Recover(context.Background(), 16, "#reclaim_error=verification+cancelled", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, view.Status)
	assert.Equal(t, string(apperrors.ErrCodeUserCancelled), view.ErrorCode)
}
