package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/common/logger"
	"proof-contrib-backend/internal/features/verification/attestation"
	"proof-contrib-backend/internal/features/verification/channel"
	"proof-contrib-backend/internal/features/verification/models"
	"proof-contrib-backend/internal/features/verification/recovery"

	providermodels "proof-contrib-backend/internal/features/provider/models"
)

// Timings configures the AwaitingProof phase. Zero values are replaced
// by the reference cadence.
type Timings struct {
	PollInitialDelay  time.Duration
	PollInterval      time.Duration
	PollAttempts      int
	HiddenGraceWindow time.Duration
}

func (t Timings) withDefaults() Timings {
	if t.PollInitialDelay == 0 {
		t.PollInitialDelay = 3 * time.Second
	}
	if t.PollInterval == 0 {
		t.PollInterval = 2 * time.Second
	}
	if t.PollAttempts == 0 {
		t.PollAttempts = 30
	}
	if t.HiddenGraceWindow == 0 {
		t.HiddenGraceWindow = 120 * time.Second
	}
	return t
}

type eventKind int

const (
	evCancel eventKind = iota
	evVisibility
)

type event struct {
	kind    eventKind
	visible bool
}

type directResult struct {
	proof json.RawMessage
	err   error
}

// run is one live verification attempt. All state transitions happen on
// its single loop goroutine; HTTP handlers only post events.
type run struct {
	session *models.VerificationSession
	schema  *providermodels.ProviderSchema
	sel     channel.Selection
	attID   string

	tap    *recovery.DiagnosticTap
	events chan event
	done   chan struct{}
	cancel context.CancelFunc

	mu   sync.Mutex
	view models.SessionView
}

func newRun(sess *models.VerificationSession, schema *providermodels.ProviderSchema, sel channel.Selection, cancel context.CancelFunc) *run {
	r := &run{
		session: sess,
		schema:  schema,
		sel:     sel,
		tap:     recovery.NewDiagnosticTap(),
		events:  make(chan event, 8),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	r.view = models.SessionView{
		SessionID:  sess.SessionID,
		ProviderID: sess.ProviderID,
		Channel:    sess.Channel,
		Status:     sess.Status,
		StartedAt:  sess.StartedAt,
	}
	return r
}

// post delivers an event unless the run already terminated.
func (r *run) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *run) snapshot() models.SessionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

func (r *run) setStatus(status models.Status) {
	r.mu.Lock()
	r.session.Status = status
	r.view.Status = status
	r.view.Channel = r.session.Channel
	r.view.RequestURL = r.session.RequestURL
	r.mu.Unlock()
}

func (r *run) terminal() bool {
	return r.snapshot().Status.Terminal()
}

// awaitLoop owns the AwaitingProof phase: it multiplexes the direct
// channel, relay polling, the deferred-failure grace timer and user
// events until something terminal happens.
func (s *Service) awaitLoop(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	log := logger.Component("verification").With().
		Str("session_id", r.session.SessionID).
		Str("provider_id", r.session.ProviderID).
		Logger()

	r.setStatus(models.StatusAwaitingProof)

	// The side-channel listens only for this AwaitingProof phase.
	s.taps.Attach(r.tap)
	defer s.taps.Detach(r.tap)

	// The SDK resolves its own promise on every channel; the relay
	// callback is additional. Await both and take whichever lands first.
	directCh := make(chan directResult, 1)
	go func() {
		proof, err := s.attestor.AwaitResult(ctx, r.attID)
		select {
		case directCh <- directResult{proof: proof, err: err}:
		case <-ctx.Done():
		}
	}()

	var (
		pollTimer   *time.Timer
		pollCh      <-chan time.Time
		attempts    int
		pendingErr  *apperrors.AppError
		pendingHint bool
		graceCh     <-chan time.Time
	)
	startPolling := func() {
		if pollCh != nil || r.sel.RelaySessionID == "" {
			return
		}
		pollTimer = time.NewTimer(s.timings.PollInitialDelay)
		pollCh = pollTimer.C
	}
	if r.session.Channel == models.ChannelRelayPolling {
		startPolling()
	}
	defer func() {
		if pollTimer != nil {
			pollTimer.Stop()
		}
	}()

	surface := func(appErr *apperrors.AppError, refreshHint bool) {
		// Last chance: the SDK may have echoed a usable proof into its
		// diagnostics even though the primary channel errored out.
		if captured, ok := r.tap.Captured(); ok {
			log.Info().Msg("Recovering proof from diagnostic side-channel")
			if s.extractAndSubmit(ctx, r, captured) {
				return
			}
		}
		s.fail(r, appErr, refreshHint)
	}

	for {
		select {
		case <-ctx.Done():
			s.fail(r, apperrors.NewUserCancelledError(), false)
			return

		case ev := <-r.events:
			switch ev.kind {
			case evCancel:
				log.Info().Msg("Verification cancelled by user")
				s.fail(r, apperrors.NewUserCancelledError(), false)
				return
			case evVisibility:
				r.mu.Lock()
				r.session.TabVisible = ev.visible
				r.mu.Unlock()
				// Re-evaluate a held error the moment the tab returns.
				if ev.visible && pendingErr != nil {
					log.Info().Msg("Tab visible again, surfacing deferred failure")
					surface(pendingErr, pendingHint)
					return
				}
			}

		case res := <-directCh:
			if res.err != nil {
				log.Debug().Err(res.err).Msg("Direct channel resolved with error")
				heldErr, heldHint, deferred := s.handleSDKError(r, res.err)
				if !deferred {
					surface(heldErr, heldHint)
					return
				}
				pendingErr, pendingHint = heldErr, heldHint
				if graceCh == nil {
					remaining := s.timings.HiddenGraceWindow - time.Since(r.session.StartedAt)
					if remaining < 0 {
						remaining = 0
					}
					graceCh = time.After(remaining)
				}
				// Keep the awaiting behavior alive: the real proof may
				// still land on the relay while the page is backgrounded.
				startPolling()
				continue
			}
			if hint, isHint := relayHint(res.proof); isHint {
				if r.sel.RelaySessionID != "" {
					log.Info().Str("hint", hint).Msg("Direct result points at the relay, polling")
					startPolling()
					continue
				}
				surface(apperrors.NewProofTimeoutError(attempts), true)
				return
			}
			s.extractAndSubmit(ctx, r, res.proof)
			return

		case <-pollCh:
			attempts++
			proof, err := s.relay.Proof(ctx, r.sel.RelaySessionID)
			if err == nil && len(proof) > 0 {
				log.Info().Int("attempts", attempts).Msg("Relay proof received")
				s.relay.Consume(ctx, r.sel.RelaySessionID)
				s.extractAndSubmit(ctx, r, proof)
				return
			}
			// Any non-success relay answer is "not yet", never an error.
			if attempts >= s.timings.PollAttempts {
				// Hard ceiling, independent of tab visibility.
				log.Warn().Int("attempts", attempts).Msg("Relay polling exhausted")
				s.fail(r, apperrors.NewProofTimeoutError(attempts), true)
				return
			}
			pollTimer.Reset(s.timings.PollInterval)

		case <-graceCh:
			if pendingErr != nil {
				log.Info().Msg("Grace window expired, surfacing deferred failure")
				surface(pendingErr, pendingHint)
				return
			}
			graceCh = nil
		}
	}
}

// handleSDKError reclassifies an SDK error and decides whether the
// deferred-failure policy holds it. On mobile the user is routinely
// switched away to the companion app; the SDK's local error often fires
// merely because the foreground page went idle.
func (s *Service) handleSDKError(r *run, err error) (*apperrors.AppError, bool, bool) {
	visible := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.session.TabVisible
	}()
	withinGrace := time.Since(r.session.StartedAt) < s.timings.HiddenGraceWindow

	appErr, refreshHint := reclassify(err, visible)
	deferred := !visible && withinGrace
	return appErr, refreshHint, deferred
}

// reclassify maps SDK error messages onto the user-facing taxonomy.
func reclassify(err error, tabVisible bool) (*apperrors.AppError, bool) {
	switch attestation.Classify(err.Error()) {
	case attestation.KindTransient:
		return apperrors.NewTransientNetworkError("attestation", err), false
	case attestation.KindCancelled:
		if tabVisible {
			return apperrors.NewUserCancelledError(), false
		}
		// A cancel signal while the tab is hidden is not actionable;
		// treat it like the idle-interval case.
		return apperrors.NewProofTimeoutError(0), true
	case attestation.KindIntervalEnded:
		// Informational: recommend a refresh, no alarm.
		return apperrors.NewProofTimeoutError(0), true
	default:
		return apperrors.NewExternalAPIError("attestation", err), false
	}
}

// relayHint detects the malformed direct resolution: a bare string
// containing the literal text "message", meaning the real proof is
// parked on the relay. Failed-looking, but never terminal by itself.
func relayHint(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if strings.Contains(s, "message") {
		return s, true
	}
	return "", false
}
