package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/common/logger"
	"proof-contrib-backend/internal/features/verification/attestation"
	"proof-contrib-backend/internal/features/verification/channel"
	"proof-contrib-backend/internal/features/verification/models"
	"proof-contrib-backend/internal/features/verification/recovery"
)

// Service drives verification sessions. One session per user at a time;
// results arriving for anything but the current session are discarded.
type Service struct {
	registry  SchemaRegistry
	selector  *channel.Selector
	attestor  Attestor
	relay     ProofFetcher
	normal    Normalizer
	submitter ContributionSubmitter
	taps      *recovery.TapRouter
	timings   Timings

	mu   sync.Mutex
	runs map[int64]*run
}

func NewService(
	registry SchemaRegistry,
	selector *channel.Selector,
	attestor Attestor,
	relay ProofFetcher,
	normal Normalizer,
	submitter ContributionSubmitter,
	taps *recovery.TapRouter,
	timings Timings,
) *Service {
	return &Service{
		registry:  registry,
		selector:  selector,
		attestor:  attestor,
		relay:     relay,
		normal:    normal,
		submitter: submitter,
		taps:      taps,
		timings:   timings.withDefaults(),
		runs:      make(map[int64]*run),
	}
}

// Start negotiates the delivery channel, initializes the attestation
// session and kicks off the awaiting loop. Returns once the request URL
// is known so the UI can render it.
func (s *Service) Start(ctx context.Context, userID int64, providerID, wallet string) (models.SessionView, error) {
	schema, err := s.registry.SchemaFor(providerID)
	if err != nil {
		return models.SessionView{}, err
	}

	s.mu.Lock()
	if cur, ok := s.runs[userID]; ok && !cur.terminal() {
		s.mu.Unlock()
		return models.SessionView{}, apperrors.NewSessionActiveError(cur.session.ProviderID).WithUserID(userID)
	}
	s.mu.Unlock()

	now := time.Now()
	sel := s.selector.Select(userID, providerID, now)
	sess := &models.VerificationSession{
		SessionID:  sel.SessionID,
		UserID:     userID,
		ProviderID: providerID,
		Channel:    sel.Channel,
		StartedAt:  now,
		Status:     models.StatusRequesting,
		Wallet:     wallet,
		TabVisible: true,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := newRun(sess, schema, sel, cancel)

	init, err := s.attestor.InitSession(ctx, attestation.InitRequest{
		TemplateID:  schema.VerificationTemplateID,
		SessionID:   sel.SessionID,
		CallbackURL: sel.CallbackURL,
	})
	if errors.Is(err, attestation.ErrCallbackRejected) {
		// The SDK refused the callback URL. Retry without one and stop
		// implying a polling channel nothing will ever arrive through.
		logger.Warn().Str("session_id", sel.SessionID).Msg("Callback URL rejected, falling back to direct channel")
		sel = channel.FallbackToDirect(sel)
		r.sel = sel
		sess.Channel = models.ChannelDirect
		init, err = s.attestor.InitSession(ctx, attestation.InitRequest{
			TemplateID: schema.VerificationTemplateID,
			SessionID:  sel.SessionID,
		})
	}
	if err != nil {
		cancel()
		return models.SessionView{}, apperrors.NewTransientNetworkError("verification init", err)
	}

	sess.RequestURL = init.RequestURL
	r.attID = init.AttestationID
	r.setStatus(models.StatusRequesting)

	s.mu.Lock()
	s.runs[userID] = r
	s.mu.Unlock()

	go s.awaitLoop(runCtx, r)

	logger.Info().
		Int64("user_id", userID).
		Str("provider_id", providerID).
		Str("session_id", sel.SessionID).
		Str("channel", string(sess.Channel)).
		Msg("Verification session started")

	return r.snapshot(), nil
}

// Status returns the current (or last terminal) session view.
func (s *Service) Status(userID int64) (models.SessionView, error) {
	s.mu.Lock()
	r, ok := s.runs[userID]
	s.mu.Unlock()
	if !ok {
		return models.SessionView{}, apperrors.NewSessionNotFoundError(userID)
	}
	return r.snapshot(), nil
}

// Cancel moves the current session straight to Failed(cancelled). An
// in-flight attestation request is not chased down; its late result is
// simply ignored because the loop has exited.
func (s *Service) Cancel(userID int64) error {
	s.mu.Lock()
	r, ok := s.runs[userID]
	s.mu.Unlock()
	if !ok {
		return apperrors.NewSessionNotFoundError(userID)
	}
	r.post(event{kind: evCancel})
	return nil
}

// SetVisibility records the client's page visibility. The deferred
// failure policy re-evaluates immediately when the tab comes back.
func (s *Service) SetVisibility(userID int64, visible bool) error {
	s.mu.Lock()
	r, ok := s.runs[userID]
	s.mu.Unlock()
	if !ok {
		return apperrors.NewSessionNotFoundError(userID)
	}
	r.post(event{kind: evVisibility, visible: visible})
	return nil
}

// Recover consumes a redirect-recovery fragment. It is decoupled from
// any live session: the page reloaded, so provider identity is
// reconstructed from hints inside the recovered proof itself.
func (s *Service) Recover(ctx context.Context, userID int64, fragment, wallet string) (models.SessionView, error) {
	res, err := recovery.ParseFragment(fragment)
	if err != nil {
		return models.SessionView{}, err
	}

	now := time.Now()
	view := models.SessionView{
		Channel:   models.ChannelRedirectRecovery,
		Status:    models.StatusFailed,
		StartedAt: now,
	}

	if res.ErrorReason != "" {
		appErr, refreshHint := reclassify(errors.New(res.ErrorReason), true)
		view.ErrorCode = string(appErr.Code)
		view.ErrorMessage = appErr.Message
		view.Retryable = appErr.IsRetryable()
		view.RefreshHint = refreshHint
		view.ResolvedAt = &now
		return view, nil
	}

	schema, ok := recovery.InferSchema(res.Proof, s.registry)
	if !ok {
		return models.SessionView{}, apperrors.NewProofMalformedError("redirect-recovery").
			WithDetail("reason", "no provider hints in recovered proof")
	}
	view.ProviderID = schema.ProviderID

	record, err := s.normal.Normalize(res.Proof, schema)
	if err != nil {
		return models.SessionView{}, err
	}

	result, err := s.submitter.Submit(ctx, userID, models.ContributionRequest{
		ProviderID:       schema.ProviderID,
		NormalizedRecord: record,
		ProofIdentifier:  s.normal.ProofIdentifier(res.Proof),
		Wallet:           wallet,
	})
	if err != nil {
		return models.SessionView{}, err
	}

	resolved := time.Now()
	view.Status = models.StatusSucceeded
	view.Points = result.PointsAwarded
	view.FieldsMatched = recordFields(record)
	view.ResolvedAt = &resolved

	logger.Info().
		Int64("user_id", userID).
		Str("provider_id", schema.ProviderID).
		Msg("Redirect-recovery contribution accepted")
	return view, nil
}

// Close cancels every live session. Used on shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()
	for _, r := range runs {
		r.cancel()
	}
}

// extractAndSubmit runs the Extracting and Submitting phases. Reports
// whether the session reached Succeeded.
func (s *Service) extractAndSubmit(ctx context.Context, r *run, envelope models.ProofEnvelope) bool {
	r.setStatus(models.StatusExtracting)

	record, err := s.normal.Normalize(envelope, r.schema)
	if err != nil {
		appErr, _ := apperrors.AsAppError(err)
		if appErr == nil {
			appErr = apperrors.NewProofMalformedError(r.schema.ProviderID)
		}
		s.fail(r, appErr, false)
		return false
	}

	r.setStatus(models.StatusSubmitting)

	result, err := s.submitter.Submit(ctx, r.session.UserID, models.ContributionRequest{
		ProviderID:       r.session.ProviderID,
		NormalizedRecord: record,
		ProofIdentifier:  s.normal.ProofIdentifier(envelope),
		Wallet:           r.session.Wallet,
	})
	if err != nil {
		appErr, _ := apperrors.AsAppError(err)
		if appErr == nil {
			appErr = apperrors.NewExternalAPIError("ledger", err)
		}
		s.fail(r, appErr, false)
		return false
	}

	s.succeed(r, result.PointsAwarded, recordFields(record))
	return true
}

func (s *Service) fail(r *run, appErr *apperrors.AppError, refreshHint bool) {
	now := time.Now()
	r.mu.Lock()
	if r.view.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.session.Status = models.StatusFailed
	r.view.Status = models.StatusFailed
	r.view.ErrorCode = string(appErr.Code)
	r.view.ErrorMessage = appErr.Message
	r.view.Retryable = appErr.IsRetryable()
	r.view.RefreshHint = refreshHint
	r.view.ResolvedAt = &now
	r.mu.Unlock()

	logger.Info().
		Str("session_id", r.session.SessionID).
		Str("provider_id", r.session.ProviderID).
		Str("error_code", string(appErr.Code)).
		Msg("Verification session failed")
}

func (s *Service) succeed(r *run, points float64, fields []string) {
	now := time.Now()
	r.mu.Lock()
	if r.view.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.session.Status = models.StatusSucceeded
	r.view.Status = models.StatusSucceeded
	r.view.Points = points
	r.view.FieldsMatched = fields
	r.view.ResolvedAt = &now
	r.mu.Unlock()

	logger.Info().
		Str("session_id", r.session.SessionID).
		Str("provider_id", r.session.ProviderID).
		Float64("points", points).
		Msg("Verification session succeeded")
}

func recordFields(record models.NormalizedRecord) []string {
	fields := make([]string, 0, len(record))
	for k := range record {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
