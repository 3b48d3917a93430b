package recovery

import "sync"

// TapRouter is the long-lived writer handed to the attestation client.
// The state machine attaches a fresh DiagnosticTap for the duration of
// one AwaitingProof phase and detaches it after; writes outside any
// phase fall through unobserved.
type TapRouter struct {
	mu     sync.Mutex
	active *DiagnosticTap
}

func NewTapRouter() *TapRouter {
	return &TapRouter{}
}

func (r *TapRouter) Attach(t *DiagnosticTap) {
	r.mu.Lock()
	r.active = t
	r.mu.Unlock()
}

// Detach removes t only if it is still the active tap, so a stale
// detach cannot drop a newer session's listener.
func (r *TapRouter) Detach(t *DiagnosticTap) {
	r.mu.Lock()
	if r.active == t {
		r.active = nil
	}
	r.mu.Unlock()
}

func (r *TapRouter) Write(p []byte) (int, error) {
	r.mu.Lock()
	t := r.active
	r.mu.Unlock()
	if t != nil {
		return t.Write(p)
	}
	return len(p), nil
}
