package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatwire/chatwire-go/contracts"
)

// Mode selects which path carries chat traffic.
type Mode string

const (
	// ModeLegacyOnly routes everything through the legacy path.
	ModeLegacyOnly Mode = "legacy_only"
	// ModeAdapterOnly routes everything through the enterprise adapter.
	ModeAdapterOnly Mode = "adapter_only"
	// ModeHybrid consults the useEnterpriseAdapter feature flag per call.
	ModeHybrid Mode = "hybrid"
)

// FeatureFlags gate the hybrid decision.
type FeatureFlags struct {
	UseEnterpriseAdapter bool
}

// Sender is the adapter surface the migration router drives. Both the
// legacy and the enterprise chat adapters implement it.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, msg contracts.ChatMessage) error
	SendTypingIndicator(ctx context.Context, chatID, userID string, isTyping bool) error
	SendOnlineStatus(ctx context.Context, userID string, isOnline bool) error
	UpdatePresence(ctx context.Context, presence contracts.PresenceUpdate) error
}

// PerformanceMetrics holds the comparative latency and volume figures the
// cutover recommendation is based on. Latencies use (old+new)/2 smoothing:
// a deliberate simple exponential-style average, not a true mean.
type PerformanceMetrics struct {
	EnterpriseLatency time.Duration `json:"enterpriseLatency"`
	LegacyLatency     time.Duration `json:"legacyLatency"`
	MessageCount      int64         `json:"messageCount"`
	ErrorCount        int64         `json:"errorCount"`
}

// State is a snapshot of the migration router.
type State struct {
	Mode                 Mode               `json:"mode"`
	IsUsingEnterprise    bool               `json:"isUsingEnterprise"`
	IsFallbackActive     bool               `json:"isFallbackActive"`
	MigrationErrors      []string           `json:"migrationErrors"`
	Performance          PerformanceMetrics `json:"performanceMetrics"`
	EnterpriseSent       int64              `json:"enterpriseMessagesSent"`
	LegacySent           int64              `json:"legacyMessagesSent"`
	FallbackActivations  int64              `json:"fallbackActivations"`
	LastMigrationEvent   string             `json:"lastMigrationEvent"`
	LastMigrationAttempt time.Time          `json:"lastMigrationAttempt"`
}

// Recommendations is the advisory output of the migration analysis. It
// never triggers a mode switch by itself; switching is always an explicit
// SwitchMode call.
type Recommendations struct {
	CanSwitchToAdapter bool     `json:"canSwitchToAdapter"`
	RecommendedMode    Mode     `json:"recommendedMode"`
	Issues             []string `json:"issues"`
	Benefits           []string `json:"benefits"`
}

// maxRecordedErrors bounds the migration error log.
const maxRecordedErrors = 50

// Router chooses between the legacy and enterprise chat paths, falls back
// to legacy when an enterprise send fails, and tracks comparative metrics.
//
// Fallback is single-shot, one-directional and sticky: a failed enterprise
// send gets exactly one legacy retry, and once fallback activates the
// enterprise path stays inactive until an explicit SwitchMode call.
type Router struct {
	legacy     Sender
	enterprise Sender
	logger     *slog.Logger

	mu                   sync.Mutex
	mode                 Mode
	flags                FeatureFlags
	enableLegacyFallback bool
	fallbackActive       bool
	migrationErrors      []string
	perf                 PerformanceMetrics
	enterpriseSent       int64
	legacySent           int64
	fallbackActivations  int64
	lastMigrationEvent   string
	lastMigrationAttempt time.Time
}

// RouterOption configures the migration Router.
type RouterOption func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMode sets the initial mode (default hybrid).
func WithMode(mode Mode) RouterOption {
	return func(r *Router) {
		r.mode = mode
	}
}

// WithFeatureFlags sets the initial feature flags.
func WithFeatureFlags(flags FeatureFlags) RouterOption {
	return func(r *Router) {
		r.flags = flags
	}
}

// WithLegacyFallback enables or disables the single-shot legacy fallback
// (default enabled).
func WithLegacyFallback(enabled bool) RouterOption {
	return func(r *Router) {
		r.enableLegacyFallback = enabled
	}
}

// NewRouter creates a migration router over a legacy sender and an
// optional enterprise sender (nil when no enterprise adapter exists).
func NewRouter(legacy, enterprise Sender, options ...RouterOption) (*Router, error) {
	if legacy == nil {
		return nil, fmt.Errorf("legacy sender cannot be nil")
	}

	r := &Router{
		legacy:               legacy,
		enterprise:           enterprise,
		logger:               slog.Default(),
		mode:                 ModeHybrid,
		enableLegacyFallback: true,
	}

	for _, opt := range options {
		opt(r)
	}

	return r, nil
}

// ShouldUseAdapter is the pure decision function over mode and flags. It
// performs no I/O, so every send decision is made before any network call.
// Sticky fallback is applied on top of this decision by the send path, not
// inside it.
func (r *Router) ShouldUseAdapter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shouldUseAdapterLocked()
}

func (r *Router) shouldUseAdapterLocked() bool {
	switch r.mode {
	case ModeLegacyOnly:
		return false
	case ModeAdapterOnly:
		return true
	default:
		return r.flags.UseEnterpriseAdapter
	}
}

// SetFeatureFlag flips the hybrid decision flag. Takes effect on the next
// send with no re-initialization.
func (r *Router) SetFeatureFlag(useEnterpriseAdapter bool) {
	r.mu.Lock()
	r.flags.UseEnterpriseAdapter = useEnterpriseAdapter
	r.mu.Unlock()
}

// SendMessage routes a message send. On enterprise failure it retries
// exactly once via the legacy path when fallback is enabled, activating
// sticky fallback. If fallback is disabled or no legacy retry is possible,
// the original error propagates.
func (r *Router) SendMessage(ctx context.Context, chatID string, msg contracts.ChatMessage) error {
	useEnterprise := r.useEnterpriseForSend()

	start := time.Now()
	if useEnterprise {
		err := r.enterprise.SendMessage(ctx, chatID, msg)
		elapsed := time.Since(start)
		if err == nil {
			r.recordEnterpriseSuccess(elapsed)
			return nil
		}
		r.recordMigrationError(fmt.Sprintf("enterprise send failed: %v", err))

		if !r.fallbackAllowed() {
			return err
		}

		r.activateFallback(err)
		fallbackStart := time.Now()
		if ferr := r.legacy.SendMessage(ctx, chatID, msg); ferr != nil {
			r.recordMigrationError(fmt.Sprintf("legacy fallback send failed: %v", ferr))
			return ferr
		}
		r.recordLegacySuccess(time.Since(fallbackStart))
		return nil
	}

	err := r.legacy.SendMessage(ctx, chatID, msg)
	elapsed := time.Since(start)
	if err == nil {
		r.recordLegacySuccess(elapsed)
		return nil
	}
	r.recordMigrationError(fmt.Sprintf("legacy send failed: %v", err))

	if !r.fallbackAllowed() {
		return err
	}

	// one unconditional legacy retry, mirroring the enterprise fallback
	retryStart := time.Now()
	if rerr := r.legacy.SendMessage(ctx, chatID, msg); rerr != nil {
		r.recordMigrationError(fmt.Sprintf("legacy retry send failed: %v", rerr))
		return rerr
	}
	r.mu.Lock()
	r.fallbackActivations++
	r.mu.Unlock()
	r.recordLegacySuccess(time.Since(retryStart))
	return nil
}

// SendTypingIndicator routes a typing signal. Degrades silently: loss of
// presence signaling is non-fatal and never reaches the caller.
func (r *Router) SendTypingIndicator(ctx context.Context, chatID, userID string, isTyping bool) error {
	sender := r.pickSender()
	if err := sender.SendTypingIndicator(ctx, chatID, userID, isTyping); err != nil {
		r.recordMigrationError(fmt.Sprintf("typing indicator failed: %v", err))
		r.logger.Debug("typing indicator dropped", "chatId", chatID, "error", err)
	}
	return nil
}

// SendOnlineStatus routes an online status signal, degrading silently.
func (r *Router) SendOnlineStatus(ctx context.Context, userID string, isOnline bool) error {
	sender := r.pickSender()
	if err := sender.SendOnlineStatus(ctx, userID, isOnline); err != nil {
		r.recordMigrationError(fmt.Sprintf("online status failed: %v", err))
		r.logger.Debug("online status dropped", "userId", userID, "error", err)
	}
	return nil
}

// UpdatePresence routes a presence update, degrading silently.
func (r *Router) UpdatePresence(ctx context.Context, presence contracts.PresenceUpdate) error {
	sender := r.pickSender()
	if err := sender.UpdatePresence(ctx, presence); err != nil {
		r.recordMigrationError(fmt.Sprintf("presence update failed: %v", err))
		r.logger.Debug("presence update dropped", "userId", presence.UserID, "error", err)
	}
	return nil
}

// useEnterpriseForSend applies sticky fallback on top of the pure decision
// and requires an enterprise sender to exist.
func (r *Router) useEnterpriseForSend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shouldUseAdapterLocked() && !r.fallbackActive && r.enterprise != nil
}

func (r *Router) pickSender() Sender {
	if r.useEnterpriseForSend() {
		return r.enterprise
	}
	return r.legacy
}

func (r *Router) fallbackAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enableLegacyFallback && r.legacy != nil
}

// activateFallback marks fallback active. It stays active until an
// explicit SwitchMode call; successful sends never clear it.
func (r *Router) activateFallback(cause error) {
	r.mu.Lock()
	already := r.fallbackActive
	r.fallbackActive = true
	r.fallbackActivations++
	r.lastMigrationEvent = fmt.Sprintf("fallback activated: %v", cause)
	r.mu.Unlock()

	if !already {
		r.logger.Warn("enterprise path failed, sticky fallback to legacy activated", "error", cause)
	}
}

func (r *Router) recordEnterpriseSuccess(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enterpriseSent++
	r.perf.MessageCount++
	if r.perf.EnterpriseLatency == 0 {
		r.perf.EnterpriseLatency = elapsed
	} else {
		r.perf.EnterpriseLatency = (r.perf.EnterpriseLatency + elapsed) / 2
	}
}

func (r *Router) recordLegacySuccess(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legacySent++
	r.perf.MessageCount++
	if r.perf.LegacyLatency == 0 {
		r.perf.LegacyLatency = elapsed
	} else {
		r.perf.LegacyLatency = (r.perf.LegacyLatency + elapsed) / 2
	}
}

func (r *Router) recordMigrationError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perf.ErrorCount++
	r.migrationErrors = append(r.migrationErrors, message)
	if len(r.migrationErrors) > maxRecordedErrors {
		r.migrationErrors = r.migrationErrors[len(r.migrationErrors)-maxRecordedErrors:]
	}
}

// SwitchMode sets the routing mode and clears sticky fallback. Re-entrant:
// safe to call repeatedly with the same mode.
func (r *Router) SwitchMode(newMode Mode) {
	r.mu.Lock()
	previous := r.mode
	r.mode = newMode
	r.fallbackActive = false
	r.lastMigrationAttempt = time.Now().UTC()
	r.lastMigrationEvent = fmt.Sprintf("mode switched from %s to %s", previous, newMode)
	r.mu.Unlock()

	r.logger.Info("migration mode switched", "from", previous, "to", newMode)
}

// State returns a snapshot of the migration state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	errs := make([]string, len(r.migrationErrors))
	copy(errs, r.migrationErrors)

	return State{
		Mode:                 r.mode,
		IsUsingEnterprise:    r.shouldUseAdapterLocked() && !r.fallbackActive && r.enterprise != nil,
		IsFallbackActive:     r.fallbackActive,
		MigrationErrors:      errs,
		Performance:          r.perf,
		EnterpriseSent:       r.enterpriseSent,
		LegacySent:           r.legacySent,
		FallbackActivations:  r.fallbackActivations,
		LastMigrationEvent:   r.lastMigrationEvent,
		LastMigrationAttempt: r.lastMigrationAttempt,
	}
}

// Recommendations analyzes current metrics and returns advisory cutover
// guidance. Pure over the snapshot: it never mutates state and never
// switches modes.
func (r *Router) Recommendations() Recommendations {
	state := r.State()

	rec := Recommendations{RecommendedMode: ModeHybrid}

	if r.enterprise == nil {
		rec.Issues = append(rec.Issues, "no enterprise adapter configured")
		rec.RecommendedMode = ModeLegacyOnly
		return rec
	}

	if state.IsFallbackActive {
		rec.Issues = append(rec.Issues, "legacy fallback is active; enterprise path failed and requires an explicit mode switch")
	}
	if state.Performance.ErrorCount > 0 {
		rec.Issues = append(rec.Issues, fmt.Sprintf("%d migration errors recorded", state.Performance.ErrorCount))
	}
	if state.Performance.EnterpriseLatency > 0 && state.Performance.LegacyLatency > 0 {
		if state.Performance.EnterpriseLatency > state.Performance.LegacyLatency {
			rec.Issues = append(rec.Issues, fmt.Sprintf(
				"enterprise latency %s exceeds legacy latency %s",
				state.Performance.EnterpriseLatency, state.Performance.LegacyLatency))
		} else {
			rec.Benefits = append(rec.Benefits, fmt.Sprintf(
				"enterprise latency %s is at or below legacy latency %s",
				state.Performance.EnterpriseLatency, state.Performance.LegacyLatency))
		}
	}
	if state.Performance.ErrorCount == 0 && state.EnterpriseSent > 0 {
		rec.Benefits = append(rec.Benefits, fmt.Sprintf(
			"%d enterprise messages sent without errors", state.EnterpriseSent))
	}

	rec.CanSwitchToAdapter = len(rec.Issues) == 0
	if rec.CanSwitchToAdapter {
		rec.RecommendedMode = ModeAdapterOnly
	}
	return rec
}
