package call

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/code-100-precent/sipcall/internal/api"
	"github.com/code-100-precent/sipcall/internal/models"
	"github.com/code-100-precent/sipcall/pkg/logger"
)

// Backend is the slice of the API client the orchestrator drives.
// *api.Client satisfies it.
type Backend interface {
	InitiateCall(ctx context.Context, destination, callerID string, privacyMode bool) (*api.CallResponse, error)
	CallStatus(ctx context.Context, callID string) (*api.CallStatusResponse, error)
	Hangup(ctx context.Context, callID string) error
	SetMute(ctx context.Context, callID string, muted bool) error
	SetHold(ctx context.Context, callID string, hold bool) error
	CallHistory(ctx context.Context, limit, offset int, from, to *time.Time) (*api.CallHistoryPage, error)
	UserProfile(ctx context.Context) (*api.UserProfile, error)
}

// Journal receives terminal call outcomes. *models.CallJournal satisfies it.
type Journal interface {
	Record(entry models.CallJournalEntry) error
}

// Session is the current call. Owned by the orchestrator; snapshots carry
// copies.
type Session struct {
	CallID            string
	DestinationNumber string
	StartedAt         time.Time
	PrivacyMode       bool
}

// Options 编排器配置
type Options struct {
	PollInterval    time.Duration // status poll period, default 2s
	DurationTick    time.Duration // duration counter period, default 1s
	ResetDelay      time.Duration // grace delay before terminal -> idle, default 2s
	ErrorClearDelay time.Duration // banner lifetime, default 5s
	HistoryLimit    int           // page size for history refreshes, default 10
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.PollInterval <= 0 {
		out.PollInterval = 2 * time.Second
	}
	if out.DurationTick <= 0 {
		out.DurationTick = time.Second
	}
	if out.ResetDelay <= 0 {
		out.ResetDelay = 2 * time.Second
	}
	if out.ErrorClearDelay <= 0 {
		out.ErrorClearDelay = 5 * time.Second
	}
	if out.HistoryLimit <= 0 {
		out.HistoryLimit = 10
	}
	return out
}

// Snapshot is the read model handed to presentation layers.
type Snapshot struct {
	Status   Status
	Session  *Session // copy, nil when idle/terminal without session
	Duration int      // answered seconds
	Muted    bool
	OnHold   bool
	Error    string // last user-visible error, empty when none
	Busy     bool
	History  *api.CallHistoryPage // last fetched page, nil until loaded
}

// Orchestrator owns at most one call session and drives its state machine
// from user commands and backend polling. All state is guarded by mu; every
// timer callback re-checks the session generation so a tick that fires after
// a reset is a guaranteed no-op.
type Orchestrator struct {
	backend Backend
	journal Journal // optional
	opts    Options

	mu       sync.Mutex
	status   Status
	session  *Session
	duration int
	muted    bool
	onHold   bool
	lastErr  string
	busy     bool
	history  *api.CallHistoryPage

	gen          uint64 // bumped on session start and on reset
	errSeq       uint64
	pollFailures int
	quit         chan struct{} // closes to stop both tickers
}

// New builds an orchestrator in the idle state. journal may be nil.
func New(backend Backend, journal Journal, opts Options) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		journal: journal,
		opts:    opts.withDefaults(),
		status:  StatusIdle,
	}
}

// StartCall places a call. It rejects empty destinations and overlapping
// sessions locally, before any network traffic.
func (o *Orchestrator) StartCall(ctx context.Context, destination string, privacyMode bool) error {
	dest := strings.TrimSpace(destination)
	if dest == "" {
		err := &api.ValidationError{Message: "please enter a phone number"}
		o.reportError(err.Message)
		return err
	}

	o.mu.Lock()
	if o.session != nil || o.busy {
		o.mu.Unlock()
		return &api.ValidationError{Message: "a call is already in progress"}
	}
	o.busy = true
	o.clearErrorLocked()
	o.mu.Unlock()

	resp, err := o.backend.InitiateCall(ctx, dest, "", privacyMode)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	if err != nil {
		// No session was created, so there is nothing to poll; force the
		// terminal state and let the usual grace delay bring us back to idle.
		o.status = StatusFailed
		o.setErrorLocked("Failed to start call: " + err.Error())
		o.scheduleResetLocked()
		logger.Error("call initiation failed", zap.String("destination", dest), zap.Error(err))
		return err
	}

	status := Status(resp.Status)
	if status == "" {
		status = StatusInitiated
	}
	o.session = &Session{
		CallID:            resp.CallID,
		DestinationNumber: resp.DestinationNumber,
		StartedAt:         time.Now(),
		PrivacyMode:       privacyMode,
	}
	if o.session.DestinationNumber == "" {
		o.session.DestinationNumber = dest
	}
	o.status = status
	o.duration = 0
	o.muted = false
	o.onHold = false
	o.pollFailures = 0
	o.gen++
	o.startTimersLocked()
	logger.Info("call initiated", zap.String("callID", resp.CallID), zap.String("status", string(status)))
	return nil
}

// EndCall hangs up the current call. The transition to completed is
// optimistic: the user already decided to stop, so a hangup failure surfaces
// an error but does not resurrect the call.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil
	}
	callID := o.session.CallID
	o.busy = true
	o.mu.Unlock()

	err := o.backend.Hangup(ctx, callID)

	o.mu.Lock()
	o.busy = false
	if o.session == nil || o.session.CallID != callID || o.status.Terminal() {
		// Polling reached the terminal state while the hangup was in flight.
		o.mu.Unlock()
		return err
	}
	if err != nil {
		o.setErrorLocked("Failed to end call: " + err.Error())
		logger.Warn("hangup request failed", zap.String("callID", callID), zap.Error(err))
	}
	o.finishLocked(StatusCompleted)
	o.mu.Unlock()

	go o.refreshHistory()
	return err
}

// ToggleMute flips the mute flag. The flag only changes after the backend
// accepted the new state.
func (o *Orchestrator) ToggleMute(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil
	}
	callID := o.session.CallID
	next := !o.muted
	o.mu.Unlock()

	if err := o.backend.SetMute(ctx, callID, next); err != nil {
		o.reportError("Failed to toggle mute")
		logger.Warn("mute request failed", zap.String("callID", callID), zap.Error(err))
		return err
	}

	o.mu.Lock()
	if o.session != nil && o.session.CallID == callID {
		o.muted = next
	}
	o.mu.Unlock()
	return nil
}

// ToggleHold flips the hold flag and, on success, moves the status between
// answered and on_hold.
func (o *Orchestrator) ToggleHold(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil
	}
	callID := o.session.CallID
	next := !o.onHold
	o.mu.Unlock()

	if err := o.backend.SetHold(ctx, callID, next); err != nil {
		o.reportError("Failed to toggle hold")
		logger.Warn("hold request failed", zap.String("callID", callID), zap.Error(err))
		return err
	}

	o.mu.Lock()
	if o.session != nil && o.session.CallID == callID && !o.status.Terminal() {
		o.onHold = next
		if next {
			o.status = StatusOnHold
		} else {
			o.status = StatusAnswered
		}
	}
	o.mu.Unlock()
	return nil
}

// LoadHistory fetches a page of call history and keeps it on the snapshot.
func (o *Orchestrator) LoadHistory(ctx context.Context, limit int) (*api.CallHistoryPage, error) {
	if limit <= 0 {
		limit = o.opts.HistoryLimit
	}
	page, err := o.backend.CallHistory(ctx, limit, 0, nil, nil)
	if err != nil {
		o.reportError("Failed to load call history")
		return nil, err
	}
	o.mu.Lock()
	o.history = page
	o.mu.Unlock()
	return page, nil
}

// Profile returns the authenticated user's profile.
func (o *Orchestrator) Profile(ctx context.Context) (*api.UserProfile, error) {
	return o.backend.UserProfile(ctx)
}

// Snapshot returns a copy of the presentation-facing state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		Status:   o.status,
		Duration: o.duration,
		Muted:    o.muted,
		OnHold:   o.onHold,
		Error:    o.lastErr,
		Busy:     o.busy,
		History:  o.history,
	}
	if o.session != nil {
		s := *o.session
		snap.Session = &s
	}
	return snap
}

// Close stops any running timers. The orchestrator is not reusable after.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.stopTimersLocked()
}

// pollOnce is one iteration of the status poll. A stale generation or a
// missing session makes it a no-op, whatever the timers are doing.
func (o *Orchestrator) pollOnce(ctx context.Context, gen uint64) {
	o.mu.Lock()
	if gen != o.gen || o.session == nil || o.status.Terminal() {
		o.mu.Unlock()
		return
	}
	callID := o.session.CallID
	o.mu.Unlock()

	st, err := o.backend.CallStatus(ctx, callID)

	o.mu.Lock()
	if gen != o.gen || o.session == nil || o.status.Terminal() {
		o.mu.Unlock()
		return
	}
	if err != nil {
		// A single failed poll is a blip; two in a row means the call is
		// unobservable and gets forced to failed.
		o.pollFailures++
		logger.Warn("status poll failed",
			zap.String("callID", callID),
			zap.Int("consecutive", o.pollFailures),
			zap.Error(err))
		if o.pollFailures >= 2 {
			o.setErrorLocked("Lost contact with the call server")
			o.finishLocked(StatusFailed)
			o.mu.Unlock()
			go o.refreshHistory()
			return
		}
		o.mu.Unlock()
		return
	}
	o.pollFailures = 0

	next := Status(st.Status)
	if next == o.status {
		o.mu.Unlock()
		return
	}
	if next.Terminal() {
		o.finishLocked(next)
		o.mu.Unlock()
		go o.refreshHistory()
		return
	}
	o.status = next
	o.mu.Unlock()
}

// durationTick advances the duration counter. Only answered time counts:
// ringing and hold seconds are not call duration.
func (o *Orchestrator) durationTick(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.session == nil {
		return
	}
	if o.status == StatusAnswered {
		o.duration++
	}
}

// finishLocked moves the session to a terminal status, stops both timers,
// writes the journal entry and schedules the reset to idle. Callers hold mu.
func (o *Orchestrator) finishLocked(status Status) {
	o.status = status
	o.stopTimersLocked()
	o.recordJournalLocked(status)
	o.scheduleResetLocked()
	logger.Info("call finished", zap.String("status", string(status)))
}

// recordJournalLocked appends the terminal outcome to the local journal.
// Privacy-mode sessions are ephemeral and leave no local trace.
func (o *Orchestrator) recordJournalLocked(status Status) {
	if o.journal == nil || o.session == nil || o.session.PrivacyMode {
		return
	}
	started := o.session.StartedAt
	ended := time.Now()
	entry := models.CallJournalEntry{
		CallID:            o.session.CallID,
		DestinationNumber: o.session.DestinationNumber,
		Status:            string(status),
		StartedAt:         &started,
		EndedAt:           &ended,
		DurationSec:       int64(o.duration),
	}
	go func() {
		if err := o.journal.Record(entry); err != nil {
			logger.Warn("journal write failed", zap.String("callID", entry.CallID), zap.Error(err))
		}
	}()
}

// scheduleResetLocked arms the terminal -> idle transition. The grace delay
// lets the presentation layer show the outcome before state clears.
func (o *Orchestrator) scheduleResetLocked() {
	gen := o.gen
	time.AfterFunc(o.opts.ResetDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if gen != o.gen {
			return
		}
		o.resetLocked()
	})
}

// resetLocked clears the session and returns to idle. Callers hold mu.
func (o *Orchestrator) resetLocked() {
	o.gen++
	o.stopTimersLocked()
	o.session = nil
	o.status = StatusIdle
	o.duration = 0
	o.muted = false
	o.onHold = false
	o.pollFailures = 0
}

// startTimersLocked launches the poll and duration tickers for the current
// generation. Callers hold mu.
func (o *Orchestrator) startTimersLocked() {
	o.stopTimersLocked()
	quit := make(chan struct{})
	o.quit = quit
	gen := o.gen

	go func() {
		t := time.NewTicker(o.opts.PollInterval)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				o.pollOnce(context.Background(), gen)
			}
		}
	}()

	go func() {
		t := time.NewTicker(o.opts.DurationTick)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				o.durationTick(gen)
			}
		}
	}()
}

func (o *Orchestrator) stopTimersLocked() {
	if o.quit != nil {
		close(o.quit)
		o.quit = nil
	}
}

func (o *Orchestrator) refreshHistory() {
	page, err := o.backend.CallHistory(context.Background(), o.opts.HistoryLimit, 0, nil, nil)
	if err != nil {
		logger.Warn("history refresh failed", zap.Error(err))
		return
	}
	o.mu.Lock()
	o.history = page
	o.mu.Unlock()
}

// reportError publishes a user-visible error banner that clears itself.
func (o *Orchestrator) reportError(msg string) {
	o.mu.Lock()
	o.setErrorLocked(msg)
	o.mu.Unlock()
}

func (o *Orchestrator) setErrorLocked(msg string) {
	o.lastErr = msg
	o.errSeq++
	seq := o.errSeq
	time.AfterFunc(o.opts.ErrorClearDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if seq == o.errSeq {
			o.lastErr = ""
		}
	})
}

func (o *Orchestrator) clearErrorLocked() {
	o.lastErr = ""
	o.errSeq++
}
