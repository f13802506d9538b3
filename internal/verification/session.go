// Package verification implements the signup phone verification flow: a
// finite state machine driven by backend responses and a one-second countdown.
package verification

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/client"
	"github.com/ulma/ulma/internal/logging"
)

// DefaultWindow is how long a sent code stays valid.
const DefaultWindow = 180 * time.Second

type Status int

const (
	Idle Status = iota
	CodeSent
	Verifying
	Verified
	Expired
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case CodeSent:
		return "code_sent"
	case Verifying:
		return "verifying"
	case Verified:
		return "verified"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender is the backend half of the flow. *client.Client implements it.
type Sender interface {
	RequestPhoneCode(ctx context.Context, phoneNumber string) error
	VerifyPhoneCode(ctx context.Context, phoneNumber, code string) error
}

// Ticker delivers countdown ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	PhoneNumber      string
	Code             string
	Status           Status
	SecondsRemaining int
	Err              string
}

type Option func(*Session)

// WithWindow overrides the countdown length. It is truncated to whole seconds.
func WithWindow(d time.Duration) Option {
	return func(s *Session) { s.window = int(d / time.Second) }
}

// WithTicker replaces the clock driving the countdown.
func WithTicker(fn TickerFunc) Option {
	return func(s *Session) { s.newTicker = fn }
}

// WithTickInterval sets the real duration of one countdown second.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// OnChange registers fn to run after every transition and tick. It is called
// without the session lock held.
func OnChange(fn func(Snapshot)) Option {
	return func(s *Session) { s.onChange = fn }
}

// Session is one verification flow, owned by a single screen.
type Session struct {
	mu        sync.Mutex
	sender    Sender
	logger    *logrus.Logger
	window    int
	interval  time.Duration
	newTicker TickerFunc
	onChange  func(Snapshot)

	phone     string
	code      string
	status    Status
	remaining int
	lastErr   string
	sending   bool
	closed    bool

	// gen invalidates responses of requests issued before a Reset or Close.
	gen       uint64
	timerID   uint64
	stopTimer func()
}

func NewSession(sender Sender, opts ...Option) *Session {
	s := &Session{
		sender:    sender,
		logger:    logging.Discard(),
		window:    int(DefaultWindow / time.Second),
		interval:  time.Second,
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCode sends a verification code to rawPhone. On success the session
// moves to CodeSent and the countdown restarts.
func (s *Session) RequestCode(ctx context.Context, rawPhone string) error {
	phone, verr := NormalizePhoneNumber(rawPhone)

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if verr != nil {
		s.lastErr = verr.Error()
		s.unlockAndNotify()
		return verr
	}
	if s.sending || s.status == Verifying {
		s.mu.Unlock()
		return client.ErrInFlight
	}
	s.sending = true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	err := s.sender.RequestPhoneCode(ctx, phone)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return client.ErrStale
	}
	s.sending = false

	if err != nil {
		mapped := mapSendError(err)
		if !s.codeLiveLocked() {
			s.status = Failed
		}
		s.lastErr = mapped.Error()
		s.logger.WithError(err).WithField("phone", phone).Warn("Failed to send verification code")
		s.unlockAndNotify()
		return mapped
	}

	s.phone = phone
	s.code = ""
	s.status = CodeSent
	s.remaining = s.window
	s.lastErr = ""
	s.startTimerLocked()
	s.logger.WithField("phone", phone).Debug("Verification code sent")
	s.unlockAndNotify()
	return nil
}

// SubmitCode verifies code against the backend. It fails with
// client.ErrExpired once the countdown has reached zero.
func (s *Session) SubmitCode(ctx context.Context, code string) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	switch {
	case s.status == Idle || s.status == Failed:
		s.mu.Unlock()
		return client.NewValidationError("verificationCode", "request a verification code first")
	case s.sending || s.status == Verifying:
		s.mu.Unlock()
		return client.ErrInFlight
	case s.status == Expired || s.remaining == 0:
		s.status = Expired
		s.lastErr = client.ErrExpired.Error()
		s.unlockAndNotify()
		return client.ErrExpired
	}

	code = strings.TrimSpace(code)
	if code == "" {
		s.mu.Unlock()
		return client.NewValidationError("verificationCode", "enter the code you received")
	}

	s.code = code
	s.status = Verifying
	s.gen++
	gen := s.gen
	phone := s.phone
	s.unlockAndNotify()

	err := s.sender.VerifyPhoneCode(ctx, phone, code)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return client.ErrStale
	}

	if err == nil {
		s.status = Verified
		s.lastErr = ""
		s.stopTimerLocked()
		s.logger.WithField("phone", phone).Info("Phone number verified")
		s.unlockAndNotify()
		return nil
	}

	mapped := mapVerifyError(err)
	if s.remaining == 0 {
		s.status = Expired
	} else {
		s.status = CodeSent
	}
	s.lastErr = mapped.Error()
	s.logger.WithError(err).WithField("phone", phone).Debug("Verification rejected")
	s.unlockAndNotify()
	return mapped
}

// Tick advances the countdown by one second. The internal timer calls it;
// tests and callers with their own clock may too.
func (s *Session) Tick() {
	s.mu.Lock()
	if !s.tickLocked() {
		s.mu.Unlock()
		return
	}
	s.unlockAndNotify()
}

// Reset returns the session to Idle, clearing phone, code and countdown.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopTimerLocked()
	s.phone = ""
	s.code = ""
	s.status = Idle
	s.remaining = 0
	s.lastErr = ""
	s.sending = false
	s.unlockAndNotify()
}

// Close tears the session down. Responses still in flight are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen++
	s.stopTimerLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// VerifiedPhone returns the verified number, or "" before verification.
func (s *Session) VerifiedPhone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Verified {
		return ""
	}
	return s.phone
}

func (s *Session) guardLocked() error {
	if s.closed {
		return client.ErrClosed
	}
	if s.status == Verified {
		return client.ErrVerifiedLocked
	}
	return nil
}

func (s *Session) codeLiveLocked() bool {
	return (s.status == CodeSent || s.status == Verifying) && s.remaining > 0
}

func (s *Session) tickLocked() bool {
	if s.status != CodeSent && s.status != Verifying {
		return false
	}
	if s.remaining == 0 {
		return false
	}
	s.remaining--
	if s.remaining == 0 {
		if s.status == CodeSent {
			s.status = Expired
			s.lastErr = client.ErrExpired.Error()
		}
		s.stopTimerLocked()
	}
	return true
}

func (s *Session) startTimerLocked() {
	s.stopTimerLocked()

	s.timerID++
	id := s.timerID
	ticker := s.newTicker(s.interval)
	done := make(chan struct{})

	var once sync.Once
	s.stopTimer = func() {
		once.Do(func() {
			close(done)
			ticker.Stop()
		})
	}

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				s.timerTick(id)
			}
		}
	}()
}

// timerTick applies a tick from timer id, ignoring ticks from a timer that
// has since been replaced.
func (s *Session) timerTick(id uint64) {
	s.mu.Lock()
	if id != s.timerID || !s.tickLocked() {
		s.mu.Unlock()
		return
	}
	s.unlockAndNotify()
}

func (s *Session) stopTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		PhoneNumber:      s.phone,
		Code:             s.code,
		Status:           s.status,
		SecondsRemaining: s.remaining,
		Err:              s.lastErr,
	}
}

func (s *Session) unlockAndNotify() {
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func mapSendError(err error) error {
	if client.StatusCode(err) == http.StatusConflict {
		return client.ErrDuplicateResource
	}
	return client.Unknown(err)
}

func mapVerifyError(err error) error {
	switch client.StatusCode(err) {
	case http.StatusBadRequest:
		return client.ErrCodeMismatch
	case http.StatusNotFound:
		return client.ErrCodeNotFound
	}
	return client.Unknown(err)
}
