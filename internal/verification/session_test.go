package verification

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ulma/ulma/internal/client"
)

type fakeSender struct {
	mu          sync.Mutex
	sendErr     error
	verifyErr   error
	sendCalls   int
	verifyCalls int
	lastPhone   string
	lastCode    string
	// block, when set, holds every call until it is closed.
	block chan struct{}
}

func (f *fakeSender) RequestPhoneCode(ctx context.Context, phoneNumber string) error {
	f.mu.Lock()
	f.sendCalls++
	f.lastPhone = phoneNumber
	block := f.block
	err := f.sendErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeSender) VerifyPhoneCode(ctx context.Context, phoneNumber, code string) error {
	f.mu.Lock()
	f.verifyCalls++
	f.lastPhone = phoneNumber
	f.lastCode = code
	block := f.block
	err := f.verifyErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeSender) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls, f.verifyCalls
}

// idleTicker never fires; tests drive the countdown with Session.Tick.
type idleTicker struct{ c chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.c }
func (t idleTicker) Stop()               {}

func manualClock(time.Duration) Ticker {
	return idleTicker{c: make(chan time.Time)}
}

func newTestSession(sender Sender, opts ...Option) *Session {
	opts = append([]Option{WithTicker(manualClock)}, opts...)
	return NewSession(sender, opts...)
}

func TestRequestCodeStartsCountdown(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	defer s.Close()

	if err := s.RequestCode(context.Background(), "010-1234-5678"); err != nil {
		t.Fatalf("request code: %v", err)
	}

	snap := s.Snapshot()
	if snap.Status != CodeSent {
		t.Fatalf("expected code_sent, got %s", snap.Status)
	}
	if snap.SecondsRemaining != 180 {
		t.Fatalf("expected 180 seconds, got %d", snap.SecondsRemaining)
	}
	if sender.lastPhone != "01012345678" {
		t.Fatalf("expected normalized phone, got %q", sender.lastPhone)
	}
}

func TestRequestCodeRejectsWrongLengthWithoutNetwork(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	defer s.Close()

	for _, phone := range []string{"", "010-1234-567", "010-1234-56789", "phone", "+82 10 1234 5678"} {
		err := s.RequestCode(context.Background(), phone)
		var verr *client.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%q: expected validation error, got %v", phone, err)
		}
	}

	if sends, _ := sender.calls(); sends != 0 {
		t.Fatalf("expected no network calls, got %d", sends)
	}
	if s.Status() != Idle {
		t.Fatalf("expected idle, got %s", s.Status())
	}
}

func TestRequestCodeDuplicateNumber(t *testing.T) {
	sender := &fakeSender{sendErr: &client.APIError{StatusCode: http.StatusConflict}}
	s := newTestSession(sender)
	defer s.Close()

	err := s.RequestCode(context.Background(), "01012345678")
	if !errors.Is(err, client.ErrDuplicateResource) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if s.Status() != Failed {
		t.Fatalf("expected failed, got %s", s.Status())
	}
}

func TestRequestCodeGenericFailure(t *testing.T) {
	sender := &fakeSender{sendErr: &client.APIError{StatusCode: http.StatusInternalServerError}}
	s := newTestSession(sender)
	defer s.Close()

	err := s.RequestCode(context.Background(), "01012345678")
	var unknown *client.UnknownNetworkError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected unknown network error, got %v", err)
	}
	if unknown.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", unknown.StatusCode)
	}
}

func TestFailedResendKeepsLiveCode(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	defer s.Close()
	ctx := context.Background()

	if err := s.RequestCode(ctx, "01012345678"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	s.Tick()

	sender.sendErr = &client.APIError{StatusCode: http.StatusBadGateway}
	if err := s.RequestCode(ctx, "01012345678"); err == nil {
		t.Fatal("expected resend failure")
	}

	snap := s.Snapshot()
	if snap.Status != CodeSent || snap.SecondsRemaining != 179 {
		t.Fatalf("expected live code untouched, got %+v", snap)
	}
}

func TestSubmitCodeStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		want   error
		status Status
	}{
		{"mismatch", &client.APIError{StatusCode: http.StatusBadRequest}, client.ErrCodeMismatch, CodeSent},
		{"not found", &client.APIError{StatusCode: http.StatusNotFound}, client.ErrCodeNotFound, CodeSent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{verifyErr: tc.err}
			s := newTestSession(sender)
			defer s.Close()
			ctx := context.Background()

			if err := s.RequestCode(ctx, "01012345678"); err != nil {
				t.Fatalf("request code: %v", err)
			}
			err := s.SubmitCode(ctx, "123456")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			snap := s.Snapshot()
			if snap.Status != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, snap.Status)
			}
			if snap.Err == "" {
				t.Fatal("expected error message to be recorded")
			}
		})
	}
}

func TestSubmitCodeUnknownFailureLeavesState(t *testing.T) {
	sender := &fakeSender{verifyErr: &client.APIError{StatusCode: http.StatusServiceUnavailable}}
	s := newTestSession(sender)
	defer s.Close()
	ctx := context.Background()

	if err := s.RequestCode(ctx, "01012345678"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	err := s.SubmitCode(ctx, "123456")
	var unknown *client.UnknownNetworkError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected unknown network error, got %v", err)
	}
	if s.Status() != CodeSent {
		t.Fatalf("expected code_sent, got %s", s.Status())
	}
}

func TestSubmitCodeVerifiesAndLocks(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	defer s.Close()
	ctx := context.Background()

	if err := s.RequestCode(ctx, "01012345678"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if err := s.SubmitCode(ctx, " 123456 "); err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if s.Status() != Verified {
		t.Fatalf("expected verified, got %s", s.Status())
	}
	if sender.lastCode != "123456" {
		t.Fatalf("expected trimmed code, got %q", sender.lastCode)
	}
	if s.VerifiedPhone() != "01012345678" {
		t.Fatalf("unexpected verified phone %q", s.VerifiedPhone())
	}

	if err := s.RequestCode(ctx, "01099998888"); !errors.Is(err, client.ErrVerifiedLocked) {
		t.Fatalf("expected locked error on resend, got %v", err)
	}
	if err := s.SubmitCode(ctx, "000000"); !errors.Is(err, client.ErrVerifiedLocked) {
		t.Fatalf("expected locked error on submit, got %v", err)
	}

	// Ticks after verification are ignored.
	remaining := s.Snapshot().SecondsRemaining
	s.Tick()
	if s.Snapshot().SecondsRemaining != remaining {
		t.Fatal("countdown moved after verification")
	}

	s.Reset()
	if s.Status() != Idle || s.Snapshot().PhoneNumber != "" {
		t.Fatalf("reset did not clear session: %+v", s.Snapshot())
	}
	if err := s.RequestCode(ctx, "01099998888"); err != nil {
		t.Fatalf("request after reset: %v", err)
	}
}

func TestCountdownExpiresAfterWindow(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	defer s.Close()
	ctx := context.Background()

	if err := s.RequestCode(ctx, "010-1234-5678"); err != nil {
		t.Fatalf("request code: %v", err)
	}

	for i := 0; i < 179; i++ {
		s.Tick()
	}
	if snap := s.Snapshot(); snap.Status != CodeSent || snap.SecondsRemaining != 1 {
		t.Fatalf("expected one second left, got %+v", snap)
	}

	s.Tick()
	if snap := s.Snapshot(); snap.Status != Expired || snap.SecondsRemaining != 0 {
		t.Fatalf("expected expired, got %+v", snap)
	}

	// Correct or not, the code is refused without a network call.
	if err := s.SubmitCode(ctx, "123456"); !errors.Is(err, client.ErrExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if _, verifies := sender.calls(); verifies != 0 {
		t.Fatalf("expected no verify calls, got %d", verifies)
	}

	// A fresh code restarts the window.
	if err := s.RequestCode(ctx, "010-1234-5678"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if snap := s.Snapshot(); snap.Status != CodeSent || snap.SecondsRemaining != 180 {
		t.Fatalf("expected restarted countdown, got %+v", snap)
	}
}

func TestExpiryWhileVerifying(t *testing.T) {
	cases := []struct {
		name      string
		verifyErr error
		want      error
		status    Status
	}{
		{"accepted", nil, nil, Verified},
		{"mismatch", &client.APIError{StatusCode: http.StatusBadRequest}, client.ErrCodeMismatch, Expired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{}
			s := newTestSession(sender)
			defer s.Close()
			ctx := context.Background()

			if err := s.RequestCode(ctx, "01012345678"); err != nil {
				t.Fatalf("request code: %v", err)
			}
			for i := 0; i < 179; i++ {
				s.Tick()
			}

			sender.mu.Lock()
			sender.block = make(chan struct{})
			sender.verifyErr = tc.verifyErr
			sender.mu.Unlock()

			done := make(chan error, 1)
			go func() {
				done <- s.SubmitCode(ctx, "123456")
			}()
			waitFor(t, func() bool { return s.Status() == Verifying })

			s.Tick()
			if snap := s.Snapshot(); snap.Status != Verifying || snap.SecondsRemaining != 0 {
				t.Fatalf("expected verifying with no time left, got %+v", snap)
			}

			close(sender.block)
			err := <-done
			if tc.want == nil && err != nil {
				t.Fatalf("submit code: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if s.Status() != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, s.Status())
			}
		})
	}
}

func TestSubmitCodeRequiresSentCode(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	defer s.Close()

	err := s.SubmitCode(context.Background(), "123456")
	var verr *client.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, verifies := sender.calls(); verifies != 0 {
		t.Fatalf("expected no verify calls, got %d", verifies)
	}
}

func TestResetDropsInFlightResponse(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	s := newTestSession(sender)
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		done <- s.RequestCode(context.Background(), "01012345678")
	}()

	waitFor(t, func() bool {
		sends, _ := sender.calls()
		return sends == 1
	})
	s.Reset()
	close(sender.block)

	if err := <-done; !errors.Is(err, client.ErrStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if s.Status() != Idle {
		t.Fatalf("stale response changed state to %s", s.Status())
	}
}

func TestCloseDropsInFlightVerify(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender)
	ctx := context.Background()

	if err := s.RequestCode(ctx, "01012345678"); err != nil {
		t.Fatalf("request code: %v", err)
	}

	sender.mu.Lock()
	sender.block = make(chan struct{})
	sender.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.SubmitCode(ctx, "123456")
	}()
	waitFor(t, func() bool { return s.Status() == Verifying })

	if err := s.RequestCode(ctx, "01012345678"); !errors.Is(err, client.ErrInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}

	s.Close()
	close(sender.block)

	if err := <-done; !errors.Is(err, client.ErrStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if err := s.RequestCode(ctx, "01012345678"); !errors.Is(err, client.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestRealTickerExpiresSession(t *testing.T) {
	sender := &fakeSender{}
	var mu sync.Mutex
	var seen []int
	s := NewSession(sender,
		WithWindow(3*time.Second),
		WithTickInterval(5*time.Millisecond),
		OnChange(func(snap Snapshot) {
			mu.Lock()
			seen = append(seen, snap.SecondsRemaining)
			mu.Unlock()
		}),
	)
	defer s.Close()

	if err := s.RequestCode(context.Background(), "01012345678"); err != nil {
		t.Fatalf("request code: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 4
	})
	if s.Status() != Expired {
		t.Fatalf("expected expired, got %s", s.Status())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{3, 2, 1, 0}
	if len(seen) != len(want) {
		t.Fatalf("expected notifications %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected notifications %v, got %v", want, seen)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
