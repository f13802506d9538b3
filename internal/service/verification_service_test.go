package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/ulma/ulma/internal/config"
	"github.com/ulma/ulma/internal/logging"
	"github.com/ulma/ulma/internal/models"
)

type fakeRegistry map[string]bool

func (f fakeRegistry) ExistsByPhone(ctx context.Context, phoneNumber string) (bool, error) {
	return f[phoneNumber], nil
}

func setupVerification(t *testing.T, registered fakeRegistry) (*VerificationService, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.VerificationConfig{
		CodeLength:   6,
		Window:       180 * time.Second,
		MaxAttempts:  3,
		SignupWindow: 30 * time.Minute,
	}
	svc := NewVerificationService(client, registered, cfg, logging.Discard())

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return svc, mr, cleanup
}

func TestSendCodeStoresHashedCode(t *testing.T) {
	svc, mr, cleanup := setupVerification(t, fakeRegistry{})
	defer cleanup()

	code, err := svc.SendCode(context.Background(), "01012345678")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}

	stored, err := mr.Get("verification:01012345678")
	if err != nil {
		t.Fatalf("code not stored: %v", err)
	}
	if stored == code {
		t.Fatal("code stored in plain text")
	}
	if ttl := mr.TTL("verification:01012345678"); ttl != 180*time.Second {
		t.Fatalf("unexpected ttl %s", ttl)
	}
}

func TestSendCodeRejectsRegisteredPhone(t *testing.T) {
	svc, _, cleanup := setupVerification(t, fakeRegistry{"01012345678": true})
	defer cleanup()

	if _, err := svc.SendCode(context.Background(), "01012345678"); !errors.Is(err, ErrPhoneRegistered) {
		t.Fatalf("expected ErrPhoneRegistered, got %v", err)
	}
}

func TestVerifyCode(t *testing.T) {
	svc, _, cleanup := setupVerification(t, fakeRegistry{})
	defer cleanup()
	ctx := context.Background()

	if err := svc.VerifyCode(ctx, "01012345678", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound before send, got %v", err)
	}

	code, err := svc.SendCode(ctx, "01012345678")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}

	if err := svc.VerifyCode(ctx, "01012345678", wrongCode(code)); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	if err := svc.VerifyCode(ctx, "01012345678", code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	verified, err := svc.IsVerified(ctx, "01012345678")
	if err != nil || !verified {
		t.Fatalf("expected verified marker, got %v %v", verified, err)
	}

	if err := svc.VerifyCode(ctx, "01012345678", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected code to be single use, got %v", err)
	}

	if err := svc.ClearVerified(ctx, "01012345678"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if verified, _ := svc.IsVerified(ctx, "01012345678"); verified {
		t.Fatal("verified marker not cleared")
	}
}

func TestVerifyCodeAttemptsExhausted(t *testing.T) {
	svc, _, cleanup := setupVerification(t, fakeRegistry{})
	defer cleanup()
	ctx := context.Background()

	code, err := svc.SendCode(ctx, "01012345678")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.VerifyCode(ctx, "01012345678", wrongCode(code)); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}

	if err := svc.VerifyCode(ctx, "01012345678", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected code dropped after max attempts, got %v", err)
	}
}

func TestVerifyCodeRecordsAttempt(t *testing.T) {
	svc, mr, cleanup := setupVerification(t, fakeRegistry{})
	defer cleanup()
	ctx := context.Background()

	code, err := svc.SendCode(ctx, "01012345678")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}
	if err := svc.VerifyCode(ctx, "01012345678", wrongCode(code)); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	stored, err := mr.Get("verification:01012345678")
	if err != nil {
		t.Fatalf("code dropped after one attempt: %v", err)
	}
	var data models.VerificationData
	if err := json.Unmarshal([]byte(stored), &data); err != nil {
		t.Fatalf("unmarshal stored data: %v", err)
	}
	if data.Attempts != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", data.Attempts)
	}
	if ttl := mr.TTL("verification:01012345678"); ttl <= 0 || ttl > 180*time.Second {
		t.Fatalf("unexpected ttl after attempt %s", ttl)
	}
}

// refuseSet fails every SET so the attempt counter cannot be written.
type refuseSet struct{}

func (refuseSet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (refuseSet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			err := errors.New("write refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (refuseSet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestVerifyCodeLogsFailedAttemptWrite(t *testing.T) {
	svc, mr, cleanup := setupVerification(t, fakeRegistry{})
	defer cleanup()
	ctx := context.Background()

	code, err := svc.SendCode(ctx, "01012345678")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}

	logger, hook := logtest.NewNullLogger()
	svc.logger = logger
	svc.client.AddHook(refuseSet{})

	if err := svc.VerifyCode(ctx, "01012345678", wrongCode(code)); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error log for the failed write, got %+v", entry)
	}
	if entry.Data[logrus.ErrorKey] == nil {
		t.Fatal("log entry does not carry the redis error")
	}

	stored, _ := mr.Get("verification:01012345678")
	var data models.VerificationData
	if err := json.Unmarshal([]byte(stored), &data); err != nil {
		t.Fatalf("unmarshal stored data: %v", err)
	}
	if data.Attempts != 0 {
		t.Fatalf("expected stored attempts untouched, got %d", data.Attempts)
	}
}

func TestVerifyCodeExpires(t *testing.T) {
	svc, mr, cleanup := setupVerification(t, fakeRegistry{})
	defer cleanup()
	ctx := context.Background()

	code, err := svc.SendCode(ctx, "01012345678")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}

	mr.FastForward(181 * time.Second)

	if err := svc.VerifyCode(ctx, "01012345678", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after window, got %v", err)
	}
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
