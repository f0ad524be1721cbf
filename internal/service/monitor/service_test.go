package monitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/repository/memory"
	"github.com/ignite/ses-guard/internal/service/ledger"
	"github.com/ignite/ses-guard/internal/service/monitor"
)

type fakeValidator struct {
	results map[string]domain.Validation
	calls   int
	err     error
}

func (v *fakeValidator) Validate(_ context.Context, email string) (domain.Validation, error) {
	v.calls++
	if v.err != nil {
		return domain.Validation{}, v.err
	}
	if r, ok := v.results[email]; ok {
		return r, nil
	}
	return domain.Validation{Valid: true, Status: "valid"}, nil
}

type errStore struct{}

func (errStore) Count(context.Context, domain.NotificationFilter) (int, error) {
	return 0, errors.New("timeout")
}

func (errStore) List(context.Context, domain.NotificationFilter) ([]domain.Notification, error) {
	return nil, errors.New("timeout")
}

type env struct {
	store  *memory.NotificationRepo
	ledger *ledger.Service
	valid  *fakeValidator
}

func newEnv() *env {
	return &env{
		store:  memory.NewNotificationRepo(),
		ledger: ledger.NewService(memory.NewBlacklistRepo(), ledger.Config{}),
		valid:  &fakeValidator{results: map[string]domain.Validation{}},
	}
}

func (e *env) service(cfg monitor.Config) *monitor.Service {
	return monitor.NewService(e.store, e.ledger, e.valid, cfg)
}

func (e *env) add(t *testing.T, typ domain.NotificationType, subType, email, subject string, age time.Duration) {
	t.Helper()
	_, err := e.store.Create(context.Background(), &domain.Notification{
		Type:       typ,
		SubType:    subType,
		Email:      email,
		Subject:    subject,
		ReceivedAt: time.Now().UTC().Add(-age),
	})
	require.NoError(t, err)
}

func TestEvaluateAllowsCleanAddress(t *testing.T) {
	e := newEnv()
	d, err := e.service(monitor.DefaultConfig()).Evaluate(context.Background(), "clean@example.com", "Hi")
	require.NoError(t, err)
	assert.True(t, d.CanSend)
	assert.Empty(t, d.Reason)
}

func TestEvaluateBlacklistedFirst(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, err := e.ledger.Upsert(ctx, "x@example.com", domain.ReasonManual, nil)
	require.NoError(t, err)
	e.add(t, domain.TypeBounce, domain.BouncePermanent, "x@example.com", "", time.Hour)

	d, err := e.service(monitor.DefaultConfig()).Evaluate(ctx, " X@Example.com ", "")
	require.NoError(t, err)
	assert.False(t, d.CanSend)
	assert.Equal(t, monitor.ReasonBlacklisted, d.Reason)
	assert.Equal(t, "x@example.com", d.Email)
	assert.NotEmpty(t, d.Message)
}

func TestEvaluatePermanentBounceIgnoresWindow(t *testing.T) {
	e := newEnv()
	e.add(t, domain.TypeBounce, domain.BouncePermanent, "p@example.com", "", 400*24*time.Hour)

	d, err := e.service(monitor.DefaultConfig()).Evaluate(context.Background(), "p@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, monitor.ReasonPermanentBounce, d.Reason)

	cfg := monitor.DefaultConfig()
	cfg.Bounces.BlockPermanentBounces = false
	d, err = e.service(cfg).Evaluate(context.Background(), "p@example.com", "")
	require.NoError(t, err)
	assert.True(t, d.CanSend, "old bounce is outside the 30 day window")
}

func TestEvaluateBounceThreshold(t *testing.T) {
	e := newEnv()
	svc := e.service(monitor.DefaultConfig())
	ctx := context.Background()

	e.add(t, domain.TypeBounce, domain.BounceTransient, "s@example.com", "", time.Hour)
	e.add(t, domain.TypeBounce, domain.BounceTransient, "s@example.com", "", 2*time.Hour)
	d, err := svc.Evaluate(ctx, "s@example.com", "")
	require.NoError(t, err)
	assert.True(t, d.CanSend, "two bounces are below the threshold")

	e.add(t, domain.TypeBounce, domain.BounceTransient, "s@example.com", "", 3*time.Hour)
	d, err = svc.Evaluate(ctx, "s@example.com", "")
	require.NoError(t, err)
	assert.False(t, d.CanSend)
	assert.Equal(t, monitor.ReasonBounceThreshold, d.Reason)
}

func TestEvaluateBounceWindow(t *testing.T) {
	e := newEnv()
	for i := 0; i < 3; i++ {
		e.add(t, domain.TypeBounce, domain.BounceTransient, "w@example.com", "", 45*24*time.Hour)
	}
	d, err := e.service(monitor.DefaultConfig()).Evaluate(context.Background(), "w@example.com", "")
	require.NoError(t, err)
	assert.True(t, d.CanSend)

	cfg := monitor.DefaultConfig()
	cfg.Bounces.DaysToCheck = 0
	d, err = e.service(cfg).Evaluate(context.Background(), "w@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, monitor.ReasonBounceThreshold, d.Reason)
}

func TestEvaluateComplaintBySubject(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.add(t, domain.TypeComplaint, "abuse", "c@example.com", "Promo A", time.Hour)
	svc := e.service(monitor.DefaultConfig())

	d, err := svc.Evaluate(ctx, "c@example.com", "Promo B")
	require.NoError(t, err)
	assert.True(t, d.CanSend, "complaint was about another subject")

	d, err = svc.Evaluate(ctx, "c@example.com", "Promo A")
	require.NoError(t, err)
	assert.Equal(t, monitor.ReasonComplaintThreshold, d.Reason)

	d, err = svc.Evaluate(ctx, "c@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, monitor.ReasonComplaintThreshold, d.Reason, "no subject means no subject filter")

	cfg := monitor.DefaultConfig()
	cfg.Complaints.CheckBySubject = false
	d, err = e.service(cfg).Evaluate(ctx, "c@example.com", "Promo B")
	require.NoError(t, err)
	assert.Equal(t, monitor.ReasonComplaintThreshold, d.Reason)
}

func TestEvaluateDisabledRules(t *testing.T) {
	e := newEnv()
	e.add(t, domain.TypeBounce, domain.BouncePermanent, "r@example.com", "", time.Hour)
	e.add(t, domain.TypeComplaint, "abuse", "r@example.com", "", time.Hour)
	cfg := monitor.DefaultConfig()
	cfg.Bounces.Enabled = false
	cfg.Complaints.Enabled = false

	d, err := e.service(cfg).Evaluate(context.Background(), "r@example.com", "")
	require.NoError(t, err)
	assert.True(t, d.CanSend)
}

func TestCheckBeforeSend(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.add(t, domain.TypeBounce, domain.BouncePermanent, "bad@example.com", "", time.Hour)
	svc := e.service(monitor.DefaultConfig())

	require.NoError(t, svc.CheckBeforeSend(ctx, []string{"ok@example.com"}, "s"))

	err := svc.CheckBeforeSend(ctx, []string{"ok@example.com", "BAD@example.com"}, "s")
	var blocked *monitor.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "bad@example.com", blocked.Email)
	assert.Equal(t, monitor.ReasonPermanentBounce, blocked.Reason)

	cfg := monitor.DefaultConfig()
	cfg.Enabled = false
	assert.NoError(t, e.service(cfg).CheckBeforeSend(ctx, []string{"bad@example.com"}, "s"))
}

func TestCheckBeforeSendFailsClosed(t *testing.T) {
	svc := monitor.NewService(errStore{}, ledger.NewService(memory.NewBlacklistRepo(), ledger.Config{}), nil, monitor.DefaultConfig())

	err := svc.CheckBeforeSend(context.Background(), []string{"a@example.com"}, "")
	require.Error(t, err)
	var blocked *monitor.BlockedError
	assert.False(t, errors.As(err, &blocked))
}

func TestCheckDedupesRecipients(t *testing.T) {
	e := newEnv()
	out, err := e.service(monitor.DefaultConfig()).Check(context.Background(), []string{"a@x.com", " A@X.com", "", "b@x.com"}, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a@x.com", out[0].Email)
	assert.Equal(t, "b@x.com", out[1].Email)
}

func TestValidateBeforeSend(t *testing.T) {
	e := newEnv()
	e.valid.results["typo@example.con"] = domain.Validation{Valid: false, Status: "invalid"}
	cfg := monitor.DefaultConfig()
	cfg.ValidateBeforeSend = true

	err := e.service(cfg).CheckBeforeSend(context.Background(), []string{"typo@example.con"}, "")
	var blocked *monitor.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, monitor.ReasonInvalidEmail, blocked.Reason)
}

func TestCanSendInvalidBlacklists(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.valid.results["nope@example.com"] = domain.Validation{Valid: false, Status: "invalid", SubStatus: "mailbox_not_found"}
	svc := e.service(monitor.DefaultConfig())

	d, err := svc.CanSend(ctx, "nope@example.com")
	require.NoError(t, err)
	assert.False(t, d.CanSend)
	assert.Equal(t, monitor.ReasonInvalidEmail, d.Reason)
	require.NotNil(t, d.Validation)
	assert.Equal(t, "invalid", d.Validation.Status)

	entry, err := e.ledger.Get(ctx, "nope@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonInvalid, entry.Reason)
	assert.Equal(t, "invalid", entry.Details["zerobounce_status"])

	// The second call is answered by the blacklist.
	calls := e.valid.calls
	d, err = svc.CanSend(ctx, "nope@example.com")
	require.NoError(t, err)
	assert.Equal(t, monitor.ReasonBlacklisted, d.Reason)
	assert.Equal(t, calls, e.valid.calls)
}

func TestCanSendWithoutValidator(t *testing.T) {
	e := newEnv()
	svc := monitor.NewService(e.store, e.ledger, nil, monitor.DefaultConfig())

	d, err := svc.CanSend(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, d.CanSend)
	require.NotNil(t, d.Validation)
	assert.Equal(t, domain.ValidationDisabled, d.Validation.Status)
}

func TestValidateBatch(t *testing.T) {
	e := newEnv()
	e.valid.results["bad@example.com"] = domain.Validation{Valid: false, Status: "spamtrap"}

	out, err := e.service(monitor.DefaultConfig()).ValidateBatch(context.Background(), []string{"good@example.com", "bad@example.com", "GOOD@example.com"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out["good@example.com"].CanSend)
	assert.False(t, out["bad@example.com"].CanSend)
}

func TestRecentAndList(t *testing.T) {
	e := newEnv()
	e.add(t, domain.TypeBounce, domain.BounceTransient, "a@example.com", "", time.Hour)
	e.add(t, domain.TypeDelivery, domain.DeliveredSubType, "a@example.com", "", 2*time.Hour)
	e.add(t, domain.TypeBounce, domain.BounceTransient, "b@example.com", "", 60*24*time.Hour)
	svc := e.service(monitor.DefaultConfig())

	recent, err := svc.Recent(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.TypeBounce, recent[0].Type)

	list, err := svc.ListNotifications(context.Background(), domain.NotificationFilter{Email: "B@example.com"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
