package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/repository/memory"
	"github.com/ignite/ses-guard/internal/service/ingest"
	"github.com/ignite/ses-guard/internal/service/ledger"
	"github.com/ignite/ses-guard/internal/service/monitor"
	"github.com/ignite/ses-guard/internal/service/subscription"
)

type stubCredits struct {
	enabled bool
	n       int
}

func (s stubCredits) Enabled() bool                        { return s.enabled }
func (s stubCredits) Credits(context.Context) (int, error) { return s.n, nil }

type failingIngest struct{}

func (failingIngest) Process(context.Context, domain.SubscriptionCategory, []byte) (*ingest.Result, error) {
	return nil, &ingest.StorageError{Op: "store notification", Err: assert.AnError}
}

type testStack struct {
	router   http.Handler
	handlers *Handlers
	ledger   *ledger.Service
	notes    *memory.NotificationRepo
	subs     *memory.SubscriptionRepo
	confirm  *httptest.Server
}

func newStack(t *testing.T, token string) *testStack {
	t.Helper()
	confirm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<ConfirmSubscriptionResponse><ConfirmSubscriptionResult><SubscriptionArn>arn:aws:sns:us-east-1:123:t:abc</SubscriptionArn></ConfirmSubscriptionResult></ConfirmSubscriptionResponse>`))
	}))
	t.Cleanup(confirm.Close)

	notes := memory.NewNotificationRepo()
	subs := memory.NewSubscriptionRepo()
	blacklist := memory.NewBlacklistRepo()
	led := ledger.NewService(blacklist, ledger.Config{})
	mon := monitor.NewService(notes, led, nil, monitor.DefaultConfig())
	reg := subscription.NewService(subs, confirm.Client(), nil, subscription.Config{AutoConfirm: false, ConfirmTimeout: time.Second})
	ing := ingest.NewService(memory.NewUnitOfWork(notes, blacklist, ledger.Config{}), reg, nil, nil, ingest.DefaultConfig())

	h := NewHandlers(Deps{
		Ingest:       ing,
		Evaluator:    mon,
		Blacklist:    led,
		Registry:     reg,
		Credits:      stubCredits{enabled: true, n: 42},
		MaxBodyBytes: 64 << 10,
	})
	r := SetupRoutes(h, NewHealthChecker(nil, nil), RouteConfig{WebhookPrefix: "/aws/sns/ses/", APIToken: token})
	return &testStack{router: r, handlers: h, ledger: led, notes: notes, subs: subs, confirm: confirm}
}

func (s *testStack) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func snsBounce(t *testing.T, bounceType string, emails ...string) string {
	t.Helper()
	rcpts := make([]map[string]string, 0, len(emails))
	for _, e := range emails {
		rcpts = append(rcpts, map[string]string{"emailAddress": e})
	}
	msg, _ := json.Marshal(map[string]any{
		"notificationType": "Bounce",
		"mail":             map[string]any{"messageId": "msg-" + bounceType, "commonHeaders": map[string]any{"subject": "Hello"}},
		"bounce":           map[string]any{"bounceType": bounceType, "bouncedRecipients": rcpts},
	})
	env, _ := json.Marshal(map[string]string{"Type": "Notification", "Message": string(msg)})
	return string(env)
}

func TestWebhookBounce(t *testing.T) {
	s := newStack(t, "")
	rec := s.do(t, http.MethodPost, "/aws/sns/ses/bounces", snsBounce(t, "Permanent", "a@example.com", "b@example.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ingest.MessageProcessed, decode(t, rec)["message"])

	blocked, err := s.ledger.IsBlocked(context.Background(), "B@example.com")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestWebhookRejectsMalformed(t *testing.T) {
	s := newStack(t, "")
	cases := map[string]string{
		"not json":     "{",
		"unknown type": `{"Type":"Nope"}`,
		"no message":   `{"Type":"Notification"}`,
		"unknown kind": `{"Type":"Notification","Message":"{\"notificationType\":\"Open\"}"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/aws/sns/ses/complaints", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestWebhookBodyLimit(t *testing.T) {
	s := newStack(t, "")
	rec := s.do(t, http.MethodPost, "/aws/sns/ses/deliveries", `{"Type":"Notification","Message":"`+strings.Repeat("x", 70<<10)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookStorageFailureHidesCause(t *testing.T) {
	h := NewHandlers(Deps{Ingest: failingIngest{}})
	r := SetupRoutes(h, nil, RouteConfig{WebhookPrefix: "hooks"})
	req := httptest.NewRequest(http.MethodPost, "/hooks/bounces", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal error"}`, rec.Body.String())
}

func TestWebhookSubscriptionConfirmation(t *testing.T) {
	s := newStack(t, "")
	body, _ := json.Marshal(map[string]string{
		"Type":         "SubscriptionConfirmation",
		"TopicArn":     "arn:aws:sns:us-east-1:123:t",
		"SubscribeURL": s.confirm.URL + "/confirm",
		"Token":        "tok",
	})
	rec := s.do(t, http.MethodPost, "/aws/sns/ses/bounces", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.MessageSubscription, decode(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/subscriptions/pending?category=bounces", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = s.do(t, http.MethodPost, "/api/subscriptions/confirm", map[string]string{"topic_arn": "arn:aws:sns:us-east-1:123:t"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "arn:aws:sns:us-east-1:123:t:abc", decode(t, rec)["subscription_arn"])

	rec = s.do(t, http.MethodGet, "/api/subscriptions/pending", nil)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = s.do(t, http.MethodPost, "/api/subscriptions/confirm", map[string]string{"topic_arn": "arn:missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/subscriptions/pending?category=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckEndpoint(t *testing.T) {
	s := newStack(t, "")
	s.do(t, http.MethodPost, "/aws/sns/ses/bounces", snsBounce(t, "Permanent", "hard@example.com"))

	rec := s.do(t, http.MethodPost, "/api/check", map[string]any{"recipients": []string{"ok@example.com", "hard@example.com"}, "subject": "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["can_send"])
	decisions := out["decisions"].([]any)
	require.Len(t, decisions, 2)
	assert.Equal(t, "blacklisted", decisions[1].(map[string]any)["reason"])

	rec = s.do(t, http.MethodPost, "/api/check", map[string]any{"recipients": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCanSendAndValidate(t *testing.T) {
	s := newStack(t, "")

	rec := s.do(t, http.MethodPost, "/api/can-send", map[string]string{"email": "new@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["can_send"])
	assert.Equal(t, domain.ValidationDisabled, out["validation"].(map[string]any)["status"])

	rec = s.do(t, http.MethodPost, "/api/validate", map[string]any{"emails": []string{"a@example.com", "b@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["results"], 2)

	rec = s.do(t, http.MethodGet, "/api/validation/credits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, decode(t, rec)["credits"])
}

func TestBlacklistCRUD(t *testing.T) {
	s := newStack(t, "")

	rec := s.do(t, http.MethodPost, "/api/blacklist", map[string]string{"email": "Manual@Example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "manual", decode(t, rec)["reason"])

	rec = s.do(t, http.MethodPost, "/api/blacklist", map[string]string{"email": "x@example.com", "reason": "spam"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/blacklist/manual@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/blacklist?reason=manual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = s.do(t, http.MethodGet, "/api/blacklist/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode(t, rec)
	assert.EqualValues(t, 1, st["total"])
	assert.EqualValues(t, 1, st["manual"])

	rec = s.do(t, http.MethodDelete, "/api/blacklist/manual%40example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/blacklist/manual@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/blacklist/manual@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNotifications(t *testing.T) {
	s := newStack(t, "")
	s.do(t, http.MethodPost, "/aws/sns/ses/bounces", snsBounce(t, "Transient", "a@example.com", "b@example.com"))

	rec := s.do(t, http.MethodGet, "/api/notifications?email=a@example.com&type=Bounce&subject=Hello&days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = s.do(t, http.MethodGet, "/api/notifications?type=Open", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPITokenRequired(t *testing.T) {
	s := newStack(t, "secret")

	rec := s.do(t, http.MethodGet, "/api/blacklist/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/blacklist/stats", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Webhooks are never behind the token.
	rec = s.do(t, http.MethodPost, "/aws/sns/ses/bounces", snsBounce(t, "Permanent", "c@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthWithoutDependencies(t *testing.T) {
	s := newStack(t, "")
	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestRecoverReturnsJSON(t *testing.T) {
	h := recoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal error"}`, rec.Body.String())
}
