package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/analysis"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/pipeline"
	"github.com/sells-group/assessment-cli/internal/queue"
	"github.com/sells-group/assessment-cli/internal/store"
)

const testSecret = "test-secret"

type fixture struct {
	store  *store.SQLiteStore
	queue  *queue.MemoryQueue
	auth   *Authenticator
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	q := queue.NewMemory(1, 16)
	t.Cleanup(func() { q.Close() }) //nolint:errcheck

	policy := analysis.FilePolicy{MaxBytes: 1 << 20, ContentTypes: []string{"application/pdf"}}
	intake := pipeline.NewIntake(st, q, policy, 0)
	auth := NewAuthenticator(testSecret, "")

	srv := NewServer(intake, pipeline.NewTracker(st), st, auth, Options{
		AllowedOrigins: []string{"https://app.example.com"},
		MaxUploadBytes: 2 << 20,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("# metrics\n")) //nolint:errcheck
		}),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{store: st, queue: q, auth: auth, server: ts}
}

func (f *fixture) seed(t *testing.T, tier model.Tier, status model.Status) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		UserID: "owner-1",
		Type:   model.TypeInterviewPrep,
		Tier:   tier,
		Price:  29,
		Status: status,
	}
	require.NoError(t, f.store.CreateAssessment(context.Background(), a))
	return a
}

func (f *fixture) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := f.auth.Issue(subject, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, req *http.Request, token string) (*http.Response, map[string]any) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func multipartSubmit(t *testing.T, url string, responses map[string]any, resume []byte, resumeType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	raw, err := json.Marshal(responses)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("responses", string(raw)))
	require.NoError(t, w.WriteField("personalInfo", `{"email":"pat@example.com","firstName":"pat"}`))

	if resume != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="resume"; filename="resume.pdf"`)
		h.Set("Content-Type", resumeType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(resume)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func answers() map[string]any {
	return map[string]any{
		"communication.clarity": "often",
		"confidence.nerves":     3,
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/health", nil)
	resp, body := f.do(t, req, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	srv := NewServer(nil, nil, pingFunc(func(context.Context) error { return errors.New("down") }), NewAuthenticator(testSecret, ""), Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmit_AutomatedMultipart(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.TierBasic, model.StatusDraft)

	req := multipartSubmit(t, f.server.URL+"/api/assessments/"+a.ID+"/submit", answers(), []byte("%PDF-1.4 resume"), "application/pdf")
	resp, body := f.do(t, req, f.token(t, "owner-1"))

	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "/assessments/"+a.ID+"/processing", body["routingHint"])
	assert.Equal(t, 1, f.queue.Len())

	got, err := f.store.GetAssessment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, got.Status)
	require.NotNil(t, got.Data.Resume)
	assert.Equal(t, "application/pdf", got.Data.Resume.ContentType)
}

func TestSubmit_ManualJSON(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.TierPremium, model.StatusDraft)

	payload, _ := json.Marshal(map[string]any{"responses": answers()})
	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/assessments/"+a.ID+"/submit", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, body := f.do(t, req, f.token(t, "owner-1"))

	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	assert.Equal(t, "/assessments/"+a.ID+"/pending-review", body["routingHint"])
	assert.Zero(t, f.queue.Len())
}

func TestSubmit_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	draft := f.seed(t, model.TierBasic, model.StatusDraft)
	done := f.seed(t, model.TierBasic, model.StatusCompleted)
	running := f.seed(t, model.TierBasic, model.StatusProcessing)
	failed := f.seed(t, model.TierBasic, model.StatusError)

	tests := []struct {
		name   string
		id     string
		owner  string
		resp   map[string]any
		resume []byte
		want   int
	}{
		{name: "missing answers", id: draft.ID, owner: "owner-1", resp: map[string]any{}, want: http.StatusBadRequest},
		{name: "unsupported resume", id: draft.ID, owner: "owner-1", resp: answers(), resume: []byte("GIF89a"), want: http.StatusBadRequest},
		{name: "other owner", id: draft.ID, owner: "intruder", resp: answers(), want: http.StatusForbidden},
		{name: "unknown", id: "nope", owner: "owner-1", resp: answers(), want: http.StatusNotFound},
		{name: "completed", id: done.ID, owner: "owner-1", resp: answers(), want: http.StatusConflict},
		{name: "in flight", id: running.ID, owner: "owner-1", resp: answers(), want: http.StatusConflict},
		{name: "errored", id: failed.ID, owner: "owner-1", resp: answers(), want: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartSubmit(t, f.server.URL+"/api/assessments/"+tt.id+"/submit", tt.resp, tt.resume, "image/gif")
			resp, body := f.do(t, req, f.token(t, tt.owner))
			assert.Equal(t, tt.want, resp.StatusCode, body)
			assert.NotEmpty(t, body["error"])
		})
	}

	got, err := f.store.GetAssessment(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, got.Status)
}

func TestSubmit_MalformedField(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.TierBasic, model.StatusDraft)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("responses", "{not json"))
	require.NoError(t, w.Close())
	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/assessments/"+a.ID+"/submit", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, _ := f.do(t, req, f.token(t, "owner-1"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmit_OwnershipCheckedBeforeBody(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.TierBasic, model.StatusDraft)

	for _, tt := range []struct {
		name  string
		id    string
		owner string
		want  int
	}{
		{"stranger", a.ID, "intruder", http.StatusForbidden},
		{"unknown", "nope", "owner-1", http.StatusNotFound},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/assessments/"+tt.id+"/submit", strings.NewReader("{not json"))
			req.Header.Set("Content-Type", "application/json")
			resp, _ := f.do(t, req, f.token(t, tt.owner))
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuth_Rejections(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.TierBasic, model.StatusDraft)
	url := f.server.URL + "/api/assessments/" + a.ID + "/status"

	other := NewAuthenticator("another-secret", "")
	forged, err := other.Issue("owner-1", time.Hour)
	require.NoError(t, err)
	expired, err := f.auth.Issue("owner-1", -time.Minute)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"missing": "",
		"forged":  forged,
		"expired": expired,
		"garbage": "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, url, nil)
			resp, _ := f.do(t, req, tok)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestAuth_IssuerChecked(t *testing.T) {
	auth := NewAuthenticator(testSecret, "accounts")
	good, err := auth.Issue("u1", time.Hour)
	require.NoError(t, err)
	claims, err := auth.Validate(good)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)

	wrong, err := NewAuthenticator(testSecret, "elsewhere").Issue("u1", time.Hour)
	require.NoError(t, err)
	_, err = auth.Validate(wrong)
	assert.Error(t, err)

	noSub, err := NewAuthenticator(testSecret, "").Issue("", time.Hour)
	require.NoError(t, err)
	_, err = NewAuthenticator(testSecret, "").Validate(noSub)
	assert.Error(t, err)
}

func TestStatusAndAttempts(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.TierBasic, model.StatusError)
	ctx := context.Background()
	require.NoError(t, f.store.RecordAttempt(ctx, &model.Attempt{
		AssessmentID: a.ID,
		Number:       1,
		Backend:      "assistant",
		Outcome:      model.AttemptTransient,
		Error:        "timeout",
	}))
	tok := f.token(t, "owner-1")

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/assessments/"+a.ID+"/status", nil)
	resp, body := f.do(t, req, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, pipeline.GenericDiagnostic, body["error"])
	assert.NotContains(t, body, "redirect")

	req, _ = http.NewRequest(http.MethodGet, f.server.URL+"/api/assessments/"+a.ID+"/attempts", nil)
	resp, body = f.do(t, req, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	attempts, ok := body["attempts"].([]any)
	require.True(t, ok)
	assert.Len(t, attempts, 1)

	req, _ = http.NewRequest(http.MethodGet, f.server.URL+"/api/assessments/"+a.ID+"/attempts", nil)
	resp, _ = f.do(t, req, f.token(t, "intruder"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.server.URL+"/api/assessments/x/status", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, statusFor(pipeline.ErrAlreadyCompleted))
	assert.Equal(t, http.StatusConflict, statusFor(pipeline.ErrTerminal))
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }
