package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/accesscode"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/middleware"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/notify"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/storage/local"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const cookieName = "iaos_supplier_session"

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memCodes struct {
	mu    sync.Mutex
	codes map[string]*models.AccessCode
}

func (m *memCodes) Create(_ context.Context, ac *models.AccessCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[ac.Code] = ac
	return nil
}

func (m *memCodes) GetByCode(_ context.Context, code string) (*models.AccessCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *ac
	return &cp, nil
}

func (m *memCodes) MarkUsed(_ context.Context, code string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.codes[code]
	if !ok || ac.Used || !at.Before(ac.ExpiresAt) {
		return false, nil
	}
	ac.Used, ac.UsedAt = true, &at
	return true, nil
}

type memVerification struct {
	mu   sync.Mutex
	rows []*models.VerificationCode
}

func (m *memVerification) Create(_ context.Context, vc *models.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vc.ID = fmt.Sprintf("vc-%d", len(m.rows)+1)
	m.rows = append(m.rows, vc)
	return nil
}

func (m *memVerification) Latest(_ context.Context, accessCodeID string) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].AccessCodeID == accessCodeID {
			cp := *m.rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memVerification) Consume(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id && r.ConsumedAt == nil {
			r.ConsumedAt = &at
			return true, nil
		}
	}
	return false, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *captureSender) Send(_ context.Context, msg notify.Message) (notify.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return notify.Result{MessageID: fmt.Sprintf("msg-%d", len(s.sent))}, nil
}

func (s *captureSender) last(t *testing.T) notify.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no message was sent")
	return s.sent[len(s.sent)-1]
}

type memPartners struct {
	mu       sync.Mutex
	partners map[string]*models.Partner
	updates  int
}

func (m *memPartners) GetByID(_ context.Context, id string) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPartners) UpdateContact(_ context.Context, p *models.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.partners[p.ID] = &cp
	m.updates++
	return nil
}

type memTouchpoints map[string]*models.Touchpoint

func (m memTouchpoints) GetTouchpoint(_ context.Context, id string) (*models.Touchpoint, error) {
	return m[id], nil
}

type memAssignments map[string]*models.Assignment

func (m memAssignments) GetByID(_ context.Context, id string) (*models.Assignment, error) {
	return m[id], nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (m *memAudit) CreateAuditLog(_ context.Context, l *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memAudit) byAction(action string) []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, l := range m.logs {
		if l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

// fakeResponses serves a fixed snapshot and records calls.
type fakeResponses struct {
	mu        sync.Mutex
	snap      *responses.Snapshot
	saved     [][]responses.Answer
	saveErr   error
	ignore    bool
	submitErr error
	signature responses.Signature
}

func (f *fakeResponses) Load(_ context.Context, assignmentID string) (*responses.Snapshot, error) {
	if f.snap == nil || f.snap.Assignment.ID != assignmentID {
		return nil, responses.ErrNotFound
	}
	return f.snap, nil
}

func (f *fakeResponses) Progress(ctx context.Context, assignmentID string) (int, error) {
	snap, err := f.Load(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	return snap.Progress, nil
}

func (f *fakeResponses) SaveDraft(_ context.Context, _ *session.Session, answers []responses.Answer) (*responses.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, answers)
	if f.ignore {
		return &responses.SaveResult{Ignored: true, Progress: 50}, nil
	}
	return &responses.SaveResult{Saved: len(answers), Progress: 50}, nil
}

func (f *fakeResponses) Submit(_ context.Context, sess *session.Session, sig responses.Signature) (*models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.signature = sig
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := *f.snap.Assignment
	a.Status = models.AssignmentSubmitted
	a.CompletedDate = &now
	if sig.Name != "" {
		a.SignerName = &sig.Name
	}
	if sig.Email != "" {
		a.SignerEmail = &sig.Email
	}
	return &a, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	router      *gin.Engine
	handlers    *Handlers
	codes       *memCodes
	codeStore   *accesscode.Store
	sender      *captureSender
	audit       *memAudit
	recorder    *audit.Recorder
	partners    *memPartners
	touchpoints memTouchpoints
	responses   *fakeResponses
	sessions    *session.Manager
	storageDir  string
}

func strptr(s string) *string { return &s }

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Now()

	codes := &memCodes{codes: map[string]*models.AccessCode{
		"3S1239SN": {ID: "ac-1", Code: "3S1239SN", PartnerID: "ptn-1", AssignmentID: "asg-1", ExpiresAt: now.Add(24 * time.Hour)},
		"EXPRD234": {ID: "ac-2", Code: "EXPRD234", PartnerID: "ptn-1", AssignmentID: "asg-1", ExpiresAt: now.Add(-time.Minute)},
	}}
	codeStore := accesscode.NewStore(codes, 8)

	sender := &captureSender{}
	issuer := verification.NewIssuer(&memVerification{}, sender,
		verification.NewMemoryAttemptLimiter(3, 15*time.Minute),
		verification.Options{CodeTTL: 10 * time.Minute, BcryptCost: bcrypt.MinCost})

	sessions, err := session.NewManager(session.NewMemoryActivityStore(), session.Options{
		Secret:      "supplier-handler-test-secret-0123456789",
		AbsoluteTTL: 8 * time.Hour,
		IdleTTL:     time.Hour,
		IdleWarning: 5 * time.Minute,
	})
	require.NoError(t, err)

	partners := &memPartners{partners: map[string]*models.Partner{
		"ptn-1": {ID: "ptn-1", CompanyName: "Acme Components", ContactFirstName: "Jane", ContactLastName: "Doe", Email: "jane.doe@acme.example", City: strptr("Dayton")},
	}}
	touchpoints := memTouchpoints{
		"tp-1": {ID: "tp-1", Title: "CMMC Level 2 Self-Assessment", IsCUI: true},
	}
	assignment := &models.Assignment{ID: "asg-1", PartnerID: "ptn-1", TouchpointID: "tp-1", QuestionnaireID: "qn-1", Status: models.AssignmentInProgress}
	assignments := memAssignments{"asg-1": assignment}

	skipAnswer, skipJump, tag5 := "0", "5", "5"
	questions := []models.Question{
		{ID: "q1", Title: "Company has a CAGE code", ResponseType: models.ResponseYesNo, Required: true},
		{ID: "q2", Title: "Handles CUI", ResponseType: models.ResponseYesNo, Required: true, SkipLogicAnswer: &skipAnswer, SkipLogicJump: &skipJump},
		{ID: "q3", Title: "CUI storage location", ResponseType: models.ResponseText, IsCUI: true},
		{ID: "q4", Title: "CUI marking procedure", ResponseType: models.ResponseTextarea},
		{ID: "q5", Title: "Certificate", ResponseType: models.ResponseFileUpload, Tag: &tag5},
	}
	resp := &fakeResponses{snap: &responses.Snapshot{
		Assignment:    assignment,
		Questionnaire: &models.Questionnaire{ID: "qn-1", TouchpointID: "tp-1", Title: "Self-Assessment", RequiresSignature: true},
		Questions:     questions,
		Values: map[string]questionnaire.Value{
			"q1": {Type: models.ResponseYesNo, Text: "1"},
			"q2": {Type: models.ResponseYesNo, Text: "0"},
			"q3": {Type: models.ResponseText, Text: "Encrypted file share"},
		},
		Comments: map[string]string{"q1": "CAGE 1ABC2"},
		Progress: 60,
	}}

	auditStore := &memAudit{}
	recorder := audit.NewRecorder(auditStore, nil)

	dir := t.TempDir()
	store, err := local.New(&config.LocalStorageConfig{BasePath: dir})
	require.NoError(t, err)

	h := NewHandlers(Deps{
		AccessCodes:    codeStore,
		Verifier:       issuer,
		Sessions:       sessions,
		Partners:       partners,
		Touchpoints:    touchpoints,
		Assignments:    assignments,
		Responses:      resp,
		Storage:        store,
		Recorder:       recorder,
		Notifier:       sender,
		Cookie:         config.SessionConfig{CookieName: cookieName},
		MaxUploadBytes: 1 << 20,
	})

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware(), middleware.RequestInfoMiddleware())
	base := r.Group("/api/v1/supplier")
	gated := base.Group("")
	gated.Use(middleware.SupplierSessionMiddleware(sessions, cookieName))
	h.RegisterRoutes(base, base, gated)

	return &harness{
		router: r, handlers: h, codes: codes, codeStore: codeStore, sender: sender,
		audit: auditStore, recorder: recorder, partners: partners, touchpoints: touchpoints,
		responses: resp, sessions: sessions, storageDir: dir,
	}
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	token, _, err := h.sessions.Create(context.Background(), session.Subject{AssignmentID: "asg-1", AccessCode: "3S1239SN", PartnerID: "ptn-1"})
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1/supplier"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "supplier-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// ---------------------------------------------------------------------------
// Access code and session flow
// ---------------------------------------------------------------------------

func TestAccessCodeToSession(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/access-code/validate", gin.H{"code": " 3s1239sn "}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "j***@acme.example", body["email"])
	assert.Equal(t, "Jane Doe", body["partner_name"])
	assert.Equal(t, "Acme Components", body["company_name"])

	w = h.do(t, http.MethodPost, "/access-code/send-verification", gin.H{"code": "3S1239SN"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeBody(t, w)["sent"])
	msg := h.sender.last(t)
	assert.Equal(t, "jane.doe@acme.example", msg.To)
	assert.Equal(t, notify.TemplateVerificationCode, msg.TemplateID)
	otp := msg.Variables["code"]
	require.Len(t, otp, 6)

	w = h.do(t, http.MethodPost, "/access-code/verify", gin.H{"code": "3S1239SN", "otp": otp}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decodeBody(t, w)["token"].(string)
	require.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie not set")
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	viaBearer := decodeBody(t, h.do(t, http.MethodGet, "/session", nil, token))
	assert.Equal(t, true, viaBearer["authenticated"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/supplier/session", nil)
	req.AddCookie(cookie)
	wc := httptest.NewRecorder()
	h.router.ServeHTTP(wc, req)
	viaCookie := decodeBody(t, wc)
	assert.Equal(t, true, viaCookie["authenticated"])
	assert.Equal(t, viaBearer["assignment"], viaCookie["assignment"])
	assert.Equal(t, "asg-1", viaCookie["assignment"].(map[string]interface{})["id"])

	assert.Len(t, h.audit.byAction(audit.ActionAccessCodeValidated), 1)
	assert.Len(t, h.audit.byAction(audit.ActionVerificationCodeSent), 1)
	success := h.audit.byAction(audit.ActionLoginSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "ptn-1", *success[0].ActorID)
	assert.Equal(t, models.ActorSupplier, success[0].ActorType)
}

func TestValidate_UsedCodeIsRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.codeStore.MarkUsed(context.Background(), "3S1239SN"))

	w := h.do(t, http.MethodPost, "/access-code/validate", gin.H{"code": "3S1239SN"}, "")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "ALREADY_USED", decodeBody(t, w)["code"])

	failed := h.audit.byAction(audit.ActionLoginFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "already_used", failed[0].Metadata["reason"])
	assert.Equal(t, "192.0.2.1", *failed[0].IPAddress)
}

func TestValidate_Errors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown", gin.H{"code": "ZZZZZZZZ"}, http.StatusNotFound, "NOT_FOUND"},
		{"expired", gin.H{"code": "exprd234"}, http.StatusGone, "EXPIRED"},
		{"missing", gin.H{}, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/access-code/validate", tt.body, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeBody(t, w)["code"])
		})
	}
}

func TestVerify_WrongCodeThenLockout(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/access-code/send-verification", gin.H{"code": "3S1239SN"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	otp := h.sender.last(t).Variables["code"]
	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		w = h.do(t, http.MethodPost, "/access-code/verify", gin.H{"code": "3S1239SN", "otp": wrong}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_CODE", decodeBody(t, w)["code"])
	}
	w = h.do(t, http.MethodPost, "/access-code/verify", gin.H{"code": "3S1239SN", "otp": otp}, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", decodeBody(t, w)["code"])
	assert.Len(t, h.audit.byAction(audit.ActionLoginFailed), 4)
}

func TestSessionStatus_Unauthenticated(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/session", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, "missing", body["reason"])

	body = decodeBody(t, h.do(t, http.MethodGet, "/session", nil, "garbage"))
	assert.Equal(t, "invalid", body["reason"])
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodPost, "/logout", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, h.audit.byAction(audit.ActionLogout), 1)

	w = h.do(t, http.MethodGet, "/progress", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "terminated", decodeBody(t, w)["reason"])

	w = h.do(t, http.MethodPost, "/logout", nil, token)
	assert.Equal(t, http.StatusOK, w.Code, "logout is idempotent")
	w = h.do(t, http.MethodPost, "/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, h.audit.byAction(audit.ActionLogout), 1)
}

func TestGatedRoutesRequireSession(t *testing.T) {
	h := newHarness(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/questionnaire"},
		{http.MethodGet, "/touchpoint"},
		{http.MethodGet, "/progress"},
		{http.MethodPut, "/responses"},
		{http.MethodPut, "/responses/q1"},
		{http.MethodPost, "/questionnaire/navigate"},
		{http.MethodPost, "/questions/q5/upload"},
		{http.MethodPut, "/partner"},
		{http.MethodPost, "/submit"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := h.do(t, rt.method, rt.path, gin.H{}, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHENTICATED", decodeBody(t, w)["code"])
		})
	}
}

// ---------------------------------------------------------------------------
// Questionnaire
// ---------------------------------------------------------------------------

func TestNavigate_SkipLogicJumpsToTag(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodPost, "/questionnaire/navigate", gin.H{"question_id": "q2", "direction": "next"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "q5", body["question_id"])
	assert.Equal(t, false, body["done"])

	w = h.do(t, http.MethodPost, "/questionnaire/navigate", gin.H{"question_id": "q5", "direction": "next"}, token)
	assert.Equal(t, true, decodeBody(t, w)["done"])

	w = h.do(t, http.MethodPost, "/questionnaire/navigate", gin.H{"question_id": "q3", "direction": "previous"}, token)
	assert.Equal(t, "q2", decodeBody(t, w)["question_id"])

	w = h.do(t, http.MethodPost, "/questionnaire/navigate", gin.H{"question_id": "q9", "direction": "next"}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/questionnaire/navigate", gin.H{"question_id": "q1", "direction": "sideways"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTouchpoint_CUIReadIsAudited(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodGet, "/touchpoint", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CMMC Level 2 Self-Assessment", decodeBody(t, w)["title"])

	reads := h.audit.byAction(audit.ActionCUIAccessed)
	require.Len(t, reads, 1)
	e := reads[0]
	assert.True(t, e.IsCUIAccess)
	assert.Equal(t, "ptn-1", *e.ActorID)
	assert.Equal(t, models.ActorSupplier, e.ActorType)
	assert.Equal(t, "192.0.2.1", *e.IPAddress)
	assert.Equal(t, "tp-1", e.Metadata["id"])
	assert.Equal(t, "CMMC Level 2 Self-Assessment", e.Metadata["title"])
}

func TestGetTouchpoint_NonCUINotAudited(t *testing.T) {
	h := newHarness(t)
	h.touchpoints["tp-1"].IsCUI = false
	token := h.login(t)

	w := h.do(t, http.MethodGet, "/touchpoint", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.audit.byAction(audit.ActionCUIAccessed))
}

func TestGetQuestionnaire(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodGet, "/questionnaire", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(60), body["progress"])
	assert.Len(t, body["questions"], 5)

	saved := body["saved_responses"].(map[string]interface{})
	q1 := saved["q1"].(map[string]interface{})
	assert.Equal(t, "1", q1["value"])
	assert.Equal(t, "CAGE 1ABC2", q1["comment"])

	reads := h.audit.byAction(audit.ActionCUIAccessed)
	require.Len(t, reads, 2, "touchpoint plus the CUI question")
	assert.Equal(t, audit.EntityTouchpoint, reads[0].EntityType)
	assert.Equal(t, audit.EntityQuestion, reads[1].EntityType)
	assert.Equal(t, "q3", *reads[1].EntityID)
}

func TestGetQuestionnaire_UnansweredCUIQuestionIsAudited(t *testing.T) {
	h := newHarness(t)
	delete(h.responses.snap.Values, "q3")
	token := h.login(t)

	w := h.do(t, http.MethodGet, "/questionnaire", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, returned := decodeBody(t, w)["saved_responses"].(map[string]interface{})["q3"]
	assert.False(t, returned)

	var questionReads []string
	for _, e := range h.audit.byAction(audit.ActionCUIAccessed) {
		if e.EntityType == audit.EntityQuestion {
			questionReads = append(questionReads, *e.EntityID)
		}
	}
	assert.Equal(t, []string{"q3"}, questionReads)
}

func TestGetProgress(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/progress", nil, h.login(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(60), decodeBody(t, w)["progress"])
}

// ---------------------------------------------------------------------------
// Answers
// ---------------------------------------------------------------------------

func TestSaveResponses(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodPut, "/responses", gin.H{"responses": []gin.H{
		{"question_id": "q1", "value": "1"},
		{"question_id": "q4", "value": "Labels per DoDI 5200.48", "client_saved_at": "2026-03-01T11:59:00Z"},
	}}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, w)["saved"])

	require.Len(t, h.responses.saved, 1)
	batch := h.responses.saved[0]
	assert.Equal(t, "q4", batch[1].QuestionID)
	require.NotNil(t, batch[1].ClientSavedAt)
	assert.Equal(t, 2026, batch[1].ClientSavedAt.Year())

	w = h.do(t, http.MethodPut, "/responses", gin.H{"responses": []gin.H{{"value": "1"}}}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code, "question_id is required")
}

func TestSaveResponse_Single(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodPut, "/responses/q4", gin.H{"value": "text", "comment": "see attachment"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.responses.saved, 1)
	a := h.responses.saved[0][0]
	assert.Equal(t, "q4", a.QuestionID)
	assert.JSONEq(t, `"text"`, string(a.Value))
	assert.Equal(t, "see attachment", *a.Comment)
}

func TestSaveResponses_ValidationFailure(t *testing.T) {
	h := newHarness(t)
	h.responses.saveErr = &responses.ValidationError{Issues: []questionnaire.Issue{{QuestionID: "q1", Message: "must be yes or no"}}}

	w := h.do(t, http.MethodPut, "/responses/q1", gin.H{"value": "maybe"}, h.login(t))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	assert.Len(t, body["issues"], 1)
}

func upload(t *testing.T, h *harness, token, questionID, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/supplier/questions/"+questionID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := upload(t, h, token, "q5", "ISO 9001 cert.pdf", []byte("%PDF-1.7 test"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	file := decodeBody(t, w)["file"].(map[string]interface{})
	key := file["key"].(string)
	assert.True(t, strings.HasPrefix(key, "answers/asg-1/q5/"), key)
	assert.True(t, strings.HasSuffix(key, "ISO_9001_cert.pdf"), key)
	assert.Equal(t, "ISO 9001 cert.pdf", file["filename"])

	stored, err := os.ReadFile(filepath.Join(h.storageDir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 test", string(stored))

	require.Len(t, h.responses.saved, 1)
	var ref questionnaire.FileRef
	require.NoError(t, json.Unmarshal(h.responses.saved[0][0].Value, &ref))
	assert.Equal(t, key, ref.Key)
	assert.Equal(t, int64(len("%PDF-1.7 test")), ref.Size)
}

func TestUpload_IgnoredSaveRemovesFile(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)
	h.responses.ignore = true

	w := upload(t, h, token, "q5", "late.pdf", []byte("%PDF-1.7 late"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Nil(t, body["file"])
	assert.Equal(t, true, body["ignored"])
	assert.Equal(t, float64(0), body["saved"])

	var files []string
	err := filepath.WalkDir(h.storageDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUpload_Rejections(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := upload(t, h, token, "q1", "a.txt", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code, "not a file question")

	w = upload(t, h, token, "q99", "a.txt", []byte("x"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = upload(t, h, token, "q5", "big.bin", bytes.Repeat([]byte("a"), (1<<20)+10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	h.responses.snap.Assignment.Status = models.AssignmentSubmitted
	w = upload(t, h, token, "q5", "a.txt", []byte("x"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, h.responses.saved)
}

// ---------------------------------------------------------------------------
// Submission and partner
// ---------------------------------------------------------------------------

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodPost, "/submit", gin.H{"signer_name": "Jane Doe", "signer_email": "jane@acme.example"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "submitted", body["status"])
	assert.Equal(t, "192.0.2.1", h.responses.signature.IP)
	assert.Equal(t, "Jane Doe", h.responses.signature.Name)

	receipt := h.sender.last(t)
	assert.Equal(t, notify.TemplateSubmissionReceipt, receipt.TemplateID)
	assert.Equal(t, "jane@acme.example", receipt.To)
	assert.Equal(t, "CMMC Level 2 Self-Assessment", receipt.Variables["touchpoint_title"])
}

func TestSubmit_Errors(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	h.responses.submitErr = &responses.ValidationError{Issues: []questionnaire.Issue{
		{QuestionID: "q1", Message: "an answer is required"},
		{QuestionID: responses.SignatureIssueID, Message: "signer name is required"},
	}}
	w := h.do(t, http.MethodPost, "/submit", nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, decodeBody(t, w)["issues"], 2)

	h.responses.submitErr = responses.ErrConflict
	w = h.do(t, http.MethodPost, "/submit", gin.H{"signer_name": "Jane"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decodeBody(t, w)["code"])
	assert.Empty(t, h.sender.sent, "no receipt without a submission")
}

func TestUpdatePartner(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	w := h.do(t, http.MethodPut, "/partner", gin.H{
		"contact_first_name": "Janet",
		"phone":              "+1 937 555 0100",
		"city":               "",
		"country":            nil,
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	p := h.partners.partners["ptn-1"]
	assert.Equal(t, "Janet", p.ContactFirstName)
	assert.Equal(t, "Doe", p.ContactLastName)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "+1 937 555 0100", *p.Phone)
	assert.Nil(t, p.City)
	assert.Equal(t, "jane.doe@acme.example", p.Email)

	updated := h.audit.byAction(audit.ActionPartnerUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, []string{"city", "contact_first_name", "phone"}, updated[0].Metadata["fields"])

	w = h.do(t, http.MethodPut, "/partner", gin.H{"contact_first_name": "Janet"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.partners.updates, "unchanged values are not written")
}
