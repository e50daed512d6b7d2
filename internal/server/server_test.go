package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"github.com/smallbiznis/botquota/internal/observability"
	"github.com/smallbiznis/botquota/internal/scheduler"
	"github.com/smallbiznis/botquota/internal/scheduler/watermark"
	"github.com/smallbiznis/botquota/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	OK    *bool           `json:"ok"`
	Error *errorPayload   `json:"error"`
}

type testServer struct {
	env    *testenv.Env
	engine *gin.Engine
}

func newTestServer(t *testing.T, withScheduler bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := testenv.New(t)
	engine := NewEngine(observability.Config{})

	var sched *scheduler.Scheduler
	if withScheduler {
		var err error
		sched, err = scheduler.New(scheduler.Params{
			DB:           env.DB,
			Log:          zap.NewNop(),
			GenID:        env.GenID,
			Clock:        env.Clock,
			Policy:       env.Policy,
			AccountRepo:  env.AccountRepo,
			LedgerSvc:    env.Ledger,
			LifecycleSvc: env.Lifecycle,
			RetentionSvc: env.Retention,
			Checker:      env.Subscriptions,
			Watermarks:   watermark.Provide(),
			Config:       scheduler.Config{Concurrency: 2, BatchSize: 10},
		})
		require.NoError(t, err)
	}

	NewServer(ServerParams{
		Gin:          engine,
		DB:           env.DB,
		Log:          zap.NewNop(),
		AccountSvc:   env.Accounts,
		LedgerSvc:    env.Ledger,
		AuditSvc:     env.Audit,
		BotSvc:       env.Bots,
		LifecycleSvc: env.Lifecycle,
		RetentionSvc: env.Retention,
		Scheduler:    sched,
	})
	return &testServer{env: env, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var resp envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	rec, _ := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestEnsureAccountCreatesOnce(t *testing.T) {
	s := newTestServer(t, false)

	rec, resp := s.do(t, http.MethodPost, "/v1/accounts", gin.H{"id": 42})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created accountdomain.EnsureAccountResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.True(t, created.Created)
	assert.Equal(t, int64(10), created.Account.TrialBalance)
	assert.Equal(t, accountdomain.StatusFrozen, created.Account.Status)

	rec, resp = s.do(t, http.MethodPost, "/v1/accounts", gin.H{"id": 42})
	require.Equal(t, http.StatusOK, rec.Code)
	var again accountdomain.EnsureAccountResult
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.False(t, again.Created)
	assert.Equal(t, int64(10), again.Account.TrialBalance)
}

func TestEnsureAccountRejectsInvalidID(t *testing.T) {
	s := newTestServer(t, false)

	rec, resp := s.do(t, http.MethodPost, "/v1/accounts", gin.H{"id": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Type)
	require.Len(t, resp.Error.Errors, 1)
	assert.Equal(t, "invalid_account_id", resp.Error.Errors[0].Code)
	assert.Equal(t, "account_id", resp.Error.Errors[0].Field)
}

func TestGetAccount(t *testing.T) {
	s := newTestServer(t, false)
	s.env.CreateAccount(t, 7, accountdomain.StatusActive, 2, 1, 0)

	rec, resp := s.do(t, http.MethodGet, "/v1/accounts/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var account accountdomain.Account
	require.NoError(t, json.Unmarshal(resp.Data, &account))
	assert.Equal(t, int64(3), account.TotalBalance())

	rec, resp = s.do(t, http.MethodGet, "/v1/accounts/8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Type)

	rec, _ = s.do(t, http.MethodGet, "/v1/accounts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyGrantReactivatesAndPromotes(t *testing.T) {
	s := newTestServer(t, false)
	s.env.CreateAccount(t, 1, accountdomain.StatusActive, 0, 0, 0)
	s.env.SetExpired(t, 1, testenv.Epoch)

	rec, resp := s.do(t, http.MethodPost, "/v1/accounts/1/grants", gin.H{"pool": "BONUS", "amount": 30, "source": "referral"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result struct {
		Status  accountdomain.AccountStatus `json:"status"`
		Account accountdomain.Account       `json:"account"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, accountdomain.StatusActive, result.Status)
	assert.True(t, result.Account.IsPremium)
	assert.Equal(t, int64(30), result.Account.BonusBalance)
}

func TestApplyGrantValidation(t *testing.T) {
	s := newTestServer(t, false)
	s.env.CreateAccount(t, 1, accountdomain.StatusActive, 1, 0, 0)

	rec, resp := s.do(t, http.MethodPost, "/v1/accounts/1/grants", gin.H{"pool": "gold", "amount": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_pool", resp.Error.Errors[0].Code)

	rec, resp = s.do(t, http.MethodPost, "/v1/accounts/1/grants", gin.H{"pool": "paid", "amount": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", resp.Error.Errors[0].Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/accounts/99/grants", gin.H{"pool": "paid", "amount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckStatusFreezesUnsubscribed(t *testing.T) {
	s := newTestServer(t, false)
	s.env.CreateAccount(t, 5, accountdomain.StatusActive, 3, 0, 0)
	s.env.Subscriptions.Set(5, false)

	rec, resp := s.do(t, http.MethodGet, "/v1/accounts/5/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status accountdomain.AccountStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, accountdomain.StatusFrozen, body.Status)
	assert.Equal(t, int64(3), s.env.MustAccount(t, 5).TrialBalance)
}

func TestLedgerAuditAndReconcile(t *testing.T) {
	s := newTestServer(t, false)
	rec, _ := s.do(t, http.MethodPost, "/v1/accounts", gin.H{"id": 11})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := s.do(t, http.MethodGet, "/v1/accounts/11/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "trial_seed", entries[0]["source"])

	rec, resp = s.do(t, http.MethodGet, "/v1/accounts/11/audit?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "ACCOUNT_CREATED", logs[0]["event"])

	rec, resp = s.do(t, http.MethodGet, "/v1/accounts/11/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	rec, _ = s.do(t, http.MethodGet, "/v1/accounts/11/ledger?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	s := newTestServer(t, false)
	s.env.CreateAccount(t, 3, accountdomain.StatusActive, 4, 0, 0)

	rec, resp := s.do(t, http.MethodDelete, "/v1/accounts/3", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "account_not_eligible_for_deletion", resp.Error.Message)

	rec, _ = s.do(t, http.MethodDelete, "/v1/accounts/3?force=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodDelete, "/v1/accounts/3?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Deleted bool `json:"deleted"`
		Forced  bool `json:"forced"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Deleted)
	assert.True(t, result.Forced)
	assert.Equal(t, accountdomain.StatusDeleted, s.env.MustAccount(t, 3).Status)
}

func TestRegisterAndListBots(t *testing.T) {
	s := newTestServer(t, false)
	s.env.CreateAccount(t, 9, accountdomain.StatusActive, 1, 0, 0)

	rec, _ := s.do(t, http.MethodPost, "/v1/accounts/9/bots", gin.H{"token_encrypted": "ciphertext", "config": gin.H{"lang": "en"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "ciphertext"))

	rec, resp := s.do(t, http.MethodGet, "/v1/accounts/9/bots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bots []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &bots))
	assert.Len(t, bots, 1)

	rec, _ = s.do(t, http.MethodPost, "/v1/accounts/10/bots", gin.H{"token_encrypted": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/v1/accounts/9/bots", gin.H{"token_encrypted": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_token", resp.Error.Errors[0].Code)
}

func TestTriggerJob(t *testing.T) {
	without := newTestServer(t, false)
	rec, _ := without.do(t, http.MethodPost, "/v1/jobs/consume_days/trigger", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s := newTestServer(t, true)
	s.env.CreateAccount(t, 1, accountdomain.StatusActive, 3, 0, 0)

	rec, _ = s.do(t, http.MethodPost, "/v1/jobs/unknown/trigger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/jobs/consume_days/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), s.env.MustAccount(t, 1).TrialBalance)

	// A second trigger inside the same period charges nothing.
	rec, _ = s.do(t, http.MethodPost, "/v1/jobs/consume_days/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), s.env.MustAccount(t, 1).TrialBalance)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(accountdomain.ErrAccountDeleted)
	assert.Equal(t, "conflict", errType)
	assert.Equal(t, "account_deleted", code)

	errType, code = classifyErrorForLog(accountdomain.ErrInvalidPool)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_pool", code)
}
