package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/switchboard/internal/allocator"
	applydomain "github.com/smallbiznis/switchboard/internal/apply/domain"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	auditrepo "github.com/smallbiznis/switchboard/internal/audit/repository"
	auditservice "github.com/smallbiznis/switchboard/internal/audit/service"
	"github.com/smallbiznis/switchboard/internal/auditcontext"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/observability"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	resourcerepo "github.com/smallbiznis/switchboard/internal/resource/repository"
	resourceservice "github.com/smallbiznis/switchboard/internal/resource/service"
	"github.com/smallbiznis/switchboard/internal/storetest"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/switchboard/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/switchboard/internal/tenant/service"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
	userrepo "github.com/smallbiznis/switchboard/internal/user/repository"
	userservice "github.com/smallbiznis/switchboard/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplyService struct {
	apply     func(ctx context.Context) (applydomain.Job, error)
	lastActor string
}

func (f *fakeApplyService) Apply(ctx context.Context) (applydomain.Job, error) {
	_, f.lastActor = auditcontext.ActorFromContext(ctx)
	return f.apply(ctx)
}

func (f *fakeApplyService) Get(ctx context.Context, id snowflake.ID) (applydomain.Job, error) {
	_ = ctx
	if id == 7 {
		return applydomain.Job{ID: 7, Status: applydomain.JobSucceeded}, nil
	}
	return applydomain.Job{}, applydomain.ErrJobNotFound
}

func (f *fakeApplyService) List(ctx context.Context, req applydomain.ListJobsRequest) (applydomain.ListJobsResponse, error) {
	_ = ctx
	if req.Status == "bogus" {
		return applydomain.ListJobsResponse{}, applydomain.ErrInvalidStatus
	}
	return applydomain.ListJobsResponse{Jobs: []applydomain.Job{{ID: 7, Status: applydomain.JobSucceeded}}}, nil
}

type testAPI struct {
	router *gin.Engine
	apply  *fakeApplyService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.Open(t)
	node := storetest.MustNode(t)
	clk := storetest.Clock()
	log := storetest.Logger()
	cfg := config.Config{Allocation: config.AllocationConfig{MaxRetries: 5, DefaultExtMin: 1000, DefaultExtMax: 1999}}

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	tenants := tenantservice.New(tenantservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Config: cfg, Repo: tenantrepo.Provide(), Audit: audit,
	})
	resources := resourceservice.New(resourceservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      resourcerepo.Provide(),
		Tenants:   tenantrepo.Provide(),
		Allocator: allocator.New(allocator.Params{DB: db, Log: log, Config: cfg}),
		Audit:     audit,
	})
	users := userservice.New(userservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: userrepo.Provide(), Resources: resources, Audit: audit,
	})
	apply := &fakeApplyService{apply: func(context.Context) (applydomain.Job, error) {
		return applydomain.Job{ID: 1, Status: applydomain.JobSucceeded}, nil
	}}

	engine := NewEngine(EngineParams{ObsCfg: observability.Config{}, DB: db})
	NewServer(ServerParams{
		Gin:         engine,
		TenantSvc:   tenants,
		UserSvc:     users,
		ResourceSvc: resources,
		ApplySvc:    apply,
		AuditSvc:    audit,
	})
	return &testAPI{router: engine, apply: apply}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
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
	req.Header.Set(HeaderActorID, "ops-1")
	resp := httptest.NewRecorder()
	a.router.ServeHTTP(resp, req)
	return resp
}

func decodeData[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body.Data
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body.Error
}

func TestProvisioningFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/v1/tenants", gin.H{"name": "Acme", "ext_min": 1000, "ext_max": 1001})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	tenant := decodeData[tenantdomain.Tenant](t, resp)
	assert.Equal(t, "acme", tenant.Slug)
	tenantPath := "/api/v1/tenants/" + tenant.ID.String()

	resp = api.do(t, http.MethodPost, tenantPath+"/users", gin.H{"name": "Alice", "email": "alice@example.com"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	alice := decodeData[userdomain.UserWithExtension](t, resp)
	require.NotNil(t, alice.Extension)
	assert.Equal(t, 1000, alice.Extension.Number)

	resp = api.do(t, http.MethodPost, tenantPath+"/users", gin.H{"name": "Bob", "email": "bob@example.com"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = api.do(t, http.MethodPost, tenantPath+"/users", gin.H{"name": "Carol", "email": "carol@example.com"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())
	assert.Equal(t, "pool_exhausted", decodeError(t, resp).Type)

	resp = api.do(t, http.MethodPost, "/api/v1/numbers/import", gin.H{"numbers": []string{"+1 (555) 123-4567", "bogus"}, "provider": "acme-telco"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	imported := decodeData[resourcedomain.ImportPhoneNumbersResult](t, resp)
	require.Len(t, imported.Created, 1)
	require.Len(t, imported.Rejected, 1)
	number := imported.Created[0]
	assert.Equal(t, "+15551234567", number.Number)

	resp = api.do(t, http.MethodPost, "/api/v1/numbers/allocate", gin.H{"tenant_id": tenant.ID.String(), "phone_number_id": number.ID.String()})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, resourcedomain.PhoneNumberAllocated, decodeData[resourcedomain.PhoneNumber](t, resp).Status)

	bindPath := "/api/v1/numbers/" + number.ID.String() + "/binding"
	resp = api.do(t, http.MethodPut, bindPath, gin.H{"kind": "user", "ref": alice.ID.String()})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = api.do(t, http.MethodPut, bindPath, gin.H{"kind": "user", "ref": alice.ID.String()})
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	assert.Equal(t, "already_bound", decodeError(t, resp).Type)

	resp = api.do(t, http.MethodDelete, "/api/v1/users/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	assert.Equal(t, "user_has_bindings", decodeError(t, resp).Code)

	resp = api.do(t, http.MethodDelete, "/api/v1/users/"+alice.ID.String()+"?cascade=true", nil)
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = api.do(t, http.MethodGet, bindPath, nil)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = api.do(t, http.MethodGet, "/api/v1/audit-logs?actor=ops-1&entity_type=binding", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	logs := decodeData[[]auditdomain.AuditLog](t, resp)
	require.NotEmpty(t, logs)
	for _, entry := range logs {
		assert.Equal(t, "ops-1", entry.Actor)
		assert.Equal(t, "binding", entry.EntityType)
	}
}

func TestTenantValidationAndLookupErrors(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/v1/tenants", gin.H{"name": "Bad", "ext_min": 2000, "ext_max": 1000})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_extension_range", decodeError(t, resp).Code)

	resp = api.do(t, http.MethodGet, "/api/v1/tenants/not-an-id", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_tenant_id", decodeError(t, resp).Errors[0].Code)

	resp = api.do(t, http.MethodGet, "/api/v1/tenants/123456789", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "tenant_not_found", decodeError(t, resp).Code)

	resp = api.do(t, http.MethodGet, "/api/v1/numbers?status=parked", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestApplyEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/v1/apply", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "ops-1", api.apply.lastActor)
	assert.Equal(t, applydomain.JobSucceeded, decodeData[applydomain.Job](t, resp).Status)

	api.apply.apply = func(context.Context) (applydomain.Job, error) {
		return applydomain.Job{}, applydomain.ErrApplyInProgress
	}
	resp = api.do(t, http.MethodPost, "/api/v1/apply", nil)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "5", resp.Header().Get("Retry-After"))

	api.apply.apply = func(context.Context) (applydomain.Job, error) {
		job := applydomain.Job{ID: 9, Status: applydomain.JobFailed}
		return job, &applydomain.Failure{Kind: applydomain.ErrRollbackFailure, Job: job}
	}
	resp = api.do(t, http.MethodPost, "/api/v1/apply", nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	var failed errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &failed))
	assert.Equal(t, "rollback_failure", failed.Error.Type)
	require.NotNil(t, failed.Job)
	assert.Equal(t, applydomain.JobFailed, failed.Job.Status)

	resp = api.do(t, http.MethodGet, "/api/v1/apply/jobs/7", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = api.do(t, http.MethodGet, "/api/v1/apply/jobs/8", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = api.do(t, http.MethodGet, "/api/v1/apply/jobs?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.do(t, http.MethodGet, "/api/v1/apply/jobs", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decodeData[[]applydomain.Job](t, resp), 1)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.Code)
}
