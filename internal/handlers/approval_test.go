// internal/handlers/approval_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-backend/internal/config"
	"github.com/medvault/medvault-backend/internal/middleware"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/services"
	"github.com/medvault/medvault-backend/internal/store"
	"github.com/medvault/medvault-backend/internal/utils"
)

type approvalAPIFixture struct {
	router       *gin.Engine
	users        *store.MemoryUserStore
	patient      *models.User
	practitioner *models.User
}

func newApprovalAPIFixture(t *testing.T) *approvalAPIFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	approvalStore := store.NewMemoryApprovalStore()
	userStore := store.NewMemoryUserStore()

	// Unconfigured directory and ledger run in their local modes: the
	// eligibility check passes and dispatches are simulated.
	cfg := &config.Config{}
	approvalService := services.NewApprovalService(
		approvalStore,
		userStore,
		services.NewDirectoryService(cfg),
		services.NewLedgerService(cfg),
		nil,
	)
	handler := NewApprovalHandler(approvalService)

	patient := &models.User{
		Username:     "alice",
		UserType:     models.UserTypePatient,
		Status:       models.UserStatusActive,
		ChainAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	practitioner := &models.User{
		Username:     "dr-bob",
		UserType:     models.UserTypePractitioner,
		Status:       models.UserStatusActive,
		ChainAddress: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	userStore.Put(patient)
	userStore.Put(practitioner)

	r := gin.New()
	approvals := r.Group("/api/v1/approvals")
	approvals.Use(middleware.AuthRequired())
	{
		approvals.POST("", middleware.RequireUserType(string(models.UserTypePatient)), handler.CreateApproval)
		approvals.GET("", handler.ListMyApprovals)
		approvals.GET("/:approval_id", handler.GetApproval)
		approvals.POST("/:approval_id/accept", middleware.RequireUserType(string(models.UserTypePractitioner)), handler.AcceptApproval)
		approvals.POST("/:approval_id/reject", middleware.RequireUserType(string(models.UserTypePractitioner)), handler.RejectApproval)
	}

	return &approvalAPIFixture{
		router:       r,
		users:        userStore,
		patient:      patient,
		practitioner: practitioner,
	}
}

func (f *approvalAPIFixture) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateJWT(user.ID, user.Username, string(user.UserType), user.ChainAddress, 1)
	require.NoError(t, err)
	return token
}

func (f *approvalAPIFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (f *approvalAPIFixture) createApproval(t *testing.T, body map[string]interface{}) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/v1/approvals", f.tokenFor(t, f.patient), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	id, ok := data["id"].(string)
	require.True(t, ok)
	return id
}

func TestCreateApprovalEndpoint(t *testing.T) {
	f := newApprovalAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/approvals", f.tokenFor(t, f.patient), map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "created", data["status"])
	assert.Equal(t, f.practitioner.ChainAddress, data["practitioner_address"])
	assert.NotEmpty(t, data["ledger_tx_hash"])
}

func TestCreateApprovalEndpointRequiresAuth(t *testing.T) {
	f := newApprovalAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/approvals", "", map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateApprovalEndpointPractitionersCannotGrant(t *testing.T) {
	f := newApprovalAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/approvals", f.tokenFor(t, f.practitioner), map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateApprovalEndpointWriteWithoutRecord(t *testing.T) {
	f := newApprovalAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/approvals", f.tokenFor(t, f.patient), map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "write",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RECORD_ID_REQUIRED", resp.Error.Code)
}

func TestCreateApprovalEndpointConflict(t *testing.T) {
	f := newApprovalAPIFixture(t)

	body := map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "full",
		"record_id":       11,
	}
	f.createApproval(t, body)

	w := f.do(t, http.MethodPost, "/api/v1/approvals", f.tokenFor(t, f.patient), body)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "APPROVAL_ALREADY_EXISTS", resp.Error.Code)
}

func TestAcceptApprovalEndpoint(t *testing.T) {
	f := newApprovalAPIFixture(t)

	id := f.createApproval(t, map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/approvals/%s/accept", id), f.tokenFor(t, f.practitioner), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "accepted", data["status"])
	assert.Equal(t, true, data["is_request_accepted"])

	// Accepting again conflicts with the terminal-ish state.
	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/approvals/%s/accept", id), f.tokenFor(t, f.practitioner), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectApprovalEndpoint(t *testing.T) {
	f := newApprovalAPIFixture(t)

	id := f.createApproval(t, map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/approvals/%s/reject", id), f.tokenFor(t, f.practitioner), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "rejected", data["status"])
}

func TestGetApprovalEndpointHidesFromStrangers(t *testing.T) {
	f := newApprovalAPIFixture(t)

	stranger := &models.User{
		Username:     "trudy",
		UserType:     models.UserTypePatient,
		Status:       models.UserStatusActive,
		ChainAddress: "0xcccccccccccccccccccccccccccccccccccccccc",
	}
	f.users.Put(stranger)

	id := f.createApproval(t, map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})

	w := f.do(t, http.MethodGet, "/api/v1/approvals/"+id, f.tokenFor(t, f.patient), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/approvals/"+id, f.tokenFor(t, stranger), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMyApprovalsEndpoint(t *testing.T) {
	f := newApprovalAPIFixture(t)

	f.createApproval(t, map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "read",
	})
	f.createApproval(t, map[string]interface{}{
		"practitioner_id": f.practitioner.ID.String(),
		"access_level":    "write",
		"record_id":       4,
	})

	// The patient sees the grants they issued.
	w := f.do(t, http.MethodGet, "/api/v1/approvals", f.tokenFor(t, f.patient), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, int64(2), resp.Pagination.Total)

	// The practitioner sees the grants addressed to them.
	w = f.do(t, http.MethodGet, "/api/v1/approvals", f.tokenFor(t, f.practitioner), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeResponse(t, w)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, int64(2), resp.Pagination.Total)

	// Status filtering.
	w = f.do(t, http.MethodGet, "/api/v1/approvals?status=accepted", f.tokenFor(t, f.patient), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeResponse(t, w)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, int64(0), resp.Pagination.Total)
}
