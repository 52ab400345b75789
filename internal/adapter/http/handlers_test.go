package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cfhttp "github.com/komodo-run/core/internal/adapter/http"
	"github.com/komodo-run/core/internal/adapter/memstore"
	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/domain/server"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/middleware"
	"github.com/komodo-run/core/internal/service"
)

// noopBroadcaster discards every event; the handler tests exercise HTTP
// request/response shapes, not the websocket fan-out.
type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastEvent(context.Context, string, any) {}

func newTestHandlers(t *testing.T) *cfhttp.Handlers {
	t.Helper()
	store := memstore.New()
	perm := service.NewPermissionService(store, false)
	resources := service.NewResources(store, perm)
	authCfg := &config.Auth{
		Enabled:            true,
		JWTSecret:          "test-signing-secret-not-for-prod",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		BcryptCost:         4,
	}
	auth := service.NewAuthService(store, authCfg)
	updates := service.NewUpdateService(store, noopBroadcaster{})
	alerts := service.NewAlertService(store, noopBroadcaster{}, slog.Default())

	return &cfhttp.Handlers{
		Resources: resources,
		Auth:      auth,
		Perm:      perm,
		Updates:   updates,
		Alerts:    alerts,
		Store:     store,
	}
}

// asUser attaches u to the request context the way middleware.Auth would
// after a successful bearer/API-key resolution.
func asUser(r *http.Request, u *user.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.AuthUserCtxKeyForTest(), u))
}

func adminUser() *user.User {
	return &user.User{ID: "00000000-0000-0000-0000-000000000001", Username: "admin", Admin: true, SuperAdmin: true, Enabled: true}
}

func plainUser() *user.User {
	return &user.User{ID: "00000000-0000-0000-0000-000000000002", Username: "alice", Enabled: true}
}

func doEnvelope(t *testing.T, h http.HandlerFunc, u *user.User, reqType string, params any) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]any{"type": reqType}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	if u != nil {
		req = asUser(req, u)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandlers(t)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestHealthReady(t *testing.T) {
	h := newTestHandlers(t)
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListServersEmpty(t *testing.T) {
	h := newTestHandlers(t)
	rec := doEnvelope(t, h.HandleRead, adminUser(), "ListServers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var servers []server.Resource
	if err := json.Unmarshal(rec.Body.Bytes(), &servers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("len(servers) = %d, want 0", len(servers))
	}
}

func TestCreateGetUpdateDeleteServer(t *testing.T) {
	h := newTestHandlers(t)
	admin := adminUser()

	createRec := doEnvelope(t, h.HandleWrite, admin, "CreateServer", map[string]any{
		"name":   "prod-1",
		"config": map[string]any{"address": "http://10.0.0.5:8120"},
	})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", createRec.Code, createRec.Body.String())
	}
	var created server.Resource
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Name != "prod-1" {
		t.Fatalf("created.Name = %q, want prod-1", created.Name)
	}
	if created.Config.Address != "http://10.0.0.5:8120" {
		t.Fatalf("created.Config.Address = %q", created.Config.Address)
	}

	getRec := doEnvelope(t, h.HandleRead, admin, "GetServer", map[string]any{"id": created.Id})
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d body = %s", getRec.Code, getRec.Body.String())
	}

	updateRec := doEnvelope(t, h.HandleWrite, admin, "UpdateServer", map[string]any{
		"id":     created.Id,
		"config": map[string]any{"address": "http://10.0.0.6:8120"},
	})
	if updateRec.Code != http.StatusOK {
		t.Fatalf("update status = %d body = %s", updateRec.Code, updateRec.Body.String())
	}
	var updated server.Resource
	if err := json.Unmarshal(updateRec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Config.Address != "http://10.0.0.6:8120" {
		t.Fatalf("updated.Config.Address = %q, want new address", updated.Config.Address)
	}
	if updated.Version != created.Version+1 {
		t.Fatalf("updated.Version = %d, want %d", updated.Version, created.Version+1)
	}

	deleteRec := doEnvelope(t, h.HandleWrite, admin, "DeleteServer", map[string]any{"id": created.Id})
	if deleteRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d body = %s", deleteRec.Code, deleteRec.Body.String())
	}

	getAfterDelete := doEnvelope(t, h.HandleRead, admin, "GetServer", map[string]any{"id": created.Id})
	if getAfterDelete.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", getAfterDelete.Code)
	}
}

func TestCreateServerDuplicateNameConflicts(t *testing.T) {
	h := newTestHandlers(t)
	admin := adminUser()

	params := map[string]any{"name": "dup", "config": map[string]any{}}
	first := doEnvelope(t, h.HandleWrite, admin, "CreateServer", params)
	if first.Code != http.StatusOK {
		t.Fatalf("first create status = %d", first.Code)
	}
	second := doEnvelope(t, h.HandleWrite, admin, "CreateServer", params)
	if second.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", second.Code)
	}
}

func TestListVariablesRequiresAdmin(t *testing.T) {
	h := newTestHandlers(t)
	rec := doEnvelope(t, h.HandleRead, plainUser(), "ListVariables", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestListVariablesAsAdminSucceeds(t *testing.T) {
	h := newTestHandlers(t)
	rec := doEnvelope(t, h.HandleRead, adminUser(), "ListVariables", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownReadType(t *testing.T) {
	h := newTestHandlers(t)
	rec := doEnvelope(t, h.HandleRead, adminUser(), "NotARealType", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpsertAndDeleteVariable(t *testing.T) {
	h := newTestHandlers(t)
	admin := adminUser()

	upsert := doEnvelope(t, h.HandleWrite, admin, "UpsertVariable", map[string]any{
		"name":  "REGISTRY_TOKEN",
		"value": "s3cr3t",
	})
	if upsert.Code != http.StatusOK {
		t.Fatalf("upsert status = %d body = %s", upsert.Code, upsert.Body.String())
	}

	get := doEnvelope(t, h.HandleRead, admin, "GetVariable", map[string]any{"name": "REGISTRY_TOKEN"})
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d body = %s", get.Code, get.Body.String())
	}

	del := doEnvelope(t, h.HandleWrite, admin, "DeleteVariable", map[string]any{"name": "REGISTRY_TOKEN"})
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d body = %s", del.Code, del.Body.String())
	}

	getAfterDelete := doEnvelope(t, h.HandleRead, admin, "GetVariable", map[string]any{"name": "REGISTRY_TOKEN"})
	if getAfterDelete.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", getAfterDelete.Code)
	}
}

func TestCreateAndDeleteTag(t *testing.T) {
	h := newTestHandlers(t)
	admin := adminUser()

	createRec := doEnvelope(t, h.HandleWrite, admin, "CreateTag", map[string]any{"name": "staging"})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", createRec.Code, createRec.Body.String())
	}

	listRec := doEnvelope(t, h.HandleRead, admin, "ListTags", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
}

func TestAuthSetupThenLogin(t *testing.T) {
	h := newTestHandlers(t)

	statusRec := httptest.NewRecorder()
	h.HandleSetupStatus(statusRec, httptest.NewRequest(http.MethodGet, "/auth/setup-status", nil))
	if statusRec.Code != http.StatusOK {
		t.Fatalf("setup-status = %d", statusRec.Code)
	}
	var status service.SetupStatus
	if err := json.Unmarshal(statusRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode setup-status: %v", err)
	}
	if !status.NeedsSetup {
		t.Fatalf("NeedsSetup = false on an empty store")
	}

	setupBody, _ := json.Marshal(map[string]string{
		"username": "founder",
		"password": "Str0ngPassw0rd!",
	})
	setupReq := httptest.NewRequest(http.MethodPost, "/auth/setup", bytes.NewReader(setupBody))
	setupRec := httptest.NewRecorder()
	h.HandleSetup(setupRec, setupReq)
	if setupRec.Code != http.StatusOK {
		t.Fatalf("setup status = %d body = %s", setupRec.Code, setupRec.Body.String())
	}
	var loginResp user.LoginResponse
	if err := json.Unmarshal(setupRec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode setup response: %v", err)
	}
	if loginResp.AccessToken == "" {
		t.Fatalf("setup response carried no access token")
	}
	if !loginResp.User.SuperAdmin {
		t.Fatalf("first registered user was not elevated to super_admin")
	}

	// A second setup attempt must be rejected now that a user exists.
	secondSetupRec := httptest.NewRecorder()
	h.HandleSetup(secondSetupRec, httptest.NewRequest(http.MethodPost, "/auth/setup", bytes.NewReader(setupBody)))
	if secondSetupRec.Code != http.StatusConflict {
		t.Fatalf("second setup status = %d, want 409", secondSetupRec.Code)
	}

	loginBody, _ := json.Marshal(user.LoginRequest{Username: "founder", Password: "Str0ngPassw0rd!"})
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody))
	loginRec := httptest.NewRecorder()
	h.HandleLogin(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", loginRec.Code, loginRec.Body.String())
	}
}

func TestAuthLoginRejectsBadPassword(t *testing.T) {
	h := newTestHandlers(t)
	setupBody, _ := json.Marshal(map[string]string{"username": "founder", "password": "Str0ngPassw0rd!"})
	h.HandleSetup(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/setup", bytes.NewReader(setupBody)))

	loginBody, _ := json.Marshal(user.LoginRequest{Username: "founder", Password: "wrong-password"})
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleMeRequiresAuth(t *testing.T) {
	h := newTestHandlers(t)
	rec := httptest.NewRecorder()
	h.HandleMe(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleMeReturnsCurrentUser(t *testing.T) {
	h := newTestHandlers(t)
	u := adminUser()
	req := asUser(httptest.NewRequest(http.MethodGet, "/auth/me", nil), u)
	rec := httptest.NewRecorder()
	h.HandleMe(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("got.ID = %q, want %q", got.ID, u.ID)
	}
}

func TestUserApiKeyLifecycle(t *testing.T) {
	h := newTestHandlers(t)
	admin := adminUser()

	createRec := doEnvelope(t, h.HandleUser, admin, "CreateApiKey", map[string]any{"name": "ci-runner"})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", createRec.Code, createRec.Body.String())
	}
	var created user.CreateAPIKeyResponse
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Secret == "" {
		t.Fatalf("no secret returned at creation time")
	}

	listRec := doEnvelope(t, h.HandleUser, admin, "ListApiKeys", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var keys []user.APIKey
	if err := json.Unmarshal(listRec.Body.Bytes(), &keys); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("len(keys) = %d, want 1", len(keys))
	}

	deleteRec := doEnvelope(t, h.HandleUser, admin, "DeleteApiKey", map[string]any{"id": created.APIKey.ID})
	if deleteRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d body = %s", deleteRec.Code, deleteRec.Body.String())
	}
}

func TestUnknownWriteType(t *testing.T) {
	h := newTestHandlers(t)
	rec := doEnvelope(t, h.HandleWrite, adminUser(), "NotARealWrite", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExecute_MissingIdRejected(t *testing.T) {
	// An /execute request whose params carry neither id nor name is
	// stopped by the idOrNameParams missing-field guard before dispatch.
	h := newTestHandlers(t)
	rec := doEnvelope(t, h.HandleExecute, adminUser(), "DeployContainer", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a missing id", rec.Code)
	}
}

