package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/permission"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/domain/variable"
	"github.com/komodo-run/core/internal/middleware"
	"github.com/komodo-run/core/internal/port/database"
	"github.com/komodo-run/core/internal/service"
)

// Handlers bundles every service the /read, /write, /execute, and /user
// request resolvers dispatch into. One Handlers is built once in cmd/core
// and mounted onto the router by MountRoutes.
type Handlers struct {
	Resources *service.Resources
	Execute   *service.ExecuteService
	Sync      *service.SyncService
	Webhook   *service.WebhookService
	Auth      *service.AuthService
	Perm      *service.PermissionService
	Updates   *service.UpdateService
	Alerts    *service.AlertService
	Store     database.Store
	BodyLimit int64
}

func (h *Handlers) bodyLimit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return 10 << 20
}

func readRawBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	return body, true
}

// HandleRead serves /read: every non-mutating request kind — every
// resource kind, plus updates, alerts, tags, variables, groups, and users.
func (h *Handlers) HandleRead(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	env, ok := readJSON[envelope](w, r, h.bodyLimit())
	if !ok {
		return
	}
	ctx := r.Context()

	switch env.Type {
	case "ListServers":
		resourceList(w, r, u, h.Resources.Servers)
	case "GetServer":
		resourceGet(w, r, u, h.Resources.Servers, env.Params)
	case "ListDeployments":
		resourceList(w, r, u, h.Resources.Deployments)
	case "GetDeployment":
		resourceGet(w, r, u, h.Resources.Deployments, env.Params)
	case "ListBuilds":
		resourceList(w, r, u, h.Resources.Builds)
	case "GetBuild":
		resourceGet(w, r, u, h.Resources.Builds, env.Params)
	case "ListRepos":
		resourceList(w, r, u, h.Resources.Repos)
	case "GetRepo":
		resourceGet(w, r, u, h.Resources.Repos, env.Params)
	case "ListStacks":
		resourceList(w, r, u, h.Resources.Stacks)
	case "GetStack":
		resourceGet(w, r, u, h.Resources.Stacks, env.Params)
	case "ListProcedures":
		resourceList(w, r, u, h.Resources.Procedures)
	case "GetProcedure":
		resourceGet(w, r, u, h.Resources.Procedures, env.Params)
	case "ListActions":
		resourceList(w, r, u, h.Resources.Actions)
	case "GetAction":
		resourceGet(w, r, u, h.Resources.Actions, env.Params)
	case "ListAlerters":
		resourceList(w, r, u, h.Resources.Alerters)
	case "GetAlerter":
		resourceGet(w, r, u, h.Resources.Alerters, env.Params)
	case "ListBuilders":
		resourceList(w, r, u, h.Resources.Builders)
	case "GetBuilder":
		resourceGet(w, r, u, h.Resources.Builders, env.Params)
	case "ListServerTemplates":
		resourceList(w, r, u, h.Resources.ServerTemplates)
	case "GetServerTemplate":
		resourceGet(w, r, u, h.Resources.ServerTemplates, env.Params)
	case "ListResourceSyncs":
		resourceList(w, r, u, h.Resources.ResourceSyncs)
	case "GetResourceSync":
		resourceGet(w, r, u, h.Resources.ResourceSyncs, env.Params)

	case "FindResources":
		h.findResources(w, r, u, env.Params)
	case "GetHistoricalServerStats":
		h.historicalServerStats(w, r, u, env.Params)

	case "ListUpdates":
		h.listUpdates(w, r, env.Params)
	case "GetUpdate":
		h.getUpdate(w, r, env.Params)

	case "ListAlerts":
		h.listAlerts(w, r, env.Params)
	case "ListOpenAlerts":
		alerts, err := h.Store.ListOpenAlerts(ctx)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, alerts)

	case "ListTags":
		tags, err := h.Store.ListTags(ctx)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tags)
	case "ListResourceTags":
		p, err := decodeParams[resource.TargetRef](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		tags, err := h.Store.ListResourceTags(ctx, p)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tags)

	case "ListVariables":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		vars, err := h.Store.ListVariables(ctx)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, vars)
	case "GetVariable":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			Name string `json:"name"`
		}](env.Params)
		if err != nil || !requireField(w, p.Name, "name") {
			return
		}
		v, err := h.Store.GetVariable(ctx, p.Name)
		if err != nil {
			writeDomainError(w, err, "variable not found")
			return
		}
		writeJSON(w, http.StatusOK, v)

	case "ListGroups":
		groups, err := h.Store.ListGroups(ctx)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	case "GetGroup":
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		g, err := h.Store.GetGroup(ctx, p.Id)
		if err != nil {
			writeDomainError(w, err, "group not found")
			return
		}
		writeJSON(w, http.StatusOK, g)

	case "ListUsers":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		users, err := h.Auth.ListUsers(ctx)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case "GetUser":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		target, err := h.Auth.GetUser(ctx, p.Id)
		if err != nil {
			writeDomainError(w, err, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, target)

	default:
		writeError(w, http.StatusBadRequest, "unknown read request type: "+env.Type)
	}
}

func (h *Handlers) findResources(w http.ResponseWriter, r *http.Request, u *user.User, raw []byte) {
	p, err := decodeParams[struct {
		Query string   `json:"query"`
		Tags  []string `json:"tags"`
	}](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	summaries, err := h.Resources.FindResources(r.Context(), u, p.Query, p.Tags)
	if err != nil {
		writeDomainError(w, err, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) historicalServerStats(w http.ResponseWriter, r *http.Request, u *user.User, raw []byte) {
	p, err := decodeParams[struct {
		Id    string `json:"id"`
		Name  string `json:"name"`
		Limit int    `json:"limit"`
	}](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := p.Id
	if key == "" {
		key = p.Name
	}
	srv, err := h.Resources.Servers.Get(r.Context(), u, key)
	if err != nil {
		writeDomainError(w, err, "server not found")
		return
	}
	stats, err := h.Store.ListServerStats(r.Context(), srv.Id, p.Limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) listUpdates(w http.ResponseWriter, r *http.Request, raw []byte) {
	p, err := decodeParams[struct {
		Target *resource.TargetRef `json:"target"`
		Limit  int                 `json:"limit"`
	}](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var target resource.TargetRef
	if p.Target != nil {
		target = *p.Target
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	updates, err := h.Store.ListUpdates(r.Context(), target, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updates)
}

func (h *Handlers) getUpdate(w http.ResponseWriter, r *http.Request, raw []byte) {
	p, err := decodeParams[idOrNameParams](raw)
	if err != nil || !requireField(w, p.Id, "id") {
		return
	}
	u, err := h.Store.GetUpdate(r.Context(), p.Id)
	if err != nil {
		writeDomainError(w, err, "update not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request, raw []byte) {
	p, err := decodeParams[struct {
		Target *resource.TargetRef `json:"target"`
		Limit  int                 `json:"limit"`
	}](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	alerts, err := h.Store.ListAlerts(r.Context(), p.Target, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleWrite serves /write: create/update/delete of every resource kind
// plus the smaller write-only surfaces (tags, variables, groups, grants,
// user administration).
func (h *Handlers) HandleWrite(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	env, ok := readJSON[envelope](w, r, h.bodyLimit())
	if !ok {
		return
	}
	ctx := r.Context()

	switch env.Type {
	case "CreateServer":
		resourceCreate(w, r, u, h.Resources.Servers, env.Params)
	case "UpdateServer":
		resourceUpdate(w, r, u, h.Resources.Servers, env.Params)
	case "DeleteServer":
		resourceDelete(w, r, u, h.Resources.Servers, env.Params)

	case "CreateDeployment":
		resourceCreate(w, r, u, h.Resources.Deployments, env.Params)
	case "UpdateDeployment":
		resourceUpdate(w, r, u, h.Resources.Deployments, env.Params)
	case "DeleteDeployment":
		resourceDelete(w, r, u, h.Resources.Deployments, env.Params)

	case "CreateBuild":
		resourceCreate(w, r, u, h.Resources.Builds, env.Params)
	case "UpdateBuild":
		resourceUpdate(w, r, u, h.Resources.Builds, env.Params)
	case "DeleteBuild":
		resourceDelete(w, r, u, h.Resources.Builds, env.Params)

	case "CreateRepo":
		resourceCreate(w, r, u, h.Resources.Repos, env.Params)
	case "UpdateRepo":
		resourceUpdate(w, r, u, h.Resources.Repos, env.Params)
	case "DeleteRepo":
		resourceDelete(w, r, u, h.Resources.Repos, env.Params)

	case "CreateStack":
		resourceCreate(w, r, u, h.Resources.Stacks, env.Params)
	case "UpdateStack":
		resourceUpdate(w, r, u, h.Resources.Stacks, env.Params)
	case "DeleteStack":
		resourceDelete(w, r, u, h.Resources.Stacks, env.Params)

	case "CreateProcedure":
		resourceCreate(w, r, u, h.Resources.Procedures, env.Params)
	case "UpdateProcedure":
		resourceUpdate(w, r, u, h.Resources.Procedures, env.Params)
	case "DeleteProcedure":
		resourceDelete(w, r, u, h.Resources.Procedures, env.Params)

	case "CreateAction":
		resourceCreate(w, r, u, h.Resources.Actions, env.Params)
	case "UpdateAction":
		resourceUpdate(w, r, u, h.Resources.Actions, env.Params)
	case "DeleteAction":
		resourceDelete(w, r, u, h.Resources.Actions, env.Params)

	case "CreateAlerter":
		resourceCreate(w, r, u, h.Resources.Alerters, env.Params)
	case "UpdateAlerter":
		resourceUpdate(w, r, u, h.Resources.Alerters, env.Params)
	case "DeleteAlerter":
		resourceDelete(w, r, u, h.Resources.Alerters, env.Params)

	case "CreateBuilder":
		resourceCreate(w, r, u, h.Resources.Builders, env.Params)
	case "UpdateBuilder":
		resourceUpdate(w, r, u, h.Resources.Builders, env.Params)
	case "DeleteBuilder":
		resourceDelete(w, r, u, h.Resources.Builders, env.Params)

	case "CreateServerTemplate":
		resourceCreate(w, r, u, h.Resources.ServerTemplates, env.Params)
	case "UpdateServerTemplate":
		resourceUpdate(w, r, u, h.Resources.ServerTemplates, env.Params)
	case "DeleteServerTemplate":
		resourceDelete(w, r, u, h.Resources.ServerTemplates, env.Params)

	case "CreateResourceSync":
		resourceCreate(w, r, u, h.Resources.ResourceSyncs, env.Params)
	case "UpdateResourceSync":
		resourceUpdate(w, r, u, h.Resources.ResourceSyncs, env.Params)
	case "DeleteResourceSync":
		resourceDelete(w, r, u, h.Resources.ResourceSyncs, env.Params)
	case "RefreshResourceSync":
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.key(), "id or name") {
			return
		}
		s, err := h.Sync.RefreshSync(ctx, u, p.key())
		if err != nil {
			writeDomainError(w, err, "refresh failed")
			return
		}
		writeJSON(w, http.StatusOK, s)

	case "CreateTag":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			Name string `json:"name"`
		}](env.Params)
		if err != nil || !requireField(w, p.Name, "name") {
			return
		}
		t, err := h.Store.CreateTag(ctx, p.Name)
		if err != nil {
			writeDomainError(w, err, "create tag failed")
			return
		}
		writeJSON(w, http.StatusOK, t)
	case "DeleteTag":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		if err := h.Store.DeleteTag(ctx, p.Id); err != nil {
			writeDomainError(w, err, "delete tag failed")
			return
		}
		writeOk(w)
	case "SetResourceTags":
		p, err := decodeParams[struct {
			Target resource.TargetRef `json:"target"`
			TagIds []string           `json:"tag_ids"`
		}](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		base, err := h.Resources.BasePermissionOf(ctx, p.Target)
		if err != nil {
			writeDomainError(w, err, "target not found")
			return
		}
		if err := h.Perm.RequireLevel(ctx, u, p.Target, base, resource.PermissionWrite); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		if err := h.Store.SetResourceTags(ctx, p.Target, p.TagIds); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)

	case "UpsertVariable":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		v, err := decodeParams[variable.Variable](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !requireField(w, v.Name, "name") {
			return
		}
		if err := h.Store.UpsertVariable(ctx, v); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)
	case "DeleteVariable":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			Name string `json:"name"`
		}](env.Params)
		if err != nil || !requireField(w, p.Name, "name") {
			return
		}
		if err := h.Store.DeleteVariable(ctx, p.Name); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)

	case "CreateGroup":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			Name string `json:"name"`
		}](env.Params)
		if err != nil || !requireField(w, p.Name, "name") {
			return
		}
		g, err := h.Store.CreateGroup(ctx, p.Name)
		if err != nil {
			writeDomainError(w, err, "create group failed")
			return
		}
		writeJSON(w, http.StatusOK, g)
	case "DeleteGroup":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		if err := h.Store.DeleteGroup(ctx, p.Id); err != nil {
			writeDomainError(w, err, "delete group failed")
			return
		}
		writeOk(w)
	case "AddGroupMember":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			GroupId string `json:"group_id"`
			UserId  string `json:"user_id"`
		}](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.Store.AddGroupMember(ctx, p.GroupId, p.UserId); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)
	case "RemoveGroupMember":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			GroupId string `json:"group_id"`
			UserId  string `json:"user_id"`
		}](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.Store.RemoveGroupMember(ctx, p.GroupId, p.UserId); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)

	case "UpsertGrant":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		g, err := decodeParams[permission.Grant](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.Store.UpsertGrant(ctx, g); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)
	case "UpsertKindAllGrant":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		g, err := decodeParams[permission.KindAllGrant](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.Store.UpsertKindAllGrant(ctx, g); err != nil {
			writeInternalError(w, err)
			return
		}
		writeOk(w)

	case "CreateServiceUser":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			Username string `json:"username"`
		}](env.Params)
		if err != nil || !requireField(w, p.Username, "username") {
			return
		}
		created, err := h.Auth.CreateServiceUser(ctx, p.Username)
		if err != nil {
			writeDomainError(w, err, "create service user failed")
			return
		}
		writeJSON(w, http.StatusOK, created)
	case "UpdateUser":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[struct {
			Id         string `json:"id"`
			Enabled    *bool  `json:"enabled"`
			Admin      *bool  `json:"admin"`
			SuperAdmin *bool  `json:"super_admin"`
		}](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		if p.SuperAdmin != nil {
			if err := service.RequireSuperAdmin(u); err != nil {
				writeDomainError(w, err, "forbidden")
				return
			}
		}
		updated, err := h.Auth.UpdateUser(ctx, p.Id, service.UpdateUserRequest{Enabled: p.Enabled, Admin: p.Admin, SuperAdmin: p.SuperAdmin})
		if err != nil {
			writeDomainError(w, err, "update user failed")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case "DeleteUser":
		if err := service.RequireAdmin(u); err != nil {
			writeDomainError(w, err, "forbidden")
			return
		}
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		if err := h.Auth.DeleteUser(ctx, p.Id); err != nil {
			writeDomainError(w, err, "delete user failed")
			return
		}
		writeOk(w)

	default:
		writeError(w, http.StatusBadRequest, "unknown write request type: "+env.Type)
	}
}

// HandleExecute serves /execute: every mutating operation that talks to
// Periphery or the sync engine. All of them share the same params shape,
// {"id": "..."} or {"name": "..."}; permission resolution, the busy guard,
// and the Update-log envelope all live in ExecuteService.Dispatch.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	env, ok := readJSON[envelope](w, r, h.bodyLimit())
	if !ok {
		return
	}

	p, err := decodeParams[idOrNameParams](env.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requireField(w, p.key(), "id") {
		return
	}

	if err := h.Execute.Dispatch(r.Context(), u, env.Type, p.key()); err != nil {
		writeDomainError(w, err, "execute failed")
		return
	}
	writeOk(w)
}

// HandleUser serves /user: the self-service surface every authenticated
// principal can reach regardless of resource permissions — their own
// profile and API keys.
func (h *Handlers) HandleUser(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	env, ok := readJSON[envelope](w, r, h.bodyLimit())
	if !ok {
		return
	}
	ctx := r.Context()

	switch env.Type {
	case "GetUsername":
		writeJSON(w, http.StatusOK, *u)

	case "CreateApiKey":
		req, err := decodeParams[user.CreateAPIKeyRequest](env.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		resp, err := h.Auth.CreateAPIKey(ctx, u.ID, req)
		if err != nil {
			writeDomainError(w, err, "create api key failed")
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case "ListApiKeys":
		keys, err := h.Auth.ListAPIKeys(ctx, u.ID)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, keys)

	case "DeleteApiKey":
		p, err := decodeParams[idOrNameParams](env.Params)
		if err != nil || !requireField(w, p.Id, "id") {
			return
		}
		if err := h.Auth.DeleteAPIKey(ctx, p.Id); err != nil {
			writeDomainError(w, err, "delete api key failed")
			return
		}
		writeOk(w)

	default:
		writeError(w, http.StatusBadRequest, "unknown user request type: "+env.Type)
	}
}

// HandleListener serves /listener/<provider>/<kind>/<id>[/<option>].
// Authentication is the provider's own push-event signature, verified
// inside WebhookService.Deliver — this adapter only plumbs the path,
// header, and raw body through.
func (h *Handlers) HandleListener(w http.ResponseWriter, r *http.Request) {
	provider := urlParam(r, "provider")
	kind := urlParam(r, "kind")
	id := urlParam(r, "id")
	option := urlParam(r, "option")

	body, ok := readRawBody(w, r, h.bodyLimit())
	if !ok {
		return
	}

	sigHeader := r.Header.Get("X-Hub-Signature-256")
	if sigHeader == "" {
		sigHeader = r.Header.Get("X-Gitlab-Token")
	}

	accepted, err := h.Webhook.Deliver(r.Context(), provider, kind, id, option, sigHeader, body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		writeErrorTrace(w, status, err)
		return
	}
	if !accepted {
		writeError(w, http.StatusBadRequest, "webhook not accepted")
		return
	}
	writeOk(w)
}

// HealthCheck reports basic liveness for load balancers and orchestrators.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports readiness by checking the database connection.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Store.ListServers(r.Context()); err != nil {
		slog.Error("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
