package http

import (
	"encoding/json"
	"net/http"

	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/service"
)

// envelope is the tagged-union shape every /read, /write, /execute, and
// /user request arrives in: {"type": "<Kind>", "params": {...}}.
type envelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// decodeParams unmarshals an envelope's params into T. An empty params
// object is valid for request kinds that take no arguments.
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// idOrNameParams is the common shape of any request that resolves a single
// resource by id or name.
type idOrNameParams struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

func (p idOrNameParams) key() string {
	if p.Id != "" {
		return p.Id
	}
	return p.Name
}

// resourceList dispatches a List request against a generically-typed
// ResourceService — the same function value serves all eleven resource kinds
// since each is wired with its own concrete type parameters at the call
// site.
func resourceList[C any, I any, P any](w http.ResponseWriter, r *http.Request, u *user.User, svc *service.ResourceService[C, I, P]) {
	items, err := svc.List(r.Context(), u)
	if err != nil {
		writeDomainError(w, err, "list failed")
		return
	}
	if items == nil {
		items = []resource.Resource[C, I]{}
	}
	writeJSON(w, http.StatusOK, items)
}

func resourceGet[C any, I any, P any](w http.ResponseWriter, r *http.Request, u *user.User, svc *service.ResourceService[C, I, P], raw json.RawMessage) {
	p, err := decodeParams[idOrNameParams](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requireField(w, p.key(), "id or name") {
		return
	}
	res, err := svc.Get(r.Context(), u, p.key())
	if err != nil {
		writeDomainError(w, err, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createParams[C any] struct {
	Name   string `json:"name"`
	Config *C     `json:"config"`
}

func resourceCreate[C any, I any, P any](w http.ResponseWriter, r *http.Request, u *user.User, svc *service.ResourceService[C, I, P], raw json.RawMessage) {
	p, err := decodeParams[createParams[C]](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := svc.Create(r.Context(), u, p.Name, p.Config)
	if err != nil {
		writeDomainError(w, err, "create failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateParams[P any] struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Config P      `json:"config"`
}

func resourceUpdate[C any, I any, P any](w http.ResponseWriter, r *http.Request, u *user.User, svc *service.ResourceService[C, I, P], raw json.RawMessage) {
	p, err := decodeParams[updateParams[P]](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := p.Id
	if key == "" {
		key = p.Name
	}
	if !requireField(w, key, "id or name") {
		return
	}
	res, err := svc.UpdateConfig(r.Context(), u, key, p.Config)
	if err != nil {
		writeDomainError(w, err, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func resourceDelete[C any, I any, P any](w http.ResponseWriter, r *http.Request, u *user.User, svc *service.ResourceService[C, I, P], raw json.RawMessage) {
	p, err := decodeParams[idOrNameParams](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requireField(w, p.key(), "id or name") {
		return
	}
	if err := svc.Delete(r.Context(), u, p.key()); err != nil {
		writeDomainError(w, err, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// okResponse is returned by request kinds whose result is "it worked", not a
// payload to decode — e.g. every /execute kind.
type okResponse struct {
	Ok bool `json:"ok"`
}

func writeOk(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// noParams is the zero-length params shape for request kinds that ignore
// their body entirely (e.g. "ListServers").
type noParams struct{}
