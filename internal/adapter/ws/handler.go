// Package ws implements the /ws/update websocket adapter: a
// subscriber logs in with a JWT or API key, then receives every UPDATE and
// ALERT broadcast whose target it has at least Read on.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/service"
)

// Message is the envelope for every broadcast sent over the socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// subscriberQueueSize bounds each subscriber's pending-message queue. Once
// full, the oldest pending message is dropped to make room for the new
// one — no broadcast ever blocks waiting on a slow client.
const subscriberQueueSize = 256

// loginFrame is the first message a subscriber must send, in the same
// tagged-envelope shape as the HTTP API: either
// {"type":"Jwt","params":{"jwt":"..."}} or
// {"type":"ApiKeys","params":{"key":"...","secret":"..."}}.
type loginFrame struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type jwtParams struct {
	Jwt string `json:"jwt"`
}

type apiKeysParams struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscriber struct {
	userID string
	send   chan Message
	cancel context.CancelFunc
	conn   *websocket.Conn
}

var (
	errDisabledUser     = errors.New("user is disabled")
	errUnknownLoginType = errors.New("unrecognized login request type")
)

// Hub manages every logged-in websocket subscriber and fans broadcast
// events out to them, filtered per subscriber by effective permission.
type Hub struct {
	mu          sync.RWMutex
	subs        map[*subscriber]struct{}
	allowOrigin string

	auth      *service.AuthService
	perm      *service.PermissionService
	resources *service.Resources
}

// NewHub creates a Hub wired against the services it needs to
// authenticate a login frame and resolve a subscriber's effective
// permission on a broadcast's target.
func NewHub(auth *service.AuthService, perm *service.PermissionService, resources *service.Resources, allowOrigin string) *Hub {
	return &Hub{
		subs:        make(map[*subscriber]struct{}),
		allowOrigin: allowOrigin,
		auth:        auth,
		perm:        perm,
		resources:   resources,
	}
}

// HandleWS upgrades the request, performs the login handshake, and then
// blocks relaying broadcasts to the subscriber until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.allowOrigin != "" {
		opts.OriginPatterns = []string{h.allowOrigin}
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "")

	u, err := h.login(ctx, conn)
	if err != nil {
		slog.Info("websocket login failed", "remote", r.RemoteAddr, "error", err)
		_ = conn.Write(ctx, websocket.MessageText, []byte(err.Error()))
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("LOGGED_IN")); err != nil {
		return
	}

	sub := &subscriber{userID: u.ID, send: make(chan Message, subscriberQueueSize), cancel: cancel, conn: conn}
	h.add(sub)
	defer h.remove(sub)

	slog.Info("websocket subscriber connected", "remote", r.RemoteAddr, "user", u.Username)

	go h.writeLoop(ctx, conn, sub)

	// The read loop only exists to detect client-initiated close; Core
	// never expects further frames from a logged-in subscriber.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// login reads the subscriber's first frame and resolves it to a user.
func (h *Hub) login(ctx context.Context, conn *websocket.Conn) (*user.User, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	var frame loginFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}

	switch frame.Type {
	case "Jwt":
		var p jwtParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			return nil, err
		}
		claims, err := h.auth.ValidateAccessToken(p.Jwt)
		if err != nil {
			return nil, err
		}
		u, err := h.auth.GetUser(ctx, claims.UserID)
		if err != nil {
			return nil, err
		}
		if !u.Enabled {
			return nil, errDisabledUser
		}
		return u, nil

	case "ApiKeys":
		var p apiKeysParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			return nil, err
		}
		u, _, err := h.auth.ValidateAPIKey(ctx, p.Key, p.Secret)
		if err != nil {
			return nil, err
		}
		return u, nil

	default:
		return nil, errUnknownLoginType
	}
}

// writeLoop drains sub.send to the underlying connection. Running this on
// its own goroutine keeps a slow websocket write from blocking the
// broadcaster: broadcast() only ever enqueues, never writes directly.
func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.send:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				sub.cancel()
				return
			}
		}
	}
}

// invalidate sends an INVALID_USER frame and tears the subscriber down
//.
func (h *Hub) invalidate(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = conn.Write(writeCtx, websocket.MessageText, []byte("INVALID_USER"))
	cancel()
	sub.cancel()
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// broadcast delivers msg to every subscriber whose effective permission on
// target is at least Read. A zero-value target (e.g. a malformed payload)
// is treated as System-scoped and requires admin.
func (h *Hub) broadcast(ctx context.Context, msg Message, target resource.TargetRef) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if h.allowed(ctx, sub, target) {
			enqueue(sub.send, msg)
		}
	}
}

// allowed re-fetches the subscriber's user record on every broadcast
// (permission can change between a subscriber's updates) and resolves its
// effective level against target. A missing or disabled user record is a
// dead session, not just a filtered broadcast: the subscriber gets an
// INVALID_USER frame and its connection is torn down.
func (h *Hub) allowed(ctx context.Context, sub *subscriber, target resource.TargetRef) bool {
	u, err := h.auth.GetUser(ctx, sub.userID)
	if err != nil || !u.Enabled {
		h.invalidate(ctx, sub.conn, sub)
		return false
	}
	if u.Admin || u.SuperAdmin {
		return true
	}
	if target.Kind == "" {
		return false
	}
	base, err := h.resources.BasePermissionOf(ctx, target)
	if err != nil {
		return false
	}
	level, err := h.perm.Resolve(ctx, u, target, base)
	if err != nil {
		return false
	}
	return level.Level() >= resource.PermissionRead.Level()
}

// enqueue pushes msg onto ch, dropping the oldest pending message first if
// ch is already full.
func enqueue(ch chan Message, msg Message) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// ConnectionCount returns the number of logged-in subscribers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
