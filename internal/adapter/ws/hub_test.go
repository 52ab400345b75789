package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/komodo-run/core/internal/adapter/memstore"
	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/permission"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/update"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/service"
)

func newHubFixture(t *testing.T) (*Hub, *memstore.Store, *service.AuthService) {
	t.Helper()
	store := memstore.New()
	authCfg := config.Auth{
		Enabled:            true,
		JWTSecret:          "hub-test-signing-secret-0123456789",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
		BcryptCost:         4,
	}
	auth := service.NewAuthService(store, &authCfg)
	perm := service.NewPermissionService(store, false)
	resources := service.NewResources(store, perm)
	return NewHub(auth, perm, resources, ""), store, auth
}

func loginUser(t *testing.T, auth *service.AuthService, username, password string) string {
	t.Helper()
	resp, _, err := auth.Login(context.Background(), user.LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return resp.AccessToken
}

// dialAndLogin connects to srv and performs the Jwt login handshake,
// asserting the LOGGED_IN reply.
func dialAndLogin(t *testing.T, srv *httptest.Server, jwt string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	frame := map[string]any{"type": "Jwt", "params": map[string]string{"jwt": jwt}}
	data, _ := json.Marshal(frame)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write login frame: %v", err)
	}
	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read login reply: %v", err)
	}
	if string(reply) != "LOGGED_IN" {
		t.Fatalf("login reply = %q, want LOGGED_IN", reply)
	}
	return conn
}

func TestHub_LoginAndPermissionFilteredBroadcast(t *testing.T) {
	hub, store, auth := newHubFixture(t)
	ctx := context.Background()

	alice, err := auth.Register(ctx, &user.CreateRequest{Username: "alice", Password: "Sup3rSecret!pw"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	d1, _ := store.CreateDeployment(ctx, "d1", deployment.Config{Image: "a:1"})
	d2, _ := store.CreateDeployment(ctx, "d2", deployment.Config{Image: "b:1"})

	// alice can Read d1 only.
	if err := store.UpsertGrant(ctx, permission.Grant{
		Principal: permission.PrincipalUser,
		UserOrID:  alice.ID,
		Target:    resource.TargetRef{Kind: resource.KindDeployment, Id: d1.Id},
		Level:     resource.PermissionRead,
	}); err != nil {
		t.Fatalf("UpsertGrant() error = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialAndLogin(t, srv, loginUser(t, auth, "alice", "Sup3rSecret!pw"))
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The LOGGED_IN reply races the subscriber registration by one
	// statement; wait for the hub to see the connection.
	for i := 0; hub.ConnectionCount() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ConnectionCount() != 1 {
		t.Fatal("subscriber never registered")
	}

	// d2 first (must be filtered out), then d1 (must arrive). Receiving
	// d1 as the first frame proves d2 was never enqueued.
	hub.BroadcastEvent(ctx, EventUpdate, &update.Update{
		Id:     "u-d2",
		Target: resource.TargetRef{Kind: resource.KindDeployment, Id: d2.Id},
	})
	hub.BroadcastEvent(ctx, EventUpdate, &update.Update{
		Id:     "u-d1",
		Target: resource.TargetRef{Kind: resource.KindDeployment, Id: d1.Id},
	})

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if msg.Type != EventUpdate {
		t.Errorf("type = %s, want %s", msg.Type, EventUpdate)
	}
	var payload update.Update
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Id != "u-d1" {
		t.Errorf("first delivered update = %s, want u-d1 (u-d2 should be filtered)", payload.Id)
	}
}

func TestHub_DisabledUserGetsInvalidUserAndClose(t *testing.T) {
	hub, store, auth := newHubFixture(t)
	ctx := context.Background()

	alice, err := auth.Register(ctx, &user.CreateRequest{Username: "alice", Password: "Sup3rSecret!pw"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d1, _ := store.CreateDeployment(ctx, "d1", deployment.Config{Image: "a:1"})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialAndLogin(t, srv, loginUser(t, auth, "alice", "Sup3rSecret!pw"))
	defer conn.Close(websocket.StatusNormalClosure, "")

	for i := 0; hub.ConnectionCount() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ConnectionCount() != 1 {
		t.Fatal("subscriber never registered")
	}

	// Disable alice mid-stream; the next broadcast's user re-fetch must
	// tear the session down with an INVALID_USER frame.
	alice.Enabled = false
	if err := store.UpdateUser(ctx, alice); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	hub.BroadcastEvent(ctx, EventUpdate, &update.Update{
		Id:     "u-d1",
		Target: resource.TargetRef{Kind: resource.KindDeployment, Id: d1.Id},
	})

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, frame, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read after disable: %v", err)
	}
	if string(frame) != "INVALID_USER" {
		t.Fatalf("frame = %q, want INVALID_USER", frame)
	}

	// The subscriber's context is cancelled; the connection drains shut.
	if _, _, err := conn.Read(readCtx); err == nil {
		t.Error("connection still delivering after INVALID_USER")
	}
}

func TestHub_RejectsUnknownLoginType(t *testing.T) {
	hub, _, _ := newHubFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Password","params":{}}`)); err != nil {
		t.Fatalf("write login frame: %v", err)
	}
	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read login reply: %v", err)
	}
	if string(reply) == "LOGGED_IN" {
		t.Fatal("unknown login type was accepted")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("connections = %d, want 0 after rejected login", hub.ConnectionCount())
	}
}

func TestHub_RejectsBadJwt(t *testing.T) {
	hub, _, _ := newHubFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Jwt","params":{"jwt":"not.a.token"}}`)); err != nil {
		t.Fatalf("write login frame: %v", err)
	}
	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read login reply: %v", err)
	}
	if string(reply) == "LOGGED_IN" {
		t.Fatal("bad jwt was accepted")
	}
}

func TestHub_BroadcastWithNoSubscribers(t *testing.T) {
	hub, _, _ := newHubFixture(t)
	hub.BroadcastEvent(context.Background(), EventUpdate, &update.Update{Id: "u1"})
	if hub.ConnectionCount() != 0 {
		t.Errorf("connections = %d, want 0", hub.ConnectionCount())
	}
}

func TestHub_BroadcastEventMarshalError(t *testing.T) {
	hub, _, _ := newHubFixture(t)
	// A channel cannot be marshaled to JSON: logged, never panics.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	ch := make(chan Message, 2)
	enqueue(ch, Message{Type: "1"})
	enqueue(ch, Message{Type: "2"})
	enqueue(ch, Message{Type: "3"})

	first := <-ch
	second := <-ch
	if first.Type != "2" || second.Type != "3" {
		t.Errorf("queue after overflow = [%s %s], want [2 3]", first.Type, second.Type)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra message %s", extra.Type)
	default:
	}
}
