package periphery_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/komodo-run/core/internal/adapter/periphery"
	periphport "github.com/komodo-run/core/internal/port/periphery"
	"github.com/komodo-run/core/internal/resilience"
)

func TestClient_GetVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(periphery.PasskeyHeader) != "test-passkey" {
			t.Fatalf("missing or wrong passkey header: %q", r.Header.Get(periphery.PasskeyHeader))
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != "GetVersion" {
			t.Fatalf("type = %q, want GetVersion", env.Type)
		}
		_ = json.NewEncoder(w).Encode(periphport.GetVersionResponse{Version: "1.2.3"})
	}))
	defer srv.Close()

	client := periphery.New(srv.URL, "test-passkey", 5*time.Second, false, nil)
	resp, err := client.GetVersion(context.Background())
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", resp.Version)
	}
}

func TestClient_Deploy_SendsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Type   string                       `json:"type"`
			Params periphport.DeployRequest `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != "Deploy" {
			t.Fatalf("type = %q, want Deploy", env.Type)
		}
		if env.Params.Name != "web" {
			t.Fatalf("params.name = %q, want web", env.Params.Name)
		}
		_ = json.NewEncoder(w).Encode(periphport.RunResponse{Success: true, Stdout: "started"})
	}))
	defer srv.Close()

	client := periphery.New(srv.URL, "k", 5*time.Second, false, nil)
	resp, err := client.Deploy(context.Background(), periphport.DeployRequest{Name: "web", Image: "nginx:latest"})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !resp.Success || resp.Stdout != "started" {
		t.Errorf("resp = %+v, want success with stdout=started", resp)
	}
}

func TestClient_ErrorStatusIsReturnedAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("daemon unreachable"))
	}))
	defer srv.Close()

	client := periphery.New(srv.URL, "k", 5*time.Second, false, nil)
	err := client.GetHealth(context.Background())
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestFactory_BuildsClientForServer(t *testing.T) {
	var seenAddrs []string
	factory := periphery.NewFactory(5*time.Second, false, func(address string) *resilience.Breaker {
		seenAddrs = append(seenAddrs, address)
		return nil
	})

	client := factory.For("https://host1:8120", "passkey-1")
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if len(seenAddrs) != 1 || seenAddrs[0] != "https://host1:8120" {
		t.Errorf("seenAddrs = %v, want [https://host1:8120]", seenAddrs)
	}
}
