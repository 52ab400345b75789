// Package periphery implements the outbound HTTP client Core uses to drive
// a single Periphery agent: a tagged-envelope POST per request, a shared
// passkey header, and a circuit breaker around the transport.
package periphery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/komodo-run/core/internal/port/periphery"
	"github.com/komodo-run/core/internal/resilience"
)

// PasskeyHeader is the header Core sends on every outbound Periphery
// request, shared out of band between Core and each agent.
const PasskeyHeader = "X-Komodo-Passkey"

// Client talks to one Periphery agent at Address.
type Client struct {
	address    string
	passkey    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a Client bound to a single agent. requestTimeout bounds every
// call; insecureSkipVerify matches config.Periphery.DisableTLSVerify for
// self-signed agent certificates.
func New(address, passkey string, requestTimeout time.Duration, insecureSkipVerify bool, breaker *resilience.Breaker) *Client {
	transport := http.DefaultTransport
	if insecureSkipVerify {
		transport = insecureTransport()
	}
	return &Client{
		address: address,
		passkey: passkey,
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		breaker: breaker,
	}
}

var _ periphery.Client = (*Client)(nil)

// httpFactory builds Clients on demand, one per (address, passkey) pair,
// so services depending on periphery.Factory never construct transports
// themselves.
type httpFactory struct {
	requestTimeout     time.Duration
	insecureSkipVerify bool
	breakerFor         func(address string) *resilience.Breaker
}

// NewFactory returns a periphery.Factory that builds HTTP clients. breakerFor,
// if non-nil, supplies a per-server circuit breaker so one unreachable host
// can't exhaust retries against the others.
func NewFactory(requestTimeout time.Duration, insecureSkipVerify bool, breakerFor func(address string) *resilience.Breaker) periphery.Factory {
	return &httpFactory{requestTimeout: requestTimeout, insecureSkipVerify: insecureSkipVerify, breakerFor: breakerFor}
}

func (f *httpFactory) For(address, passkey string) periphery.Client {
	var b *resilience.Breaker
	if f.breakerFor != nil {
		b = f.breakerFor(address)
	}
	return New(address, passkey, f.requestTimeout, f.insecureSkipVerify, b)
}

type envelope struct {
	Type   string `json:"type"`
	Params any    `json:"params"`
}

func (c *Client) do(ctx context.Context, reqType string, params any, out any) error {
	body, err := json.Marshal(envelope{Type: reqType, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", reqType, err)
	}

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(PasskeyHeader, c.passkey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("periphery request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read periphery response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("periphery %s error %d: %s", reqType, resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("unmarshal %s response: %w", reqType, err)
			}
		}
		return nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

func (c *Client) GetVersion(ctx context.Context) (periphery.GetVersionResponse, error) {
	var out periphery.GetVersionResponse
	err := c.do(ctx, "GetVersion", struct{}{}, &out)
	return out, err
}

func (c *Client) GetHealth(ctx context.Context) error {
	return c.do(ctx, "GetHealth", struct{}{}, nil)
}

func (c *Client) GetSystemStats(ctx context.Context) (periphery.SystemStats, error) {
	var out periphery.SystemStats
	err := c.do(ctx, "GetSystemStats", struct{}{}, &out)
	return out, err
}

func (c *Client) GetSystemInformation(ctx context.Context) (periphery.SystemInformation, error) {
	var out periphery.SystemInformation
	err := c.do(ctx, "GetSystemInformation", struct{}{}, &out)
	return out, err
}

func (c *Client) GetContainerList(ctx context.Context) ([]periphery.Container, error) {
	var out []periphery.Container
	err := c.do(ctx, "GetContainerList", struct{}{}, &out)
	return out, err
}

func (c *Client) GetContainerLog(ctx context.Context, name string, tail int) (periphery.ContainerLog, error) {
	var out periphery.ContainerLog
	err := c.do(ctx, "GetContainerLog", map[string]any{"name": name, "tail": tail}, &out)
	return out, err
}

func (c *Client) GetContainerStats(ctx context.Context, name string) (periphery.ContainerStats, error) {
	var out periphery.ContainerStats
	err := c.do(ctx, "GetContainerStats", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) GetNetworkList(ctx context.Context) ([]periphery.Network, error) {
	var out []periphery.Network
	err := c.do(ctx, "GetNetworkList", struct{}{}, &out)
	return out, err
}

func (c *Client) GetImageList(ctx context.Context) ([]periphery.Image, error) {
	var out []periphery.Image
	err := c.do(ctx, "GetImageList", struct{}{}, &out)
	return out, err
}

func (c *Client) CloneRepo(ctx context.Context, req periphery.CloneRepoRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "CloneRepo", req, &out)
	return out, err
}

func (c *Client) PullRepo(ctx context.Context, req periphery.PullRepoRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PullRepo", req, &out)
	return out, err
}

func (c *Client) DeleteRepo(ctx context.Context, req periphery.DeleteRepoRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "DeleteRepo", req, &out)
	return out, err
}

func (c *Client) Build(ctx context.Context, req periphery.BuildRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "Build", req, &out)
	return out, err
}

func (c *Client) Deploy(ctx context.Context, req periphery.DeployRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "Deploy", req, &out)
	return out, err
}

func (c *Client) StartContainer(ctx context.Context, name string) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "StartContainer", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) StopContainer(ctx context.Context, name string, timeoutSeconds int) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "StopContainer", map[string]any{"name": name, "timeout_seconds": timeoutSeconds}, &out)
	return out, err
}

func (c *Client) RemoveContainer(ctx context.Context, name string) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "RemoveContainer", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) RestartContainer(ctx context.Context, name string) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "RestartContainer", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) PauseContainer(ctx context.Context, name string) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PauseContainer", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) UnpauseContainer(ctx context.Context, name string) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "UnpauseContainer", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) PruneContainers(ctx context.Context) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PruneContainers", struct{}{}, &out)
	return out, err
}

func (c *Client) PruneImages(ctx context.Context) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PruneImages", struct{}{}, &out)
	return out, err
}

func (c *Client) PruneNetworks(ctx context.Context) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PruneNetworks", struct{}{}, &out)
	return out, err
}

func (c *Client) PruneVolumes(ctx context.Context) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PruneVolumes", struct{}{}, &out)
	return out, err
}

func (c *Client) PruneSystem(ctx context.Context) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "PruneSystem", struct{}{}, &out)
	return out, err
}

func (c *Client) ComposeUp(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposeUp", req, &out)
	return out, err
}

func (c *Client) ComposeDown(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposeDown", req, &out)
	return out, err
}

func (c *Client) ComposeStart(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposeStart", req, &out)
	return out, err
}

func (c *Client) ComposeStop(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposeStop", req, &out)
	return out, err
}

func (c *Client) ComposePause(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposePause", req, &out)
	return out, err
}

func (c *Client) ComposeUnpause(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposeUnpause", req, &out)
	return out, err
}

func (c *Client) ComposeRestart(ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
	var out periphery.RunResponse
	err := c.do(ctx, "ComposeRestart", req, &out)
	return out, err
}
