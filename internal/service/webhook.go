package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/komodo-run/core/internal/adapter/webhookprovider"
	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
)

// gitWebhookUser is the synthetic, admin-equivalent identity every
// listener delivery runs as. It is deliberately non-nil:
// PermissionService.Resolve dereferences the *user.User it is given, so
// every call below needs a concrete admin user rather than the nil
// shorthand operatorName also understands.
var gitWebhookUser = &user.User{
	ID:       "00000000-0000-0000-0000-000000000001",
	Username: "Git Webhook",
	Admin:    true,
	Enabled:  true,
}

// WebhookService implements the listener endpoints: verify a
// VCS provider's push-event signature, gate on branch, and dispatch the
// matching execute/sync operation asynchronously so the provider's
// request never waits on the operation itself.
type WebhookService struct {
	resources *Resources
	execute   *ExecuteService
	syncs     *SyncService
	cfg       config.Webhook
	log       *slog.Logger

	mu    sync.Mutex
	locks map[resource.TargetRef]*sync.Mutex
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(resources *Resources, execute *ExecuteService, syncs *SyncService, cfg config.Webhook, log *slog.Logger) *WebhookService {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookService{resources: resources, execute: execute, syncs: syncs, cfg: cfg, log: log, locks: make(map[resource.TargetRef]*sync.Mutex)}
}

// target bundles what Deliver needs to know about the resource a listener
// path points at: its TargetRef (for the per-resource lock and as the
// execute/sync call's id), whether its push-event branch gate is even
// configured, the branch to gate against, and the async operation each
// valid option maps to.
type target struct {
	ref         resource.TargetRef
	branch      string
	gateBranch  bool
	webhookOn   bool
	dispatch    map[string]func(ctx context.Context) error
}

// resolveTarget loads the resource kind/id pair out of a /listener path
// and builds the option -> operation map valid for that kind.
func (w *WebhookService) resolveTarget(ctx context.Context, kind, id string) (*target, error) {
	switch kind {
	case "build":
		b, err := w.resources.Builds.Get(ctx, gitWebhookUser, id)
		if err != nil {
			return nil, err
		}
		ref := resource.TargetRef{Kind: resource.KindBuild, Id: b.Id}
		return &target{ref: ref, branch: b.Config.Branch, gateBranch: true, webhookOn: b.Config.Webhook, dispatch: map[string]func(context.Context) error{
			"build": func(ctx context.Context) error { return w.execute.RunBuild(ctx, gitWebhookUser, b.Id) },
		}}, nil

	case "repo":
		r, err := w.resources.Repos.Get(ctx, gitWebhookUser, id)
		if err != nil {
			return nil, err
		}
		ref := resource.TargetRef{Kind: resource.KindRepo, Id: r.Id}
		return &target{ref: ref, branch: r.Config.Branch, gateBranch: true, webhookOn: r.Config.Webhook, dispatch: map[string]func(context.Context) error{
			"clone": func(ctx context.Context) error { return w.execute.CloneRepo(ctx, gitWebhookUser, r.Id) },
			"pull":  func(ctx context.Context) error { return w.execute.PullRepo(ctx, gitWebhookUser, r.Id) },
		}}, nil

	case "stack":
		st, err := w.resources.Stacks.Get(ctx, gitWebhookUser, id)
		if err != nil {
			return nil, err
		}
		ref := resource.TargetRef{Kind: resource.KindStack, Id: st.Id}
		return &target{ref: ref, branch: st.Config.Branch, gateBranch: true, webhookOn: st.Config.Webhook, dispatch: map[string]func(context.Context) error{
			"deploy": func(ctx context.Context) error { return w.execute.ComposeUp(ctx, gitWebhookUser, st.Id) },
			// Stack "refresh" only recomputes cached info (e.g. image-update
			// checks); no apply happens, so there is nothing to dispatch.
			"refresh": func(ctx context.Context) error { return nil },
		}}, nil

	case "sync":
		s, err := w.resources.ResourceSyncs.Get(ctx, gitWebhookUser, id)
		if err != nil {
			return nil, err
		}
		ref := resource.TargetRef{Kind: resource.KindResourceSync, Id: s.Id}
		return &target{ref: ref, branch: s.Config.Branch, gateBranch: true, webhookOn: s.Config.Webhook, dispatch: map[string]func(context.Context) error{
			"refresh": func(ctx context.Context) error { _, err := w.syncs.RefreshSync(ctx, gitWebhookUser, s.Id); return err },
			"sync":    func(ctx context.Context) error { return w.syncs.ExecuteSync(ctx, gitWebhookUser, s.Id) },
		}}, nil

	case "procedure":
		p, err := w.resources.Procedures.Get(ctx, gitWebhookUser, id)
		if err != nil {
			return nil, err
		}
		ref := resource.TargetRef{Kind: resource.KindProcedure, Id: p.Id}
		return &target{ref: ref, dispatch: map[string]func(context.Context) error{
			"": func(ctx context.Context) error { return w.execute.RunProcedure(ctx, gitWebhookUser, p.Id) },
		}}, nil

	case "action":
		a, err := w.resources.Actions.Get(ctx, gitWebhookUser, id)
		if err != nil {
			return nil, err
		}
		ref := resource.TargetRef{Kind: resource.KindAction, Id: a.Id}
		return &target{ref: ref, dispatch: map[string]func(context.Context) error{
			"": func(ctx context.Context) error { return w.execute.RunAction(ctx, gitWebhookUser, a.Id) },
		}}, nil

	default:
		return nil, fmt.Errorf("unknown listener resource kind %q: %w", kind, domain.ErrValidation)
	}
}

func (w *WebhookService) secretFor(providerName string) string {
	switch providerName {
	case "github":
		return w.cfg.GitHubSecret
	case "gitlab":
		return w.cfg.GitLabToken
	default:
		return ""
	}
}

func (w *WebhookService) lockFor(ref resource.TargetRef) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[ref]
	if !ok {
		l = &sync.Mutex{}
		w.locks[ref] = l
	}
	return l
}

// Deliver handles one /listener/<provider>/<kind>/<id>/<option> request
//. It returns true once the request is accepted for
// async dispatch (including a legitimate branch-mismatch no-op); callers
// always answer 200 in that case. A non-nil error means the request
// itself was invalid (400) or failed signature verification (401) and the
// caller must surface that instead.
func (w *WebhookService) Deliver(ctx context.Context, providerName, kind, id, option string, signatureHeader string, body []byte) (bool, error) {
	if max := w.cfg.JitterMaxMs; max > 0 {
		time.Sleep(time.Duration(rand.Intn(max+1)) * time.Millisecond)
	}

	provider, ok := webhookprovider.Lookup(providerName)
	if !ok {
		return false, fmt.Errorf("unknown webhook provider %q: %w", providerName, domain.ErrValidation)
	}

	t, err := w.resolveTarget(ctx, kind, id)
	if err != nil {
		return false, fmt.Errorf("resolve listener target: %w", domain.ErrValidation)
	}
	if t.gateBranch && !t.webhookOn {
		return false, fmt.Errorf("webhook delivery is not enabled for this resource: %w", domain.ErrValidation)
	}

	secret := w.secretFor(providerName)
	if !provider.Verify(secret, body, signatureHeader) {
		return false, fmt.Errorf("webhook signature verification failed: %w", domain.ErrUnauthenticated)
	}

	op, ok := t.dispatch[option]
	if !ok {
		return false, fmt.Errorf("unsupported listener option %q for %s: %w", option, kind, domain.ErrValidation)
	}

	if t.gateBranch {
		pushedBranch, err := provider.Branch(body)
		if err != nil {
			return false, fmt.Errorf("parse push event: %w", err)
		}
		if pushedBranch == "" || pushedBranch != t.branch {
			return true, nil // tag push, ping event, or a branch we don't watch: no-op 200
		}
	}

	ref := t.ref
	go func() {
		lock := w.lockFor(ref)
		lock.Lock()
		defer lock.Unlock()
		if err := op(context.Background()); err != nil {
			w.log.Warn("webhook dispatch failed", "kind", kind, "id", ref.Id, "option", option, "error", err)
		}
	}()

	return true, nil
}
