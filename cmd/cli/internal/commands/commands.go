package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tablepilot/crmsync/internal/api"
	"github.com/tablepilot/crmsync/internal/config"
	"github.com/tablepilot/crmsync/internal/logger"
	"github.com/tablepilot/crmsync/internal/models"
	"github.com/tablepilot/crmsync/internal/optimistic"
	"github.com/tablepilot/crmsync/internal/querycache"
	"github.com/tablepilot/crmsync/internal/session"
	"github.com/tablepilot/crmsync/internal/tokenstore"
)

type Globals struct {
	Debug   bool
	Version string
}

// app wires the client stack for one command invocation.
type app struct {
	cfg     config.Config
	tokens  *tokenstore.Store
	client  *api.Client
	session *session.Manager
	cache   *querycache.Cache
	edits   *optimistic.Coordinator
}

// newApp builds the stack. serverURL, when non-empty, overrides the config
// file.
func newApp(globals *Globals, serverURL string) (*app, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}

	logger.Setup(globals.Debug || cfg.Debug)

	tokens, err := tokenstore.New("")
	if err != nil {
		return nil, err
	}

	client := api.New(api.Config{
		ServerURL: cfg.ServerURL,
		Timeout:   cfg.Timeout,
		Debug:     globals.Debug,
	}, tokens)

	mgr := session.New(client, tokens)
	client.SetOnUnauthorized(mgr.HandleUnauthorized)

	cache := querycache.New()
	edits := optimistic.New(cache, client)

	return &app{
		cfg:     cfg,
		tokens:  tokens,
		client:  client,
		session: mgr,
		cache:   cache,
		edits:   edits,
	}, nil
}

// requireSession bootstraps and insists on an authenticated session.
func (a *app) requireSession(ctx context.Context) (*models.Principal, error) {
	if err := a.session.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("session expired or invalid, run 'crmsync login': %w", err)
	}

	state := a.session.State()
	if state.Status != session.Authenticated {
		return nil, errors.New("not logged in, run 'crmsync login'")
	}

	return state.Principal, nil
}

// leadKey is the cache key for a single lead record.
func leadKey(id int64) querycache.Key {
	return querycache.NewKey(models.ResourceLeads, map[string]string{
		"id": strconv.FormatInt(id, 10),
	})
}

// listKey is the cache key for one filtered page of the lead listing.
func listKey(filter models.LeadFilter) querycache.Key {
	return querycache.NewKey(models.ResourceLeads, filter.Params())
}

// fetchLead loads a lead through the cache so later edits have an entry to
// patch and roll back against.
func (a *app) fetchLead(ctx context.Context, id int64) (*models.Lead, error) {
	v, err := a.cache.Fetch(ctx, leadKey(id), querycache.StaleTimeLeads, func(ctx context.Context) (any, error) {
		return a.client.GetLead(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Lead), nil
}
