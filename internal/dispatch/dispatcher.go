// Package dispatch resolves inbound chat messages against a tenant's menus and
// datasets and produces the reply, gated by the tenant's message quota.
package dispatch

import (
	"context"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultWelcome     = "Welcome! Type MENU to see what I can help with."
	DefaultReply       = "Sorry, I didn't understand that.\n\nType MENU to see the options or SEARCH <name> to look something up."
	DefaultQuotaNotice = "Sorry, this bot has reached its message limit. Please try again later."
	noMenuText         = "No menu has been set up yet."
)

type Menus interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Menu, error)
	Get(ctx context.Context, tenantID uuid.UUID, slug string) (*domain.Menu, error)
}

type Configs interface {
	GetAll(ctx context.Context, tenantID uuid.UUID) (domain.BotConfig, error)
}

type Datasets interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Dataset, error)
	ListRows(ctx context.Context, tenantID, tableID uuid.UUID) (*domain.Dataset, []domain.Row, error)
	Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]domain.SearchHit, error)
}

type Quota interface {
	TryConsume(ctx context.Context, tenantID uuid.UUID, n int64) (domain.QuotaDecision, error)
	RecordReceived(ctx context.Context, tenantID uuid.UUID)
}

type Options struct {
	// RowCap is the number of rows shown per view_table page.
	RowCap int
	// SearchCap bounds the rows returned by a search.
	SearchCap int
}

type Dispatcher struct {
	menus    Menus
	configs  Configs
	datasets Datasets
	quota    Quota
	opts     Options
	logger   *zap.Logger
}

func New(menus Menus, configs Configs, datasets Datasets, quota Quota, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.RowCap <= 0 {
		opts.RowCap = 10
	}
	if opts.SearchCap <= 0 {
		opts.SearchCap = 5
	}
	return &Dispatcher{
		menus:    menus,
		configs:  configs,
		datasets: datasets,
		quota:    quota,
		opts:     opts,
		logger:   logger,
	}
}

// request carries what resolution needs about one inbound message.
type request struct {
	tenantID uuid.UUID
	kind     domain.ChannelKind
	text     string
	cfg      domain.BotConfig
	log      *zap.Logger
}

// Dispatch always produces a reply. Every reply consumes one unit of quota;
// when the quota is spent the tenant's quota notice is sent instead, without
// being counted.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, msg channel.InboundMessage) (*channel.OutboundMessage, error) {
	d.quota.RecordReceived(ctx, tenantID)

	log := d.logger.With(zap.String("tenant_id", tenantID.String()), zap.String("channel", string(kind)))
	cfg, err := d.configs.GetAll(ctx, tenantID)
	if err != nil {
		log.Warn("failed to load bot config, using defaults", zap.Error(err))
		cfg = domain.BotConfig{}
	}

	decision, err := d.quota.TryConsume(ctx, tenantID, 1)
	if err != nil {
		return nil, errors.Wrap(err, "check quota")
	}
	if !decision.Allowed {
		log.Info("quota exhausted, sending notice")
		return &channel.OutboundMessage{ChatID: msg.ChatID, Text: cfg.Get(domain.ConfigQuotaNotice, DefaultQuotaNotice)}, nil
	}

	req := request{tenantID: tenantID, kind: kind, text: strings.TrimSpace(msg.Text), cfg: cfg, log: log}
	out := d.resolve(ctx, req)
	out.ChatID = msg.ChatID
	return out, nil
}

func (d *Dispatcher) resolve(ctx context.Context, req request) *channel.OutboundMessage {
	lower := strings.ToLower(req.text)

	switch lower {
	case "/start", "start":
		return d.mainMenu(ctx, req, req.cfg.Get(domain.ConfigWelcomeMessage, DefaultWelcome))
	case "menu", "/menu", "help", "/help":
		return d.mainMenu(ctx, req, "")
	}

	for _, prefix := range []string{"search ", "cari ", "/search "} {
		if strings.HasPrefix(lower, prefix) {
			return d.search(ctx, req, strings.TrimSpace(req.text[len(prefix):]))
		}
	}

	if out, ok := d.token(ctx, req); ok {
		return out
	}

	menus, err := d.menus.List(ctx, req.tenantID)
	if err != nil {
		req.log.Warn("failed to load menus", zap.Error(err))
		return d.fallback(req)
	}
	if slug, idx, ok := matchLabel(menus, req.text); ok {
		m := findMenu(menus, slug)
		return d.execute(ctx, req, m.Items[idx], idx+1, 1)
	}
	return d.fallback(req)
}

// token handles the machine-readable selections: "3" and "3#2" for numbered
// main menu items, "m:<slug>:<n>" and "p:<table>:<page>" from buttons.
func (d *Dispatcher) token(ctx context.Context, req request) (*channel.OutboundMessage, bool) {
	text := req.text

	if n, page, ok := parseNumbered(text); ok {
		m, err := d.menus.Get(ctx, req.tenantID, domain.MainMenuSlug)
		if err != nil || n > len(m.Items) {
			return nil, false
		}
		return d.execute(ctx, req, m.Items[n-1], n, page), true
	}

	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return nil, false
	}
	switch parts[0] {
	case "m":
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 {
			return nil, false
		}
		m, err := d.menus.Get(ctx, req.tenantID, parts[1])
		if err != nil || n > len(m.Items) {
			return nil, false
		}
		return d.execute(ctx, req, m.Items[n-1], n, 1), true

	case "p":
		page, err := strconv.Atoi(parts[2])
		if err != nil || page < 1 || !d.offersTable(ctx, req, parts[1]) {
			return nil, false
		}
		return d.viewTable(ctx, req, domain.Action{Kind: domain.ActionViewTable, TableRef: parts[1]}, 0, page), true
	}
	return nil, false
}

// offersTable reports whether some menu item of the tenant views table, so
// paging tokens cannot reach datasets no menu exposes.
func (d *Dispatcher) offersTable(ctx context.Context, req request, table string) bool {
	menus, err := d.menus.List(ctx, req.tenantID)
	if err != nil {
		req.log.Warn("failed to list menus", zap.Error(err))
		return false
	}
	return lo.ContainsBy(menus, func(m *domain.Menu) bool {
		return lo.ContainsBy(m.Items, func(a domain.Action) bool {
			return a.Kind == domain.ActionViewTable && a.TableRef == table
		})
	})
}

func (d *Dispatcher) execute(ctx context.Context, req request, a domain.Action, item, page int) *channel.OutboundMessage {
	switch a.Kind {
	case domain.ActionReply:
		return &channel.OutboundMessage{Text: a.Text}
	case domain.ActionViewTable:
		return d.viewTable(ctx, req, a, item, page)
	case domain.ActionCalculate:
		return d.calculate(ctx, req, a)
	default:
		req.log.Warn("menu item has an unsupported action", zap.String("label", a.Label))
		return d.fallback(req)
	}
}

func (d *Dispatcher) fallback(req request) *channel.OutboundMessage {
	return &channel.OutboundMessage{Text: req.cfg.Get(domain.ConfigDefaultReply, DefaultReply)}
}

func (d *Dispatcher) mainMenu(ctx context.Context, req request, greeting string) *channel.OutboundMessage {
	m, err := d.menus.Get(ctx, req.tenantID, domain.MainMenuSlug)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			req.log.Warn("failed to load main menu", zap.Error(err))
		}
		return &channel.OutboundMessage{Text: joinBlocks(greeting, noMenuText)}
	}
	out := renderMenu(m)
	out.Text = joinBlocks(greeting, out.Text)
	return out
}

func (d *Dispatcher) search(ctx context.Context, req request, query string) *channel.OutboundMessage {
	if query == "" {
		return &channel.OutboundMessage{Text: "Type SEARCH followed by what you are looking for."}
	}
	hits, err := d.datasets.Search(ctx, req.tenantID, query, d.opts.SearchCap)
	if err != nil {
		req.log.Warn("dataset search failed", zap.Error(err))
		return &channel.OutboundMessage{Text: "Search is not available right now."}
	}
	return &channel.OutboundMessage{Text: renderSearch(query, hits)}
}

func (d *Dispatcher) loadTable(ctx context.Context, req request, ref string) (*domain.Dataset, []domain.Row, error) {
	ds, err := d.datasets.Resolve(ctx, req.tenantID, ref)
	if err != nil {
		return nil, nil, err
	}
	return d.datasets.ListRows(ctx, req.tenantID, ds.ID)
}

func (d *Dispatcher) viewTable(ctx context.Context, req request, a domain.Action, item, page int) *channel.OutboundMessage {
	ds, rows, err := d.loadTable(ctx, req, a.TableRef)
	if err != nil {
		return &channel.OutboundMessage{Text: d.tableError(req, a.TableRef, err)}
	}
	return renderTablePage(ds, rows, d.opts.RowCap, item, page)
}

func (d *Dispatcher) calculate(ctx context.Context, req request, a domain.Action) *channel.OutboundMessage {
	ds, rows, err := d.loadTable(ctx, req, a.TableRef)
	if err != nil {
		return &channel.OutboundMessage{Text: d.tableError(req, a.TableRef, err)}
	}
	res, err := Aggregate(ds, rows, a.Column, a.Aggregation)
	if err != nil {
		req.log.Info("calculation rejected", zap.String("table", ds.Name), zap.Error(err))
		return &channel.OutboundMessage{Text: "Cannot calculate: " + err.Error()}
	}
	return &channel.OutboundMessage{Text: renderResult(a.Label, res)}
}

// tableError turns dataset lookup failures into chat text. Not-found is an
// expected outcome of a table being deleted under a menu.
func (d *Dispatcher) tableError(req request, ref string, err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return "Table '" + ref + "' was not found."
	}
	req.log.Warn("failed to load table", zap.String("table", ref), zap.Error(err))
	return "Table '" + ref + "' is not available right now."
}

func parseNumbered(text string) (n, page int, ok bool) {
	num, pg, hasPage := strings.Cut(text, "#")
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return 0, 0, false
	}
	page = 1
	if hasPage {
		page, err = strconv.Atoi(pg)
		if err != nil || page < 1 {
			return 0, 0, false
		}
	}
	return n, page, true
}

// matchLabel finds the first item whose label equals text exactly, checking
// the main menu before the others.
func matchLabel(menus []*domain.Menu, text string) (slug string, idx int, ok bool) {
	ordered := make([]*domain.Menu, 0, len(menus))
	for _, m := range menus {
		if m.Slug == domain.MainMenuSlug {
			ordered = append([]*domain.Menu{m}, ordered...)
		} else {
			ordered = append(ordered, m)
		}
	}
	for _, m := range ordered {
		for i, it := range m.Items {
			if strings.TrimSpace(it.Label) == text {
				return m.Slug, i, true
			}
		}
	}
	return "", 0, false
}

func findMenu(menus []*domain.Menu, slug string) *domain.Menu {
	m, _ := lo.Find(menus, func(m *domain.Menu) bool { return m.Slug == slug })
	return m
}

func joinBlocks(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
