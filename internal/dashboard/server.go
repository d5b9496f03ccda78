package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"gmcstatus/internal/backend"
	"gmcstatus/internal/config"
	"gmcstatus/internal/merchants"
	"gmcstatus/internal/refresh"
	"gmcstatus/internal/templates"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
)

const (
	pollInterval  = 2 * time.Second
	healthTimeout = 2 * time.Second
	healthTTL     = 15 * time.Second
)

type regionService interface {
	Select(ctx context.Context, region string) refresh.State
	Status(ctx context.Context, region string) refresh.State
	Refresh(ctx context.Context, region string) refresh.State
	Load(ctx context.Context, region string) (refresh.State, error)
	Regions(ctx context.Context) []string
}

type merchantBackend interface {
	FetchMerchant(ctx context.Context, merchantID string) (json.RawMessage, error)
	Health(ctx context.Context) error
}

type server struct {
	brand         string
	regions       []string
	defaultRegion string
	svc           regionService
	backend       merchantBackend
	dir           merchants.Directory
	now           func() time.Time

	// last backend health result, reused for healthTTL
	healthMu  sync.Mutex
	healthOK  bool
	checkedAt time.Time
}

// NewHandler serves the dashboard pages, fragments and JSON API.
func NewHandler(cfg *config.Config, svc regionService, b merchantBackend, dir merchants.Directory) *server {
	return &server{
		brand:         cfg.Dashboard.Title,
		regions:       lo.Map(cfg.Dashboard.Regions, func(r string, _ int) string { return refresh.Normalize(r) }),
		defaultRegion: refresh.Normalize(cfg.Dashboard.DefaultRegion),
		svc:           svc,
		backend:       b,
		dir:           dir,
		now:           time.Now,
	}
}

func (s *server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /regions/{region}", s.handleRegion)
	mux.HandleFunc("GET /regions/{region}/cards", s.handleCards)
	mux.HandleFunc("POST /regions/{region}/refresh", s.handleRefreshRegion)
	mux.HandleFunc("POST /refresh", s.handleRefreshAll)
	mux.HandleFunc("GET /merchants/{id}", s.handleMerchant)
	mux.HandleFunc("GET /api/regions/{region}", s.handleAPIRegion)
	mux.HandleFunc("GET /api/schema", s.handleAPISchema)
}

func isHTMXRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}

func regionPath(region string) string {
	return "/regions/" + url.PathEscape(region)
}

type regionLink struct {
	Name   string
	Active bool
}

type cardsData struct {
	Region      string
	Phase       string
	Records     []merchants.Status
	Message     string
	FetchedAt   time.Time
	PollSeconds int
}

type pageData struct {
	Brand       string
	Region      string
	Regions     []regionLink
	BackendDown bool
	Cards       cardsData
}

type merchantData struct {
	Brand   string
	ID      string
	Records []merchants.Status
	Message string
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, regionPath(s.defaultRegion), http.StatusFound)
}

func (s *server) handleRegion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	region := refresh.Normalize(r.PathValue("region"))
	if region == "" {
		http.Error(w, "missing region", http.StatusBadRequest)
		return
	}
	st := s.svc.Select(ctx, region)
	s.renderDashboard(w, r, region, st)
}

func (s *server) renderDashboard(w http.ResponseWriter, r *http.Request, region string, st refresh.State) {
	ctx := r.Context()
	data := pageData{
		Brand:       s.brand,
		Region:      region,
		Regions:     s.links(region),
		BackendDown: !s.healthy(ctx),
		Cards:       toCards(region, st),
	}
	tmpl := templates.Page
	if isHTMXRequest(r) {
		tmpl = templates.Dashboard
	}
	render(w, r, http.StatusOK, tmpl, data)
}

func (s *server) handleCards(w http.ResponseWriter, r *http.Request) {
	region := refresh.Normalize(r.PathValue("region"))
	if region == "" {
		http.Error(w, "missing region", http.StatusBadRequest)
		return
	}
	render(w, r, http.StatusOK, templates.Cards, toCards(region, s.svc.Status(r.Context(), region)))
}

func (s *server) handleRefreshRegion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	region := refresh.Normalize(r.PathValue("region"))
	if region == "" {
		http.Error(w, "missing region", http.StatusBadRequest)
		return
	}
	slog.InfoContext(ctx, "manual region refresh", "region", region)
	st := s.svc.Refresh(ctx, region)
	if !isHTMXRequest(r) {
		http.Redirect(w, r, regionPath(region), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, templates.Cards, toCards(region, st))
}

func (s *server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	region := refresh.Normalize(r.FormValue("region"))
	if region == "" {
		region = s.defaultRegion
	}
	regions := s.svc.Regions(ctx)
	slog.InfoContext(ctx, "manual refresh of all regions", "regions", regions)
	for _, rg := range regions {
		s.svc.Refresh(ctx, rg)
	}
	if !isHTMXRequest(r) {
		http.Redirect(w, r, regionPath(region), http.StatusSeeOther)
		return
	}
	s.renderDashboard(w, r, region, s.svc.Select(ctx, region))
}

func (s *server) handleMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimSpace(r.PathValue("id"))
	data := merchantData{Brand: s.brand, ID: id}

	raw, err := s.backend.FetchMerchant(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch merchant", "merchant_id", id, "error", err)
		data.Message = userMessage(err)
		render(w, r, http.StatusBadGateway, templates.Merchant, data)
		return
	}
	status := http.StatusOK
	data.Records = merchants.ShapeResponse(raw, s.dir)
	if len(data.Records) == 0 {
		data.Message = fmt.Sprintf("No merchant found with id %s", id)
		status = http.StatusNotFound
	}
	render(w, r, status, templates.Merchant, data)
}

type apiRegion struct {
	Region    string             `json:"region"`
	FetchedAt time.Time          `json:"fetchedAt"`
	Merchants []merchants.Status `json:"merchants"`
}

type apiError struct {
	Error string `json:"error"`
}

func (s *server) handleAPIRegion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	region := refresh.Normalize(r.PathValue("region"))
	st, err := s.svc.Load(ctx, region)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load region", "region", region, "error", err)
		writeJSON(w, r, http.StatusBadGateway, apiError{Error: userMessage(err)})
		return
	}
	writeJSON(w, r, http.StatusOK, apiRegion{Region: region, FetchedAt: st.FetchedAt, Merchants: st.Records})
}

// regionSchema describes the /api/regions payload for API consumers.
var regionSchema = sync.OnceValue(func() *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&apiRegion{})
	s.Title = "Merchant status for one region"
	return s
})

func (s *server) handleAPISchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, regionSchema())
}

// links is the configured regions plus the current one, exactly one active.
func (s *server) links(current string) []regionLink {
	names := s.regions
	if !lo.Contains(names, current) {
		names = append(append([]string{}, names...), current)
	}
	return lo.Map(names, func(name string, _ int) regionLink {
		return regionLink{Name: name, Active: name == current}
	})
}

// healthy checks the backend at most once per healthTTL; concurrent renders
// wait for the one check in progress.
func (s *server) healthy(ctx context.Context) bool {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	now := s.now()
	if !s.checkedAt.IsZero() && now.Sub(s.checkedAt) < healthTTL {
		return s.healthOK
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	s.healthOK = true
	if err := s.backend.Health(ctx); err != nil {
		slog.WarnContext(ctx, "merchant backend unhealthy", "error", err)
		s.healthOK = false
	}
	s.checkedAt = now
	return s.healthOK
}

func toCards(region string, st refresh.State) cardsData {
	data := cardsData{
		Region:      region,
		Phase:       st.Phase.String(),
		Records:     st.Records,
		FetchedAt:   st.FetchedAt,
		PollSeconds: int(pollInterval / time.Second),
	}
	if st.Phase == refresh.Failed {
		data.Message = userMessage(st.Err)
	}
	return data
}

// userMessage is the only place backend errors become text for people.
func userMessage(err error) string {
	var (
		netErr    *backend.NetworkError
		httpErr   *backend.HTTPError
		malformed *backend.MalformedDataError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, backend.ErrNotFound):
		return "Endpoint not found. Please check the API URL."
	case errors.As(err, &netErr):
		return "Could not reach the merchant backend"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("Backend returned status %d", httpErr.StatusCode)
	case errors.As(err, &malformed):
		return "The merchant backend returned data that could not be read"
	default:
		return "Something went wrong loading merchant status"
	}
}

// render buffers the template so a failure can still become a 500.
func render(w http.ResponseWriter, r *http.Request, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.ErrorContext(r.Context(), "template execute error", "template", tmpl.Name(), "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
