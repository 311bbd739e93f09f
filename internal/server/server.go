package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"eventhub/internal/domain"
	"eventhub/internal/engine"
	"eventhub/internal/metrics"
	"eventhub/internal/repo"
	"eventhub/internal/sources"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Repo     repo.Repo
	Metrics  *metrics.Recorder
	BasePath string
	// City is the default catalog filter.
	City string
	Auth AuthConfig
	Log  zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var curatorSecurity = []map[string][]string{
	{"bearerAuth": {}},
	{"apiKeyAuth": {}},
}

// New returns an HTTP handler exposing the eventhub API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.City == "" {
		cfg.City = "Sydney"
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	hcfg := huma.DefaultConfig("Eventhub API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSources(group, cfg.Engine)
	registerScrape(group, cfg)
	registerCron(group, cfg)
	registerInit(group, cfg)
	registerEvents(group, cfg)
	registerOpenAPI(router, api, basePath)

	return otelhttp.NewHandler(router, "eventhub.api"), nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyImported):
		return newAPIError(http.StatusConflict, "already_imported", err.Error(), nil)
	case errors.Is(err, domain.ErrRunFinalized):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applySecuritySchemes(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applySecuritySchemes(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Eventhub API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Curator operations take Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSources(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sources",
		Method:      http.MethodGet,
		Path:        "/sources",
		Summary:     "List enabled sources in run order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SourceResponse `json:"body"`
	}, error) {
		out := []SourceResponse{}
		for _, a := range e.Sources.All() {
			out = append(out, SourceResponse{ID: string(a.ID()), Name: a.Name()})
		}
		return &struct {
			Body []SourceResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerScrape(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "trigger-scrape",
		Method:      http.MethodPost,
		Path:        "/scrape",
		Summary:     "Run every source, or one source by name",
		Security:    curatorSecurity,
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body *ScrapeRequest `json:"body" required:"false"`
	}) (*struct {
		Body ScrapeResponse `json:"body"`
	}, error) {
		if _, err := actorIDFromContext(ctx); err != nil {
			return nil, err
		}
		source := ""
		if input.Body != nil {
			source = strings.TrimSpace(input.Body.Source)
		}
		var results []domain.RunSummary
		if source != "" {
			sum, err := e.RunSingle(ctx, source)
			if err != nil {
				return nil, handleError(err)
			}
			results = []domain.RunSummary{sum}
		} else {
			all, err := e.RunAll(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			results = all
		}
		return &struct {
			Body ScrapeResponse `json:"body"`
		}{Body: ScrapeResponse{Success: true, Results: nonNilSummaries(results)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-run-logs",
		Method:      http.MethodGet,
		Path:        "/scrape/logs",
		Summary:     "Recent run logs, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Source string `query:"source"`
		Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}) (*struct {
		Body RunLogsResponse `json:"body"`
	}, error) {
		name := input.Source
		if id, err := sources.ParseID(name); err == nil {
			name = id.DisplayName()
		}
		logs, err := cfg.Repo.ListRunLogs(ctx, name, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if logs == nil {
			logs = []domain.RunLog{}
		}
		return &struct {
			Body RunLogsResponse `json:"body"`
		}{Body: RunLogsResponse{Logs: logs}}, nil
	})
}

func registerCron(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "cron",
		Method:      http.MethodGet,
		Path:        "/cron",
		Summary:     "Run every source; authorized by the cron secret",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CronResponse `json:"body"`
	}, error) {
		ranAt := time.Now().UTC()
		results, err := cfg.Engine.RunAll(ctx)
		if err != nil {
			cfg.Log.Error().Err(err).Msg("cron run")
			return nil, handleError(err)
		}
		failed := 0
		for _, r := range results {
			if r.Failed() {
				failed++
			}
		}
		cfg.Log.Info().Int("sources", len(results)).Int("failed", failed).Msg("cron run complete")
		return &struct {
			Body CronResponse `json:"body"`
		}{Body: CronResponse{Success: true, RanAt: ranAt, Summary: nonNilSummaries(results)}}, nil
	})
}

func registerInit(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "init",
		Method:      http.MethodGet,
		Path:        "/init",
		Summary:     "Seed an empty catalog",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body InitResponse `json:"body"`
	}, error) {
		sum, ran, err := cfg.Engine.Init(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if !ran {
			n, err := cfg.Repo.CountEvents(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body InitResponse `json:"body"`
			}{Body: InitResponse{Message: "Already initialized", Count: n}}, nil
		}
		return &struct {
			Body InitResponse `json:"body"`
		}{Body: InitResponse{Message: "Initialized", Result: &sum}}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Query the event catalog",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		City            string `query:"city"`
		Search          string `query:"search"`
		Status          string `query:"status" doc:"new, updated, inactive or imported"`
		Category        string `query:"category"`
		DateFrom        string `query:"date_from" doc:"RFC 3339 timestamp or YYYY-MM-DD"`
		DateTo          string `query:"date_to" doc:"RFC 3339 timestamp or YYYY-MM-DD"`
		IncludeInactive bool   `query:"include_inactive"`
		Page            int    `query:"page" default:"1" minimum:"1"`
		Limit           int    `query:"limit" default:"24" minimum:"1" maximum:"100"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		from, perr := parseDateParam("date_from", input.DateFrom)
		if perr != nil {
			return nil, perr
		}
		to, perr := parseDateParam("date_to", input.DateTo)
		if perr != nil {
			return nil, perr
		}
		if input.Status != "" && !domain.EventStatus(input.Status).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status", map[string]any{"status": input.Status})
		}
		city := input.City
		if city == "" {
			city = cfg.City
		}
		limit := normalizeLimit(input.Limit)
		page := input.Page
		if page < 1 {
			page = 1
		}
		items, total, err := cfg.Repo.ListEvents(ctx, repo.EventFilters{
			City:            city,
			Search:          input.Search,
			Status:          input.Status,
			Category:        input.Category,
			DateFrom:        from,
			DateTo:          to,
			IncludeInactive: input.IncludeInactive,
			Limit:           limit,
			Offset:          (page - 1) * limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{
			Events:     items,
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{id}",
		Summary:     "Get one event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		ev, err := cfg.Repo.GetEvent(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "event-history",
		Method:      http.MethodGet,
		Path:        "/events/{id}/history",
		Summary:     "Lifecycle history of one event, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		if _, err := cfg.Repo.GetEvent(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.ListHistory(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.HistoryEntry{}
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/import",
		Summary:     "Mark an event as imported by the calling curator",
		Security:    curatorSecurity,
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body *ImportRequest `json:"body" required:"false"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		notes := ""
		if input.Body != nil {
			notes = strings.TrimSpace(input.Body.Notes)
		}
		ev, err := cfg.Engine.ImportEvent(ctx, input.ID, actor, notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Success: true, Event: ev}}, nil
	})
}

func parseDateParam(name, v string) (*time.Time, huma.StatusError) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid "+name, map[string]any{name: v})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 24
	}
	if in > 100 {
		return 100
	}
	return in
}
