package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"dofaline/internal/catalog"
	"dofaline/internal/domain"
	"dofaline/internal/engine"
	"dofaline/internal/remote"
	"dofaline/internal/report"
	"dofaline/internal/repo"
	"dofaline/internal/syncer"
	"dofaline/internal/tasks"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"country: unknown country \"Chile\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"country\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

// New returns an HTTP handler exposing the dofaline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger.Named("http")))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Dofaline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerRecords(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerIndicators(group, cfg.Engine)
	registerCatalog(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerExports(group, cfg.Engine)
	registerSettings(group, cfg.Engine)
	registerSync(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
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
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": verr.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, syncer.ErrNotConfigured) {
		return newAPIError(http.StatusConflict, "remote_not_configured", err.Error(), nil)
	}
	if errors.Is(err, syncer.ErrPullInProgress) {
		return newAPIError(http.StatusConflict, "pull_in_progress", err.Error(), nil)
	}
	var rerr *remote.APIError
	if errors.As(err, &rerr) {
		return newAPIError(http.StatusBadGateway, "remote_error", err.Error(), map[string]any{
			"table": rerr.Table, "status": rerr.StatusCode,
		})
	}
	var uerr interface{ Timeout() bool }
	if errors.As(err, &uerr) && uerr.Timeout() {
		return newAPIError(http.StatusBadGateway, "remote_error", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "remote_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
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
			if oas.Components != nil && oas.Components.Schemas != nil {
				oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
			}
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
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
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Dofaline API Docs</title>
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
      When the server has a JWT secret, authenticate with Authorization: Bearer &lt;token&gt;.
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
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

type recordPath struct {
	RecordID string `path:"record_id"`
}

func registerRecords(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/records",
		Summary:     "List records, newest first",
	}, func(ctx context.Context, input *struct {
		Country string `query:"country"`
		Type    string `query:"type"`
		Query   string `query:"q"`
	}) (*output[[]domain.DofaRecord], error) {
		return respond(e.ListRecords(report.RecordFilter{
			Country: input.Country,
			Type:    input.Type,
			Search:  input.Query,
		})), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-record",
		Method:        http.MethodPost,
		Path:          "/records",
		Summary:       "Create record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RecordRequest
	}) (*output[domain.DofaRecord], error) {
		rec, err := e.AddRecord(ctx, input.Body.createOptions(actorID(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/records/{record_id}",
		Summary:     "Get record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *recordPath) (*output[domain.DofaRecord], error) {
		rec, err := e.GetRecord(input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-record",
		Method:      http.MethodPut,
		Path:        "/records/{record_id}",
		Summary:     "Replace record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
		Body     RecordRequest
	}) (*output[domain.DofaRecord], error) {
		actor := actorID(ctx)
		rec, err := e.UpdateRecord(ctx, input.Body.record(input.RecordID, actor), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-record",
		Method:        http.MethodDelete,
		Path:          "/records/{record_id}",
		Summary:       "Delete record",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *recordPath) (*struct{}, error) {
		if err := e.DeleteRecord(ctx, input.RecordID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerActions(api huma.API, e engine.Engine) {
	type actionPath struct {
		RecordID string `path:"record_id"`
		ActionID string `path:"action_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "add-action",
		Method:        http.MethodPost,
		Path:          "/records/{record_id}/actions",
		Summary:       "Append an action to a record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
		Body     ActionRequest
	}) (*output[domain.DofaAction], error) {
		a, err := e.AddAction(ctx, input.RecordID, input.Body.input(), actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action",
		Method:      http.MethodPut,
		Path:        "/records/{record_id}/actions/{action_id}",
		Summary:     "Update an action",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
		ActionID string `path:"action_id"`
		Body     ActionRequest
	}) (*output[domain.DofaAction], error) {
		a, err := e.UpdateAction(ctx, input.RecordID, input.ActionID, input.Body.input(), actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-action",
		Method:        http.MethodDelete,
		Path:          "/records/{record_id}/actions/{action_id}",
		Summary:       "Remove an action",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actionPath) (*struct{}, error) {
		if err := e.RemoveAction(ctx, input.RecordID, input.ActionID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List actions with derived status, ordered by end date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"open, in_progress, closed, delayed or all"`
		Query  string `query:"q"`
	}) (*output[TaskListResponse], error) {
		status := strings.TrimSpace(input.Status)
		if status != "" && status != tasks.StatusAll {
			st, ok := domain.ParseActionStatus(status)
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status", map[string]any{"status": input.Status})
			}
			status = string(st)
		}
		items := e.Tasks(tasks.TaskFilter{Status: status, Search: input.Query})
		return respond(TaskListResponse{Items: items, Stats: e.TaskStats()}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-stats",
		Method:      http.MethodGet,
		Path:        "/tasks/stats",
		Summary:     "Count actions per derived status",
	}, func(ctx context.Context, _ *struct{}) (*output[tasks.TaskStats], error) {
		return respond(e.TaskStats()), nil
	})
}

func registerIndicators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-indicators",
		Method:      http.MethodGet,
		Path:        "/indicators",
		Summary:     "List indicators, newest first",
	}, func(ctx context.Context, input *struct {
		Type      string `query:"type"`
		ProcessID string `query:"process_id"`
		Query     string `query:"q"`
	}) (*output[[]domain.IndicatorRecord], error) {
		return respond(e.ListIndicators(report.IndicatorFilter{
			Type:      input.Type,
			ProcessID: input.ProcessID,
			Search:    input.Query,
		})), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-indicator",
		Method:        http.MethodPost,
		Path:          "/indicators",
		Summary:       "Create indicator",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateIndicatorRequest
	}) (*output[domain.IndicatorRecord], error) {
		ind, err := e.AddIndicator(ctx, engine.IndicatorCreateOptions{
			ProcessID: input.Body.ProcessID,
			Type:      input.Body.Type,
			Name:      input.Body.Name,
			Goal:      input.Body.Goal,
			Formula:   input.Body.Formula,
			ActorID:   actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ind), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-indicator",
		Method:        http.MethodDelete,
		Path:          "/indicators/{indicator_id}",
		Summary:       "Delete indicator",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IndicatorID string `path:"indicator_id"`
	}) (*struct{}, error) {
		if err := e.DeleteIndicator(ctx, input.IndicatorID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "Countries, axes, categories and labels for data entry",
	}, func(ctx context.Context, _ *struct{}) (*output[CatalogResponse], error) {
		c := e.Catalog
		resp := CatalogResponse{
			Countries:       c.Countries,
			Axes:            c.Axes,
			Categories:      c.Categories,
			TypeLabels:      map[string]string{},
			ImpactLabels:    map[string]string{},
			IndicatorTypes:  domain.IndicatorTypes,
			FactorTemplates: c.FactorTemplates,
		}
		for t, label := range c.TypeLabels {
			resp.TypeLabels[string(t)] = label
		}
		for impact, label := range c.ImpactLabels {
			resp.ImpactLabels[strconv.Itoa(impact)] = label
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-process-map",
		Method:      http.MethodGet,
		Path:        "/process-map",
		Summary:     "Process map indicators attach to",
	}, func(ctx context.Context, _ *struct{}) (*output[[]catalog.ProcessGroup], error) {
		return respond(e.Catalog.ProcessMap), nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Headline figures over all records",
	}, func(ctx context.Context, _ *struct{}) (*output[report.Dashboard], error) {
		return respond(e.Dashboard()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prioritization",
		Method:      http.MethodGet,
		Path:        "/prioritization",
		Summary:     "Records with impact 3 or more, highest first",
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.DofaRecord], error) {
		return respond(e.Prioritized()), nil
	})
}

type csvOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func registerExports(api huma.API, e engine.Engine) {
	csvResponse := func(write func(io.Writer) (string, error)) (*csvOutput, error) {
		var buf bytes.Buffer
		name, err := write(&buf)
		if err != nil {
			return nil, handleError(err)
		}
		return &csvOutput{
			ContentType:        "text/csv; charset=utf-8",
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
			Body:               buf.Bytes(),
		}, nil
	}
	huma.Register(api, huma.Operation{
		OperationID: "export-records",
		Method:      http.MethodGet,
		Path:        "/export/records.csv",
		Summary:     "Records report as semicolon separated CSV",
	}, func(ctx context.Context, _ *struct{}) (*csvOutput, error) {
		return csvResponse(e.ExportRecords)
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-indicators",
		Method:      http.MethodGet,
		Path:        "/export/indicators.csv",
		Summary:     "Indicators report as semicolon separated CSV",
	}, func(ctx context.Context, _ *struct{}) (*csvOutput, error) {
		return csvResponse(e.ExportIndicators)
	})
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-remote-settings",
		Method:      http.MethodGet,
		Path:        "/settings/remote",
		Summary:     "Effective remote settings; the key is masked",
	}, func(ctx context.Context, _ *struct{}) (*output[RemoteSettingsResponse], error) {
		return respond(remoteSettingsResponse(e.RemoteSettings())), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-remote-settings",
		Method:      http.MethodPut,
		Path:        "/settings/remote",
		Summary:     "Persist remote settings and reconnect",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RemoteSettingsRequest
	}) (*output[RemoteSettingsResponse], error) {
		cfg, err := e.ConfigureRemote(ctx, engine.RemoteSettingsUpdate{
			URL:             input.Body.URL,
			Key:             input.Body.Key,
			RecordsTable:    input.Body.RecordsTable,
			IndicatorsTable: input.Body.IndicatorsTable,
		}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(remoteSettingsResponse(cfg)), nil
	})
}

func registerSync(api huma.API, e engine.Engine) {
	syncErrors := []int{http.StatusConflict, http.StatusBadGateway}

	huma.Register(api, huma.Operation{
		OperationID: "sync-status",
		Method:      http.MethodGet,
		Path:        "/sync/status",
		Summary:     "Remote connection and last sync outcome",
	}, func(ctx context.Context, _ *struct{}) (*output[syncer.Status], error) {
		return respond(e.SyncStatus()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-pull",
		Method:      http.MethodPost,
		Path:        "/sync/pull",
		Summary:     "Replace local collections with the remote tables",
		Errors:      syncErrors,
	}, func(ctx context.Context, _ *struct{}) (*output[SyncResponse], error) {
		res, err := e.Pull(ctx, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(SyncResponse{Result: res, Status: e.SyncStatus()}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-push",
		Method:      http.MethodPost,
		Path:        "/sync/push",
		Summary:     "Upload both full collections",
		Errors:      syncErrors,
	}, func(ctx context.Context, _ *struct{}) (*output[SyncResponse], error) {
		if err := e.PushAll(ctx, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		res := syncer.PullResult{Records: e.Records.Len(), Indicators: e.Indicators.Len()}
		return respond(SyncResponse{Result: res, Status: e.SyncStatus()}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-now",
		Method:      http.MethodPost,
		Path:        "/sync/now",
		Summary:     "Push local state, then pull the remote tables",
		Errors:      syncErrors,
	}, func(ctx context.Context, _ *struct{}) (*output[SyncResponse], error) {
		res, err := e.SyncNow(ctx, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(SyncResponse{Result: res, Status: e.SyncStatus()}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "dismiss-sync-error",
		Method:        http.MethodDelete,
		Path:          "/sync/error",
		Summary:       "Clear the last sync error",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		e.DismissSyncError()
		return nil, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*output[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilter{
			Limit:      limit + 1,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return respond(resp), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
