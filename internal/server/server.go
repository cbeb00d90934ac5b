package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/export"
	"permitline/internal/forms"
	"permitline/internal/preview"
	"permitline/internal/repo"
	"permitline/internal/signature"
)

// Config for the HTTP API handler.
type Config struct {
	Engine      engine.Engine
	BasePath    string
	Auth        AuthConfig
	Stylesheets []string
	Log         logrus.FieldLogger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_transition"`
	Message string         `json:"message" example:"cannot approve a submitted permit as approver"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"submitted\"}"`
}

// apiError models the error envelope every operation returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T
}

func reply[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type permitPath struct {
	PermitID string `path:"permit_id"`
}

// ChannelPath names a directed thread. It must stay exported: huma does not
// bind path params of unexported embedded structs.
type ChannelPath struct {
	PermitID string `path:"permit_id"`
	Source   string `path:"source" example:"requester"`
	Target   string `path:"target" example:"safety"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

// New returns an HTTP handler exposing the permit API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema failures are client errors, not workflow validation
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newRequestLogger(log))
	router.Use(newRoleMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Permit API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPermits(group, cfg.Engine)
	registerWorkflow(group, cfg.Engine)
	registerClosure(group, cfg.Engine)
	registerThreads(group, cfg.Engine)
	registerForms(group, cfg.Engine)
	registerSession(group, cfg.Engine)
	registerPrint(group, cfg.Engine, cfg.Stylesheets)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newRequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("http request")
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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var te *engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "illegal_transition", err.Error(), map[string]any{
			"from":   te.From,
			"action": te.Action,
			"role":   te.Role,
		})
	}
	var cve *engine.ClosureValidationError
	if errors.As(err, &cve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"problems": cve.Problems})
	}
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, signature.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "version_conflict", msg, nil)
	case errors.Is(err, engine.ErrPermitClosed):
		return newAPIError(http.StatusConflict, "permit_closed", msg, nil)
	case errors.Is(err, engine.ErrWrongChannel):
		return newAPIError(http.StatusForbidden, "wrong_channel", msg, nil)
	case errors.Is(err, engine.ErrValidation):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case errors.Is(err, repo.ErrUnknownChannel):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func parseDocType(raw string) (domain.DocType, huma.StatusError) {
	dt, ok := domain.ParseDocType(raw)
	if !ok {
		return "", newAPIError(http.StatusBadRequest, "bad_request", "unknown doc type", map[string]any{"docType": raw})
	}
	return dt, nil
}

func parseRoleParam(name, raw string) (domain.Role, huma.StatusError) {
	role, ok := domain.ParseRole(raw)
	if !ok {
		return "", newAPIError(http.StatusBadRequest, "bad_request", "unknown role", map[string]any{name: raw})
	}
	return role, nil
}

// channelFor resolves the channel named in the path. Writers must be the source.
func channelFor(ctx context.Context, e engine.Engine, in ChannelPath, write bool) (role, source, target domain.Role, serr huma.StatusError) {
	if role, serr = roleFromContext(ctx, e.Repo); serr != nil {
		return
	}
	if source, serr = parseRoleParam("source", in.Source); serr != nil {
		return
	}
	if target, serr = parseRoleParam("target", in.Target); serr != nil {
		return
	}
	if _, ok := repo.LookupChannel(source, target); !ok {
		serr = newAPIError(http.StatusBadRequest, "bad_request", "no comment channel between these roles", map[string]any{"source": source, "target": target})
		return
	}
	if write && role != source {
		serr = handleError(engine.ErrWrongChannel)
	}
	return
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
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
			applyRoleSecurity(oas, basePath)
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

func applyRoleSecurity(oas *huma.OpenAPI, basePath string) {
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
	oas.Components.SecuritySchemes["roleHeader"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Role",
	}
	// an empty requirement keeps the session role fallback valid
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"roleHeader": {}},
		{},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
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
    <title>Permit API Docs</title>
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
      Pick a role with X-Role: requester|approver|safety|admin or Authorization: Bearer &lt;token&gt;.
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
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerPermits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-permit",
		Method:        http.MethodPost,
		Path:          "/permits",
		Summary:       "Create a draft permit",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreatePermitRequest
	}) (*output[domain.Permit], error) {
		dt, serr := parseDocType(input.Body.DocType)
		if serr != nil {
			return nil, serr
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.CreatePermit(ctx, dt, role)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-permits",
		Method:      http.MethodGet,
		Path:        "/permits",
		Summary:     "List permits, newest first",
	}, func(ctx context.Context, input *struct {
		DocType string `query:"docType"`
	}) (*output[[]domain.Permit], error) {
		var dt domain.DocType
		if input.DocType != "" {
			var serr huma.StatusError
			if dt, serr = parseDocType(input.DocType); serr != nil {
				return nil, serr
			}
		}
		items, err := e.ListPermits(ctx, dt)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-permit",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}",
		Summary:     "Get permit",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *permitPath) (*output[domain.Permit], error) {
		p, err := e.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "permit-audit",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/audit",
		Summary:     "Permit audit trail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *permitPath) (*output[[]domain.AuditEntry], error) {
		trail, err := e.AuditTrail(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(trail), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-header",
		Method:      http.MethodPatch,
		Path:        "/permits/{permit_id}/header",
		Summary:     "Patch permit header",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Body     engine.HeaderPatch
	}) (*output[domain.Permit], error) {
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.UpdateHeader(ctx, input.PermitID, role, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-answer",
		Method:      http.MethodPut,
		Path:        "/permits/{permit_id}/answers",
		Summary:     "Record a checklist answer",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Body     SetAnswerRequest
	}) (*output[domain.Permit], error) {
		if input.Body.Section == "" || input.Body.RowID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "section and rowId are required", nil)
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.SetAnswer(ctx, engine.AnswerOptions{
			PermitID: input.PermitID,
			Role:     role,
			Section:  input.Body.Section,
			RowID:    input.Body.RowID,
			Answer:   domain.Answer(strings.ToLower(input.Body.Answer)),
			Remarks:  input.Body.Remarks,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-field",
		Method:      http.MethodPut,
		Path:        "/permits/{permit_id}/fields",
		Summary:     "Write a section field",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Body     SetFieldRequest
	}) (*output[domain.Permit], error) {
		if input.Body.Section == "" || input.Body.Field == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "section and field are required", nil)
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.SetField(ctx, input.PermitID, role, input.Body.Section, input.Body.Field, input.Body.Value)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-authorization",
		Method:      http.MethodPut,
		Path:        "/permits/{permit_id}/authorizations",
		Summary:     "Fill an authorization entry",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Body     SetAuthorizationRequest
	}) (*output[domain.Permit], error) {
		if input.Body.Section == "" || input.Body.Signatory == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "section and signatory are required", nil)
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		b := input.Body
		p, err := e.SetAuthorization(ctx, engine.AuthorizationOptions{
			PermitID:       input.PermitID,
			Role:           role,
			Section:        b.Section,
			Signatory:      b.Signatory,
			Name:           b.Name,
			ContactNo:      b.ContactNo,
			Date:           b.Date,
			Time:           b.Time,
			SignatureImage: b.SignatureImage,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Permit counts per status",
	}, func(ctx context.Context, _ *struct{}) (*output[StatsResponse], error) {
		counts, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(statsResponse(counts)), nil
	})
}

func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "permit-action",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/actions",
		Summary:     "Apply a lifecycle action",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Body     ActionRequest
	}) (*output[domain.Permit], error) {
		action, ok := engine.ParseAction(input.Body.Action)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown action", map[string]any{"action": input.Body.Action, "allowed": engine.Actions})
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.Act(ctx, input.PermitID, role, action)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-actions",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/actions",
		Summary:     "Actions the current role may take",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *permitPath) (*output[AvailableActionsResponse], error) {
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(AvailableActionsResponse{
			PermitID: p.PermitID,
			Role:     role,
			Status:   p.Status,
			Actions:  engine.AvailableActions(p, role),
		}), nil
	})
}

func registerClosure(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "request-closure",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/closure/request",
		Summary:     "Request closure of an approved permit",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *permitPath) (*output[domain.Permit], error) {
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.RequestClosure(ctx, input.PermitID, role)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-closure",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/closure/decision",
		Summary:     "Approve, reject or ask for more information on a closure",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Body     engine.ClosureSubmission
	}) (*output[domain.Permit], error) {
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, err := e.DecideClosure(ctx, input.PermitID, role, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "closure-signature",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/closure/signature",
		Summary:     "Stored closure signature image",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *permitPath) (*fileOutput, error) {
		p, err := e.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.Closure == nil || p.Closure.SignatureRef == "" {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no closure signature", nil)
		}
		img, err := e.Signatures.Get(ctx, p.Closure.SignatureRef)
		if errors.Is(err, signature.ErrNotFound) && p.Closure.SignatureImage != "" {
			// the permit keeps the submitted data URL; serve that when the object is gone
			img, err = signature.DecodeDataURL(p.Closure.SignatureImage)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &fileOutput{ContentType: img.ContentType, Body: img.Data}, nil
	})
}

func registerThreads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-threads",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/threads",
		Summary:     "Inbound and outbound comment threads of the current role",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *permitPath) (*output[ThreadsResponse], error) {
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		inbound, outbound, err := e.Threads(ctx, input.PermitID, role)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ThreadsResponse{Role: role, Inbound: inbound, Outbound: outbound}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-thread",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/threads/{source}/{target}",
		Summary:     "Read one comment thread",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *ChannelPath) (*output[ThreadResponse], error) {
		_, source, target, serr := channelFor(ctx, e, *input, false)
		if serr != nil {
			return nil, serr
		}
		th, version, err := e.ReadThreadVersion(ctx, input.PermitID, source, target)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(threadResponse(source, target, th, version)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "write-thread",
		Method:      http.MethodPut,
		Path:        "/permits/{permit_id}/threads/{source}/{target}",
		Summary:     "Replace an outbound thread",
		Description: "A non-zero version makes the write conditional on the stored version.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ChannelPath
		Body WriteThreadRequest
	}) (*output[ThreadResponse], error) {
		role, _, target, serr := channelFor(ctx, e, input.ChannelPath, true)
		if serr != nil {
			return nil, serr
		}
		th := input.Body.Thread
		if th.CustomComments == nil {
			th.CustomComments = []domain.Comment{}
		}
		version, err := e.WriteThread(ctx, input.PermitID, role, target, th, input.Body.Version)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(threadResponse(role, target, th, version)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-comment",
		Method:        http.MethodPost,
		Path:          "/permits/{permit_id}/threads/{source}/{target}/comments",
		Summary:       "Append a comment",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ChannelPath
		Body AppendCommentRequest
	}) (*output[ThreadResponse], error) {
		role, _, target, serr := channelFor(ctx, e, input.ChannelPath, true)
		if serr != nil {
			return nil, serr
		}
		if _, err := e.AppendComment(ctx, input.PermitID, role, target, input.Body.Text); err != nil {
			return nil, handleError(err)
		}
		return readBack(ctx, e, input.PermitID, role, target)
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-comment",
		Method:      http.MethodPatch,
		Path:        "/permits/{permit_id}/threads/{source}/{target}/comments/{index}",
		Summary:     "Check or uncheck a comment",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ChannelPath
		Index int `path:"index" minimum:"0"`
		Body  ToggleCommentRequest
	}) (*output[ThreadResponse], error) {
		role, source, target, serr := channelFor(ctx, e, input.ChannelPath, false)
		if serr != nil {
			return nil, serr
		}
		if _, err := e.ToggleComment(ctx, input.PermitID, role, source, target, input.Index, input.Body.Checked); err != nil {
			return nil, handleError(err)
		}
		return readBack(ctx, e, input.PermitID, source, target)
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-comment",
		Method:      http.MethodDelete,
		Path:        "/permits/{permit_id}/threads/{source}/{target}/comments/{index}",
		Summary:     "Delete a comment",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ChannelPath
		Index int `path:"index" minimum:"0"`
	}) (*output[ThreadResponse], error) {
		role, _, target, serr := channelFor(ctx, e, input.ChannelPath, true)
		if serr != nil {
			return nil, serr
		}
		if _, err := e.DeleteComment(ctx, input.PermitID, role, target, input.Index); err != nil {
			return nil, handleError(err)
		}
		return readBack(ctx, e, input.PermitID, role, target)
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-thread-flags",
		Method:      http.MethodPut,
		Path:        "/permits/{permit_id}/threads/{source}/{target}/flags",
		Summary:     "Set thread flags",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ChannelPath
		Body FlagsRequest
	}) (*output[ThreadResponse], error) {
		role, _, target, serr := channelFor(ctx, e, input.ChannelPath, true)
		if serr != nil {
			return nil, serr
		}
		if _, err := e.SetFlags(ctx, input.PermitID, role, target, input.Body.flags()); err != nil {
			return nil, handleError(err)
		}
		return readBack(ctx, e, input.PermitID, role, target)
	})
}

func readBack(ctx context.Context, e engine.Engine, permitID string, source, target domain.Role) (*output[ThreadResponse], error) {
	th, version, err := e.ReadThreadVersion(ctx, permitID, source, target)
	if err != nil {
		return nil, handleError(err)
	}
	return reply(threadResponse(source, target, th, version)), nil
}

func registerForms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "route-form",
		Method:      http.MethodGet,
		Path:        "/forms/{doc_type}",
		Summary:     "Resolve the form and view for a permit type",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		DocType string `path:"doc_type"`
	}) (*output[forms.Form], error) {
		dt, serr := parseDocType(input.DocType)
		if serr != nil {
			return nil, serr
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		form, err := forms.Route(dt, role)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return reply(form), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-draft",
		Method:      http.MethodGet,
		Path:        "/forms/{doc_type}/latest",
		Summary:     "Latest draft of a permit type",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DocType string `path:"doc_type"`
	}) (*output[domain.Permit], error) {
		dt, serr := parseDocType(input.DocType)
		if serr != nil {
			return nil, serr
		}
		p, ok, err := e.LatestDraft(ctx, dt)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no draft", map[string]any{"docType": dt})
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "switch-form",
		Method:      http.MethodPost,
		Path:        "/forms/switch",
		Summary:     "Switch to another permit type",
		Description: "Resumes the latest draft of the destination type or creates one.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body SwitchFormRequest
	}) (*output[SwitchFormResponse], error) {
		dt, serr := parseDocType(input.Body.DocType)
		if serr != nil {
			return nil, serr
		}
		role, serr := roleFromContext(ctx, e.Repo)
		if serr != nil {
			return nil, serr
		}
		p, created, err := e.SwitchForm(ctx, dt, role)
		if err != nil {
			return nil, handleError(err)
		}
		form, err := forms.Route(dt, role)
		if err != nil {
			return nil, handleError(err)
		}
		form.StepData = p.StepData
		return reply(SwitchFormResponse{Permit: p, Created: created, Form: form}), nil
	})
}

func registerSession(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session-role",
		Method:      http.MethodGet,
		Path:        "/session/role",
		Summary:     "Stored session role",
	}, func(ctx context.Context, _ *struct{}) (*output[RoleResponse], error) {
		role, err := e.Repo.SessionRole(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(RoleResponse{Role: role}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-session-role",
		Method:      http.MethodPut,
		Path:        "/session/role",
		Summary:     "Change the stored session role",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SetRoleRequest
	}) (*output[RoleResponse], error) {
		role, serr := parseRoleParam("role", input.Body.Role)
		if serr != nil {
			return nil, serr
		}
		if err := e.Repo.SetSessionRole(ctx, role); err != nil {
			return nil, handleError(err)
		}
		return reply(RoleResponse{Role: role}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-header",
		Method:      http.MethodGet,
		Path:        "/header",
		Summary:     "Shared permit header",
	}, func(ctx context.Context, _ *struct{}) (*output[domain.Header], error) {
		h, err := e.Repo.LoadHeader(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(h), nil
	})
}

func registerPrint(api huma.API, e engine.Engine, stylesheets []string) {
	huma.Register(api, huma.Operation{
		OperationID: "preview-permit",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/preview",
		Summary:     "Printable A4 preview",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
		Format   string `query:"format" enum:"html,pdf" default:"html"`
	}) (*fileOutput, error) {
		p, err := e.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		doc := preview.Render(p)
		switch input.Format {
		case "pdf":
			data, err := preview.PDF(doc)
			if err != nil {
				return nil, handleError(err)
			}
			return &fileOutput{
				ContentType:        "application/pdf",
				ContentDisposition: fmt.Sprintf("inline; filename=%q", p.PermitID+".pdf"),
				Body:               data,
			}, nil
		default:
			data, err := preview.HTML(doc, stylesheets)
			if err != nil {
				return nil, handleError(err)
			}
			return &fileOutput{ContentType: "text/html; charset=utf-8", Body: data}, nil
		}
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-register",
		Method:      http.MethodGet,
		Path:        "/register.xlsx",
		Summary:     "Permit register spreadsheet",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		DocType string `query:"docType"`
	}) (*fileOutput, error) {
		var dt domain.DocType
		if input.DocType != "" {
			var serr huma.StatusError
			if dt, serr = parseDocType(input.DocType); serr != nil {
				return nil, serr
			}
		}
		items, err := e.ListPermits(ctx, dt)
		if err != nil {
			return nil, handleError(err)
		}
		buf, err := export.Register(items)
		if err != nil {
			return nil, handleError(err)
		}
		return &fileOutput{
			ContentType:        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			ContentDisposition: `attachment; filename="permit-register.xlsx"`,
			Body:               buf.Bytes(),
		}, nil
	})
}
