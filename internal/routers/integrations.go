package routers

import (
	"net/http"
	"strings"

	"cliproxy-gateway/internal/ctx"
	"cliproxy-gateway/internal/middleware"
	"cliproxy-gateway/internal/shared"
	"cliproxy-gateway/internal/upstream"

	"github.com/labstack/echo/v4"
)

// providerAuthEndpoints maps a public provider name onto the management API
// endpoint that starts its connect flow. Aliases share an endpoint.
var providerAuthEndpoints = map[string]string{
	"codex":       "/v0/management/codex-auth-url",
	"claude":      "/v0/management/anthropic-auth-url",
	"anthropic":   "/v0/management/anthropic-auth-url",
	"gemini":      "/v0/management/gemini-cli-auth-url",
	"gemini-cli":  "/v0/management/gemini-cli-auth-url",
	"antigravity": "/v0/management/antigravity-auth-url",
	"qwen":        "/v0/management/qwen-auth-url",
	"iflow":       "/v0/management/iflow-auth-url",
}

var providerNames = []string{
	"codex", "claude", "anthropic", "gemini", "gemini-cli", "antigravity", "qwen", "iflow",
}

type IntegrationsRouter struct {
	client *upstream.Client
}

func RegisterIntegrationsRoutes(e *echo.Group, client *upstream.Client, amw *middleware.Auth) {
	router := &IntegrationsRouter{client: client}
	integrations := e.Group("/integrations", amw.Require)

	integrations.GET("/providers", router.ListProviders)
	integrations.POST("/:provider/connect/start", router.ConnectStart)
	integrations.GET("/connect/status", router.ConnectStatus)
	integrations.GET("/accounts", router.ListAccounts)
	integrations.DELETE("/accounts/:name", router.DeleteAccount)
	integrations.POST("/iflow/connect/cookie", router.IFlowCookie)
}

func (r *IntegrationsRouter) ListProviders(c echo.Context) error {
	return c.JSON(200, map[string]any{"providers": providerNames})
}

func (r *IntegrationsRouter) ConnectStart(cc echo.Context) error {
	c := cc.(*ctx.Context)
	provider := strings.ToLower(c.Param("provider"))
	endpoint, ok := providerAuthEndpoints[provider]
	if !ok {
		return (&shared.RequestError{
			StatusCode: 400,
			Code:       "unsupported_provider",
		}).WithDetails(map[string]any{"providers": providerNames})
	}

	body, err := readJSONBody(c)
	if err != nil {
		return err
	}

	query := map[string]any{}
	if isWebUI, _ := body["isWebUi"].(bool); isWebUI {
		query["is_webui"] = true
	}
	if provider == "gemini" || provider == "gemini-cli" {
		if projectID := shared.GetString(body, "projectId"); projectID != "" {
			query["project_id"] = projectID
		}
	}

	data, err := r.client.RequestManagement(c.Request().Context(), upstream.ManagementRequest{
		Pathname: endpoint,
		Query:    query,
	})
	if err != nil {
		return err
	}

	payload := shared.AsObject(data)
	status := shared.GetString(payload, "status")
	if status == "" {
		status = "ok"
	}
	response := map[string]any{
		"provider": provider,
		"status":   status,
		"authUrl":  nil,
		"state":    nil,
		"raw":      data,
	}
	if authURL := shared.GetString(payload, "url"); authURL != "" {
		response["authUrl"] = authURL
	}
	if state := shared.GetString(payload, "state"); state != "" {
		response["state"] = state
	}
	return c.JSON(200, response)
}

func (r *IntegrationsRouter) ConnectStatus(cc echo.Context) error {
	c := cc.(*ctx.Context)
	state := strings.TrimSpace(c.QueryParam("state"))
	if state == "" {
		return &shared.RequestError{StatusCode: 400, Code: "state_required"}
	}

	data, err := r.client.RequestManagement(c.Request().Context(), upstream.ManagementRequest{
		Pathname: "/v0/management/get-auth-status",
		Query:    map[string]any{"state": state},
	})
	if err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{"status": "wait"}
	}
	return c.JSON(200, data)
}

func (r *IntegrationsRouter) ListAccounts(cc echo.Context) error {
	c := cc.(*ctx.Context)
	provider := strings.ToLower(strings.TrimSpace(c.QueryParam("provider")))

	data, err := r.client.RequestManagement(c.Request().Context(), upstream.ManagementRequest{
		Pathname: "/v0/management/auth-files",
	})
	if err != nil {
		return err
	}

	payload := shared.AsObject(data)
	sourceFiles, _ := payload["files"].([]any)

	files := sourceFiles
	if provider != "" {
		files = make([]any, 0, len(sourceFiles))
		for _, file := range sourceFiles {
			item := shared.AsObject(file)
			if strings.ToLower(shared.GetString(item, "provider")) == provider {
				files = append(files, file)
			}
		}
	}
	if files == nil {
		files = []any{}
	}
	return c.JSON(200, map[string]any{"count": len(files), "files": files})
}

func (r *IntegrationsRouter) DeleteAccount(cc echo.Context) error {
	c := cc.(*ctx.Context)
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return &shared.RequestError{StatusCode: 400, Code: "account_name_required"}
	}

	data, err := r.client.RequestManagement(c.Request().Context(), upstream.ManagementRequest{
		Method:   http.MethodDelete,
		Pathname: "/v0/management/auth-files",
		Query:    map[string]any{"name": name},
	})
	if err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{"status": "ok"}
	}
	return c.JSON(200, data)
}

func (r *IntegrationsRouter) IFlowCookie(cc echo.Context) error {
	c := cc.(*ctx.Context)
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	cookie := strings.TrimSpace(shared.GetString(body, "cookie"))
	if cookie == "" {
		return &shared.RequestError{StatusCode: 400, Code: "cookie_required"}
	}

	data, err := r.client.RequestManagement(c.Request().Context(), upstream.ManagementRequest{
		Method:   http.MethodPost,
		Pathname: "/v0/management/iflow-auth-url",
		Body:     map[string]any{"cookie": cookie},
	})
	if err != nil {
		return err
	}
	return c.JSON(200, data)
}
