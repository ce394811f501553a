package routers

import (
	"net/http"
	"strings"

	"cliproxy-gateway/internal/config"
	"cliproxy-gateway/internal/ctx"
	"cliproxy-gateway/internal/middleware"
	"cliproxy-gateway/internal/normalize"
	"cliproxy-gateway/internal/ratelimit"
	"cliproxy-gateway/internal/upstream"

	"github.com/labstack/echo/v4"
)

type AIRouter struct {
	client      *upstream.Client
	codexModel  string
	codexEffort string
}

// RegisterAIRoutes mounts the proxy surface. The general limiter covers the
// whole /ai group; the codex-5.3 subgroup additionally sits behind its own
// stricter bucket namespace.
func RegisterAIRoutes(e *echo.Group, client *upstream.Client, cfg *config.Config, amw *middleware.Auth) {
	router := &AIRouter{
		client:      client,
		codexModel:  cfg.CodexModel,
		codexEffort: cfg.CodexReasoningEffort,
	}

	aiLimiter := ratelimit.New("ai-default", cfg.RateLimitAIMax, cfg.RateLimitWindow)
	codexLimiter := ratelimit.New("ai-codex-5.3", cfg.RateLimitCodexMax, cfg.RateLimitWindow)

	ai := e.Group("/ai", amw.Require, middleware.NewRateLimitMiddleware(aiLimiter))
	ai.GET("/models", router.GetModels)
	ai.POST("/chat/completions", router.ChatCompletions)
	ai.POST("/responses", router.Responses)

	codex := ai.Group("/codex-5.3", middleware.NewRateLimitMiddleware(codexLimiter))
	codex.POST("/chat/completions", router.CodexChatCompletions)
	codex.POST("/responses", router.CodexResponses)
}

func (r *AIRouter) GetModels(cc echo.Context) error {
	c := cc.(*ctx.Context)
	handle, err := r.client.ForwardInference(c.Request().Context(), upstream.InferenceRequest{
		Method:   http.MethodGet,
		Pathname: "/v1/models",
	})
	if err != nil {
		return err
	}
	payload, err := upstream.Decode(handle)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return c.JSON(handle.StatusCode(), payload)
}

func (r *AIRouter) ChatCompletions(cc echo.Context) error {
	c := cc.(*ctx.Context)
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	return r.proxy(c, "/v1/chat/completions", body)
}

func (r *AIRouter) Responses(cc echo.Context) error {
	c := cc.(*ctx.Context)
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	return r.proxy(c, "/v1/responses", body)
}

func (r *AIRouter) CodexChatCompletions(cc echo.Context) error {
	c := cc.(*ctx.Context)
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	return r.proxy(c, "/v1/chat/completions", normalize.ChatCompletions(body, r.codexModel, r.codexEffort))
}

func (r *AIRouter) CodexResponses(cc echo.Context) error {
	c := cc.(*ctx.Context)
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	return r.proxy(c, "/v1/responses", normalize.Responses(body, r.codexModel, r.codexEffort))
}

// proxy forwards one inference call and branches on stream intent: the
// caller asked for it, or the upstream answered with an event stream.
func (r *AIRouter) proxy(c *ctx.Context, pathname string, body map[string]any) error {
	handle, err := r.client.ForwardInference(c.Request().Context(), upstream.InferenceRequest{
		Method:   c.Request().Method,
		Pathname: pathname,
		Body:     body,
	})
	if err != nil {
		return err
	}

	streaming := wantsStream(body) || strings.Contains(handle.ContentType(), "text/event-stream")
	if streaming {
		if err := upstream.Relay(handle, c); err != nil {
			// Headers are already out; record and fall through.
			c.LogValues.AddError(err)
			c.LogValues.LogLevel = "ERROR"
		}
		return nil
	}

	payload, err := upstream.Decode(handle)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return c.JSON(handle.StatusCode(), payload)
}
