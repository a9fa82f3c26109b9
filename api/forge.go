package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/webhook"
)

// ForgeAPI wires all Forge-style HTTP handlers together.
type ForgeAPI struct {
	courier *courier.Courier
	log     forge.Logger
}

// NewForgeAPI creates a ForgeAPI over a Courier.
func NewForgeAPI(c *courier.Courier, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{
		courier: c,
		log:     log,
	}
}

// RegisterRoutes registers all courier admin API routes into the given Forge
// router with full OpenAPI metadata.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerWebhookRoutes(router)
	a.registerDeliveryRoutes(router)
	a.registerEventRoutes(router)
	a.registerStatsRoutes(router)
}

// ---------------------------------------------------------------------------
// Webhook routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerWebhookRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("webhooks"))

	if err := g.POST("/webhooks", a.createWebhook,
		forge.WithSummary("Create webhook"),
		forge.WithDescription("Registers an endpoint. The response is the only place the secret is returned."),
		forge.WithOperationID("createWebhook"),
		forge.WithRequestSchema(CreateWebhookForgeRequest{}),
		forge.WithCreatedResponse(webhook.Webhook{}),
		forge.WithErrorResponses(),
	); err != nil {
		// Keep registering the remaining routes; a failure here surfaces in logs and tests.
		a.log.Error("Failed to register createWebhook route", forge.Error(err))
	}

	if err := g.GET("/webhooks", a.listWebhooks,
		forge.WithSummary("List webhooks"),
		forge.WithDescription("Returns webhooks, newest first."),
		forge.WithOperationID("listWebhooks"),
		forge.WithRequestSchema(ListWebhooksForgeRequest{}),
		forge.WithListResponse(webhook.Webhook{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listWebhooks route", forge.Error(err))
	}

	if err := g.GET("/webhooks/:webhookId", a.getWebhook,
		forge.WithSummary("Get webhook"),
		forge.WithDescription("Returns a webhook's configuration."),
		forge.WithOperationID("getWebhook"),
		forge.WithResponseSchema(http.StatusOK, "Webhook details", webhook.Webhook{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getWebhook route", forge.Error(err))
	}

	if err := g.PUT("/webhooks/:webhookId", a.updateWebhook,
		forge.WithSummary("Update webhook"),
		forge.WithDescription("Applies a partial update; omitted fields are unchanged."),
		forge.WithOperationID("updateWebhook"),
		forge.WithRequestSchema(UpdateWebhookForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated webhook", webhook.Webhook{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register updateWebhook route", forge.Error(err))
	}

	if err := g.DELETE("/webhooks/:webhookId", a.deleteWebhook,
		forge.WithSummary("Delete webhook"),
		forge.WithDescription("Deletes a webhook and its delivery history."),
		forge.WithOperationID("deleteWebhook"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register deleteWebhook route", forge.Error(err))
	}

	if err := g.POST("/webhooks/:webhookId/rotate-secret", a.rotateSecret,
		forge.WithSummary("Rotate secret"),
		forge.WithDescription("Generates a new signing secret for the webhook."),
		forge.WithOperationID("rotateWebhookSecret"),
		forge.WithResponseSchema(http.StatusOK, "New signing secret", SecretForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register rotateSecret route", forge.Error(err))
	}

	if err := g.POST("/webhooks/:webhookId/test", a.testWebhook,
		forge.WithSummary("Send test delivery"),
		forge.WithDescription("Sends a test.ping delivery synchronously, even to inactive webhooks."),
		forge.WithOperationID("testWebhook"),
		forge.WithRequestSchema(TestWebhookForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Delivery record", delivery.Delivery{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register testWebhook route", forge.Error(err))
	}
}

func (a *ForgeAPI) createWebhook(ctx forge.Context, req *CreateWebhookForgeRequest) (*webhook.Webhook, error) {
	wh, err := a.create(ctx.Context(), req)
	if err != nil {
		return nil, err
	}

	err = ctx.JSON(http.StatusCreated, createdWebhook{Webhook: wh, Secret: wh.Secret})
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) create(ctx context.Context, req *CreateWebhookForgeRequest) (*webhook.Webhook, error) {
	in := webhook.Input{
		Name:           req.Name,
		URL:            req.URL,
		Secret:         req.Secret,
		Events:         req.Events,
		IsActive:       req.IsActive,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		RateLimit:      req.RateLimit,
		Headers:        req.Headers,
	}

	wh, err := a.courier.Webhooks().Create(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return wh, nil
}

func (a *ForgeAPI) listWebhooks(ctx forge.Context, req *ListWebhooksForgeRequest) ([]*webhook.Webhook, error) {
	opts := webhook.ListOpts{
		Offset: req.Offset,
		Limit:  clampLimit(req.Limit),
	}

	if req.Active != "" {
		active, err := strconv.ParseBool(req.Active)
		if err != nil {
			return nil, forge.BadRequest("active must be true or false")
		}
		opts.Active = &active
	}

	whs, err := a.courier.Webhooks().List(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}

	return whs, nil
}

func (a *ForgeAPI) getWebhook(ctx forge.Context, req *WebhookForgeRequest) (*webhook.Webhook, error) {
	return a.lookup(ctx.Context(), req)
}

func (a *ForgeAPI) lookup(ctx context.Context, req *WebhookForgeRequest) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		return nil, forge.BadRequest("invalid webhook ID")
	}

	wh, getErr := a.courier.Webhooks().Get(ctx, whID)
	if getErr != nil {
		return nil, mapError(getErr)
	}

	return wh, nil
}

func (a *ForgeAPI) updateWebhook(ctx forge.Context, req *UpdateWebhookForgeRequest) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		return nil, forge.BadRequest("invalid webhook ID")
	}

	upd := webhook.Update{
		Name:           req.Name,
		URL:            req.URL,
		Secret:         req.Secret,
		Events:         req.Events,
		IsActive:       req.IsActive,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		RateLimit:      req.RateLimit,
		Headers:        req.Headers,
	}

	wh, updateErr := a.courier.Webhooks().Update(ctx.Context(), whID, upd)
	if updateErr != nil {
		return nil, mapError(updateErr)
	}

	return wh, nil
}

func (a *ForgeAPI) deleteWebhook(ctx forge.Context, req *WebhookForgeRequest) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		return nil, forge.BadRequest("invalid webhook ID")
	}

	if deleteErr := a.courier.Webhooks().Delete(ctx.Context(), whID); deleteErr != nil {
		return nil, mapError(deleteErr)
	}

	err = ctx.NoContent(http.StatusNoContent)
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.NoContent.
	return nil, nil
}

func (a *ForgeAPI) rotateSecret(ctx forge.Context, req *WebhookForgeRequest) (*SecretForgeResponse, error) {
	whID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		return nil, forge.BadRequest("invalid webhook ID")
	}

	secret, rotateErr := a.courier.Webhooks().RotateSecret(ctx.Context(), whID)
	if rotateErr != nil {
		return nil, mapError(rotateErr)
	}

	return &SecretForgeResponse{Secret: secret}, nil
}

func (a *ForgeAPI) testWebhook(ctx forge.Context, req *TestWebhookForgeRequest) (*delivery.Delivery, error) {
	return a.fireTest(ctx.Context(), req)
}

func (a *ForgeAPI) fireTest(ctx context.Context, req *TestWebhookForgeRequest) (*delivery.Delivery, error) {
	whID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		return nil, forge.BadRequest("invalid webhook ID")
	}

	var payload map[string]any
	if hasPayload(req.Payload) {
		if payload, err = decodePayload(req.Payload); err != nil {
			return nil, mapError(err)
		}
		if err := a.courier.Catalog().ValidatePayload(catalog.TestPing, payload); err != nil {
			return nil, forge.BadRequest(err.Error())
		}
	}

	d, fireErr := a.courier.TestFire(ctx, whID, payload)
	if fireErr != nil {
		return nil, mapError(fireErr)
	}

	return d, nil
}

// ---------------------------------------------------------------------------
// Delivery routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDeliveryRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("deliveries"))

	if err := g.GET("/webhooks/:webhookId/deliveries", a.listDeliveries,
		forge.WithSummary("List deliveries"),
		forge.WithDescription("Returns a webhook's delivery history, newest first."),
		forge.WithOperationID("listDeliveries"),
		forge.WithRequestSchema(ListDeliveriesForgeRequest{}),
		forge.WithListResponse(delivery.Delivery{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listDeliveries route", forge.Error(err))
	}

	if err := g.GET("/deliveries/:deliveryId", a.getDelivery,
		forge.WithSummary("Get delivery"),
		forge.WithDescription("Returns a delivery and the outcome of its latest attempt."),
		forge.WithOperationID("getDelivery"),
		forge.WithResponseSchema(http.StatusOK, "Delivery record", delivery.Delivery{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getDelivery route", forge.Error(err))
	}

	if err := g.POST("/deliveries/:deliveryId/redeliver", a.redeliver,
		forge.WithSummary("Redeliver"),
		forge.WithDescription("Re-sends the recorded event as a new delivery."),
		forge.WithOperationID("redeliver"),
		forge.WithCreatedResponse(delivery.Delivery{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register redeliver route", forge.Error(err))
	}
}

func (a *ForgeAPI) listDeliveries(ctx forge.Context, req *ListDeliveriesForgeRequest) ([]*delivery.Delivery, error) {
	whID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		return nil, forge.BadRequest("invalid webhook ID")
	}

	opts := delivery.ListOpts{
		Offset: req.Offset,
		Limit:  clampLimit(req.Limit),
	}

	if req.Status != "" {
		status := delivery.State(req.Status)
		if !status.Valid() {
			return nil, forge.BadRequest("unknown delivery status")
		}
		opts.Status = &status
	}

	deliveries, listErr := a.courier.ListDeliveries(ctx.Context(), whID, opts)
	if listErr != nil {
		return nil, mapError(listErr)
	}

	return deliveries, nil
}

func (a *ForgeAPI) getDelivery(ctx forge.Context, req *DeliveryForgeRequest) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(req.DeliveryID)
	if err != nil {
		return nil, forge.BadRequest("invalid delivery ID")
	}

	d, getErr := a.courier.GetDelivery(ctx.Context(), delID)
	if getErr != nil {
		return nil, mapError(getErr)
	}

	return d, nil
}

func (a *ForgeAPI) redeliver(ctx forge.Context, req *DeliveryForgeRequest) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(req.DeliveryID)
	if err != nil {
		return nil, forge.BadRequest("invalid delivery ID")
	}

	d, redeliverErr := a.courier.Redeliver(ctx.Context(), delID)
	if redeliverErr != nil {
		return nil, mapError(redeliverErr)
	}

	err = ctx.JSON(http.StatusCreated, d)
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

// ---------------------------------------------------------------------------
// Event routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerEventRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("events"))

	if err := g.POST("/events", a.emitEvent,
		forge.WithSummary("Emit event"),
		forge.WithDescription("Fans an event out to every active subscriber. Delivery happens asynchronously."),
		forge.WithOperationID("emitEvent"),
		forge.WithRequestSchema(EmitEventForgeRequest{}),
		forge.WithResponseSchema(http.StatusAccepted, "Event accepted", EmitEventForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register emitEvent route", forge.Error(err))
	}

	if err := g.GET("/event-types", a.listEventTypes,
		forge.WithSummary("List event types"),
		forge.WithDescription("Returns the event types webhooks may subscribe to."),
		forge.WithOperationID("listEventTypes"),
		forge.WithListResponse(catalog.Definition{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listEventTypes route", forge.Error(err))
	}
}

func (a *ForgeAPI) emitEvent(ctx forge.Context, req *EmitEventForgeRequest) (*EmitEventForgeResponse, error) {
	if req.EventType == "" {
		return nil, forge.BadRequest("event_type is required")
	}

	payload, err := decodePayload(req.Payload)
	if err != nil {
		return nil, mapError(err)
	}
	if err := a.courier.ValidateEvent(req.EventType, payload); err != nil {
		return nil, mapError(err)
	}

	a.courier.Emit(ctx.Context(), req.EventType, payload)

	err = ctx.JSON(http.StatusAccepted, EmitEventForgeResponse{Status: "accepted", EventType: req.EventType})
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) listEventTypes(_ forge.Context, _ *ListEventTypesForgeRequest) ([]*catalog.Definition, error) {
	defs := a.courier.Catalog().List()
	out := make([]*catalog.Definition, len(defs))
	for i := range defs {
		out[i] = &defs[i]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Stats routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerStatsRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("stats"))

	if err := g.GET("/stats", a.getStats,
		forge.WithSummary("Delivery statistics"),
		forge.WithDescription("Returns delivery counts by status."),
		forge.WithOperationID("getStats"),
		forge.WithResponseSchema(http.StatusOK, "Delivery statistics", StatsForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getStats route", forge.Error(err))
	}
}

func (a *ForgeAPI) getStats(ctx forge.Context, _ *StatsForgeRequest) (*StatsForgeResponse, error) {
	counts, err := a.courier.Stats(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}

	resp := StatsForgeResponse(newStatsResponse(counts))
	return &resp, nil
}
