// Package handlers carries the HTTP building blocks the progression
// server composes: dependency health checks, the inbound platform
// stats webhook, and the middleware protecting the admin surface.
//
// # Health
//
// CompositeHealthChecker fans named checks out in parallel and folds
// them into one status:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewPingCheck(conn))
//	checker.AddCheck("cache", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("unhealthy: %s", status.Message)
//	}
//
// # Platform webhook
//
// StatsWebhookHandler receives callbacks from the core platform
// whenever member stats change, dispatched per event type:
//
//	handler := handlers.NewPlatformWebhookHandler()
//	handler.RegisterEvent(handlers.EventCommissionCredited, onCommission)
//	handler.RegisterEvent(handlers.EventRecruitJoined, onRecruitment)
//	handler.RegisterDefault(onStatsChanged)
//
//	err := handler.HandleStatsEvent(ctx, payload)
//
// Callback bodies carry an HMAC-SHA256 signature in the
// X-Webhook-Signature header; see VerifySignature.
//
// # Middleware
//
// Admin routes stack API-key auth with the shared middleware:
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", []string{"secret-key"})
//	handler := handlers.ChainHandler(
//	    myHandler,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.NoCacheMiddleware,
//	    auth.Middleware,
//	)
//
// Keep health checks fast and limited to critical dependencies. The
// webhook endpoint answers 200 once a payload is accepted so the
// platform never retries deliveries that merely failed downstream.
package handlers
