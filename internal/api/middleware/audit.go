package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

// Context keys handlers may set to feed the audit interceptor values the
// route descriptor cannot know statically (e.g. the id of a row that was
// just created).
const (
	AuditEntityIDKey = "audit_entity_id"
	AuditNewValueKey = "audit_new_value"
	AuditOldValueKey = "audit_old_value"
)

// AuditRoute is the per-route descriptor for the interceptor: what action
// and entity type the route represents and, optionally, how to extract the
// entity id and value snapshots. Routes without a descriptor are simply not
// wrapped — there is no reflection-based discovery.
type AuditRoute struct {
	Action     models.AuditAction
	EntityType string
	// EntityID overrides the default extractor (the `id` path parameter).
	EntityID func(c *gin.Context) string
	// NewValue and OldValue produce the snapshots, called after the handler.
	NewValue func(c *gin.Context) any
	OldValue func(c *gin.Context) any
}

// CaptureAudit records one audit row after the wrapped handler completes
// successfully. Errors propagate untouched and are never audited. The write
// itself is fire-and-forget: it runs decoupled from the response and its
// failure is swallowed inside the recorder.
func CaptureAudit(recorder *services.AuditService, route AuditRoute) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 || c.Writer.Status() >= 400 {
			return
		}

		entry := services.AuditEntry{
			Action:     route.Action,
			EntityType: route.EntityType,
			EntityID:   resolveEntityID(c, route),
			OldValue:   resolveValue(c, route.OldValue, AuditOldValueKey),
			NewValue:   resolveValue(c, route.NewValue, AuditNewValueKey),
		}
		actx := services.AuditContext{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if user := CurrentUser(c); user != nil {
			id := user.ID
			actx.ActorID = &id
		}

		go recorder.Record(context.Background(), entry, actx)
	}
}

func resolveEntityID(c *gin.Context, route AuditRoute) string {
	if route.EntityID != nil {
		return route.EntityID(c)
	}
	if v, ok := c.Get(AuditEntityIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.Param("id")
}

func resolveValue(c *gin.Context, extractor func(*gin.Context) any, key string) any {
	if extractor != nil {
		return extractor(c)
	}
	if v, ok := c.Get(key); ok {
		return v
	}
	return nil
}
