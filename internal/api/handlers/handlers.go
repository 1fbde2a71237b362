package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

// respondError maps a service error onto the stable {error} shape. Errors
// outside the taxonomy are internal and reported without detail.
func respondError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// fieldErrors aggregates DTO validation failures into a field-level list.
func fieldErrors(c *gin.Context, fields map[string]string) {
	type fieldError struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	list := make([]fieldError, 0, len(fields))
	for field, message := range fields {
		list = append(list, fieldError{Field: field, Message: message})
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": list})
}

// auditContext captures who is acting and from where for the audit trail.
func auditContext(c *gin.Context) services.AuditContext {
	actx := services.AuditContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if user := middleware.CurrentUser(c); user != nil {
		id := user.ID
		actx.ActorID = &id
	}
	return actx
}

// pathID parses the numeric :id path parameter. The second return is false
// after a 400 has already been written.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fieldErrors(c, map[string]string{name: "must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}
