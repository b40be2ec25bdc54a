package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tiendafacil/ledger_backend/utils"
)

// CorrelationMiddleware attaches a correlation id to every request context,
// honoring the caller's x-correlation-id header when present.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

// EmpresaMiddleware scopes the request to one tenant via the x-empresa-id
// header. Routes registered behind it can assume the id is present.
func EmpresaMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		empresaId := c.GetHeader("x-empresa-id")
		if empresaId == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": utils.ErrorMissingEmpresaId.Error()})
			return
		}
		c.Request = c.Request.WithContext(utils.SetEmpresaIdInContext(c.Request.Context(), empresaId))
		c.Next()
	}
}
