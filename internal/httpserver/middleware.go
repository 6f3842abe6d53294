package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service/identity"
)

type ctxKey string

const (
	projectCtxKey  ctxKey = "project"
	customerCtxKey ctxKey = "customer"
	ownerCtxKey    ctxKey = "owner"

	sessionHeader = "X-Session-Token"
)

func projectMiddleware(repo projectLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("projectKey"))
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, "InvalidInput", "project key required"))
			return
		}
		project, err := repo.GetByKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, errorBody(http.StatusNotFound, "ResourceNotFound", "project not found"))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "General", "project lookup failed"))
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), projectCtxKey, project))
		c.Next()
	}
}

// identityMiddleware resolves the owner of the request from the bearer token and the
// session handle, minting a guest session when neither is usable.
func identityMiddleware(customers customerService, ids identityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		project := projectFrom(c)
		var accountID string
		if token := bearerToken(c); token != "" {
			customer, err := customers.LookupByToken(c.Request.Context(), project.ID, token)
			if err != nil {
				abortUnauthorized(c)
				return
			}
			accountID = customer.ID
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), customerCtxKey, customer))
		}

		res, err := ids.ResolveOwner(c.Request.Context(), identity.Request{
			ProjectID:     project.ID,
			SessionHandle: c.GetHeader(sessionHeader),
			AccountID:     accountID,
		})
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		if res.SessionHandle != "" {
			c.Header(sessionHeader, res.SessionHandle)
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ownerCtxKey, res))
		c.Next()
	}
}

func requireCustomer(c *gin.Context) {
	if customerFrom(c) == nil {
		abortUnauthorized(c)
		return
	}
	c.Next()
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "invalid_token", "missing or invalid access token"))
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func projectFrom(c *gin.Context) *domain.Project {
	p, _ := c.Request.Context().Value(projectCtxKey).(*domain.Project)
	return p
}

func customerFrom(c *gin.Context) *domain.Customer {
	cust, _ := c.Request.Context().Value(customerCtxKey).(*domain.Customer)
	return cust
}

func resolutionFrom(c *gin.Context) identity.Resolution {
	res, _ := c.Request.Context().Value(ownerCtxKey).(identity.Resolution)
	return res
}
