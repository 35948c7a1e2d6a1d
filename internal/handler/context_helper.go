package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-records-api/internal/middleware"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/response"
)

// requesterFromContext renders 401 and reports false when the route ran without JWT claims.
func requesterFromContext(c *gin.Context) (models.Requester, bool) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Requester{}, false
	}
	return claims.Requester(), true
}
