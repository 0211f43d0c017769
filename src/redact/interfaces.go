package redact

import (
	"context"

	"github.com/gin-gonic/gin"
)

// RedactService registers the redaction routes on the shared gin engine.
type RedactService interface {
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
