package admin

import (
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

func pathID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return "", false
	}
	return id, true
}

func parseTimeNullable(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseCreatedRange 读取 created_from / created_to
func parseCreatedRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	from, err := parseTimeNullable(c.Query("created_from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return nil, nil, false
	}
	to, err := parseTimeNullable(c.Query("created_to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return nil, nil, false
	}
	return from, to, true
}
