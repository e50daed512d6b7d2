package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// parseAccountID reads a path id. Account ids are external chat ids and must be positive.
func parseAccountID(value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("id", "invalid_account_id", "invalid account id")
	}
	return parsed, nil
}

// queryFlag reads an optional boolean query parameter. Absent means false.
func queryFlag(c *gin.Context, key string) (bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, newValidationError(key, "invalid_"+key, "invalid "+key)
	}
	return v, nil
}

// queryLimit reads ?limit. Absent means 0, which repositories treat as no limit.
func queryLimit(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	return v, nil
}
