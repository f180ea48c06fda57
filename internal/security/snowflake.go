package security

import (
	"errors"
	"strconv"
)

// ParseSnowflake validates and parses a platform-assigned identifier.
// Snowflakes encode creation order but are treated as opaque here; query
// ordering is always by timestamp, never by id.
func ParseSnowflake(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty snowflake")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.New("snowflake must be numeric")
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("invalid snowflake")
	}
	if id == 0 {
		return 0, errors.New("snowflake must be > 0")
	}
	return id, nil
}
