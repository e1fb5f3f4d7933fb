package api

import (
	"net/http"
	"strconv"
)

// maxRequestBodyBytes caps decoded request bodies, mirroring the 5 MB
// WebSocket frame cap for the REST side of the surface.
const maxRequestBodyBytes = 5 << 20

const (
	minPage     = 1
	maxPage     = 1000
	defaultPage = 100

	minDays     = 1
	maxDays     = 365
	defaultDays = 7
)

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// queryInt parses q's named parameter as an int, falling back to def
// when absent or unparsable, then clamps it to [min, max].
func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return clamp(def, min, max)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return clamp(def, min, max)
	}
	return clamp(v, min, max)
}

// pagingParams reads limit/offset query parameters: limit is clamped to
// [1,1000], offset to [0,1000000].
func pagingParams(r *http.Request) (limit, offset int) {
	limit = queryInt(r, "limit", defaultPage, minPage, maxPage)
	offset = queryInt(r, "offset", 0, 0, maxPage*1000)
	return limit, offset
}

// daysParam reads the days query parameter, clamped to [1,365].
func daysParam(r *http.Request) int {
	return queryInt(r, "days", defaultDays, minDays, maxDays)
}
