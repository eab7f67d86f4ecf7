// Package handler serves the monitoring API of a running backtest.
package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sugawarayuuta/sonnet"
)

const (
	defaultLimit = 500
	maxLimit     = 10000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		status, data = http.StatusInternalServerError, []byte(`{"error":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// window is a slice request over the logged steps.
type window struct {
	from, limit int
}

// parseWindow reads "from" and "limit". A missing value takes its default and
// limit is clamped to maxLimit.
func parseWindow(q url.Values) (window, error) {
	win := window{limit: defaultLimit}
	var err error
	if win.from, err = queryInt(q, "from", 0); err != nil {
		return window{}, err
	}
	if win.limit, err = queryInt(q, "limit", defaultLimit); err != nil {
		return window{}, err
	}
	if win.limit == 0 {
		return window{}, fmt.Errorf("limit must be positive")
	}
	win.limit = min(win.limit, maxLimit)
	return win, nil
}

func queryInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// bounds returns the half-open range of win within n items.
func (win window) bounds(n int) (int, int, bool) {
	if win.from > n {
		return 0, 0, false
	}
	return win.from, min(win.from+win.limit, n), true
}
