package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// paramError is a malformed or out-of-range request parameter.
type paramError struct {
	name string
	msg  string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.name, e.msg)
}

func badParam(name, format string, args ...any) error {
	return &paramError{name: name, msg: fmt.Sprintf(format, args...)}
}

// pathID parses the {id} route parameter as a positive catalog number.
func pathID(r *http.Request) (int, error) {
	v := chi.URLParam(r, "id")
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, badParam("id", "%q is not a catalog number", v)
	}
	return id, nil
}

// timeParam accepts RFC 3339 or Unix seconds. Missing values yield def.
func timeParam(q url.Values, name string, def time.Time) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, badParam(name, "%q is neither RFC 3339 nor Unix seconds", v)
}

// stepParam accepts seconds ("30", "0.5") or a Go duration ("30s"). The result
// is clamped into [lo, hi]; a non-positive request is an error.
func stepParam(q url.Values, def, lo, hi time.Duration) (time.Duration, error) {
	v := q.Get("step")
	if v == "" {
		return def, nil
	}
	var d time.Duration
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		d = time.Duration(f * float64(time.Second))
	} else if d, err = time.ParseDuration(v); err != nil {
		return 0, badParam("step", "%q is not a duration", v)
	}
	if d <= 0 {
		return 0, badParam("step", "must be positive")
	}
	return min(max(d, lo), hi), nil
}

func floatParam(q url.Values, name string, required bool, def float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		if required {
			return 0, badParam(name, "required")
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, badParam(name, "%q is not a number", v)
	}
	return f, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badParam(name, "%q is not a non-negative integer", v)
	}
	return n, nil
}

// idsParam parses a comma-separated list of catalog numbers.
func idsParam(q url.Values, limit int) ([]int, error) {
	v := q.Get("ids")
	if v == "" {
		return nil, badParam("ids", "required")
	}
	var ids []int
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.Atoi(s)
		if err != nil || id <= 0 {
			return nil, badParam("ids", "%q is not a catalog number", s)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, badParam("ids", "required")
	}
	if len(ids) > limit {
		return nil, badParam("ids", "at most %d ids per request", limit)
	}
	return ids, nil
}
