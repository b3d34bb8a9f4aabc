package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelscout/internal/metrics"
	"reelscout/internal/services"
)

const maxResponseBytes = 8 << 20

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Source string
	Status int
	Wait   time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned http %d", e.Source, e.Status)
}

// RetryAfter returns the server-provided wait, if any.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

// Do executes req and returns the response body. Failures are marked with the
// services sentinel matching their class.
func Do(ctx context.Context, client *http.Client, req *http.Request, source, operation string) ([]byte, error) {
	req = req.WithContext(ctx)
	start := time.Now()
	resp, err := client.Do(req)
	metrics.SourceRequestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.SourceRequests.WithLabelValues(source, "transient").Inc()
		return nil, services.Wrap(services.ErrTransient, source, operation, "execute request", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Source: source, Status: resp.StatusCode, Wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
		marker := classifyStatus(resp.StatusCode)
		outcome := "permanent"
		switch marker {
		case services.ErrTransient:
			outcome = "transient"
		case services.ErrNotFound:
			outcome = "miss"
		}
		metrics.SourceRequests.WithLabelValues(source, outcome).Inc()
		return nil, services.Wrap(marker, source, operation, "", statusErr)
	}
	if readErr != nil {
		metrics.SourceRequests.WithLabelValues(source, "transient").Inc()
		return nil, services.Wrap(services.ErrTransient, source, operation, "read body", readErr)
	}
	metrics.SourceRequests.WithLabelValues(source, "ok").Inc()
	return body, nil
}

// IsMiss reports whether err is a 404-style miss rather than a failure.
func IsMiss(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return services.ErrNotFound
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return services.ErrTransient
	default:
		return services.ErrPermanent
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
