// Package kaggle provides a resilient client for the public Kaggle REST API:
// paginated competition and kernel listings plus kernel source pulls
package kaggle

import (
	"context"
	"errors"
	"strings"
	"time"

	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/logger"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Client is a Kaggle API client with a shared request budget and an explicit
// retry state machine per call. Safe for concurrent use
type Client struct {
	http    *resty.Client
	opts    Options
	policy  Policy
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a Client. Missing credentials are an auth error
func NewClient(o Options) (*Client, error) {
	o, err := withDefaults(o)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "kaggle options")
	}
	if o.Credentials.Username == "" || o.Credentials.Key == "" {
		return nil, perr.Unauthorizedf("kaggle credentials are missing")
	}

	log := *logger.Named("kaggle")
	limiter := rate.NewLimiter(rate.Limit(o.RatePerSec), o.Burst)

	hc := resty.New()
	hc.SetBaseURL(strings.TrimRight(o.BaseURL, "/"))
	hc.SetTimeout(o.Timeout)
	hc.SetHeader("User-Agent", o.UserAgent)
	hc.SetHeader("Accept", "application/json")
	hc.SetBasicAuth(o.Credentials.Username, o.Credentials.Key)
	hc.SetLogger(restyLogger{log: log})
	hc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Client{
		http:    hc,
		opts:    o,
		policy:  o.policy(),
		limiter: limiter,
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}, nil
}

// Options returns the effective options after defaults
func (c *Client) Options() Options { return c.opts }

// get issues a GET with retries and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	state := RetryState{Phase: PhaseAttempting}
	for {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}

		body, ev, ferr := c.attempt(ctx, path, query, state)
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}

		state = c.policy.Next(state, ev)
		switch state.Phase {
		case PhaseSucceeded:
			return body, nil
		case PhaseFailedFinal:
			if state.Exhausted {
				return nil, c.exhausted(path, ev, state, ferr)
			}
			return nil, ferr
		}

		c.log.Warn().
			Str("path", path).
			Int("attempt", state.Attempts).
			Int("rate_limited", state.RateLimited).
			Dur("retry_in", state.Wait).
			AnErr("cause", ferr).
			Msg("kaggle request retrying")
		if err := c.sleep(ctx, state.Wait); err != nil {
			return nil, canceled(err)
		}
	}
}

// attempt performs one request and classifies it
func (c *Client) attempt(ctx context.Context, path string, query map[string]string, st RetryState) ([]byte, Event, error) {
	start := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	lat := c.now().Sub(start)

	if err != nil {
		return nil, Event{Outcome: OutcomeTransient}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "kaggle %s transport error", path)
	}

	status := resp.StatusCode()
	retryAfter := parseRetryAfter(resp.Header(), c.now())
	c.log.Debug().
		Str("path", path).
		Int("status", status).
		Int("attempt", st.Attempts).
		Dur("latency", lat).
		Dur("retry_after", retryAfter).
		Msg("kaggle http response")

	if status >= 200 && status < 300 {
		return resp.Body(), Event{Outcome: OutcomeOK}, nil
	}
	switch code := perr.FromHTTPStatus(status); code {
	case perr.ErrorCodeTooManyRequests:
		return nil, Event{Outcome: OutcomeRateLimited, RetryAfter: retryAfter},
			perr.Newf(code, "kaggle %s rate limited", path)
	case perr.ErrorCodeUnavailable:
		return nil, Event{Outcome: OutcomeTransient},
			perr.Newf(code, "kaggle %s transient status %d", path, status)
	case perr.ErrorCodeUnauthorized:
		return nil, Event{Outcome: OutcomeFinal},
			perr.Unauthorizedf("kaggle rejected credentials (401) on %s", path)
	case perr.ErrorCodeForbidden:
		return nil, Event{Outcome: OutcomeFinal}, perr.Forbiddenf("kaggle %s forbidden", path)
	case perr.ErrorCodeNotFound:
		return nil, Event{Outcome: OutcomeFinal}, perr.NotFoundf("kaggle %s not found", path)
	default:
		// 400 and 422 included: they end the item, not the run
		return nil, Event{Outcome: OutcomeFinal},
			perr.Newf(perr.ErrorCodeUnknown, "kaggle %s unexpected status %d body %s", path, status, bodyTail(resp.Body()))
	}
}

func (c *Client) exhausted(path string, ev Event, st RetryState, cause error) error {
	if ev.Outcome == OutcomeRateLimited {
		return perr.Wrapf(cause, perr.ErrorCodeTooManyRequests, "kaggle %s still rate limited after %d waits", path, st.RateLimited)
	}
	return perr.Wrapf(cause, perr.ErrorCodeUnavailable, "kaggle %s unavailable after %d retries", path, st.Attempts)
}

func canceled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return perr.Wrap(err, perr.ErrorCodeCanceled, "kaggle request deadline exceeded")
	}
	return perr.Wrap(err, perr.ErrorCodeCanceled, "kaggle request canceled")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
