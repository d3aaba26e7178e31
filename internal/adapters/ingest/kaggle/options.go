package kaggle

import (
	"time"

	"kaggleharvest/internal/platform/config"

	"dario.cat/mergo"
)

const (
	baseURLDefault          = "https://www.kaggle.com/api/v1"
	defaultTimeout          = 30 * time.Second
	defaultUA               = "kaggleharvest"
	defaultMaxRetry         = 5
	defaultRetryBase        = 500 * time.Millisecond
	defaultRetryCap         = 30 * time.Second
	defaultRateLimitWait    = 60 * time.Second
	defaultMaxRateLimitHits = 10
	defaultRatePerSec       = 2.0
	defaultBurst            = 2
	defaultPageSize         = 100
)

// Options configures the Client. Zero fields take the defaults above
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration // per request

	// transient failures: transport errors, timeouts, 5xx
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration

	// 429 handling, counted separately
	RateLimitWait       time.Duration
	MaxRateLimitRetries int

	// shared request budget for every caller of one Client
	RatePerSec float64
	Burst      int

	PageSize    int
	Credentials Credentials
}

func defaultOptions() Options {
	return Options{
		BaseURL:             baseURLDefault,
		UserAgent:           defaultUA,
		Timeout:             defaultTimeout,
		MaxRetries:          defaultMaxRetry,
		RetryBase:           defaultRetryBase,
		RetryCap:            defaultRetryCap,
		RateLimitWait:       defaultRateLimitWait,
		MaxRateLimitRetries: defaultMaxRateLimitHits,
		RatePerSec:          defaultRatePerSec,
		Burst:               defaultBurst,
		PageSize:            defaultPageSize,
	}
}

// withDefaults fills zero fields of o from defaultOptions
func withDefaults(o Options) (Options, error) {
	if err := mergo.Merge(&o, defaultOptions()); err != nil {
		return o, err
	}
	return o, nil
}

// FromConfig reads client options using the KAGGLE_ prefix
func FromConfig(cfg config.Conf) Options {
	kc := cfg.Prefix("KAGGLE_")
	return Options{
		BaseURL:             kc.MayString("BASE_URL", baseURLDefault),
		UserAgent:           kc.MayString("USER_AGENT", defaultUA),
		Timeout:             kc.MayDuration("TIMEOUT", defaultTimeout),
		MaxRetries:          kc.MayInt("MAX_RETRIES", defaultMaxRetry),
		RetryBase:           kc.MayDuration("RETRY_BASE", defaultRetryBase),
		RetryCap:            kc.MayDuration("RETRY_CAP", defaultRetryCap),
		RateLimitWait:       kc.MayDuration("RATE_LIMIT_WAIT", defaultRateLimitWait),
		MaxRateLimitRetries: kc.MayInt("MAX_RATE_LIMIT_RETRIES", defaultMaxRateLimitHits),
		RatePerSec:          kc.MayFloat64("RPS", defaultRatePerSec),
		Burst:               kc.MayInt("BURST", defaultBurst),
		PageSize:            kc.MayInt("PAGE_SIZE", defaultPageSize),
	}
}

func (o Options) policy() Policy {
	return Policy{
		MaxRetries:          o.MaxRetries,
		MaxRateLimitRetries: o.MaxRateLimitRetries,
		Base:                o.RetryBase,
		Cap:                 o.RetryCap,
		RateLimitWait:       o.RateLimitWait,
	}
}
