package resilience

import (
	"path"
	"time"
)

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// Policies override RetryMaxAttempts for matching operations. The first
	// match wins.
	Policies []Policy
}

// Policy sets the attempt budget for operations matching Pattern, a
// path.Match glob such as "qdrant.*.search".
type Policy struct {
	Pattern     string
	MaxAttempts int
}

// QueryPathOperations are the calls made while answering a question. The
// query usecase owns their retry, so they run once behind the breaker.
var QueryPathOperations = []string{
	"ollama.embed_query",
	"ollama.chat",
	"clip.embed_text",
	"qdrant.*.search",
	"qdrant.*.count",
	"neo4j.read",
}

// QueryPathPolicies limits every query path operation to attempts calls.
func QueryPathPolicies(attempts int) []Policy {
	policies := make([]Policy, 0, len(QueryPathOperations))
	for _, pattern := range QueryPathOperations {
		policies = append(policies, Policy{Pattern: pattern, MaxAttempts: attempts})
	}
	return policies
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	if len(out.Policies) > 0 {
		policies := make([]Policy, 0, len(out.Policies))
		for _, p := range out.Policies {
			if _, err := path.Match(p.Pattern, ""); err != nil {
				continue
			}
			if p.MaxAttempts <= 0 {
				p.MaxAttempts = 1
			}
			policies = append(policies, p)
		}
		out.Policies = policies
	}

	return out
}

func (c Config) attemptsFor(operation string) int {
	for _, p := range c.Policies {
		if ok, _ := path.Match(p.Pattern, operation); ok {
			return p.MaxAttempts
		}
	}
	return c.RetryMaxAttempts
}
