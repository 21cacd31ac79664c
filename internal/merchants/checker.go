// Package merchants answers whether a merchant domain supports checkout through Henry.
package merchants

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTTL = time.Hour

var ErrInvalidDomain = errors.New("invalid merchant domain")

// StatusLookup is the authoritative source, normally the commerce client.
type StatusLookup interface {
	MerchantStatus(ctx context.Context, domain string) (bool, error)
}

type Checker struct {
	lookup StatusLookup
	cache  Cache
	ttl    time.Duration
}

func NewChecker(lookup StatusLookup, cache Cache, ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Checker{lookup: lookup, cache: cache, ttl: ttl}
}

// Supported reports whether domain is supported. Cache failures are logged and bypassed.
func (c *Checker) Supported(ctx context.Context, domain string) (bool, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return false, err
	}

	supported, found, err := c.cache.Get(ctx, d)
	if err != nil {
		logrus.WithError(err).WithField("domain", d).Warn("Merchant cache read failed")
	} else if found {
		return supported, nil
	}

	supported, err = c.lookup.MerchantStatus(ctx, d)
	if err != nil {
		logrus.WithError(err).WithField("domain", d).Error("Merchant status lookup failed")
		return false, err
	}

	if err := c.cache.Set(ctx, d, supported, c.ttl); err != nil {
		logrus.WithError(err).WithField("domain", d).Warn("Merchant cache write failed")
	}
	return supported, nil
}

// NormalizeDomain reduces a URL or host to a bare lowercase host without "www.".
func NormalizeDomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrInvalidDomain
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", ErrInvalidDomain
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if !strings.Contains(host, ".") {
		return "", ErrInvalidDomain
	}
	return host, nil
}
