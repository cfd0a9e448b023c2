// Package policy supplies the site-wide access policy. The gateway does not
// own the policy; it reads it from configuration or from SSM Parameter Store
// where the admin tooling publishes it.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/domain"
	"github.com/zzenonn/zgate/internal/metrics"
)

// Source returns the policy in force for a request.
type Source interface {
	Policy(ctx context.Context) (domain.AccessPolicy, error)
}

// StaticSource always returns the same policy.
type StaticSource struct {
	policy domain.AccessPolicy
}

func NewStaticSource(allowedDomains string, whiteListMode bool) *StaticSource {
	return &StaticSource{policy: domain.AccessPolicy{
		AllowedDomains: domain.ParseDomainList(allowedDomains),
		WhiteListMode:  whiteListMode,
	}}
}

func (s *StaticSource) Policy(context.Context) (domain.AccessPolicy, error) {
	return s.policy, nil
}

// SSMAPI is the part of the SSM client the source uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// parameterDocument is the JSON stored in the parameter.
type parameterDocument struct {
	AllowedDomains string `json:"allowedDomains"`
	WhiteListMode  bool   `json:"whiteListMode"`
}

// SSMSource reads the policy from an SSM parameter and caches it for ttl.
// When a refresh fails the last good policy keeps being served.
type SSMSource struct {
	client   SSMAPI
	name     string
	ttl      time.Duration
	fallback domain.AccessPolicy

	mu      sync.Mutex
	cached  domain.AccessPolicy
	fetched time.Time
	loaded  bool
}

// NewSSMSource creates a source for the named parameter. fallback is served
// until the parameter has been read once.
func NewSSMSource(client SSMAPI, name string, ttl time.Duration, fallback domain.AccessPolicy) *SSMSource {
	return &SSMSource{
		client:   client,
		name:     name,
		ttl:      ttl,
		fallback: fallback,
	}
}

func (s *SSMSource) Policy(ctx context.Context) (domain.AccessPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && time.Since(s.fetched) < s.ttl {
		return s.cached, nil
	}

	p, err := s.fetch(ctx)
	if err != nil {
		if s.loaded {
			log.WithError(err).Warn("Failed to refresh access policy, serving cached copy")
			return s.cached, nil
		}
		log.WithError(err).Warn("Failed to load access policy, serving configured defaults")
		return s.fallback, nil
	}

	s.cached, s.fetched, s.loaded = p, time.Now(), true
	return p, nil
}

func (s *SSMSource) fetch(ctx context.Context) (domain.AccessPolicy, error) {
	start := time.Now()
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	metrics.RecordBackendOperation("ssm", "get_parameter", time.Since(start), err == nil)
	if err != nil {
		return domain.AccessPolicy{}, fmt.Errorf("failed to get parameter %s: %w", s.name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return domain.AccessPolicy{}, fmt.Errorf("parameter %s has no value", s.name)
	}

	var doc parameterDocument
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &doc); err != nil {
		return domain.AccessPolicy{}, fmt.Errorf("failed to parse parameter %s: %w", s.name, err)
	}

	return domain.AccessPolicy{
		AllowedDomains: domain.ParseDomainList(doc.AllowedDomains),
		WhiteListMode:  doc.WhiteListMode,
	}, nil
}
