package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resolution is the identity provider's answer about a subject.
type Resolution struct {
	Exists          bool `json:"exists"`
	MembershipValid bool `json:"membership_valid"`
}

// Provider resolves a subject identifier to its current standing. The
// engine consults it only after local key validation has succeeded, as
// advisory post-validation hardening.
type Provider interface {
	ResolveSubject(ctx context.Context, subjectID string) (Resolution, error)
}

// HTTPProvider asks an external identity service over HTTP.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPProvider(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("IdentityProvider"),
	}
}

func (p *HTTPProvider) ResolveSubject(ctx context.Context, subjectID string) (Resolution, error) {
	endpoint := fmt.Sprintf("%s/subjects/%s", p.baseURL, url.PathEscape(subjectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("identity request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("Identity provider call failed", zap.String("subject", subjectID), zap.Error(err))
		return Resolution{}, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res Resolution
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return Resolution{}, fmt.Errorf("identity response decode: %w", err)
		}
		return res, nil
	case http.StatusNotFound:
		return Resolution{Exists: false}, nil
	default:
		return Resolution{}, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}
}

// Static is an in-memory provider for development and tests.
type Static struct {
	mu       sync.RWMutex
	subjects map[string]Resolution
}

func NewStatic() *Static {
	return &Static{subjects: make(map[string]Resolution)}
}

func (s *Static) Set(subjectID string, res Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subjectID] = res
}

func (s *Static) ResolveSubject(_ context.Context, subjectID string) (Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.subjects[subjectID]
	if !ok {
		return Resolution{Exists: false}, nil
	}
	return res, nil
}
