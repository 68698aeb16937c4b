// Package velocity counts recent messages per sender for gate rules.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// Service counts messages from one sender within a time window.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	now   func() time.Time
}

// NewService creates a new velocity service. Either source may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// GetMessageCount returns how many messages the sender produced within the
// window, the current one included. The cache counter is preferred; the
// repository is scanned when no cache is configured.
func (s *Service) GetMessageCount(ctx context.Context, tenantID, sender string, windowSecs int) (int64, error) {
	if tenantID == "" || sender == "" {
		return 0, fmt.Errorf("tenantID and sender are required")
	}
	window := time.Duration(windowSecs) * time.Second

	if s.cache != nil {
		count, err := s.cache.IncrementCounter(ctx, tenantID, "sender:"+sender, window)
		if err != nil {
			return 0, fmt.Errorf("failed to increment sender counter: %w", err)
		}
		return count, nil
	}

	if s.repo != nil {
		return s.countFromRepo(ctx, tenantID, sender, s.now().Add(-window))
	}

	return 0, fmt.Errorf("no data source available")
}

func (s *Service) countFromRepo(ctx context.Context, tenantID, sender string, since time.Time) (int64, error) {
	msgs, err := s.repo.ListMessagesBySender(ctx, tenantID, sender, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return int64(len(msgs)), nil
}

// GetVelocityGetter returns the counter in the shape the gate engine expects.
func (s *Service) GetVelocityGetter() func(ctx context.Context, tenantID, sender string, windowSecs int) (int64, error) {
	return s.GetMessageCount
}
