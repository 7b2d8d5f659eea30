package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/store"
)

// In-memory stand-ins for the Postgres store; delivery tests exercise HTTP
// mechanics against httptest servers, not database plumbing.

type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscription
}

func newFakeSubscriptionStore(subs ...*domain.Subscription) *fakeSubscriptionStore {
	s := &fakeSubscriptionStore{subs: make(map[string]*domain.Subscription)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeSubscriptionStore) FindMatchingSubscriptions(_ context.Context, tenantID, eventType string) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []domain.Subscription{}
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.Enabled && sub.SubscribesTo(eventType) {
			matches = append(matches, *sub)
		}
	}
	return matches, nil
}

func (s *fakeSubscriptionStore) GetSubscription(_ context.Context, tenantID, id string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok || sub.TenantID != tenantID {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (s *fakeSubscriptionStore) IncrementFailures(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return 0, nil
	}
	sub.ConsecutiveFailures++
	now := time.Now()
	sub.LastFailureAt = &now
	return sub.ConsecutiveFailures, nil
}

func (s *fakeSubscriptionStore) RecordDeliverySuccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return errors.New("subscription not found")
	}
	sub.ConsecutiveFailures = 0
	now := time.Now()
	sub.LastSuccessAt = &now
	return nil
}

func (s *fakeSubscriptionStore) DisableSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return errors.New("subscription not found")
	}
	sub.Enabled = false
	return nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []*domain.DeliveryAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{}
}

func (s *fakeAttemptStore) InsertAttempt(_ context.Context, a *domain.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.StatusPending
	}
	a.CreatedAt = time.Now()
	copied := *a
	s.attempts = append(s.attempts, &copied)
	return nil
}

func (s *fakeAttemptStore) ResolveAttempt(_ context.Context, attemptID string, outcome store.AttemptOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ID != attemptID {
			continue
		}
		if a.Status != domain.StatusPending {
			return errors.New("attempt not pending")
		}
		a.Status = outcome.Status
		a.HTTPStatus = outcome.HTTPStatus
		if outcome.ResponseBody != "" {
			body := outcome.ResponseBody
			a.ResponseBody = &body
		}
		if outcome.ErrorMessage != "" {
			msg := outcome.ErrorMessage
			a.ErrorMessage = &msg
		}
		ms := outcome.ResponseTimeMs
		a.ResponseTimeMs = &ms
		a.NextRetryAt = outcome.NextRetryAt
		return nil
	}
	return errors.New("attempt not found")
}

func (s *fakeAttemptStore) DueRetries(_ context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}

func (s *fakeAttemptStore) byID(id string) *domain.DeliveryAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *fakeAttemptStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
