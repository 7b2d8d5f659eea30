package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/store"
)

// fakeSubscriptionStore is an in-memory SubscriptionStore for engine tests.
type fakeSubscriptionStore struct {
	mu       sync.Mutex
	subs     map[string]*domain.Subscription
	findErr  error
	disabled []string
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
	if s.findErr != nil {
		return nil, s.findErr
	}
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
	s.disabled = append(s.disabled, id)
	return nil
}

// fakeAttemptStore is an in-memory AttemptStore for engine tests.
type fakeAttemptStore struct {
	mu        sync.Mutex
	attempts  []*domain.DeliveryAttempt
	insertErr error

	// Mirror the subscriptions join in the real DueRetries query.
	disabledSubs   map[string]bool
	subMaxAttempts map[string]int
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{}
}

func (s *fakeAttemptStore) InsertAttempt(_ context.Context, a *domain.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
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
	s.mu.Lock()
	defer s.mu.Unlock()
	due := []domain.DeliveryAttempt{}
	for _, a := range s.attempts {
		if a.Status != domain.StatusAwaitingRetry || a.NextRetryAt == nil || a.NextRetryAt.After(now) {
			continue
		}
		if s.disabledSubs[a.SubscriptionID] {
			continue
		}
		if max, ok := s.subMaxAttempts[a.SubscriptionID]; ok && a.AttemptNumber >= max {
			continue
		}
		if s.hasSuccessorLocked(a) {
			continue
		}
		due = append(due, *a)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(*due[j].NextRetryAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeAttemptStore) hasSuccessorLocked(a *domain.DeliveryAttempt) bool {
	for _, b := range s.attempts {
		if b.EventID == a.EventID && b.SubscriptionID == a.SubscriptionID && b.AttemptNumber > a.AttemptNumber {
			return true
		}
	}
	return false
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
