package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/workshoplabs/webhook-engine/internal/domain"
)

func setupSweeper(t *testing.T, attempts *fakeAttemptStore) (*Sweeper, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSweeper(attempts, client, time.Second, testLogger()), client
}

func awaitingRetryAttempt(eventID string, attemptNumber int, nextRetryAt time.Time) *domain.DeliveryAttempt {
	return &domain.DeliveryAttempt{
		EventID:           eventID,
		SubscriptionID:    "sub-1",
		TenantID:          "tenant-1",
		SubscriptionName:  "test endpoint",
		TargetURL:         "http://example.com/hook",
		EventType:         "order.created",
		SubjectEntityID:   "order-9",
		SubjectEntityType: "service_order",
		Payload:           []byte(`{"event_type":"order.created"}`),
		AttemptNumber:     attemptNumber,
		Status:            domain.StatusAwaitingRetry,
		NextRetryAt:       &nextRetryAt,
	}
}

func TestSweeper_PromotesDueRetries(t *testing.T) {
	attempts := newFakeAttemptStore()
	sweeper, client := setupSweeper(t, attempts)
	ctx := context.Background()

	due := awaitingRetryAttempt("evt-1", 1, time.Now().Add(-time.Second))
	attempts.attempts = append(attempts.attempts, due)
	due.ID = "att-1"

	promoted := sweeper.Sweep(ctx)

	if promoted != 1 {
		t.Fatalf("promoted = %d, want 1", promoted)
	}
	if attempts.count() != 2 {
		t.Fatalf("attempt rows = %d, want 2", attempts.count())
	}

	jobs := queuedJobs(t, client)
	if len(jobs) != 1 {
		t.Fatalf("queued jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Attempt != 2 {
		t.Errorf("job attempt = %d, want 2", jobs[0].Attempt)
	}

	next := attempts.byID(jobs[0].AttemptID)
	if next == nil {
		t.Fatal("job references unknown attempt row")
	}
	if next.AttemptNumber != 2 {
		t.Errorf("next attempt number = %d, want 2", next.AttemptNumber)
	}
	if next.Status != domain.StatusPending {
		t.Errorf("next attempt status = %q, want pending", next.Status)
	}
	if string(next.Payload) != string(due.Payload) {
		t.Error("retry must reuse the original payload bytes")
	}
	if next.TargetURL != due.TargetURL || next.SubscriptionName != due.SubscriptionName {
		t.Error("retry must carry the snapshot forward")
	}
}

func TestSweeper_IgnoresFutureRetries(t *testing.T) {
	attempts := newFakeAttemptStore()
	sweeper, client := setupSweeper(t, attempts)

	future := awaitingRetryAttempt("evt-1", 1, time.Now().Add(time.Hour))
	future.ID = "att-1"
	attempts.attempts = append(attempts.attempts, future)

	if promoted := sweeper.Sweep(context.Background()); promoted != 0 {
		t.Errorf("promoted = %d, want 0", promoted)
	}
	if jobs := queuedJobs(t, client); len(jobs) != 0 {
		t.Errorf("queued jobs = %d, want 0", len(jobs))
	}
}

func TestSweeper_SkipsSupersededRows(t *testing.T) {
	attempts := newFakeAttemptStore()
	sweeper, _ := setupSweeper(t, attempts)

	old := awaitingRetryAttempt("evt-1", 1, time.Now().Add(-time.Minute))
	old.ID = "att-1"
	newer := awaitingRetryAttempt("evt-1", 2, time.Now().Add(time.Minute))
	newer.ID = "att-2"
	attempts.attempts = append(attempts.attempts, old, newer)

	if promoted := sweeper.Sweep(context.Background()); promoted != 0 {
		t.Errorf("promoted = %d, want 0: attempt 1 was superseded by attempt 2", promoted)
	}
}

func TestSweeper_SkipsDisabledSubscriptions(t *testing.T) {
	attempts := newFakeAttemptStore()
	attempts.disabledSubs = map[string]bool{"sub-1": true}
	sweeper, client := setupSweeper(t, attempts)

	due := awaitingRetryAttempt("evt-1", 1, time.Now().Add(-time.Minute))
	due.ID = "att-1"
	attempts.attempts = append(attempts.attempts, due)

	if promoted := sweeper.Sweep(context.Background()); promoted != 0 {
		t.Errorf("promoted = %d, want 0 for a disabled subscription", promoted)
	}
	if jobs := queuedJobs(t, client); len(jobs) != 0 {
		t.Errorf("queued jobs = %d, want 0", len(jobs))
	}
}

func TestSweeper_PromotesOldestRetryFirst(t *testing.T) {
	attempts := newFakeAttemptStore()
	sweeper, _ := setupSweeper(t, attempts)

	// Insert the later-due row first: promotion order must follow
	// next_retry_at, not row order.
	later := awaitingRetryAttempt("evt-later", 1, time.Now().Add(-time.Minute))
	later.ID = "att-1"
	earlier := awaitingRetryAttempt("evt-earlier", 1, time.Now().Add(-2*time.Minute))
	earlier.ID = "att-2"
	attempts.attempts = append(attempts.attempts, later, earlier)

	if promoted := sweeper.Sweep(context.Background()); promoted != 2 {
		t.Fatalf("promoted = %d, want 2", promoted)
	}

	// New pending rows are appended in promotion order.
	if got := attempts.attempts[2].EventID; got != "evt-earlier" {
		t.Errorf("first promoted event = %q, want evt-earlier", got)
	}
	if got := attempts.attempts[3].EventID; got != "evt-later" {
		t.Errorf("second promoted event = %q, want evt-later", got)
	}
}

func TestSweeper_RespectsLoweredAttemptCap(t *testing.T) {
	attempts := newFakeAttemptStore()
	attempts.subMaxAttempts = map[string]int{"sub-1": 2}
	sweeper, client := setupSweeper(t, attempts)

	// The chain reached attempt 2 while max_attempts was higher; with the
	// cap now at 2 the sweep must not create attempt 3.
	capped := awaitingRetryAttempt("evt-1", 2, time.Now().Add(-time.Minute))
	capped.ID = "att-1"
	attempts.attempts = append(attempts.attempts, capped)

	if promoted := sweeper.Sweep(context.Background()); promoted != 0 {
		t.Errorf("promoted = %d, want 0 once attempt_number reaches max_attempts", promoted)
	}
	if attempts.count() != 1 {
		t.Errorf("attempt rows = %d, want 1", attempts.count())
	}
	if jobs := queuedJobs(t, client); len(jobs) != 0 {
		t.Errorf("queued jobs = %d, want 0", len(jobs))
	}
}

func TestSweeper_RepeatedSweepsKeepNumberingGapless(t *testing.T) {
	attempts := newFakeAttemptStore()
	sweeper, _ := setupSweeper(t, attempts)
	ctx := context.Background()

	first := awaitingRetryAttempt("evt-1", 1, time.Now().Add(-time.Second))
	first.ID = "att-1"
	attempts.attempts = append(attempts.attempts, first)

	sweeper.Sweep(ctx)

	// The new pending row now heads the chain; nothing further is due.
	if promoted := sweeper.Sweep(ctx); promoted != 0 {
		t.Fatalf("second sweep promoted = %d, want 0", promoted)
	}

	// Fail attempt 2, then sweep again: attempt 3 should follow with no gap.
	var second *domain.DeliveryAttempt
	for _, a := range attempts.attempts {
		if a.AttemptNumber == 2 {
			second = a
		}
	}
	if second == nil {
		t.Fatal("attempt 2 was not created")
	}
	past := time.Now().Add(-time.Second)
	second.Status = domain.StatusAwaitingRetry
	second.NextRetryAt = &past

	if promoted := sweeper.Sweep(ctx); promoted != 1 {
		t.Fatalf("third sweep promoted = %d, want 1", promoted)
	}

	numbers := map[int]bool{}
	for _, a := range attempts.attempts {
		numbers[a.AttemptNumber] = true
	}
	for i := 1; i <= 3; i++ {
		if !numbers[i] {
			t.Errorf("attempt sequence has a gap: missing %d", i)
		}
	}
}
