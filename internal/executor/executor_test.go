package executor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/renewcast-backend/internal/errors"
	"github.com/unclebandit/renewcast-backend/internal/events"
	"github.com/unclebandit/renewcast-backend/internal/model"
	"github.com/unclebandit/renewcast-backend/internal/notify"
	"github.com/unclebandit/renewcast-backend/internal/plan"
	"github.com/unclebandit/renewcast-backend/internal/quota"
)

// --- Fakes ---

// memJobStore mimics the jobs table: claims are atomic under a mutex, so
// two concurrent ClaimDue calls can never hand out the same job.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[int]*model.Job
}

func newMemJobStore(jobs ...*model.Job) *memJobStore {
	m := &memJobStore{jobs: map[int]*model.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := []*model.Job{}
	for _, j := range m.jobs {
		if j.Status == model.JobStatusPending && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ScheduledAt.Before(due[k].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := []*model.Job{}
	for _, j := range due {
		j.Status = model.JobStatusQueued
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *memJobStore) MarkSent(ctx context.Context, id int, pmid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = model.JobStatusSent
	j.ProviderMessageID = pmid
	j.LastError = ""
	j.Attempts++
	return nil
}

func (m *memJobStore) RescheduleRetry(ctx context.Context, id, retryCount int, nextAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = model.JobStatusPending
	j.RetryCount = retryCount
	j.ScheduledAt = nextAt
	j.LastError = lastError
	j.Attempts++
	return nil
}

func (m *memJobStore) FailPermanent(ctx context.Context, id, retryCount int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = model.JobStatusPermanentFailed
	j.RetryCount = retryCount
	j.LastError = lastError
	j.Attempts++
	return nil
}

func (m *memJobStore) Terminate(ctx context.Context, id int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = model.JobStatusPermanentFailed
	j.LastError = lastError
	return nil
}

func (m *memJobStore) Insert(ctx context.Context, j *model.Job) error { return nil }
func (m *memJobStore) InsertScheduled(ctx context.Context, j *model.Job) (bool, error) {
	return false, nil
}
func (m *memJobStore) GetByID(ctx context.Context, id int) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}
func (m *memJobStore) ListByTenant(ctx context.Context, tenantID, offset, limit int, status string) ([]*model.Job, int, error) {
	return nil, 0, nil
}

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[int]*model.Tenant
	// errs is consumed one per call before the map is consulted; nil
	// entries mean no injected failure.
	errs []error
}

func (f *fakeTenantRepo) GetByID(ctx context.Context, id int) (*model.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, appErrors.NewTenantNotFound(id)
}

type fakeCustomerRepo struct {
	customers map[int]*model.Customer
}

func (f *fakeCustomerRepo) GetByID(ctx context.Context, id int) (*model.Customer, error) {
	return f.customers[id], nil
}
func (f *fakeCustomerRepo) ListByTenant(ctx context.Context, tenantID int) ([]model.Customer, error) {
	return nil, nil
}

type fakeUsageRepo struct {
	mu   sync.Mutex
	used map[string]int
}

func newFakeUsageRepo() *fakeUsageRepo { return &fakeUsageRepo{used: map[string]int{}} }

func (f *fakeUsageRepo) Ensure(ctx context.Context, tenantID int, ch model.Channel, month string, q int) error {
	return nil
}
func (f *fakeUsageRepo) TryIncrement(ctx context.Context, tenantID int, ch model.Channel, month string) (bool, error) {
	return true, nil
}
func (f *fakeUsageRepo) Increment(ctx context.Context, tenantID int, ch model.Channel, month string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[string(ch)]++
	return nil
}
func (f *fakeUsageRepo) ListForTenant(ctx context.Context, tenantID int, month string) ([]model.ChannelUsage, error) {
	return nil, nil
}

type scriptedSender struct {
	mu    sync.Mutex
	id    string
	errs  []error // consumed in order; nil entry means success
	calls int
	msgs  []notify.Message
}

func (s *scriptedSender) Send(ctx context.Context, msg notify.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return "", err
	}
	s.msgs = append(s.msgs, msg)
	return s.id, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, ev events.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 23, 9, 0, 0, 0, time.UTC)

func testExecutor(store *memJobStore, sender notify.Sender, usage *fakeUsageRepo, pub events.Publisher) *Executor {
	catalog := plan.NewCatalog(plan.Plan{
		ID:     "base",
		Quotas: map[model.Channel]int{model.ChannelEmail: 100, model.ChannelSMS: 100},
	})
	tenants := &fakeTenantRepo{tenants: map[int]*model.Tenant{
		1: {ID: 1, Name: "Acme", ActivePlans: []string{"base"}},
	}}
	customers := &fakeCustomerRepo{customers: map[int]*model.Customer{}}
	tracker := quota.NewTracker(usage, catalog)
	tracker.Now = func() time.Time { return testNow }
	dispatcher := notify.NewDispatcher(sender, sender, nil, zerolog.Nop())

	e := New(store, customers, tenants, tracker, dispatcher, pub, catalog, zerolog.Nop())
	e.Now = func() time.Time { return testNow }
	return e
}

func pendingJob(id int, scheduledAt time.Time, retryCount int) *model.Job {
	return &model.Job{
		ID:          id,
		TenantID:    1,
		Channel:     model.ChannelEmail,
		Recipient:   "alice@example.com",
		Message:     "hello",
		ScheduledAt: scheduledAt,
		Status:      model.JobStatusPending,
		RetryCount:  retryCount,
		Attempts:    retryCount,
	}
}

// --- Tests ---

func TestRunOnceSendsDueJob(t *testing.T) {
	store := newMemJobStore(pendingJob(1, testNow.Add(-time.Minute), 0))
	usage := newFakeUsageRepo()
	pub := &capturingPublisher{}

	n, err := testExecutor(store, &scriptedSender{id: "pm-1"}, usage, pub).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusSent, j.Status)
	assert.Equal(t, "pm-1", j.ProviderMessageID)
	assert.Equal(t, 1, j.Attempts)
	assert.Equal(t, 1, usage.used["email"])

	require.Len(t, pub.events, 1)
	assert.Equal(t, "sent", pub.events[0].Status)
}

func TestRunOnceLeavesFutureJobsAlone(t *testing.T) {
	store := newMemJobStore(pendingJob(1, testNow.Add(time.Hour), 0))

	n, err := testExecutor(store, &scriptedSender{id: "pm-1"}, newFakeUsageRepo(), &capturingPublisher{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPending, j.Status)
}

func TestTransientFailureBackoffSequence(t *testing.T) {
	// Delays double per retry: 2, 4, 8 minutes for retry counts 1..3.
	for _, tc := range []struct {
		retryCount int
		wantDelay  time.Duration
	}{
		{0, 2 * time.Minute},
		{1, 4 * time.Minute},
		{2, 8 * time.Minute},
	} {
		store := newMemJobStore(pendingJob(1, testNow.Add(-time.Minute), tc.retryCount))
		sender := &scriptedSender{errs: []error{notify.NewTransientError(errors.New("provider down"))}}

		_, err := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{}).RunOnce(context.Background())
		require.NoError(t, err)

		j, _ := store.GetByID(context.Background(), 1)
		assert.Equal(t, model.JobStatusPending, j.Status)
		assert.Equal(t, tc.retryCount+1, j.RetryCount)
		assert.Equal(t, testNow.Add(tc.wantDelay), j.ScheduledAt)
		assert.Contains(t, j.LastError, "provider down")
	}
}

func TestExhaustedRetriesFailPermanently(t *testing.T) {
	store := newMemJobStore(pendingJob(1, testNow.Add(-time.Minute), MaxRetries))
	sender := &scriptedSender{errs: []error{notify.NewTransientError(errors.New("still down"))}}
	pub := &capturingPublisher{}

	_, err := testExecutor(store, sender, newFakeUsageRepo(), pub).RunOnce(context.Background())
	require.NoError(t, err)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPermanentFailed, j.Status)
	assert.Equal(t, MaxRetries, j.RetryCount)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "permanent_failed", pub.events[0].Status)
}

func TestJobFailsPermanentlyAfterFullRetryBudget(t *testing.T) {
	// One job driven through every tick until terminal: four dispatch
	// attempts total, then permanent_failed.
	store := newMemJobStore(pendingJob(1, testNow.Add(-time.Minute), 0))
	sender := &scriptedSender{errs: []error{
		notify.NewTransientError(errors.New("e1")),
		notify.NewTransientError(errors.New("e2")),
		notify.NewTransientError(errors.New("e3")),
		notify.NewTransientError(errors.New("e4")),
	}}
	e := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{})

	for i := 0; i < 4; i++ {
		// Advance past the backoff so the job is due again.
		j, _ := store.GetByID(context.Background(), 1)
		e.Now = func() time.Time { return j.ScheduledAt.Add(time.Second) }
		_, err := e.RunOnce(context.Background())
		require.NoError(t, err)
	}

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPermanentFailed, j.Status)
	assert.Equal(t, 4, j.Attempts)
	assert.Equal(t, MaxRetries, j.RetryCount)
	assert.Equal(t, 4, sender.calls)
}

func TestNonRetryableFailureSkipsBackoff(t *testing.T) {
	store := newMemJobStore(pendingJob(1, testNow.Add(-time.Minute), 0))
	sender := &scriptedSender{errs: []error{notify.NewConfigError("no credentials")}}

	_, err := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{}).RunOnce(context.Background())
	require.NoError(t, err)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPermanentFailed, j.Status)
	assert.Equal(t, 0, j.RetryCount)
	assert.Contains(t, j.LastError, "no credentials")
}

func TestMissingContactFailsWithoutRetry(t *testing.T) {
	job := pendingJob(1, testNow.Add(-time.Minute), 0)
	job.Recipient = ""
	store := newMemJobStore(job)
	sender := &scriptedSender{id: "pm-1"}

	_, err := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{}).RunOnce(context.Background())
	require.NoError(t, err)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPermanentFailed, j.Status)
	assert.Equal(t, 0, sender.calls)
}

func TestRevokedEntitlementTerminatesJob(t *testing.T) {
	job := pendingJob(1, testNow.Add(-time.Minute), 0)
	job.Channel = model.ChannelWhatsApp // not granted by the test plan
	store := newMemJobStore(job)
	sender := &scriptedSender{id: "pm-1"}
	pub := &capturingPublisher{}

	_, err := testExecutor(store, sender, newFakeUsageRepo(), pub).RunOnce(context.Background())
	require.NoError(t, err)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPermanentFailed, j.Status)
	assert.Equal(t, 0, j.Attempts) // entitlement check is not a dispatch attempt
	assert.Equal(t, 0, sender.calls)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "permanent_failed", pub.events[0].Status)
}

func TestTransientTenantLookupErrorRetries(t *testing.T) {
	store := newMemJobStore(pendingJob(1, testNow.Add(-time.Minute), 0))
	sender := &scriptedSender{id: "pm-1"}

	e := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{})
	e.Tenants.(*fakeTenantRepo).errs = []error{errors.New("connection reset by peer")}

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	// A store blip reschedules the job instead of killing it.
	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPending, j.Status)
	assert.Equal(t, 1, j.RetryCount)
	assert.Equal(t, 0, sender.calls)

	// Once the store recovers the job goes out on the next due tick.
	e.Now = func() time.Time { return j.ScheduledAt.Add(time.Second) }
	_, err = e.RunOnce(context.Background())
	require.NoError(t, err)

	j, _ = store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusSent, j.Status)
	assert.Equal(t, 1, sender.calls)
}

func TestMissingTenantTerminatesJob(t *testing.T) {
	job := pendingJob(1, testNow.Add(-time.Minute), 0)
	job.TenantID = 99 // no such tenant
	store := newMemJobStore(job)
	sender := &scriptedSender{id: "pm-1"}
	pub := &capturingPublisher{}

	_, err := testExecutor(store, sender, newFakeUsageRepo(), pub).RunOnce(context.Background())
	require.NoError(t, err)

	j, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, model.JobStatusPermanentFailed, j.Status)
	assert.Equal(t, 0, j.RetryCount)
	assert.Equal(t, 0, sender.calls)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "permanent_failed", pub.events[0].Status)
}

func TestScheduledJobRendersRuleTemplate(t *testing.T) {
	expiry := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	customerID, ruleID := 5, 10
	job := pendingJob(1, testNow.Add(-time.Minute), 0)
	job.CustomerID = &customerID
	job.RuleID = &ruleID
	job.Message = "Hi {{ first_name }}, {{ days_left }} day(s) left at {{ company_name }}."
	store := newMemJobStore(job)
	sender := &scriptedSender{id: "pm-1"}

	e := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{})
	e.Customers.(*fakeCustomerRepo).customers[5] = &model.Customer{
		ID: 5, TenantID: 1, FirstName: "Alice", ExpiryDate: &expiry,
	}

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	j, _ := store.GetByID(context.Background(), 1)
	require.Equal(t, model.JobStatusSent, j.Status)
	// The sender saw the rendered body, not the raw template.
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "Hi Alice, 6 day(s) left at Acme.", sender.msgs[0].Body)
}

func TestOneJobFailureDoesNotAffectBatch(t *testing.T) {
	store := newMemJobStore(
		pendingJob(1, testNow.Add(-3*time.Minute), 0),
		pendingJob(2, testNow.Add(-2*time.Minute), 0),
		pendingJob(3, testNow.Add(-time.Minute), 0),
	)
	// Jobs are processed oldest first: the middle one fails.
	sender := &scriptedSender{id: "pm-1", errs: []error{nil, notify.NewTransientError(errors.New("blip")), nil}}

	n, err := testExecutor(store, sender, newFakeUsageRepo(), &capturingPublisher{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	j1, _ := store.GetByID(context.Background(), 1)
	j2, _ := store.GetByID(context.Background(), 2)
	j3, _ := store.GetByID(context.Background(), 3)
	assert.Equal(t, model.JobStatusSent, j1.Status)
	assert.Equal(t, model.JobStatusPending, j2.Status)
	assert.Equal(t, model.JobStatusSent, j3.Status)
}

func TestConcurrentExecutorsNeverShareAJob(t *testing.T) {
	jobs := []*model.Job{}
	for i := 1; i <= 10; i++ {
		jobs = append(jobs, pendingJob(i, testNow.Add(-time.Duration(i)*time.Minute), 0))
	}
	store := newMemJobStore(jobs...)
	usage := newFakeUsageRepo()
	pub := &capturingPublisher{}

	e1 := testExecutor(store, &scriptedSender{id: "pm-a"}, usage, pub)
	e2 := testExecutor(store, &scriptedSender{id: "pm-b"}, usage, pub)

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i, e := range []*Executor{e1, e2} {
		wg.Add(1)
		go func(idx int, ex *Executor) {
			defer wg.Done()
			n, err := ex.RunOnce(context.Background())
			assert.NoError(t, err)
			counts[idx] = n
		}(i, e)
	}
	wg.Wait()

	// The union covers all ten jobs, the intersection is empty.
	assert.Equal(t, 10, counts[0]+counts[1])
	for i := 1; i <= 10; i++ {
		j, _ := store.GetByID(context.Background(), i)
		assert.Equal(t, model.JobStatusSent, j.Status)
		assert.Equal(t, 1, j.Attempts)
	}
	assert.Equal(t, 10, usage.used["email"])
}
