package tests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rideshare/internal/domain"
	"rideshare/internal/redis"
	"rideshare/internal/repository"
	"rideshare/internal/service"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is a mock implementation of TripRepository.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters for verification
	GetByIDCallCount      int32
	UpdateStatusCallCount int32

	// Error injection
	CreateError       error
	UpdateStatusError error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// AddTrip adds a trip to the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *trip
	m.trips[trip.ID] = &copy
}

// SetStatus changes a trip's status behind the services' back.
func (m *MockTripRepository) SetStatus(id string, status domain.TripStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trips[id]; ok {
		t.Status = status
	}
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.AddTrip(trip)
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	atomic.AddInt32(&m.GetByIDCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *trip
	return &copy, nil
}

func (m *MockTripRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Trip, 0)
	for _, t := range m.trips {
		if t.DriverID == driverID {
			copy := *t
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DepartureAt.After(result[j].DepartureAt) })
	return result, nil
}

func (m *MockTripRepository) UpdateStatus(ctx context.Context, id string, status domain.TripStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok {
		return repository.ErrNotFound
	}
	trip.Status = status
	return nil
}

// GetTrip returns a trip for test assertions.
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.trips[id]; ok {
		copy := *t
		return &copy
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK RESERVATION REPOSITORY
// ──────────────────────────────────────────────

// MockReservationRepository is a mock implementation of ReservationRepository.
// CreateHeld and Update are atomic like their SQL counterparts.
type MockReservationRepository struct {
	mu           sync.RWMutex
	reservations map[string]*domain.Reservation

	// Counters for verification
	CreateHeldCallCount int32
	UpdateCallCount     int32
	ConflictCount       int32

	// Error injection
	CreateHeldError error
	UpdateError     error
	// RejectUpdate, when set, can fail individual updates by content.
	RejectUpdate func(r *domain.Reservation) error

	// AfterListByTrip runs once ListByTrip has read its rows, standing in
	// for a write that lands right after the read.
	AfterListByTrip func()

	// ForceConflicts makes the next N updates fail with ErrVersionConflict.
	ForceConflicts int32

	// MaxHeld records the highest held count ever observed per trip.
	maxHeld map[string]int

	// payments, when linked, lets ListRefundsToRetry skip refunds the
	// provider already accepted, like the SQL join does.
	payments *MockPaymentRepository
}

// NewMockReservationRepository creates a new mock reservation repository.
func NewMockReservationRepository() *MockReservationRepository {
	return &MockReservationRepository{
		reservations: make(map[string]*domain.Reservation),
		maxHeld:      make(map[string]int),
	}
}

// LinkPayments makes the repository consult p for refund state.
func (m *MockReservationRepository) LinkPayments(p *MockPaymentRepository) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = p
}

// AddReservation adds a reservation to the mock repository without any
// capacity check.
func (m *MockReservationRepository) AddReservation(r *domain.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *r
	m.reservations[r.ID] = &copy
	m.trackHeldLocked(r.TripID)
}

func (m *MockReservationRepository) CreateHeld(ctx context.Context, r *domain.Reservation, capacity int) error {
	atomic.AddInt32(&m.CreateHeldCallCount, 1)
	if m.CreateHeldError != nil {
		return m.CreateHeldError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reservations[r.ID]; exists {
		return ErrMockDBConstraint
	}
	if m.countHeldLocked(r.TripID) >= capacity {
		return repository.ErrCapacityReached
	}

	copy := *r
	m.reservations[r.ID] = &copy
	m.trackHeldLocked(r.TripID)
	return nil
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *r
	return &copy, nil
}

func (m *MockReservationRepository) Update(ctx context.Context, r *domain.Reservation) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	if m.RejectUpdate != nil {
		if err := m.RejectUpdate(r); err != nil {
			return err
		}
	}
	if atomic.LoadInt32(&m.ForceConflicts) > 0 && atomic.AddInt32(&m.ForceConflicts, -1) >= 0 {
		atomic.AddInt32(&m.ConflictCount, 1)
		return repository.ErrVersionConflict
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != r.Version {
		atomic.AddInt32(&m.ConflictCount, 1)
		return repository.ErrVersionConflict
	}

	r.Version++
	copy := *r
	m.reservations[r.ID] = &copy
	m.trackHeldLocked(r.TripID)
	return nil
}

func (m *MockReservationRepository) CountHeld(ctx context.Context, tripID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countHeldLocked(tripID), nil
}

func (m *MockReservationRepository) ListByTrip(ctx context.Context, tripID string, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error) {
	result := m.filter(func(r *domain.Reservation) bool {
		return r.TripID == tripID && matchesStatus(r.Status, statuses)
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if m.AfterListByTrip != nil {
		m.AfterListByTrip()
	}
	return result, nil
}

func (m *MockReservationRepository) ListByPassenger(ctx context.Context, passengerID string, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error) {
	result := m.filter(func(r *domain.Reservation) bool {
		return r.Passenger.ID == passengerID && matchesStatus(r.Status, statuses)
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockReservationRepository) ListExpiredAwaitingPayment(ctx context.Context, before time.Time, limit int) ([]*domain.Reservation, error) {
	result := m.filter(func(r *domain.Reservation) bool {
		return r.Status == domain.ReservationStatusAwaitingPayment &&
			!r.PaymentDeadline.IsZero() && r.PaymentDeadline.Before(before)
	})
	sort.Slice(result, func(i, j int) bool { return result[i].PaymentDeadline.Before(result[j].PaymentDeadline) })
	return limitList(result, limit), nil
}

func (m *MockReservationRepository) ListRefundsToRetry(ctx context.Context, limit int) ([]*domain.Reservation, error) {
	m.mu.RLock()
	payments := m.payments
	m.mu.RUnlock()

	result := m.filter(func(r *domain.Reservation) bool {
		if !r.RefundPending {
			return false
		}
		if payments == nil {
			return true
		}
		p := payments.PaymentFor(r.ID)
		return p == nil || !p.RefundRequested()
	})
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	return limitList(result, limit), nil
}

// GetReservation returns a reservation for test assertions.
func (m *MockReservationRepository) GetReservation(id string) *domain.Reservation {
	r, err := m.GetByID(context.Background(), id)
	if err != nil {
		return nil
	}
	return r
}

// HeldCount returns the current held count of a trip.
func (m *MockReservationRepository) HeldCount(tripID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countHeldLocked(tripID)
}

// MaxHeld returns the highest held count a trip ever reached.
func (m *MockReservationRepository) MaxHeld(tripID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxHeld[tripID]
}

func (m *MockReservationRepository) filter(keep func(r *domain.Reservation) bool) []*domain.Reservation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Reservation, 0)
	for _, r := range m.reservations {
		if keep(r) {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result
}

func (m *MockReservationRepository) countHeldLocked(tripID string) int {
	n := 0
	for _, r := range m.reservations {
		if r.TripID == tripID && r.Status.HoldsSeat() {
			n++
		}
	}
	return n
}

func (m *MockReservationRepository) trackHeldLocked(tripID string) {
	if n := m.countHeldLocked(tripID); n > m.maxHeld[tripID] {
		m.maxHeld[tripID] = n
	}
}

func matchesStatus(s domain.ReservationStatus, statuses []domain.ReservationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func limitList(list []*domain.Reservation, limit int) []*domain.Reservation {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.IdempotencyKey == p.IdempotencyKey || existing.ReservationID == p.ReservationID {
			return repository.ErrDuplicate
		}
	}
	copy := *p
	m.payments[p.ID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool { return p.IdempotencyKey == key }), nil
}

func (m *MockPaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	p := m.find(func(p *domain.Payment) bool { return p.IntentID == intentID })
	if p == nil {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *MockPaymentRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool { return p.ReservationID == reservationID }), nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *p
	m.payments[p.ID] = &copy
	return nil
}

// PaymentFor returns the payment of a reservation for test assertions.
func (m *MockPaymentRepository) PaymentFor(reservationID string) *domain.Payment {
	p, _ := m.GetByReservationID(context.Background(), reservationID)
	return p
}

func (m *MockPaymentRepository) find(match func(p *domain.Payment) bool) *domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if match(p) {
			copy := *p
			return &copy
		}
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PROVIDER
// ──────────────────────────────────────────────

// MockProvider is a scriptable payment provider.
type MockProvider struct {
	mu sync.Mutex

	// IntentErrors are returned by successive CreatePaymentIntent calls
	// before it starts succeeding.
	IntentErrors []error

	// RefundState is returned by successful refunds. Defaults to succeeded.
	RefundState service.RefundState
	// RefundErrors are returned by successive Refund calls before it
	// starts succeeding.
	RefundErrors []error

	// IntentDelay holds every intent creation for a while, widening the
	// window for concurrent callers.
	IntentDelay time.Duration

	// Counters
	IntentCallCount int32
	RefundCallCount int32

	intents []string
	byKey   map[string]service.IntentRef
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		RefundState: service.RefundSucceeded,
		byKey:       make(map[string]service.IntentRef),
	}
}

// CreatePaymentIntent returns the same intent for a repeated idempotency
// key, like real providers do.
func (m *MockProvider) CreatePaymentIntent(ctx context.Context, amount float64, metadata map[string]string) (service.IntentRef, error) {
	atomic.AddInt32(&m.IntentCallCount, 1)
	if m.IntentDelay > 0 {
		time.Sleep(m.IntentDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.IntentErrors) > 0 {
		err := m.IntentErrors[0]
		m.IntentErrors = m.IntentErrors[1:]
		return service.IntentRef{}, err
	}
	key := metadata[service.IdempotencyKeyMetadata]
	if ref, ok := m.byKey[key]; ok && key != "" {
		return ref, nil
	}
	id := "pi_" + uuid.New().String()
	m.intents = append(m.intents, id)
	ref := service.IntentRef{IntentID: id, ClientSecret: id + "_secret"}
	if key != "" {
		m.byKey[key] = ref
	}
	return ref, nil
}

// IntentCount returns how many distinct intents were opened.
func (m *MockProvider) IntentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

func (m *MockProvider) Refund(ctx context.Context, intentID string) (service.RefundOutcome, error) {
	atomic.AddInt32(&m.RefundCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.RefundErrors) > 0 {
		err := m.RefundErrors[0]
		m.RefundErrors = m.RefundErrors[1:]
		return service.RefundOutcome{}, err
	}
	return service.RefundOutcome{RefundID: "re_" + intentID, State: m.RefundState}, nil
}

// SetRefundState changes the state of future refunds.
func (m *MockProvider) SetRefundState(state service.RefundState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundState = state
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]string),
	}
}

func (m *MockLockStore) AcquireTripLock(ctx context.Context, tripID, token string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[tripID]; held {
		return false, nil
	}
	m.locks[tripID] = token
	return true, nil
}

func (m *MockLockStore) ReleaseTripLock(ctx context.Context, tripID, token string) (bool, error) {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[tripID] != token {
		return false, nil
	}
	delete(m.locks, tripID)
	return true, nil
}

// Hold takes the trip lock as another instance would.
func (m *MockLockStore) Hold(tripID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[tripID] = "other-instance"
}

// Drop removes a lock held by another instance.
func (m *MockLockStore) Drop(tripID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, tripID)
}

// IsLocked checks if a trip is locked (for test assertions).
func (m *MockLockStore) IsLocked(tripID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[tripID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK CACHE STORE
// ──────────────────────────────────────────────

// MockCacheStore is a mock implementation of CacheStoreInterface.
type MockCacheStore struct {
	mu    sync.Mutex
	trips map[string]*domain.Trip

	// Counters
	HitCount        int32
	MissCount       int32
	InvalidateCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{trips: make(map[string]*domain.Trip)}
}

func (m *MockCacheStore) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		atomic.AddInt32(&m.MissCount, 1)
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	copy := *t
	return &copy, nil
}

func (m *MockCacheStore) SetTrip(ctx context.Context, trip *domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *trip
	m.trips[trip.ID] = &copy
	return nil
}

func (m *MockCacheStore) InvalidateTrip(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trips, tripID)
	return nil
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

// RecordingPublisher keeps every published reservation event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.ReservationEvent

	// Error injection
	PublishError error
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(ctx context.Context, event domain.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.PublishError
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []domain.ReservationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ReservationEvent(nil), p.events...)
}

// EventsFor returns the events of one reservation.
func (p *RecordingPublisher) EventsFor(reservationID string) []domain.ReservationEvent {
	var out []domain.ReservationEvent
	for _, e := range p.Events() {
		if e.ReservationID == reservationID {
			out = append(out, e)
		}
	}
	return out
}

// Ensure mocks implement the interfaces they stand in for.
var (
	_ repository.TripRepository        = (*MockTripRepository)(nil)
	_ repository.ReservationRepository = (*MockReservationRepository)(nil)
	_ repository.PaymentRepository     = (*MockPaymentRepository)(nil)
	_ service.PaymentProvider          = (*MockProvider)(nil)
	_ service.EventPublisher           = (*RecordingPublisher)(nil)
	_ redis.LockStoreInterface         = (*MockLockStore)(nil)
	_ redis.CacheStoreInterface        = (*MockCacheStore)(nil)
)

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBConstraint = errors.New("mock: unique constraint violation")
	ErrMockTimeout      = errors.New("mock: operation timeout")
)
