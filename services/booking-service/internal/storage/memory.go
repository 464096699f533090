package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/model"
)

// MemoryStore is an in-process engine.Store. It backs tests and local runs
// without a DATABASE_URL, the same fallback role the static providers play
// elsewhere in the tree.
//
// One mutex per appointment id serializes that appointment's transitions;
// different appointments never contend. Reads copy under the map lock only,
// never under a per-appointment lock.
type MemoryStore struct {
	mu     sync.RWMutex
	appts  map[string]*memEntry
	events []engine.Event
}

type memEntry struct {
	mu   sync.Mutex
	appt model.Appointment
}

var errDuplicateID = errors.New("duplicate appointment id")

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appts: map[string]*memEntry{}}
}

func (s *MemoryStore) CreateAppointment(_ context.Context, a *model.Appointment, evt *engine.Event) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appts[a.ID]; exists {
		return engine.Unavailable(errDuplicateID)
	}
	s.appts[a.ID] = &memEntry{appt: *a}
	s.record(evt)
	return nil
}

func (s *MemoryStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, engine.ErrNotFound
	}
	return entry.appt, nil
}

func (s *MemoryStore) UpdateAppointment(_ context.Context, id string, fn engine.UpdateFunc) (model.Appointment, error) {
	entry, err := s.entry(id)
	if err != nil {
		return model.Appointment{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.apply(entry, fn)
}

// ClaimAppointment uses TryLock: a claim that finds the appointment locked by
// another writer fails fast instead of queueing, per the coordinator contract.
func (s *MemoryStore) ClaimAppointment(_ context.Context, id string, fn engine.UpdateFunc) (model.Appointment, error) {
	entry, err := s.entry(id)
	if err != nil {
		return model.Appointment{}, err
	}

	if !entry.mu.TryLock() {
		return model.Appointment{}, engine.ErrJobNotClaimable
	}
	defer entry.mu.Unlock()
	return s.apply(entry, fn)
}

func (s *MemoryStore) RescheduleAppointment(ctx context.Context, id string, fn engine.UpdateFunc, replacement *model.Appointment, replacementEvt *engine.Event) (model.Appointment, error) {
	closed, err := s.UpdateAppointment(ctx, id, fn)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.CreateAppointment(ctx, replacement, replacementEvt); err != nil {
		return model.Appointment{}, err
	}
	return closed, nil
}

// ListAppointments matches the postgres ordering (date, then time of day) so a
// capped result is the same set regardless of backend; the limit is applied
// only after sorting, never during map iteration.
func (s *MemoryStore) ListAppointments(_ context.Context, q engine.ListQuery) ([]model.Appointment, error) {
	s.mu.RLock()
	var out []model.Appointment
	for _, entry := range s.appts {
		a := entry.appt
		if q.StoreID != "" && a.StoreID != q.StoreID {
			continue
		}
		if q.RiderID != "" && a.RiderID != q.RiderID {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if !q.From.IsZero() && a.AppointmentDate.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !a.AppointmentDate.Before(q.To) {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		return out[i].AppointmentTime < out[j].AppointmentTime
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SetPaymentStatus(_ context.Context, id, paymentStatus string) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	s.mu.Lock()
	entry.appt.PaymentStatus = paymentStatus
	s.mu.Unlock()
	return nil
}

// Events returns a copy of every event recorded so far, in order.
func (s *MemoryStore) Events() []engine.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) entry(id string) (*memEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.appts[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return entry, nil
}

// apply runs fn on a scratch copy so a guard failure leaves the stored record
// untouched, then publishes the new value under the map lock.
func (s *MemoryStore) apply(entry *memEntry, fn engine.UpdateFunc) (model.Appointment, error) {
	scratch := entry.appt
	evt, err := fn(&scratch)
	if err != nil {
		return model.Appointment{}, err
	}

	s.mu.Lock()
	entry.appt = scratch
	s.record(evt)
	s.mu.Unlock()
	return scratch, nil
}

// record appends under s.mu, which every caller already holds.
func (s *MemoryStore) record(evt *engine.Event) {
	if evt != nil {
		s.events = append(s.events, *evt)
	}
}
