package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
)

// memSoftwareRepo is an in-memory ports.SoftwareRepository.
type memSoftwareRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Software

	mutateCalls int
}

func newMemSoftwareRepo() *memSoftwareRepo {
	return &memSoftwareRepo{rows: make(map[int64]domain.Software)}
}

func (r *memSoftwareRepo) Create(_ context.Context, sw domain.Software) (domain.Software, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sw.ID = r.nextID
	r.rows[sw.ID] = sw
	return sw, nil
}

func (r *memSoftwareRepo) Get(_ context.Context, id int64) (domain.Software, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sw, ok := r.rows[id]
	if !ok {
		return domain.Software{}, domain.ErrNotFound
	}
	return sw, nil
}

func (r *memSoftwareRepo) List(context.Context) ([]domain.Software, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Software, 0, len(r.rows))
	for _, sw := range r.rows {
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSoftwareRepo) Delete(_ context.Context, id int64) (domain.Software, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sw, ok := r.rows[id]
	if !ok {
		return domain.Software{}, domain.ErrNotFound
	}
	delete(r.rows, id)
	return sw, nil
}

func (r *memSoftwareRepo) Mutate(_ context.Context, id int64, fn func(sw *domain.Software) error) (domain.Software, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutateCalls++
	sw, ok := r.rows[id]
	if !ok {
		return domain.Software{}, domain.ErrNotFound
	}
	if err := fn(&sw); err != nil {
		return domain.Software{}, err
	}
	sw.ID = id
	r.rows[id] = sw
	return sw, nil
}

type stubScheduler struct {
	mu        sync.Mutex
	scheduled []domain.Transition
	err       error
}

func (s *stubScheduler) Schedule(softwareID int64, target domain.Status) (domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Transition{}, s.err
	}
	t := domain.Transition{ID: "t", SoftwareID: softwareID, Target: target}
	s.scheduled = append(s.scheduled, t)
	return t, nil
}

type publisherStub struct {
	mu        sync.Mutex
	err       error
	published []domain.EventEnvelope
}

func (p *publisherStub) Publish(_ context.Context, _ string, event domain.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return p.err
}

func (p *publisherStub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.published))
	for _, e := range p.published {
		out = append(out, e.EventType)
	}
	return out
}
