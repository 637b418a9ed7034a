package reconciler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/repositories/content"
)

// memStore is an in-memory content.Repository with the same claim rules as
// the Postgres adapter.
type memStore struct {
	mu     sync.Mutex
	items  map[string]*domain.ContentItem
	claims map[string]claim
	writes int

	listErr   error
	claimErr  map[string]error
	markErr   map[string]error
	afterList func()
}

type claim struct {
	runID string
	at    time.Time
}

var _ content.Repository = (*memStore)(nil)

func newMemStore(items ...domain.ContentItem) *memStore {
	s := &memStore{
		items:    map[string]*domain.ContentItem{},
		claims:   map[string]claim{},
		claimErr: map[string]error{},
		markErr:  map[string]error{},
	}
	for _, it := range items {
		it := it
		s.items[it.ID] = &it
	}
	return s
}

func (s *memStore) Create(_ context.Context, item domain.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return content.ErrAlreadyExists
	}
	s.items[item.ID] = &item
	s.writes++
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, content.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *memStore) ListDue(_ context.Context, now time.Time) ([]domain.ContentItem, error) {
	s.mu.Lock()
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	var due []domain.ContentItem
	for _, it := range s.items {
		if it.IsDue(now) {
			due = append(due, *it)
		}
	}
	hook := s.afterList
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(*due[j].ScheduledFor) })

	if hook != nil {
		hook()
	}
	return due, nil
}

func (s *memStore) Claim(_ context.Context, id, runID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimErr[id]; err != nil {
		return false, err
	}
	it, ok := s.items[id]
	if !ok || !it.IsDue(now) {
		return false, nil
	}
	it.Status = domain.StatusPublishing
	s.claims[id] = claim{runID: runID, at: now}
	s.writes++
	return true, nil
}

func (s *memStore) MarkPublished(_ context.Context, id, runID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErr[id]; err != nil {
		return err
	}
	it, ok := s.items[id]
	if !ok || it.Status != domain.StatusPublishing || s.claims[id].runID != runID {
		return content.ErrClaimLost
	}
	it.Status = domain.StatusPublished
	it.PublishedAt = &publishedAt
	delete(s.claims, id)
	s.writes++
	return nil
}

func (s *memStore) ReleaseStaleClaims(_ context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.claims {
		if c.at.Before(claimedBefore) {
			s.items[id].Status = domain.StatusScheduled
			delete(s.claims, id)
			n++
		}
	}
	s.writes += int(n)
	return n, nil
}

func (s *memStore) get(id string) domain.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[id]
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

var errStoreDown = errors.New("connection refused")
