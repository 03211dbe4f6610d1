package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/repo"
	"github.com/Skotchmaster/sweet_shop/internal/testutil"
	"github.com/Skotchmaster/sweet_shop/pkg/tokens"
)

type published struct {
	Topic string
	Key   string
	Event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{Topic: topic, Key: key, Event: event})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[uint]models.Sweet
	failing bool
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: map[uint]models.Sweet{}} }

func (f *fakeIndex) IndexSweet(_ context.Context, s *models.Sweet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("index down")
	}
	f.docs[s.ID] = *s
	return nil
}

func (f *fakeIndex) DeleteSweet(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("index down")
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) Reindex(_ context.Context, sweets []models.Sweet) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sweets {
		f.docs[s.ID] = s
	}
	return len(sweets), nil
}

func (f *fakeIndex) Search(_ context.Context, q string, from, size int) (int64, []models.Sweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Sweet{}
	for _, s := range f.docs {
		if s.Name == q {
			out = append(out, s)
		}
	}
	return int64(len(out)), out, nil
}

func (f *fakeIndex) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func newTestIssuer() *tokens.Issuer {
	return tokens.NewIssuer([]byte("test-jwt-secret"), time.Hour, models.AllRoles()...)
}

func newTestServices(t *testing.T) (*AuthService, *InventoryService, *recordingPublisher) {
	t.Helper()

	r := &repo.GormRepo{DB: testutil.NewDB(t)}
	pub := &recordingPublisher{}
	auth := &AuthService{Repo: r, Tokens: newTestIssuer(), Events: pub}
	inv := &InventoryService{Repo: r, Events: pub}
	return auth, inv, pub
}

func mustCreate(t *testing.T, inv *InventoryService, name string, price float64, qty int, category string) *models.Sweet {
	t.Helper()
	s, err := inv.CreateSweet(context.Background(), createReq(name, price, qty, category))
	require.NoError(t, err)
	return s
}
