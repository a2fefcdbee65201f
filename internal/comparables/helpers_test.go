package comparables

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"estatedesk/server/internal/dvf"
	"estatedesk/server/internal/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func f64(v float64) *float64 { return &v }

// fetchStep scripts one Fetch call of fakeSource.
type fetchStep struct {
	rows []models.ComparableTransaction
	err  error
}

type fakeSource struct {
	mu      sync.Mutex
	steps   []fetchStep
	queries []dvf.Query
}

func (f *fakeSource) Fetch(ctx context.Context, q dvf.Query) ([]models.ComparableTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if len(f.steps) == 0 {
		return nil, nil
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return step.rows, step.err
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeSink struct {
	mu    sync.Mutex
	saved []models.ComparableTransaction
	err   error
}

func (f *fakeSink) SaveTransactions(ctx context.Context, rows []models.ComparableTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rows...)
	return f.err
}

type memoryProperties struct {
	mu         sync.Mutex
	properties map[uuid.UUID]*models.Property
	updates    int
}

var errNotFound = errors.New("not found")

func (m *memoryProperties) GetProperty(ctx context.Context, organizationID, id uuid.UUID) (*models.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok || p.OrganizationID != organizationID {
		return nil, errNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *memoryProperties) UpdateAttributes(ctx context.Context, property *models.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.properties[property.ID] = property
	return nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.ComparableQueryCacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]*models.ComparableQueryCacheEntry{}}
}

func (m *memoryCache) GetCacheEntry(ctx context.Context, key string, now time.Time) (*models.ComparableQueryCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || !entry.ExpiresAt.After(now) {
		return nil, nil
	}
	return entry, nil
}

func (m *memoryCache) UpsertCacheEntry(ctx context.Context, entry *models.ComparableQueryCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.CacheKey] = entry
	return nil
}

// sale builds an apartment sale on the line price = 6000 * surface + 12500.
func sale(id string, surface float64, date time.Time) models.ComparableTransaction {
	lat, lon := 48.8570, 2.3530
	return models.ComparableTransaction{
		SourceID:      id,
		SourceRowHash: dvf.RowHash(id, date, 0, nil, nil, 0, 0),
		SaleDate:      date,
		SalePrice:     6000*surface + 12500,
		Surface:       surface,
		PropertyType:  models.PropertyTypeApartment,
		Latitude:      &lat,
		Longitude:     &lon,
		City:          "Paris",
		PostalCode:    "75004",
	}
}

func sales(prefix string, n int) []models.ComparableTransaction {
	rows := make([]models.ComparableTransaction, 0, n)
	for i := 0; i < n; i++ {
		date := testNow.AddDate(0, -(i%60)-1, 0)
		rows = append(rows, sale(fmt.Sprintf("%s-%d", prefix, i), 40+float64(i%40), date))
	}
	return rows
}

// gatedSource blocks every Fetch until release is closed, honouring ctx.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	rows    []models.ComparableTransaction
}

func newGatedSource(rows []models.ComparableTransaction) *gatedSource {
	return &gatedSource{started: make(chan struct{}), release: make(chan struct{}), rows: rows}
}

func (g *gatedSource) Fetch(ctx context.Context, q dvf.Query) ([]models.ComparableTransaction, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return g.rows, nil
	}
}
