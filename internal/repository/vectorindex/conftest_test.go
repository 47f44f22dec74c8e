package vectorindex

import (
	"context"

	"github.com/kailas-cloud/netscout/internal/db"
)

type mockStore struct {
	exists    bool
	existsErr error
	created   *db.IndexDefinition
	createErr error
	items     []db.HashSetItem
	lastQuery *db.KNNQuery
	result    *db.SearchResult
	searchErr error
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	m.items = append(m.items, items...)
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.created = def
	return m.createErr
}

func (m *mockStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastQuery = q
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.result, nil
}
