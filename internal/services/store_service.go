package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tindahan/api/internal/repositories"
)

// ErrStoreNotFound indicates the pickup store does not exist.
var ErrStoreNotFound = errors.New("store: not found")

type StoreServiceDeps struct {
	Stores repositories.StoreRepository
}

type storeService struct {
	stores repositories.StoreRepository
}

// NewStoreService exposes pickup locations.
func NewStoreService(deps StoreServiceDeps) (StoreService, error) {
	if deps.Stores == nil {
		return nil, errors.New("store service: store repository is required")
	}
	return &storeService{stores: deps.Stores}, nil
}

func (s *storeService) List(ctx context.Context, query string) ([]Store, error) {
	items, err := s.stores.List(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return items, nil
}

func (s *storeService) Get(ctx context.Context, storeID string) (Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return Store{}, ErrStoreNotFound
	}
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		if isRepoNotFound(err) {
			return Store{}, ErrStoreNotFound
		}
		return Store{}, fmt.Errorf("store: get: %w", err)
	}
	return store, nil
}
