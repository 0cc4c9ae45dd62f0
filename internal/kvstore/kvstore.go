// Package kvstore is a small typed key-value store used for per-account
// "last known good" values: favorite common meal ids, last logged sets
// per exercise, the photo estimation API key. Values are stored as JSON
// strings; GetJSON/SetJSON give the typed get/set contract.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// AccountKey builds the store key for a per-account value.
func AccountKey(accountID int, name string) string {
	return fmt.Sprintf("acc::%d::%s", accountID, name)
}

func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var val T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return val, err
	}
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return val, fmt.Errorf("decode value for %s: %w", key, err)
	}
	return val, nil
}

func SetJSON[T any](ctx context.Context, s Store, key string, val T) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
