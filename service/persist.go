package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Kapo179/docuseal3/pkg/logger"
)

// loadJSON decodes the value at key into dst, which must be a non-nil
// pointer. Missing keys report found=false. Corrupt values are deleted and
// also report found=false, so callers fall back to their defaults instead of
// surfacing the error. dst is only written after a successful decode.
func loadJSON(ctx context.Context, kv KV, key string, dst any) (bool, error) {
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return false, fmt.Errorf("read %s: destination must be a non-nil pointer, got %T", key, dst)
	}

	raw, err := kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", key, err)
	}

	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		logger.Warn(ctx, "discarding corrupt persisted state", "key", key, "error", err)
		if delErr := kv.Delete(ctx, key); delErr != nil {
			logger.Error(ctx, "failed to delete corrupt state", "key", key, "error", delErr)
		}
		return false, nil
	}
	target.Elem().Set(fresh.Elem())
	return true, nil
}

func saveJSON(ctx context.Context, kv KV, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
