package service

import (
	"context"
	"time"

	"github.com/Kapo179/docuseal3/model"
)

// FormStore keeps the in-progress vehicle form of a device across reloads.
type FormStore struct {
	kv   KV
	keys Keyspace
	now  func() time.Time
}

func NewFormStore(kv KV, keys Keyspace) *FormStore {
	return &FormStore{kv: kv, keys: keys, now: time.Now}
}

func (s *FormStore) key(device string) string {
	return s.keys.Key("form", device)
}

// Load returns the saved snapshot, or defaults when nothing usable is stored.
func (s *FormStore) Load(ctx context.Context, device string) (model.FormData, error) {
	var data model.FormData
	found, err := loadJSON(ctx, s.kv, s.key(device), &data)
	if err != nil {
		return model.FormData{}, err
	}
	if !found {
		return model.DefaultFormData(s.now()), nil
	}
	return data, nil
}

func (s *FormStore) Save(ctx context.Context, device string, data model.FormData) error {
	return saveJSON(ctx, s.kv, s.key(device), data, 0)
}

// Clear removes the snapshot. The session marker cookie is expired by the
// HTTP layer.
func (s *FormStore) Clear(ctx context.Context, device string) error {
	return s.kv.Delete(ctx, s.key(device))
}
