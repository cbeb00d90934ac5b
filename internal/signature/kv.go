package signature

import (
	"context"

	"github.com/pkg/errors"

	"permitline/internal/kv"
)

const kvPrefix = "signature:"

// kvStore keeps images as data URLs next to the permits, so they live as
// long as the permit store does.
type kvStore struct {
	kv kv.Store
}

func NewKV(store kv.Store) Store {
	return &kvStore{kv: store}
}

func (s *kvStore) Put(ctx context.Context, key string, img Image) error {
	if _, err := s.kv.Put(ctx, kvPrefix+key, []byte(EncodeDataURL(img)), 0); err != nil {
		return errors.Wrapf(err, "put signature %s", key)
	}
	return nil
}

func (s *kvStore) Get(ctx context.Context, key string) (Image, error) {
	rec, err := s.kv.Get(ctx, kvPrefix+key)
	if errors.Is(err, kv.ErrNotFound) {
		return Image{}, ErrNotFound
	}
	if err != nil {
		return Image{}, errors.Wrapf(err, "get signature %s", key)
	}
	return DecodeDataURL(string(rec.Value))
}
