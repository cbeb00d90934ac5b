package signature

import (
	"context"
	"errors"
	"testing"

	"permitline/internal/kv"
)

const pixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func TestDecodeDataURL(t *testing.T) {
	img, err := DecodeDataURL(pixel)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.ContentType != "image/png" || len(img.Data) == 0 {
		t.Fatalf("unexpected image %s %d", img.ContentType, len(img.Data))
	}
	if EncodeDataURL(img) != pixel {
		t.Fatalf("re-encode mismatch")
	}
	for _, bad := range []string{"", "hello", "data:text/plain;base64,aGk=", "data:image/png,raw", "data:image/png;base64,!!"} {
		if _, err := DecodeDataURL(bad); !errors.Is(err, ErrBadDataURL) {
			t.Fatalf("expected bad data url for %q, got %v", bad, err)
		}
	}
}

func TestUploadMemory(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	key, err := Upload(ctx, store, "p-1", "closure", pixel)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if key != "permits/p-1/closure" {
		t.Fatalf("unexpected key %s", key)
	}
	img, err := store.Get(ctx, key)
	if err != nil || img.ContentType != "image/png" {
		t.Fatalf("get: %+v %v", img, err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestKVStoreOutlivesHandle(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	key, err := Upload(ctx, NewKV(backing), "p-2", "closure/a1", pixel)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	img, err := NewKV(backing).Get(ctx, key)
	if err != nil || img.ContentType != "image/png" || len(img.Data) == 0 {
		t.Fatalf("get through a fresh handle: %+v %v", img, err)
	}
	if _, err := NewKV(backing).Get(ctx, "permits/p-2/other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
