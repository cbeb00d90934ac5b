// Package signature keeps captured signature images out of the permit
// records. Views submit images as data URLs; stores hold the decoded bytes
// and hand back an object key.
package signature

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("signature not found")
	ErrBadDataURL = errors.New("signature is not a base64 image data url")
)

// Image is a decoded signature.
type Image struct {
	ContentType string
	Data        []byte
}

type Store interface {
	Put(ctx context.Context, key string, img Image) error
	Get(ctx context.Context, key string) (Image, error)
}

// DecodeDataURL parses data:image/png;base64,... as produced by canvas capture.
func DecodeDataURL(raw string) (Image, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return Image{}, ErrBadDataURL
	}
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return Image{}, ErrBadDataURL
	}
	contentType := strings.TrimSuffix(meta, ";base64")
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, ErrBadDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, errors.Wrap(ErrBadDataURL, err.Error())
	}
	if len(data) == 0 {
		return Image{}, ErrBadDataURL
	}
	return Image{ContentType: contentType, Data: data}, nil
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(img Image) string {
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Key names the object holding a permit's signature for a purpose such as "closure".
func Key(permitID, purpose string) string {
	return "permits/" + permitID + "/" + purpose
}

// Upload decodes a data URL and stores it under Key(permitID, purpose).
func Upload(ctx context.Context, s Store, permitID, purpose, dataURL string) (string, error) {
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	key := Key(permitID, purpose)
	if err := s.Put(ctx, key, img); err != nil {
		return "", errors.Wrapf(err, "store signature %s", key)
	}
	return key, nil
}
