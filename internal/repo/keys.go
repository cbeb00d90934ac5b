package repo

import (
	"strings"

	"permitline/internal/domain"
)

const (
	HeaderKey      = "permit:header"
	SessionRoleKey = "session:role"
	permitPrefix   = "permit:"
	latestSuffix   = "latest"
)

// LatestKey is the pointer to the most recently saved permit of a type.
func LatestKey(dt domain.DocType) string {
	return permitPrefix + string(dt) + "-" + latestSuffix
}

func PermitKey(dt domain.DocType, permitID string) string {
	return permitPrefix + string(dt) + "-" + permitID
}

func permitKeyPrefix(dt domain.DocType) string {
	return permitPrefix + string(dt) + "-"
}

// permitIDFromKey returns the id part of permit:{docType}-{id}, skipping the latest pointer.
func permitIDFromKey(dt domain.DocType, key string) (string, bool) {
	id := strings.TrimPrefix(key, permitKeyPrefix(dt))
	if id == key || id == "" || id == latestSuffix {
		return "", false
	}
	return id, true
}
