package cache_test

import (
	"testing"

	"github.com/illmade-knight/go-hostwatch/pkg/cache"
	"github.com/stretchr/testify/assert"
)

func TestNewFirestoreSnapshotCache_Validation(t *testing.T) {
	_, err := cache.NewFirestoreSnapshotCache(nil, "latest")
	assert.Error(t, err)
}
