package internal_test

import (
	"testing"

	"github.com/koopa0/system-design/14-planning-poker/internal"
	"github.com/stretchr/testify/assert"
)

// TestSessionRegistry_BindResolve 測試綁定與查詢
func TestSessionRegistry_BindResolve(t *testing.T) {
	s := internal.NewSessionRegistry()

	_, ok := s.Resolve("conn-1")
	assert.False(t, ok)

	stale := s.Bind("conn-1", "p-1")
	assert.Empty(t, stale)

	id, ok := s.Resolve("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)

	connID, ok := s.ConnectionOf("p-1")
	assert.True(t, ok)
	assert.Equal(t, "conn-1", connID)
	assert.Equal(t, 1, s.Len())
}

// TestSessionRegistry_Rebind 測試同名重新連線覆蓋舊綁定
func TestSessionRegistry_Rebind(t *testing.T) {
	s := internal.NewSessionRegistry()
	s.Bind("conn-old", "p-1")

	stale := s.Bind("conn-new", "p-1")
	assert.Equal(t, "conn-old", stale)

	_, ok := s.Resolve("conn-old")
	assert.False(t, ok, "stale connection must not resolve")

	connID, _ := s.ConnectionOf("p-1")
	assert.Equal(t, "conn-new", connID)

	// 舊連線斷線不影響參與者
	_, ok = s.Unbind("conn-old")
	assert.False(t, ok)

	id, ok := s.Unbind("conn-new")
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)
	assert.Equal(t, 0, s.Len())
}

// TestSessionRegistry_SameConnectionTwice 測試同一連線重複綁定
func TestSessionRegistry_SameConnectionTwice(t *testing.T) {
	s := internal.NewSessionRegistry()
	s.Bind("conn-1", "p-1")

	assert.Empty(t, s.Bind("conn-1", "p-1"))
	assert.Equal(t, 1, s.Len())
}
