package notification

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecret_Redacts(t *testing.T) {
	s := NewSecret("tok-123")

	assert.Equal(t, "tok-123", s.Reveal())
	assert.NotContains(t, s.String(), "tok-123")
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v %s", s, s, s, s), "tok-123")

	set := Settings{UserID: 1, PushAPIToken: s, PushUserKey: NewSecret("uk-9")}
	assert.NotContains(t, fmt.Sprintf("%+v", set), "tok-123")
	assert.NotContains(t, fmt.Sprintf("%#v", set), "uk-9")

	b, err := json.Marshal(set)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "tok-123")
	assert.NotContains(t, string(b), "uk-9")
}

func TestSecret_ZapRedacts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("settings", zap.Object("token", NewSecret("tok-123")), zap.Stringer("key", NewSecret("uk-9")))

	require.Equal(t, 1, logs.Len())
	for _, f := range logs.All()[0].Context {
		assert.NotContains(t, fmt.Sprint(f.Interface), "tok-123")
		assert.NotEqual(t, "uk-9", f.String)
	}
}

func TestSecret_UnmarshalKeepsValue(t *testing.T) {
	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &s))
	assert.Equal(t, "abc", s.Reveal())
}

func TestSettings_EmailTo(t *testing.T) {
	s := DefaultSettings(7)
	assert.True(t, s.EmailEnabled)
	assert.False(t, s.PushEnabled)
	assert.Equal(t, "owner@example.com", s.EmailTo("owner@example.com"))

	s.EmailAddress = "ops@example.com"
	assert.Equal(t, "ops@example.com", s.EmailTo("owner@example.com"))
}

func TestSettings_PushConfigured(t *testing.T) {
	s := &Settings{PushEnabled: true, PushUserKey: NewSecret("u")}
	assert.False(t, s.PushConfigured())
	s.PushAPIToken = NewSecret("t")
	assert.True(t, s.PushConfigured())
	s.PushEnabled = false
	assert.False(t, s.PushConfigured())
}
