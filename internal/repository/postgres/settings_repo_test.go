package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/upwatch/internal/crypto"
	"github.com/NordCoder/upwatch/internal/domain/notification"
)

func sealerWithKey(t *testing.T, b byte) *crypto.Sealer {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	s, err := crypto.NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestOpenCredentials(t *testing.T) {
	old := sealerWithKey(t, 1)
	sealed, err := old.Seal("tok-123")
	require.NoError(t, err)

	cases := []struct {
		name    string
		sealer  *crypto.Sealer
		stored  string
		token   string
		wantErr error
	}{
		{name: "same key", sealer: old, stored: sealed, token: "tok-123"},
		{name: "no token", sealer: old, stored: "", token: ""},
		{name: "rotated key", sealer: sealerWithKey(t, 2), stored: sealed},
		{name: "corrupted row", sealer: old, stored: "garbage", wantErr: crypto.ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &SettingsRepo{sealer: tc.sealer}
			s := notification.Settings{UserID: 1, EmailEnabled: true, PushEnabled: true}
			r.openCredentials(&s, "ukey", tc.stored)

			assert.Equal(t, "ukey", s.PushUserKey.Reveal())
			assert.Equal(t, tc.token, s.PushAPIToken.Reveal())
			assert.True(t, s.EmailEnabled, "email settings survive a bad push token")
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, s.PushCredentialErr, tc.wantErr)
			case tc.token == "" && tc.stored != "":
				assert.ErrorContains(t, s.PushCredentialErr, "open push token")
			default:
				assert.NoError(t, s.PushCredentialErr)
			}
		})
	}
}
