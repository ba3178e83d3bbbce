package migrate

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSource_ReadsEmbeddedUsersMigration(t *testing.T) {
	src, err := newSource()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	first, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	up, ident, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	require.Equal(t, "create_users", ident)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	require.Contains(t, string(body), "users_username_key")
	require.Contains(t, string(body), "users_email_key")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	_ = down.Close()
}
