package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcess(t *testing.T) {
	// Default config
	settings, err := Process([]string{})
	require.NoError(t, err)
	require.Equal(t, 300, settings.Game.RoundSeconds)

	dir := t.TempDir()

	// Single file overriding the port
	{
		path := filepath.Join(dir, "config.yaml")
		err = os.WriteFile(path, []byte(`
ingress:
  web:
    port: 1234
`), 0644)
		require.NoError(t, err)
		settings, err = Process([]string{path})
		require.NoError(t, err)
		require.Equal(t, 1234, settings.Ingress.Web.Port)
		// Untouched sections keep their defaults
		require.Equal(t, 5, settings.Game.CountdownSeconds)
	}

	// Later files win
	{
		first := filepath.Join(dir, "first.yaml")
		err = os.WriteFile(first, []byte(`
game:
  roundSeconds: 60
`), 0644)
		require.NoError(t, err)

		second := filepath.Join(dir, "second.yaml")
		err = os.WriteFile(second, []byte(`
game:
  roundSeconds: 120
`), 0644)
		require.NoError(t, err)

		settings, err = Process([]string{first, second})
		require.NoError(t, err)
		require.Equal(t, 120, settings.Game.RoundSeconds)
	}

	// Invalid values are rejected
	{
		path := filepath.Join(dir, "broken.yaml")
		err = os.WriteFile(path, []byte(`
game:
  roundSeconds: -1
`), 0644)
		require.NoError(t, err)
		_, err = Process([]string{path})
		require.Error(t, err)
	}

	// Missing file
	_, err = Process([]string{filepath.Join(dir, "nope.yaml")})
	require.Error(t, err)
}
