package engines

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-odds/internal/weather"
)

func TestStaticCredentials(t *testing.T) {
	c, err := StaticCredentials{Static: Credentials{Token: "tok"}}.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "tok", c.Token)

	_, err = StaticCredentials{Static: Credentials{Username: "only-user"}}.Credentials()
	assert.ErrorIs(t, err, weather.ErrCredentialsMissing)
	assert.ErrorIs(t, err, weather.ErrDataUnavailable)
}

func TestStaticCredentials_Netrc(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".netrc")
	content := "# comment\nmachine example.com login other password nope\n" +
		"machine urs.earthdata.nasa.gov\n  login alice\n  password s3cret\n" +
		"machine third.example login x password y\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := StaticCredentials{NetrcPath: path}.Credentials()
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "alice", Password: "s3cret"}, c)

	_, err = StaticCredentials{NetrcPath: filepath.Join(t.TempDir(), "missing")}.Credentials()
	assert.ErrorIs(t, err, weather.ErrCredentialsMissing)
}

func TestCredentials_Apply(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)
	Credentials{Token: "tok", Username: "u", Password: "p"}.Apply(req)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))

	req, err = http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)
	Credentials{Username: "u", Password: "p"}.Apply(req)
	user, pass, ok := req.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}
