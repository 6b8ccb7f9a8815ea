package tiles

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/utils"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "13/1650/3110", Key(maptile.New(1650, 3110, 13)))
}

func TestHTTPLoaderURL(t *testing.T) {
	l := NewHTTPLoader(nil, "https://tiles.example.com/outdoor/{z}/{x}/{y}.png?key=abc")
	assert.Equal(t, "https://tiles.example.com/outdoor/13/1650/3110.png?key=abc", l.URL(maptile.New(1650, 3110, 13)))
}

func TestHTTPLoaderLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1/0/0.png":
			w.Write([]byte("tile-body"))
		case "/1/1/0.png":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	l := NewHTTPLoader(utils.NewHTTPClient(utils.HTTPClientConfig{}), srv.URL+"/{z}/{x}/{y}.png")
	ctx := context.Background()

	data, err := l.Load(ctx, maptile.New(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "tile-body", string(data))

	_, err = l.Load(ctx, maptile.New(1, 0, 1))
	var perm *PermanentError
	require.True(t, errors.As(err, &perm))
	assert.Equal(t, "server returned 404", offline.FailureReason(perm.ResourceError))

	_, err = l.Load(ctx, maptile.New(1, 1, 1))
	require.Error(t, err)
	assert.False(t, errors.As(err, &perm))
	assert.Equal(t, "server returned 503", offline.FailureReason(err))
}
