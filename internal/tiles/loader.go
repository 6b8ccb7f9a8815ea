package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/utils"
)

// Key returns the z/x/y path of a tile.
func Key(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Loader fetches the body of a single tile.
type Loader interface {
	Load(ctx context.Context, t maptile.Tile) ([]byte, error)
}

// PermanentError marks a tile failure that retrying cannot fix.
type PermanentError struct {
	*offline.ResourceError
}

func (e *PermanentError) Unwrap() error {
	return e.ResourceError
}

type HTTPLoader struct {
	client   utils.HTTPDoer
	template string
}

// NewHTTPLoader builds a loader for a source URL carrying {z}, {x} and {y}
// placeholders.
func NewHTTPLoader(client utils.HTTPDoer, sourceURL string) *HTTPLoader {
	return &HTTPLoader{client: client, template: sourceURL}
}

func (l *HTTPLoader) URL(t maptile.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(int(t.Z)),
		"{x}", strconv.Itoa(int(t.X)),
		"{y}", strconv.Itoa(int(t.Y)),
	)
	return r.Replace(l.template)
}

func (l *HTTPLoader) Load(ctx context.Context, t maptile.Tile) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL(t), nil)
	if err != nil {
		return nil, &PermanentError{&offline.ResourceError{Resource: Key(t), Reason: "invalid tile URL", Err: err}}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &offline.ResourceError{Resource: Key(t), Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		rerr := &offline.ResourceError{
			Resource: Key(t),
			Reason:   fmt.Sprintf("server returned %d", resp.StatusCode),
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &PermanentError{rerr}
		}
		return nil, rerr
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &offline.ResourceError{Resource: Key(t), Reason: "error reading body", Err: err}
	}
	return data, nil
}
