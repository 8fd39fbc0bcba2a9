package source

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eak1mov/go-mapview/tile"
)

// HTTP reads tiles from a remote XYZ endpoint addressed by a URL
// template like "https://tile.example.com/{z}/{x}/{y}.png".
type HTTP struct {
	urlPattern string
	client     *http.Client
}

type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client, e.g. to tune timeouts or
// add a caching transport.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// NewHTTP creates an HTTP reader for the given URL template. The
// template must contain all of the {x}, {y} and {z} placeholders.
func NewHTTP(urlPattern string, opts ...HTTPOption) (*HTTP, error) {
	if err := validatePattern(urlPattern); err != nil {
		return nil, err
	}
	h := &HTTP{
		urlPattern: urlPattern,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// URL returns the request URL for one tile.
func (h *HTTP) URL(coord tile.Coord) string {
	return formatPattern(h.urlPattern, coord)
}

// ReadTile fetches one tile. 404 and 204 responses count as a missing
// tile and return an empty slice; other non-2xx statuses are errors.
func (h *HTTP) ReadTile(coord tile.Coord) ([]byte, error) {
	resp, err := h.client.Get(h.URL(coord))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		io.Copy(io.Discard, resp.Body)
		return make([]byte, 0), nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("mapview: tile request failed: %v", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
