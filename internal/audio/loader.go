package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bogem/id3v2"
	"github.com/rs/zerolog"
)

// DefaultFetchTimeout bounds a single preview fetch.
const DefaultFetchTimeout = 10 * time.Second

// Loader fetches a remote preview asset and decodes it. Single-flight
// semantics (a new load superseding a prior in-flight one) are enforced by
// the owning session via context cancellation; the loader itself is
// stateless and safe for concurrent use.
type Loader struct {
	client  *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewLoader creates a Loader. A nil client falls back to a default client;
// a zero timeout falls back to DefaultFetchTimeout.
func NewLoader(client *http.Client, timeout time.Duration, log zerolog.Logger) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Loader{
		client:  client,
		timeout: timeout,
		log:     log.With().Str("component", "loader").Logger(),
	}
}

// Load fetches ref's preview URL and decodes it to a Buffer. The returned
// reference is ref with empty display fields filled from the asset's ID3
// tag when one is present. On failure the error wraps exactly one of
// ErrNetwork, ErrMissingAsset, ErrDecode or ErrTimeout, and no buffer is
// returned.
func (l *Loader) Load(ctx context.Context, ref AssetReference) (*Buffer, AssetReference, error) {
	if ref.PreviewURL == "" {
		return nil, ref, fmt.Errorf("%w: track %s has no preview URL", ErrMissingAsset, ref.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	data, err := l.fetch(ctx, ref.PreviewURL)
	if err != nil {
		return nil, ref, err
	}

	buf, err := Decode(data)
	if err != nil {
		return nil, ref, err
	}

	ref = fillFromID3(ref, data)

	l.log.Debug().
		Str("track", ref.ID).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Dur("duration", buf.Duration()).
		Int("rate", buf.Rate()).
		Msg("preview loaded")
	return buf, ref, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: status %d", ErrMissingAsset, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPreviewBytes))
	if err != nil {
		return nil, classifyFetchErr(ctx, err)
	}
	return data, nil
}

// classifyFetchErr separates timeouts from transport failures. The request
// context carries only the fetch deadline, so a deadline error here always
// means the bound was exceeded.
func classifyFetchErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// fillFromID3 fills empty display fields from the asset's own ID3v2 tag.
// Metadata endpoints occasionally omit titles for licensing reasons; the
// embedded tag is the only other source available client-side.
func fillFromID3(ref AssetReference, data []byte) AssetReference {
	if ref.Title != "" && ref.Artist != "" {
		return ref
	}
	if !bytes.HasPrefix(data, []byte("ID3")) {
		return ref
	}
	tag, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
	if err != nil {
		return ref
	}
	if ref.Title == "" {
		ref.Title = tag.Title()
	}
	if ref.Artist == "" {
		ref.Artist = tag.Artist()
	}
	return ref
}
