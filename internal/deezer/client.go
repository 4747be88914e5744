// Package deezer resolves track IDs against the public Deezer API into
// playable asset references.
package deezer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jacbz/lisztnup/internal/audio"
)

// DefaultBaseURL is the public Deezer API endpoint.
const DefaultBaseURL = "https://api.deezer.com"

// resolveConcurrency bounds parallel track lookups in a batch resolve.
const resolveConcurrency = 4

// Client communicates with the Deezer REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Deezer API client. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "deezer").Logger(),
	}
}

type trackResp struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
	Artist  struct {
		Name string `json:"name"`
	} `json:"artist"`
	Contributors []struct {
		Name string `json:"name"`
	} `json:"contributors"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Track resolves one track ID. A track the API reports as nonexistent, or
// one whose preview has been withdrawn, yields audio.ErrMissingAsset; API
// and transport failures yield audio.ErrNetwork.
func (c *Client) Track(ctx context.Context, id string) (audio.AssetReference, error) {
	var ref audio.AssetReference

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/track/"+id, nil)
	if err != nil {
		return ref, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ref, fmt.Errorf("%w: track %s: %v", audio.ErrNetwork, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ref, fmt.Errorf("%w: track %s: status %d", audio.ErrNetwork, id, resp.StatusCode)
	}

	var body trackResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ref, fmt.Errorf("%w: track %s: decode: %v", audio.ErrNetwork, id, err)
	}

	if body.Error != nil {
		// DataException means the track ID itself is gone; anything else
		// (quota, OAuth, service trouble) is worth retrying later.
		if body.Error.Type == "DataException" {
			return ref, fmt.Errorf("%w: track %s: %s", audio.ErrMissingAsset, id, body.Error.Message)
		}
		return ref, fmt.Errorf("%w: track %s: %s (%s)", audio.ErrNetwork, id, body.Error.Message, body.Error.Type)
	}
	if body.Preview == "" {
		return ref, fmt.Errorf("%w: track %s: no preview available", audio.ErrMissingAsset, id)
	}

	ref = audio.AssetReference{
		ID:         id,
		PreviewURL: body.Preview,
		Title:      body.Title,
		Artist:     body.Artist.Name,
	}
	for _, con := range body.Contributors {
		if con.Name != "" && con.Name != ref.Artist {
			ref.Contributors = append(ref.Contributors, con.Name)
		}
	}
	return ref, nil
}

// Tracks resolves a batch of IDs concurrently, preserving input order.
// Tracks with missing assets are skipped with a warning; any other failure
// aborts the batch.
func (c *Client) Tracks(ctx context.Context, ids []string) ([]audio.AssetReference, error) {
	refs := make([]audio.AssetReference, len(ids))
	ok := make([]bool, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			ref, err := c.Track(ctx, id)
			if err != nil {
				if errors.Is(err, audio.ErrMissingAsset) {
					c.log.Warn().Str("track", id).Err(err).Msg("skipping unavailable track")
					return nil
				}
				return err
			}
			refs[i] = ref
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := refs[:0]
	for i, ref := range refs {
		if ok[i] {
			out = append(out, ref)
		}
	}
	return out, nil
}
