// internal/lavalink/rest.go
package lavalink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/davrbx/basslink/pkg/retrylimit"
)

// DefaultRestTimeout bounds every REST call.
const DefaultRestTimeout = 30 * time.Second

// restClient issues stateless HTTP requests against one node's /v4 API.
// Generation bookkeeping lives on the Node; see the Node wrappers below.
type restClient struct {
	base     string
	password string
	http     *http.Client
	codec    Codec
	limiter  *retrylimit.AdaptiveLimiter
	timeout  time.Duration
}

func newRestClient(cfg NodeConfig, codec Codec, timeout time.Duration) *restClient {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	if timeout <= 0 {
		timeout = DefaultRestTimeout
	}
	return &restClient{
		base:     scheme + "://" + cfg.Address + "/v4",
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		codec:    codec,
		limiter:  retrylimit.NewAdaptiveLimiter(10, 1, 50, 1, 0.5),
		timeout:  timeout,
	}
}

// do performs one request and decodes the response into out (when non-nil).
// Non-2xx responses are parsed into a RemoteError.
func (r *restClient) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := r.codec.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", r.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	trace := uuid.NewString()

	resp, err := r.http.Do(req)
	if err != nil {
		r.limiter.RateLimited()
		return fmt.Errorf("lavalink request %s %s (trace %s): %w", method, path, trace, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response (trace %s): %w", trace, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			r.limiter.RateLimited()
		}
		var remote ErrorResponse
		if err := r.codec.Unmarshal(data, &remote); err != nil || remote.Status == 0 {
			remote = ErrorResponse{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Path: path}
		}
		log.Printf("[WARN] Lavalink rejected %s %s (trace %s): %d %s", method, path, trace, remote.Status, remote.Message)
		return &RemoteError{Status: remote.Status, Message: remote.Message, Path: remote.Path}
	}

	r.limiter.Success()

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := r.codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response (trace %s): %w", trace, err)
	}
	return nil
}

// StatusCode lets retrylimit classify remote errors.
func (e *RemoteError) StatusCode() int { return e.Status }

// LoadTracks resolves a query or URL into an ordered track list.
// Search results and playlists are flattened; an empty result is (nil, nil);
// a loadType of "error" becomes a *LoadError.
func (n *Node) LoadTracks(ctx context.Context, identifier string) ([]Track, error) {
	gen := n.Generation()

	var result LoadResult
	path := "/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := n.rest.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if gen != n.Generation() {
		return nil, ErrStaleResponse
	}

	switch result.LoadType {
	case LoadTrack:
		var track Track
		if err := n.codec.Unmarshal(result.Data, &track); err != nil {
			return nil, fmt.Errorf("decode track payload: %w", err)
		}
		return []Track{track}, nil
	case LoadPlaylist:
		var playlist Playlist
		if err := n.codec.Unmarshal(result.Data, &playlist); err != nil {
			return nil, fmt.Errorf("decode playlist payload: %w", err)
		}
		return playlist.Tracks, nil
	case LoadSearch:
		var tracks []Track
		if err := n.codec.Unmarshal(result.Data, &tracks); err != nil {
			return nil, fmt.Errorf("decode search payload: %w", err)
		}
		return tracks, nil
	case LoadEmpty:
		return nil, nil
	case LoadTypeError:
		var exc Exception
		if err := n.codec.Unmarshal(result.Data, &exc); err != nil {
			return nil, fmt.Errorf("decode load error payload: %w", err)
		}
		return nil, &LoadError{Exception: exc}
	default:
		return nil, fmt.Errorf("unknown load type %q", result.LoadType)
	}
}

// UpdatePlayer creates or patches the remote player for a guild and returns
// the acknowledged snapshot. A response that outlived its node generation is
// discarded as ErrStaleResponse.
func (n *Node) UpdatePlayer(ctx context.Context, guildID string, update *UpdatePlayer, noReplace bool) (*Player, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return nil, ErrNoSessionID
	}
	gen := n.Generation()

	path := fmt.Sprintf("/sessions/%s/players/%s?noReplace=%t", sessionID, guildID, noReplace)
	var player Player
	if err := n.rest.do(ctx, http.MethodPatch, path, update, &player); err != nil {
		return nil, err
	}
	if gen != n.Generation() {
		return nil, ErrStaleResponse
	}
	return &player, nil
}

// DestroyPlayer tears down the remote player for a guild. Best-effort: the
// node reaps players on voice disconnect regardless.
func (n *Node) DestroyPlayer(ctx context.Context, guildID string) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return ErrNoSessionID
	}
	path := fmt.Sprintf("/sessions/%s/players/%s", sessionID, guildID)
	return n.rest.do(ctx, http.MethodDelete, path, nil, nil)
}

// FetchStats pulls a load snapshot outside the socket's unsolicited delivery.
func (n *Node) FetchStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := n.rest.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// DecodeTrack resolves an encoded track handle back into its metadata.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (*Track, error) {
	var track Track
	path := "/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	if err := n.rest.do(ctx, http.MethodGet, path, nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// Version reports the node's Lavalink version string.
func (n *Node) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.rest.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.rest.base[:len(n.rest.base)-3]+"/version", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", n.rest.password)
	resp, err := n.rest.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
