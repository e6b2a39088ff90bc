/*
Package frame implements C3, the Frame Source Adapter: fetch_frame(source_uri,
deadline) for the URI schemes named in §4.3. Grounded on AKJUS-bsc-erigon's
use of spf13/afero for filesystem abstraction (so tests mount an in-memory
FS instead of touching disk) and on the teacher gateway's provider.go for
the http.Client-with-context GET pattern.
*/
package frame

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

const component = "frame"

// Frame is one fetched image with its adapter-assigned sequence number.
type Frame struct {
	Bytes      []byte
	FrameIndex int64
	Timestamp  time.Time
}

// Source fetches frames from a single video source URI. One Source is
// created per Camera; its FrameIndex counter is monotonic for the life of
// the Source (§4.3: "frame-index = monotonic counter per camera").
type Source struct {
	uri        string
	fs         afero.Fs
	httpClient *http.Client

	mu        sync.Mutex
	nextIndex int64
}

// NewSource builds a Source for sourceURI. fs is the filesystem used for
// file:// and bare-path sources; pass afero.NewOsFs() in production and
// afero.NewMemMapFs() in tests.
func NewSource(sourceURI string, fs afero.Fs) *Source {
	return &Source{
		uri:        sourceURI,
		fs:         fs,
		httpClient: &http.Client{},
	}
}

// Fetch retrieves the next frame, honoring ctx's deadline. Failures are
// returned as *domain.Error of kind Degraded (Unreachable/Timeout/Decode
// map to the component's degraded-camera isolation, per §4.3: "C6
// handles").
func (s *Source) Fetch(ctx context.Context) (*Frame, error) {
	u, err := url.Parse(s.uri)
	if err != nil || u.Scheme == "" {
		return s.fetchFile(ctx, s.uri)
	}

	switch u.Scheme {
	case "file":
		return s.fetchFile(ctx, u.Path)
	case "http", "https":
		return s.fetchHTTP(ctx)
	case "rtsp":
		return nil, domain.Degraded(component, "rtsp source unsupported by this core", nil)
	default:
		return nil, domain.Degraded(component, "unsupported source scheme: "+u.Scheme, nil)
	}
}

func (s *Source) fetchFile(ctx context.Context, path string) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, domain.Degraded(component, "deadline exceeded before file read", ctx.Err())
	default:
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, domain.Degraded(component, "unreachable file source: "+path, err)
	}
	return &Frame{Bytes: data, FrameIndex: s.advance(), Timestamp: time.Now().UTC()}, nil
}

func (s *Source) fetchHTTP(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.uri, nil)
	if err != nil {
		return nil, domain.Degraded(component, "invalid http source uri", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.Degraded(component, "timeout fetching http frame", err)
		}
		return nil, domain.Degraded(component, "unreachable http source", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Degraded(component, fmt.Sprintf("http source returned %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Degraded(component, "decode error reading http frame body", err)
	}
	if !looksLikeImage(data) {
		return nil, domain.Degraded(component, "decode error: body is not jpeg/png", nil)
	}
	return &Frame{Bytes: data, FrameIndex: s.advance(), Timestamp: time.Now().UTC()}, nil
}

func (s *Source) advance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.nextIndex
	s.nextIndex++
	return idx
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
)

func looksLikeImage(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return strings.HasPrefix(string(data), string(jpegMagic)) || strings.HasPrefix(string(data), string(pngMagic))
}
