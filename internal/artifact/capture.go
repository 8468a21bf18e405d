// Package artifact captures a rendering of the block page served to a
// rejected client and stores it for the audit trail. Capture is strictly
// best-effort: a failure is reported in the Result, logged, and never
// propagated to the decision path.
package artifact

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cespare/xxhash"
	"github.com/golang/snappy"
)

// maxCaptureBytes bounds how much of the page body is kept.
const maxCaptureBytes = 2 * 1024 * 1024

// Result is the explicit outcome of a capture attempt. Key is empty when
// nothing was stored; Err explains why, or is nil when capture was simply
// disabled.
type Result struct {
	Key string
	Err error
}

// Ok reports whether an artifact was stored.
func (r Result) Ok() bool {
	return r.Key != "" && r.Err == nil
}

// Capturer fetches block pages over HTTP and stores them snappy-compressed
// in an object store.
type Capturer struct {
	enabled bool
	store   ObjectStore
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

func NewCapturer(enabled bool, store ObjectStore, timeout time.Duration) *Capturer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Capturer{
		enabled: enabled,
		store:   store,
		client:  &http.Client{},
		timeout: timeout,
		now:     time.Now,
	}
}

// CaptureBlockPage fetches blockURL and stores the compressed body under a
// key derived from the site, the client and a content hash. It never
// panics and never returns an error by any path other than the Result.
func (c *Capturer) CaptureBlockPage(ctx context.Context, site, clientIP, reason, blockURL string) Result {
	if !c.enabled || c.store == nil {
		log.Println("artifact: capture is disabled")
		return Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blockURL, nil)
	if err != nil {
		log.Printf("artifact: failed to create request for %s: %v", blockURL, err)
		return Result{Err: err}
	}
	req.Header.Set("X-Capture-Reason", reason)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("artifact: failed to fetch %s: %v", blockURL, err)
		return Result{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptureBytes))
	if err != nil {
		log.Printf("artifact: failed to read body of %s: %v", blockURL, err)
		return Result{Err: err}
	}

	return c.CaptureServed(site, clientIP, body)
}

// CaptureServed stores a block page body the caller already rendered.
// It is the storage half of CaptureBlockPage and obeys the same enable
// switch.
func (c *Capturer) CaptureServed(site, clientIP string, body []byte) Result {
	if !c.enabled || c.store == nil {
		return Result{}
	}

	if len(body) > maxCaptureBytes {
		body = body[:maxCaptureBytes]
	}

	key := c.key(site, clientIP, body)
	if err := c.store.Put(key, snappy.Encode(nil, body)); err != nil {
		log.Printf("artifact: failed to store capture %s: %v", key, err)
		return Result{Err: err}
	}

	return Result{Key: key}
}

// Fetch returns a previously stored capture, decompressed.
func (c *Capturer) Fetch(key string) ([]byte, error) {
	if c.store == nil {
		return nil, fmt.Errorf("no artifact store configured")
	}
	compressed, err := c.store.Get(key)
	if err != nil {
		return nil, err
	}
	return snappy.Decode(nil, compressed)
}

func (c *Capturer) key(site, clientIP string, body []byte) string {
	sum := xxhash.Sum64(body) ^ xxhash.Sum64String(c.now().UTC().Format(time.RFC3339Nano))
	return fmt.Sprintf("captures/%s_%s_%08x.html.sz", site, clientIP, sum)
}
