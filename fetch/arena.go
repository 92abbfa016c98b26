// Package fetch downloads distfiles into a shared on-disk arena.
//
// An Arena is safe for concurrent use. Concurrent requests for the same
// distfile are coalesced onto a single transfer, and a file only appears
// under its final name after its declared checksums have been verified,
// so a path returned from Fetch always names a verified artifact.
// Interrupted transfers leave a ".part" file behind and are resumed with
// HTTP range requests on the next attempt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/sdkforge/sdkforge"
	"github.com/sdkforge/sdkforge/integrity"
)

const (
	defaultConcurrency = 4
	defaultRetries     = 3

	// partSuffix marks an in-progress download. The suffix is
	// deterministic, not random, so a later run can find and resume it.
	partSuffix = ".part"
)

// Option configures an Arena.
type Option func(*Arena)

// WithClient sets the http.Client used for transfers.
func WithClient(c *http.Client) Option {
	return func(a *Arena) { a.client = c }
}

// WithConcurrency bounds the number of simultaneous transfers.
func WithConcurrency(n int64) Option {
	return func(a *Arena) { a.sem = semaphore.NewWeighted(n) }
}

// WithRetries sets the number of attempts made per candidate URL.
func WithRetries(n int) Option {
	return func(a *Arena) { a.retries = n }
}

// Arena fetches distfiles into a directory keyed by distfile name.
type Arena struct {
	client  *http.Client
	root    string
	sf      singleflight.Group
	sem     *semaphore.Weighted
	retries int
}

// NewArena returns an Arena rooted at dir, creating it if needed.
func NewArena(dir string, opts ...Option) (*Arena, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	a := &Arena{
		client:  http.DefaultClient,
		root:    dir,
		sem:     semaphore.NewWeighted(defaultConcurrency),
		retries: defaultRetries,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Path reports where the named distfile lives once fetched.
func (a *Arena) Path(d *sdkforge.Distfile) string {
	return filepath.Join(a.root, d.Name)
}

// Fetch ensures the distfile is present and verified in the arena and
// returns its path. Fetch-restricted distfiles fail immediately with the
// repository's rendered instruction message.
func (a *Arena) Fetch(ctx context.Context, snap *sdkforge.Snapshot, d *sdkforge.Distfile) (string, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch/Arena.Fetch", "distfile", d.Name)
	dest := a.Path(d)
	if d.Restricted(sdkforge.RestrictFetch) {
		msg := "fetching is restricted for this distfile"
		if fi := d.FetchInstruction; fi != nil {
			params := make(map[string]string, len(fi.Params)+1)
			for k, v := range fi.Params {
				params[k] = v
			}
			params["dest_path"] = dest
			if r := snap.Messages().Render(fi.MsgID, sdkforge.DefaultLang, params); r != "" {
				msg = r
			}
		}
		return "", &sdkforge.Error{
			Op:      `fetch: Arena.Fetch`,
			Kind:    sdkforge.ErrFetchRestricted,
			Message: msg,
		}
	}

	ch := a.sf.DoChan(d.Name, func() (interface{}, error) {
		start := time.Now()
		err := a.realize(ctx, snap, d, dest)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		fetchCounter.WithLabelValues(outcome).Inc()
		fetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		return dest, err
	})
	select {
	case res := <-ch:
		if res.Shared {
			fetchDedupCounter.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// realize makes dest exist with verified contents, downloading if needed.
func (a *Arena) realize(ctx context.Context, snap *sdkforge.Snapshot, d *sdkforge.Distfile, dest string) error {
	size := d.Size

	switch err := integrity.VerifyFile(dest, size, d.Checksums); {
	case err == nil:
		zlog.Debug(ctx).Msg("distfile already present and verified")
		return nil
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, sdkforge.ErrIntegrity):
		// A final-named file should only ever hold verified bytes;
		// anything else is cruft from an older layout.
		zlog.Warn(ctx).Msg("removing corrupt cached distfile")
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
	default:
		return err
	}

	urls := snap.DistfileURLs(ctx, d)
	if len(urls) == 0 {
		return fmt.Errorf("fetch: no usable URLs for distfile %q", d.Name)
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer a.sem.Release(1)

	part := dest + partSuffix
	var tried []string
	for _, u := range urls {
		tried = append(tried, u)
		for attempt := 1; attempt <= a.retries; attempt++ {
			err := a.attempt(ctx, u, part, size, d.Checksums)
			if err == nil {
				return os.Rename(part, dest)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zlog.Info(ctx).
				Str("url", u).
				Int("attempt", attempt).
				Err(err).
				Msg("distfile fetch attempt failed")
			if errors.Is(err, sdkforge.ErrIntegrity) {
				// The partial is poisoned; do not resume from it.
				os.Remove(part)
				break
			}
		}
	}
	return fmt.Errorf("fetch: all candidate URLs failed for %q (tried %s)",
		d.Name, strings.Join(tried, ", "))
}

// attempt downloads u into part, resuming from whatever is already there,
// then verifies the completed file in place.
func (a *Arena) attempt(ctx context.Context, u, part string, size int64, sums sdkforge.Checksums) error {
	var offset int64
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}
	if size <= 0 || offset < size {
		if err := a.download(ctx, u, part, offset); err != nil {
			return err
		}
	}
	return integrity.VerifyFile(part, size, sums)
}

func (a *Arena) download(ctx context.Context, u, part string, offset int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer f.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range request; start over.
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
	case http.StatusPartialContent:
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
	default:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("fetch: %s responded %s: %q", u, resp.Status, excerpt)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return f.Sync()
}
