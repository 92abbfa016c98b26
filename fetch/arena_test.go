package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quay/zlog"

	"github.com/sdkforge/sdkforge"
)

var testPayload = []byte("pretend this is a toolchain tarball")

func payloadChecksums() sdkforge.Checksums {
	sum := sha256.Sum256(testPayload)
	return sdkforge.Checksums{sdkforge.SHA256: hex.EncodeToString(sum[:])}
}

func testDistfile() *sdkforge.Distfile {
	return &sdkforge.Distfile{
		Name:      "sdk-1.0.0.tar.xz",
		Size:      int64(len(testPayload)),
		Checksums: payloadChecksums(),
	}
}

func mirrorSnapshot(t testing.TB, baseURL string, messages sdkforge.MessageStore) *sdkforge.Snapshot {
	t.Helper()
	cfg := sdkforge.RepoConfig{
		Mirrors: []sdkforge.Mirror{
			{ID: sdkforge.MirrorIDDist, URLs: []string{baseURL}},
		},
	}
	snap, err := sdkforge.NewSnapshot(cfg, nil, nil, messages)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestFetch(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(testPayload)
	}))
	defer srv.Close()
	snap := mirrorSnapshot(t, srv.URL, nil)

	a, err := NewArena(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d := testDistfile()
	path, err := a.Fetch(ctx, snap, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(testPayload) {
		t.Error("payload mismatch")
	}

	// A second call is served from the arena without traffic.
	if _, err := a.Fetch(ctx, snap, d); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("got: %d requests, want: 1", n)
	}
}

func TestFetchCoalesced(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Write(testPayload)
	}))
	defer srv.Close()
	snap := mirrorSnapshot(t, srv.URL, nil)

	a, err := NewArena(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = a.Fetch(ctx, snap, testDistfile())
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("got: %d requests, want: 1", n)
	}
}

func TestFetchCorrupt(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not the declared bytes, same length"))
	}))
	defer srv.Close()
	snap := mirrorSnapshot(t, srv.URL, nil)

	a, err := NewArena(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d := testDistfile()
	if _, err := a.Fetch(ctx, snap, d); err == nil {
		t.Fatal("got: nil, want: fetch failure")
	}
	// Nothing may appear under the final name.
	if _, err := os.Stat(a.Path(d)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got: %v, want: not exist", err)
	}
}

func TestFetchRestricted(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	messages := sdkforge.MessageStore{
		"dist.manual": {
			"en": "download ${file} from the vendor portal and place it at ${dest_path}",
		},
	}
	snap := mirrorSnapshot(t, "https://unused.example.org", messages)

	a, err := NewArena(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d := testDistfile()
	d.Restrict = []string{sdkforge.RestrictFetch}
	d.FetchInstruction = &sdkforge.FetchInstruction{
		MsgID:  "dist.manual",
		Params: map[string]string{"file": d.Name},
	}
	_, err = a.Fetch(ctx, snap, d)
	if !errors.Is(err, sdkforge.ErrFetchRestricted) {
		t.Fatalf("got: %v, want kind %q", err, sdkforge.ErrFetchRestricted)
	}
	for _, want := range []string{"vendor portal", d.Name, a.Path(d)} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestFetchResume(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	half := len(testPayload) / 2
	var sawRange atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rg := r.Header.Get("Range"); rg != "" {
			sawRange.Store(rg)
			w.WriteHeader(http.StatusPartialContent)
			w.Write(testPayload[half:])
			return
		}
		w.Write(testPayload)
	}))
	defer srv.Close()
	snap := mirrorSnapshot(t, srv.URL, nil)

	dir := t.TempDir()
	a, err := NewArena(dir)
	if err != nil {
		t.Fatal(err)
	}
	d := testDistfile()
	if err := os.WriteFile(a.Path(d)+partSuffix, testPayload[:half], 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := a.Fetch(ctx, snap, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(testPayload) {
		t.Error("payload mismatch after resume")
	}
	if rg, _ := sawRange.Load().(string); rg != "bytes=17-" {
		t.Errorf("got range %q, want: \"bytes=17-\"", rg)
	}
}

func TestFetchNoCandidates(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	snap, err := sdkforge.NewSnapshot(sdkforge.RepoConfig{}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewArena(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d := testDistfile()
	d.Restrict = []string{sdkforge.RestrictMirror}
	if _, err := a.Fetch(ctx, snap, d); err == nil {
		t.Error("got: nil, want: no-candidates failure")
	}
}
