package signedurl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"program-chat-service/internal/retry"
)

type fakeSigner struct {
	url   string
	err   error
	calls int32
}

func (f *fakeSigner) SignedURL(ctx context.Context, storagePath string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.url, f.err
}

type fakePresigner struct {
	url   string
	err   error
	calls int32
}

func (f *fakePresigner) PresignGet(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.url, f.err
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1}
}

func TestResolvePrefersMediator(t *testing.T) {
	signer := &fakeSigner{url: "https://signed.example/u"}
	fallback := &fakePresigner{url: "https://direct.example/u"}
	r := NewResolver(signer, fallback, fastPolicy(), time.Minute)

	url := r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	assert.Equal(t, "https://signed.example/u", url)
	assert.EqualValues(t, 0, fallback.calls)
}

func TestResolveFallsBackToDirectRead(t *testing.T) {
	signer := &fakeSigner{err: errors.New("mediator down")}
	fallback := &fakePresigner{url: "https://direct.example/u"}
	r := NewResolver(signer, fallback, fastPolicy(), time.Minute)

	url := r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	assert.Equal(t, "https://direct.example/u", url)
}

func TestResolveExhaustsAndReturnsEmpty(t *testing.T) {
	signer := &fakeSigner{err: errors.New("mediator down")}
	fallback := &fakePresigner{err: errors.New("store down")}
	r := NewResolver(signer, fallback, fastPolicy(), time.Minute)

	url := r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	assert.Equal(t, "", url)
	assert.EqualValues(t, 3, signer.calls)
	assert.EqualValues(t, 3, fallback.calls)
}

func TestResolveCachesByPath(t *testing.T) {
	signer := &fakeSigner{url: "https://signed.example/u"}
	r := NewResolver(signer, nil, fastPolicy(), time.Minute)

	first := r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	second := r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, signer.calls)
}

func TestResolveInvalidateForcesRefresh(t *testing.T) {
	signer := &fakeSigner{url: "https://signed.example/u"}
	r := NewResolver(signer, nil, fastPolicy(), time.Minute)

	r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	r.Invalidate("chat-media/c1/a/1.jpg")
	r.Resolve(context.Background(), "chat-media/c1/a/1.jpg")
	assert.EqualValues(t, 2, signer.calls)
}

func TestResolveRejectsPathsOutsideMediaRoot(t *testing.T) {
	signer := &fakeSigner{url: "https://signed.example/u"}
	r := NewResolver(signer, nil, fastPolicy(), time.Minute)

	assert.Equal(t, "", r.Resolve(context.Background(), "secrets/app.key"))
	assert.EqualValues(t, 0, signer.calls)
}

func TestClientSignedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sign", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://signed.example/abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	url, err := c.SignedURL(context.Background(), "chat-media/c1/a/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/abc", url)
}

func TestClientSignedURLForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SignedURL(context.Background(), "chat-media/c1/a/1.jpg")
	require.Error(t, err)
}

func TestClientUnconfigured(t *testing.T) {
	c := NewClient("")
	_, err := c.SignedURL(context.Background(), "chat-media/c1/a/1.jpg")
	require.Error(t, err)
}
