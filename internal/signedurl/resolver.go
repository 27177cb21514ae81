// Package signedurl turns storage paths into short-lived viewable URLs. The
// external mediator re-checks chat membership before signing; it is the
// access-control point for media, and the direct store presign is only a
// fallback for mediator outages.
package signedurl

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"program-chat-service/internal/blob"
	"program-chat-service/internal/retry"
)

// Signer is the mediator collaborator: storagePath in, time-boxed URL out.
type Signer interface {
	SignedURL(ctx context.Context, storagePath string) (string, error)
}

// Presigner is the direct-read fallback, implemented by the blob uploader.
type Presigner interface {
	PresignGet(ctx context.Context, storagePath string, ttl time.Duration) (string, error)
}

// Resolver resolves and caches signed URLs for one feed session. Entries are
// never proactively expired; consumers call Invalidate after a failed load
// and re-resolve.
type Resolver struct {
	signer    Signer
	presigner Presigner
	policy    retry.Policy
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver builds a Resolver. presigner may be nil, which disables the
// fallback path.
func NewResolver(signer Signer, presigner Presigner, policy retry.Policy, ttl time.Duration) *Resolver {
	return &Resolver{
		signer:    signer,
		presigner: presigner,
		policy:    policy,
		ttl:       ttl,
		cache:     make(map[string]string),
	}
}

// Resolve returns a viewable URL for the storage path, or "" when every
// attempt failed. Callers must treat "" as "media temporarily unavailable",
// not as an error: resolution failures never interrupt feed rendering.
func (r *Resolver) Resolve(ctx context.Context, storagePath string) string {
	if !strings.HasPrefix(storagePath, blob.MediaRoot+"/") {
		return ""
	}

	r.mu.Lock()
	if url, ok := r.cache[storagePath]; ok {
		r.mu.Unlock()
		return url
	}
	r.mu.Unlock()

	ctx, span := otel.Tracer("program-chat-service/signedurl").Start(ctx, "resolve")
	span.SetAttributes(attribute.String("storage_path", storagePath))
	defer span.End()

	var url string
	err := r.policy.Do(ctx, func() error {
		var attemptErr error
		url, attemptErr = r.signer.SignedURL(ctx, storagePath)
		if attemptErr == nil && url != "" {
			return nil
		}
		if r.presigner != nil {
			url, attemptErr = r.presigner.PresignGet(ctx, storagePath, r.ttl)
			if attemptErr == nil && url != "" {
				return nil
			}
		}
		if attemptErr == nil {
			attemptErr = fmt.Errorf("empty url for %s", storagePath)
		}
		return attemptErr
	})
	if err != nil {
		log.Printf("signed url resolution failed for %s: %v", storagePath, err)
		return ""
	}

	r.mu.Lock()
	r.cache[storagePath] = url
	r.mu.Unlock()
	return url
}

// Invalidate drops a cached entry so the next Resolve fetches a fresh URL.
// Consumers call this when a previously resolved URL stops loading.
func (r *Resolver) Invalidate(storagePath string) {
	r.mu.Lock()
	delete(r.cache, storagePath)
	r.mu.Unlock()
}
