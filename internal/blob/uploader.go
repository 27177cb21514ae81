// Package blob writes chat media into object storage. It is blind to message
// semantics: callers append a media message referencing the returned path
// after a successful upload.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"program-chat-service/internal/errkind"
)

// MediaRoot is the fixed prefix all chat media lives under. The signing
// mediator derives the chat id from this layout, so it must not change.
const MediaRoot = "chat-media"

// Uploader abstracts object storage writes and direct presigned reads.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, size int64, mime, chatID, uploaderID string) (string, error)
	PresignGet(ctx context.Context, storagePath string, ttl time.Duration) (string, error)
}

// MinioUploader is the S3-compatible implementation.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to the store and ensures the bucket exists.
func NewMinioUploader(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioUploader{client: client, bucket: bucket}, nil
}

// Upload writes one object under the per-chat, per-uploader namespace and
// returns its storage path. Each call produces a new object; nothing is ever
// overwritten.
func (u *MinioUploader) Upload(ctx context.Context, r io.Reader, size int64, mime, chatID, uploaderID string) (string, error) {
	if chatID == "" || uploaderID == "" {
		return "", errkind.Validation(fmt.Errorf("upload needs chat and uploader"))
	}

	if mime == "" {
		// Sniff from content when the caller gave us nothing.
		sniffed, wrapped, err := sniffMime(r)
		if err != nil {
			return "", errkind.Transient(err)
		}
		mime = sniffed
		r = wrapped
	}

	path := ObjectPath(chatID, uploaderID, mime)
	opts := minio.PutObjectOptions{ContentType: mime}
	if _, err := u.client.PutObject(ctx, u.bucket, path, r, size, opts); err != nil {
		if isAccessDenied(err) {
			return "", errkind.PermissionDenied(err)
		}
		return "", errkind.Transient(fmt.Errorf("put object: %w", err))
	}
	return path, nil
}

// PresignGet issues a direct, store-signed read URL. It is the fallback when
// the mediator is unavailable; the mediator remains the authorization point.
func (u *MinioUploader) PresignGet(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	signed, err := u.client.PresignedGetObject(ctx, u.bucket, storagePath, ttl, nil)
	if err != nil {
		return "", errkind.Transient(fmt.Errorf("presign get: %w", err))
	}
	return signed.String(), nil
}

// ObjectPath builds the deterministic destination path
// {MediaRoot}/{chatId}/{uploaderId}/{unixmillis}.{ext}. The time-based name
// makes every upload unique.
func ObjectPath(chatID, uploaderID, mime string) string {
	name := fmt.Sprintf("%d.%s", time.Now().UnixMilli(), ExtForMime(mime))
	return fmt.Sprintf("%s/%s/%s/%s", MediaRoot, chatID, uploaderID, name)
}

// ExtForMime maps a MIME type onto a file extension via a fixed table.
// Unknown types fall through to a generic binary extension.
func ExtForMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic", "image/heif":
		return "heic"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "video/mp4":
		return "mp4"
	case "video/quicktime":
		return "mov"
	case "video/x-matroska":
		return "mkv"
	case "video/x-msvideo":
		return "avi"
	case "application/pdf":
		return "pdf"
	case "text/plain":
		return "txt"
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "jpg"
	case strings.HasPrefix(mime, "video/"):
		return "mp4"
	}
	return "bin"
}

// ChatIDFromPath extracts the chat id from a storage path, or "" when the
// path does not follow the media layout.
func ChatIDFromPath(storagePath string) string {
	if !strings.HasPrefix(storagePath, MediaRoot+"/") {
		return ""
	}
	parts := strings.Split(storagePath, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[1]
}

func sniffMime(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, fmt.Errorf("read for sniff: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	return mt.String(), io.MultiReader(bytes.NewReader(head), r), nil
}

func isAccessDenied(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "AccessDenied"
}
