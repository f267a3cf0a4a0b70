package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultUploadTTL = 15 * time.Minute
	// MaxImageBytes caps artwork image uploads through the signed content-length range.
	MaxImageBytes = 20 << 20
)

var (
	errNoBackend          = errors.New("storage: no key signer or client configured")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	allowedImageMIMETypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
)

// UploadSigner issues V4 signed PUT URLs for artwork images.
//
// With a KeySigner the URL is signed locally. Without one the Cloud Storage client signs through
// the IAM credentials attached to the runtime.
type UploadSigner struct {
	keys   KeySigner
	client *gcs.Client
	ttl    time.Duration
	now    func() time.Time
}

// UploadOption customises UploadSigner.
type UploadOption func(*UploadSigner)

// WithKeySigner signs with an in-process key.
func WithKeySigner(signer KeySigner) UploadOption {
	return func(u *UploadSigner) {
		if signer != nil {
			u.keys = signer
		}
	}
}

// WithStorageClient signs through the Cloud Storage client.
func WithStorageClient(client *gcs.Client) UploadOption {
	return func(u *UploadSigner) {
		if client != nil {
			u.client = client
		}
	}
}

// WithUploadTTL overrides how long issued URLs stay valid.
func WithUploadTTL(ttl time.Duration) UploadOption {
	return func(u *UploadSigner) {
		if ttl > 0 {
			u.ttl = ttl
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) UploadOption {
	return func(u *UploadSigner) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUploadSigner requires either WithKeySigner or WithStorageClient.
func NewUploadSigner(opts ...UploadOption) (*UploadSigner, error) {
	signer := &UploadSigner{ttl: defaultUploadTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(signer)
		}
	}
	if signer.keys == nil && signer.client == nil {
		return nil, errNoBackend
	}
	if signer.keys != nil && strings.TrimSpace(signer.keys.Email()) == "" {
		return nil, errors.New("storage: key signer has no service account email")
	}
	return signer, nil
}

// SignedUploadURL returns a PUT URL bound to contentType and capped at MaxImageBytes.
func (u *UploadSigner) SignedUploadURL(ctx context.Context, bucket, object, contentType string) (string, time.Time, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return "", time.Time{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", time.Time{}, errInvalidObject
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !imageTypeAllowed(contentType) {
		return "", time.Time{}, fmt.Errorf("%w: %q", errContentTypeDenied, contentType)
	}

	expiresAt := u.now().Add(u.ttl)
	opts := &gcs.SignedURLOptions{
		Scheme:      gcs.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     expiresAt,
		Headers:     []string{"x-goog-content-length-range:0," + strconv.Itoa(MaxImageBytes)},
	}

	var (
		signed string
		err    error
	)
	if u.keys != nil {
		opts.GoogleAccessID = u.keys.Email()
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			return u.keys.SignBytes(ctx, payload)
		}
		signed, err = gcs.SignedURL(bucket, object, opts)
	} else {
		signed, err = u.client.Bucket(bucket).SignedURL(object, opts)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return signed, expiresAt, nil
}

func imageTypeAllowed(contentType string) bool {
	for _, allowed := range allowedImageMIMETypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}
