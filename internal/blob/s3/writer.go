package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anthias-labs/arena/internal/domain"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize = manager.MinUploadPartSize

// Writer uploads run blobs under the client's prefix.
type Writer struct {
	c *Client
}

var _ domain.BlobWriter = (*Writer)(nil)

func NewWriter(c *Client) *Writer {
	return &Writer{c: c}
}

func (w *Writer) object(name string) (*s3.PutObjectInput, string) {
	key := w.c.Key(name)
	return &s3.PutObjectInput{
		Bucket: aws.String(w.c.bucket),
		Key:    aws.String(key),
	}, key
}

// Put stores data with a single PutObject.
func (w *Writer) Put(ctx context.Context, name string, data io.Reader, contentType string) error {
	in, key := w.object(name)
	in.Body = data
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := w.c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put %s/%s: %w", w.c.bucket, key, err)
	}
	return nil
}

// PutMultipart streams data through the upload manager in parts of at least
// 5 MiB.
func (w *Writer) PutMultipart(ctx context.Context, name string, data io.Reader, partSize int64) error {
	in, key := w.object(name)
	in.Body = data
	up := manager.NewUploader(w.c.api, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	if _, err := up.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s/%s: %w", w.c.bucket, key, err)
	}
	return nil
}
