package inspector

import (
	"bytes"
	"context"
	"fmt"

	"github.com/anthias-labs/arena/internal/domain"
)

// StoreSink saves runs to a database-backed RunStore. The target is unused.
type StoreSink struct {
	Store domain.RunStore
}

func (s StoreSink) Save(ctx context.Context, run domain.RunRecord, _ string) error {
	if s.Store == nil {
		return fmt.Errorf("store sink: no run store configured")
	}
	return s.Store.SaveRun(ctx, run)
}

// multipartThreshold is the encoded size above which BlobSink switches to a
// multipart upload.
const multipartThreshold = 16 << 20

// BlobSink uploads the encoded run to object storage under the target key,
// "<run id>.json" by default. Targets ending in .csv are uploaded as CSV.
type BlobSink struct {
	Writer domain.BlobWriter
}

func (s BlobSink) Save(ctx context.Context, run domain.RunRecord, target string) error {
	if s.Writer == nil {
		return fmt.Errorf("blob sink: no blob writer configured")
	}
	key := defaultTarget(target, run.RunID, ".json")
	data, contentType, err := encodeRun(run, key)
	if err != nil {
		return err
	}
	if len(data) > multipartThreshold {
		return s.Writer.PutMultipart(ctx, key, bytes.NewReader(data), 0)
	}
	return s.Writer.Put(ctx, key, bytes.NewReader(data), contentType)
}
