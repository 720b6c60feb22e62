// Package upload adapts the external storage collaborator into the
// pending-attachment pipeline: one independent upload per selected file,
// uploading -> ready|error transitions, and a send gate that blocks while
// any upload is still in flight.
package upload

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/google/uuid"
)

// ErrUploadsInFlight is returned by Ready while any attachment is still
// uploading.
var ErrUploadsInFlight = errors.New("upload: attachments still uploading")

// Uploader is the storage collaborator boundary (implemented by api.Client).
type Uploader interface {
	UploadAttachment(ctx context.Context, name string, size int64, r io.Reader) (*model.Attachment, error)
}

type Pipeline struct {
	uploader Uploader

	mu      sync.Mutex
	pending []*model.PendingAttachment
	wg      sync.WaitGroup
}

func NewPipeline(uploader Uploader) *Pipeline {
	return &Pipeline{uploader: uploader}
}

// Add registers one selected file and starts its upload. Failures are
// isolated: one failed file never affects the rest of the batch.
func (p *Pipeline) Add(ctx context.Context, name, mimeType string, size int64, r io.Reader) *model.PendingAttachment {
	pa := &model.PendingAttachment{
		ID:       uuid.New().String(),
		Name:     name,
		Size:     size,
		MimeType: mimeType,
		Status:   model.UploadStatusUploading,
	}
	p.mu.Lock()
	p.pending = append(p.pending, pa)
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		desc, err := p.uploader.UploadAttachment(ctx, name, size, r)
		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			pa.Status = model.UploadStatusError
			pa.Err = err.Error()
			logger.Errorf("upload %s: %v", name, err)
			return
		}
		pa.Status = model.UploadStatusReady
		pa.Descriptor = desc
	}()
	return pa
}

// Pending returns a snapshot of the current batch.
func (p *Pipeline) Pending() []model.PendingAttachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PendingAttachment, 0, len(p.pending))
	for _, pa := range p.pending {
		out = append(out, *pa)
	}
	return out
}

// Ready returns the descriptors eligible for a send. It fails with
// ErrUploadsInFlight while any file is still uploading; errored files are
// skipped (the user already saw the failure).
func (p *Pipeline) Ready() ([]model.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Attachment
	for _, pa := range p.pending {
		switch pa.Status {
		case model.UploadStatusUploading:
			return nil, ErrUploadsInFlight
		case model.UploadStatusReady:
			out = append(out, *pa.Descriptor)
		}
	}
	return out, nil
}

// Remove drops one pending attachment by id.
func (p *Pipeline) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pa := range p.pending {
		if pa.ID == id {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

// Clear drops the whole batch (send completed or active chat changed).
func (p *Pipeline) Clear() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

// Wait blocks until in-flight uploads settle. Test helper and teardown aid.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
