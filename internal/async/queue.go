package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one image awaiting verification.
type Job struct {
	ID          uuid.UUID
	Name        string // file path or upload name, for logs and results
	Image       []byte
	SubmittedAt time.Time
}

func NewJob(name string, image []byte) Job {
	return Job{ID: uuid.New(), Name: name, Image: image, SubmittedAt: time.Now()}
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
