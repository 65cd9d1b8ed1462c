package overlay

import (
	"context"

	"postergen/internal/domain"
)

// Applier is the collaborator boundary for logo, watermark and text layering.
// The pipeline hands finished images over and uses whatever comes back; it
// does not care what happens to the bytes.
type Applier interface {
	Apply(ctx context.Context, images []domain.GeneratedImage) ([]domain.GeneratedImage, error)
}

// PassThrough returns images unchanged. Used when no overlay collaborator is
// configured.
type PassThrough struct{}

func NewPassThrough() *PassThrough {
	return &PassThrough{}
}

func (p *PassThrough) Apply(ctx context.Context, images []domain.GeneratedImage) ([]domain.GeneratedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

var _ Applier = (*PassThrough)(nil)
