package client

import (
	"context"
)

// VisionClient sends one image and a prompt to a multimodal model and
// returns the raw text answer
type VisionClient interface {
	Query(ctx context.Context, model, prompt string, image []byte) (string, error)
}
