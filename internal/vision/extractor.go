// Package vision turns a photo into face embeddings.
package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facesort/internal/config"
)

var ErrNoImage = errors.New("image could not be decoded")

// Extractor returns one embedding per face found in an encoded image.
// A photo without faces yields an empty slice and no error.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([][]float32, error)
}

// Backend is an Extractor that holds resources until closed.
type Backend interface {
	Extractor
	Close()
}

// NewBackend builds the extractor selected by cfg.Backend. The onnx backend
// requires the ONNX Runtime environment to be initialised by the caller.
func NewBackend(cfg config.VisionConfig) (Backend, error) {
	switch cfg.Backend {
	case "onnx":
		return NewONNXExtractor(cfg)
	case "http":
		return NewHTTPExtractor(cfg.EmbeddingURL), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Backend)
	}
}
