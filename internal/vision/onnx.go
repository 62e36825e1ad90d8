package vision

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/observability"
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// ONNXExtractor runs detection and embedding in-process. Calls are
// serialized because the ONNX sessions share their input tensors.
type ONNXExtractor struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewONNXExtractor loads both models from cfg.ModelsDir.
func NewONNXExtractor(cfg config.VisionConfig) (*ONNXExtractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(cfg.ModelsDir, embedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("onnx extractor ready")
	return &ONNXExtractor{detector: det, embedder: emb}, nil
}

func (x *ONNXExtractor) Extract(ctx context.Context, data []byte) ([][]float32, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	detections, err := x.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	embeddings := make([][]float32, 0, len(detections))
	for _, det := range detections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		face := cropFace(img, det.BBox)
		if face == nil {
			continue
		}

		start = time.Now()
		emb, err := x.embedder.Embed(face)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		observability.StageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		embeddings = append(embeddings, emb)
	}
	return embeddings, nil
}

// Close releases all ONNX sessions.
func (x *ONNXExtractor) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.detector.Close()
	x.embedder.Close()
}
