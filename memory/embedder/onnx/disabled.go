//go:build !onnx

// Package onnx embeds text with a local sentence-transformer model through
// ONNX Runtime. Build with -tags onnx to enable it.
package onnx

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNotBuilt is returned when the binary was built without the onnx tag.
var ErrNotBuilt = errors.New("onnx embedder not available: rebuild with -tags onnx")

// Config configures the ONNX embedder.
type Config struct {
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string
	Dimensions        int
	MaxSequenceLength int
}

// Embedder is unavailable in this build.
type Embedder struct{}

// New always fails without the onnx build tag.
func New(cfg Config, logger *zap.Logger) (*Embedder, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
