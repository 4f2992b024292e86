package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pingsantohq/stackprobe/internal/probe"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

var (
	// ErrLayerTimeout matches a run stopped by a layer or run deadline.
	ErrLayerTimeout = errors.New("layer timed out")
	// ErrSocketSetup matches a run stopped because an endpoint could not be bound.
	ErrSocketSetup = probe.ErrSocketSetup
)

type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindSocketSetup ErrorKind = "socket_setup"
	KindCanceled    ErrorKind = "canceled"
	KindAnalyzer    ErrorKind = "analyzer"
)

// RunError names the layer at which a run failed.
type RunError struct {
	Layer types.Layer
	Kind  ErrorKind
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s layer failed (%s): %v", e.Layer, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func (e *RunError) Is(target error) bool {
	switch target {
	case ErrLayerTimeout:
		return e.Kind == KindTimeout
	case ErrSocketSetup:
		return e.Kind == KindSocketSetup
	}
	return false
}

func classify(layer types.Layer, err error) *RunError {
	kind := KindAnalyzer
	switch {
	case errors.Is(err, probe.ErrSocketSetup):
		kind = KindSocketSetup
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	}
	return &RunError{Layer: layer, Kind: kind, Err: err}
}
