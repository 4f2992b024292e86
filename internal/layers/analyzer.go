// Package layers holds one analyzer per probed OSI layer and the run context
// they share.
package layers

import (
	"context"
	"errors"
	"time"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

// ErrLayerOrder is returned when a layer runs before the resources it needs exist.
var ErrLayerOrder = errors.New("layer ran out of order")

// Analyzer measures one layer and stores its record in the RunContext.
type Analyzer interface {
	Layer() types.Layer
	Analyze(ctx context.Context, rc *RunContext) error
}

// Default returns the four analyzers in pipeline order.
func Default() []Analyzer {
	return []Analyzer{
		&Transport{},
		&Session{},
		&Presentation{},
		&Application{},
	}
}

// wait blocks for d or until ctx is done and returns the time actually waited.
func wait(ctx context.Context, d time.Duration) (time.Duration, error) {
	start := time.Now()
	if d <= 0 {
		return 0, ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return time.Since(start), nil
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func path(layer types.Layer, field string) string {
	return layerKey(layer) + "." + field
}

func layerKey(layer types.Layer) string {
	switch layer {
	case types.LayerTransport:
		return "osi_layer_4_transport"
	case types.LayerSession:
		return "osi_layer_5_session"
	case types.LayerPresentation:
		return "osi_layer_6_presentation"
	case types.LayerApplication:
		return "osi_layer_7_application"
	}
	return string(layer)
}
