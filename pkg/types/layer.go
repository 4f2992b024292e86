package types

import "fmt"

// Layer identifies one OSI stage covered by a probe run.
type Layer string

const (
	LayerTransport    Layer = "transport"
	LayerSession      Layer = "session"
	LayerPresentation Layer = "presentation"
	LayerApplication  Layer = "application"
)

// AllLayers returns the layers in pipeline order.
func AllLayers() []Layer {
	return []Layer{LayerTransport, LayerSession, LayerPresentation, LayerApplication}
}

func (l Layer) String() string {
	return string(l)
}

// OSINumber maps the layer to its OSI model number.
func (l Layer) OSINumber() int {
	switch l {
	case LayerTransport:
		return 4
	case LayerSession:
		return 5
	case LayerPresentation:
		return 6
	case LayerApplication:
		return 7
	default:
		return 0
	}
}

// ParseLayer accepts the lower-case layer name.
func ParseLayer(name string) (Layer, error) {
	for _, l := range AllLayers() {
		if string(l) == name {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown layer %q", name)
}
