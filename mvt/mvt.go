// Package mvt decodes Mapbox Vector Tiles: a protobuf layout carrying
// named layers, feature records and command-encoded geometry streams.
//
// Decoding is two-phase. Decode scans the layer structure and property
// tables but only records where each feature record lives inside the
// shared buffer; features and their geometry are decoded on demand, so a
// renderer that draws two of forty layers never pays for the rest.
package mvt

import (
	"errors"

	"github.com/eak1mov/go-mapview/mvt/pbf"
)

// Field numbers of the vector tile protobuf layout.
const (
	tileLayerField = 3

	layerNameField     = 1
	layerFeaturesField = 2
	layerKeysField     = 3
	layerValuesField   = 4
	layerExtentField   = 5
	layerVersionField  = 15

	featureIDField       = 1
	featureTagsField     = 2
	featureTypeField     = 3
	featureGeometryField = 4

	valueStringField = 1
	valueFloatField  = 2
	valueDoubleField = 3
	valueIntField    = 4
	valueUintField   = 5
	valueSintField   = 6
	valueBoolField   = 7
)

// DefaultExtent is the tile-local coordinate span assumed when a layer
// does not declare one.
const DefaultExtent = 4096

var (
	ErrInvalidGeometryCommand = errors.New("mapview: invalid geometry command")
	ErrPropertyIndex          = errors.New("mapview: property index out of range")
)

// Tile is one decoded vector tile.
type Tile struct {
	Layers []*Layer
}

// Layer returns the named layer, or nil when the tile does not carry it.
func (t *Tile) Layer(name string) *Layer {
	for _, layer := range t.Layers {
		if layer.Name == name {
			return layer
		}
	}
	return nil
}

// span marks the bounds of one protobuf record payload inside the shared
// tile buffer.
type span struct {
	start int
	end   int
}

// Layer is one named layer of a vector tile. The property tables are
// decoded eagerly; feature records stay as offsets into the tile buffer
// until asked for.
type Layer struct {
	Name    string
	Version uint32
	Extent  uint32

	buf      []byte
	keys     []string
	values   []any
	features []span
}

// Len returns the number of feature records in the layer.
func (l *Layer) Len() int { return len(l.features) }

// Keys returns the layer's property key table.
func (l *Layer) Keys() []string { return l.keys }

// Values returns the layer's decoded property value table.
func (l *Layer) Values() []any { return l.values }

// Decode scans data as a vector tile. The returned tile keeps data
// aliased for lazy feature decoding; callers must not mutate it.
func Decode(data []byte) (*Tile, error) {
	r := pbf.NewReader(data)
	t := &Tile{}
	for r.More() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		if field == tileLayerField && wt == pbf.WireBytes {
			lr, err := r.Message()
			if err != nil {
				return nil, err
			}
			layer, err := decodeLayer(data, lr)
			if err != nil {
				return nil, err
			}
			t.Layers = append(t.Layers, layer)
			continue
		}
		if err := r.Skip(wt); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func decodeLayer(buf []byte, r pbf.Reader) (*Layer, error) {
	layer := &Layer{Version: 1, Extent: DefaultExtent, buf: buf}
	for r.More() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		switch {
		case field == layerNameField && wt == pbf.WireBytes:
			layer.Name, err = r.String()
		case field == layerFeaturesField && wt == pbf.WireBytes:
			var fr pbf.Reader
			fr, err = r.Message()
			if err == nil {
				start, end := fr.Bounds()
				layer.features = append(layer.features, span{start: start, end: end})
			}
		case field == layerKeysField && wt == pbf.WireBytes:
			var key string
			key, err = r.String()
			layer.keys = append(layer.keys, key)
		case field == layerValuesField && wt == pbf.WireBytes:
			var vr pbf.Reader
			vr, err = r.Message()
			if err == nil {
				var value any
				value, err = decodeValue(vr)
				layer.values = append(layer.values, value)
			}
		case field == layerExtentField && wt == pbf.WireVarint:
			var v uint64
			v, err = r.Varint()
			layer.Extent = uint32(v)
		case field == layerVersionField && wt == pbf.WireVarint:
			var v uint64
			v, err = r.Varint()
			layer.Version = uint32(v)
		default:
			err = r.Skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return layer, nil
}

// decodeValue reads one typed property value. The value message is a
// union: exactly one field is expected, and the last one read wins.
// Unrecognized tags yield nil, so tiles from newer writers still decode.
func decodeValue(r pbf.Reader) (any, error) {
	var value any
	for r.More() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		switch {
		case field == valueStringField && wt == pbf.WireBytes:
			value, err = r.String()
		case field == valueFloatField && wt == pbf.WireFixed32:
			value, err = r.Float()
		case field == valueDoubleField && wt == pbf.WireFixed64:
			value, err = r.Double()
		case field == valueIntField && wt == pbf.WireVarint:
			var v uint64
			v, err = r.Varint()
			value = int64(v)
		case field == valueUintField && wt == pbf.WireVarint:
			value, err = r.Varint()
		case field == valueSintField && wt == pbf.WireVarint:
			value, err = r.SVarint()
		case field == valueBoolField && wt == pbf.WireVarint:
			value, err = r.Bool()
		default:
			err = r.Skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}
