package mvt

import (
	"fmt"
	"iter"

	"github.com/eak1mov/go-mapview/mvt/pbf"
)

// GeomType is the raw geometry type code carried by a feature record.
type GeomType uint8

const (
	GeomUnknown    GeomType = 0
	GeomPoint      GeomType = 1
	GeomLineString GeomType = 2
	GeomPolygon    GeomType = 3
)

func (t GeomType) String() string {
	switch t {
	case GeomPoint:
		return "point"
	case GeomLineString:
		return "linestring"
	case GeomPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Feature is one decoded feature record. Its geometry stays
// command-encoded until Geometry is called.
type Feature struct {
	// ID is the feature id, meaningful only when HasID is set.
	ID    uint64
	HasID bool
	// Type is the raw geometry type code from the record.
	Type GeomType
	// Properties maps layer keys to decoded values for this feature.
	Properties map[string]any

	layer *Layer
	geom  span
}

// Feature decodes the i-th feature record of the layer. The index must
// be in [0, Len()).
func (l *Layer) Feature(i int) (*Feature, error) {
	sp := l.features[i]
	r := pbf.ReaderAt(l.buf, sp.start, sp.end)
	f := &Feature{layer: l, Properties: map[string]any{}}
	for r.More() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		switch {
		case field == featureIDField && wt == pbf.WireVarint:
			f.ID, err = r.Varint()
			f.HasID = true
		case field == featureTagsField && wt == pbf.WireBytes:
			err = f.readTags(&r)
		case field == featureTypeField && wt == pbf.WireVarint:
			var v uint64
			v, err = r.Varint()
			f.Type = GeomType(v)
		case field == featureGeometryField && wt == pbf.WireBytes:
			var gr pbf.Reader
			gr, err = r.Message()
			if err == nil {
				start, end := gr.Bounds()
				f.geom = span{start: start, end: end}
			}
		default:
			err = r.Skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// readTags resolves the packed key/value index pairs of one tags record
// against the layer's property tables.
func (f *Feature) readTags(r *pbf.Reader) error {
	tr, err := r.Message()
	if err != nil {
		return err
	}
	for tr.More() {
		ki, err := tr.Varint()
		if err != nil {
			return err
		}
		vi, err := tr.Varint()
		if err != nil {
			return err
		}
		if ki >= uint64(len(f.layer.keys)) || vi >= uint64(len(f.layer.values)) {
			return fmt.Errorf("%w: key %d of %d, value %d of %d",
				ErrPropertyIndex, ki, len(f.layer.keys), vi, len(f.layer.values))
		}
		f.Properties[f.layer.keys[ki]] = f.layer.values[vi]
	}
	return nil
}

// Features iterates the layer's features in record order, skipping
// records that fail to decode so one corrupt feature does not take down
// the whole layer.
func (l *Layer) Features() iter.Seq[*Feature] {
	return func(yield func(*Feature) bool) {
		for i := range l.features {
			f, err := l.Feature(i)
			if err != nil {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}
