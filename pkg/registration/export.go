package registration

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"volreg3d/pkg/correlation"
	"volreg3d/pkg/volume"
)

// fieldDocument is the YAML layout of an exported field.
type fieldDocument struct {
	RunID  string     `yaml:"runId,omitempty"`
	Volume [3]int     `yaml:"volume,flow"`
	Block  [3]int     `yaml:"block,flow"`
	Blocks []blockDoc `yaml:"blocks"`
}

type blockDoc struct {
	Index        int        `yaml:"index"`
	Position     [3]int     `yaml:"position,flow"`
	Displacement [3]float64 `yaml:"displacement,flow"`
	Quality      float64    `yaml:"quality"`
	PValue       float64    `yaml:"pValue"`
	Reliable     bool       `yaml:"reliable"`
}

func dimsArray(d volume.Dimensions) [3]int {
	return [3]int{d.DimX, d.DimY, d.DimZ}
}

// WriteYAML writes the field and its entries as a YAML document. runID may be
// empty.
func (f *DisplacementField) WriteYAML(w io.Writer, runID string) error {
	doc := fieldDocument{
		RunID:  runID,
		Volume: dimsArray(f.volumeDims),
		Block:  dimsArray(f.blockDims),
		Blocks: make([]blockDoc, len(f.entries)),
	}
	for i, e := range f.entries {
		d := e.Displacement
		doc.Blocks[i] = blockDoc{
			Index:        i,
			Position:     [3]int{e.Position.X, e.Position.Y, e.Position.Z},
			Displacement: d.Vector(),
			Quality:      d.Quality,
			PValue:       d.PValue,
			Reliable:     d.Reliable,
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("error encoding field: %w", err)
	}
	return enc.Close()
}

// ReadFieldYAML rebuilds a field written by WriteYAML. The block layout is
// recomputed from the stored dimensions and must match the stored positions.
func ReadFieldYAML(r io.Reader) (*DisplacementField, string, error) {
	var doc fieldDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, "", fmt.Errorf("error parsing field: %w", err)
	}

	f, err := NewDisplacementField(
		volume.NewDimensions(doc.Volume[0], doc.Volume[1], doc.Volume[2]),
		volume.NewDimensions(doc.Block[0], doc.Block[1], doc.Block[2]),
	)
	if err != nil {
		return nil, "", err
	}
	if len(doc.Blocks) != f.Size() {
		return nil, "", fmt.Errorf("field has %d blocks, layout needs %d", len(doc.Blocks), f.Size())
	}

	for _, b := range doc.Blocks {
		pos, err := f.Position(b.Index)
		if err != nil {
			return nil, "", err
		}
		if pos != volume.NewPoint3D(b.Position[0], b.Position[1], b.Position[2]) {
			return nil, "", fmt.Errorf("block %d is at %v, layout puts it at %v", b.Index, b.Position, pos)
		}
		d := correlation.Displacement{
			DX: b.Displacement[0], DY: b.Displacement[1], DZ: b.Displacement[2],
			Quality: b.Quality, PValue: b.PValue, Reliable: b.Reliable,
		}
		if err := f.Update(b.Index, d); err != nil {
			return nil, "", err
		}
	}
	return f, doc.RunID, nil
}
