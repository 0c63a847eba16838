package codegen

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/xplshn/g65/pkg/config"
)

// Backend is the interface that all output formats must implement.
type Backend interface {
	// Generate takes the generated programs and a configuration, and produces
	// the artifact as a byte buffer.
	Generate(results []*Result, cfg *config.Config) (*bytes.Buffer, error)
}

// SelectBackend returns the backend writing the given config.Format* format.
func SelectBackend(format string) (Backend, error) {
	switch format {
	case config.FormatHex:
		return &HexBackend{}, nil
	case config.FormatBin:
		return &BinBackend{}, nil
	case config.FormatCBOR:
		return &CBORBackend{}, nil
	}
	return nil, fmt.Errorf("unsupported output format '%s'", format)
}

// HexBackend writes each image as one line of 256 space separated hex pairs.
type HexBackend struct{}

func (b *HexBackend) Generate(results []*Result, cfg *config.Config) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	for _, r := range results {
		if pending := r.Image.Pending(); len(pending) > 0 {
			return nil, fmt.Errorf("program %d: %d unresolved cell(s)", r.Index, len(pending))
		}
		buf.WriteString(r.Image.Hex())
		buf.WriteByte('\n')
	}
	return &buf, nil
}

// BinBackend concatenates the raw 256 byte images.
type BinBackend struct{}

func (b *BinBackend) Generate(results []*Result, cfg *config.Config) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	for _, r := range results {
		mem, err := r.Image.Bytes()
		if err != nil {
			return nil, fmt.Errorf("program %d: %w", r.Index, err)
		}
		buf.Write(mem[:])
	}
	return &buf, nil
}

// Artifact is the CBOR document written by CBORBackend.
type Artifact struct {
	Programs []ProgramArtifact `cbor:"1,keyasint"`
}

type ProgramArtifact struct {
	Index       int                `cbor:"1,keyasint"`
	File        int                `cbor:"2,keyasint"`
	Image       cbor.RawMessage    `cbor:"3,keyasint"`
	Statics     []StaticRecord     `cbor:"4,keyasint"`
	Strings     []HeapString       `cbor:"5,keyasint"`
	Jumps       []int              `cbor:"6,keyasint"`
	Diagnostics []DiagnosticRecord `cbor:"7,keyasint"`
}

type StaticRecord struct {
	Temp   int    `cbor:"1,keyasint"`
	Name   string `cbor:"2,keyasint,omitempty"`
	Scope  int    `cbor:"3,keyasint"`
	Type   string `cbor:"4,keyasint"`
	Offset int    `cbor:"5,keyasint"`
	Addr   byte   `cbor:"6,keyasint"`
}

type DiagnosticRecord struct {
	Level   string `cbor:"1,keyasint"`
	Stage   string `cbor:"2,keyasint"`
	Line    int    `cbor:"3,keyasint,omitempty"`
	Column  int    `cbor:"4,keyasint,omitempty"`
	Message string `cbor:"5,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codegen: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CBORBackend writes images together with their static tables and
// diagnostics in canonical CBOR.
type CBORBackend struct{}

func (b *CBORBackend) Generate(results []*Result, cfg *config.Config) (*bytes.Buffer, error) {
	var art Artifact
	for _, r := range results {
		img, err := r.Image.MarshalCBOR()
		if err != nil {
			return nil, fmt.Errorf("program %d: %w", r.Index, err)
		}
		p := ProgramArtifact{
			Index:   r.Index,
			File:    r.FileIndex,
			Image:   img,
			Strings: r.Table.Strings(),
			Jumps:   r.Table.Jumps(),
		}
		for _, e := range r.Table.Entries() {
			p.Statics = append(p.Statics, StaticRecord{
				Temp: e.ID, Name: e.Name, Scope: e.ScopeID, Type: e.Type.String(), Offset: e.Offset, Addr: e.Addr,
			})
		}
		for _, d := range r.Diagnostics {
			p.Diagnostics = append(p.Diagnostics, DiagnosticRecord{
				Level: d.Level.String(), Stage: d.Stage.String(), Line: d.Tok.Line, Column: d.Tok.Column, Message: d.Message,
			})
		}
		art.Programs = append(art.Programs, p)
	}
	data, err := cborEncMode.Marshal(art)
	if err != nil {
		return nil, fmt.Errorf("codegen: marshal artifact: %w", err)
	}
	return bytes.NewBuffer(data), nil
}

// DecodeArtifact reads a document written by CBORBackend.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var art Artifact
	if err := cbor.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("codegen: unmarshal artifact: %w", err)
	}
	return &art, nil
}
