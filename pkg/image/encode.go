package image

import (
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Hex renders all 256 cells as space separated hex pairs. Pending cells show
// their placeholder tokens.
func (img *Image) Hex() string {
	var b strings.Builder
	for addr, c := range img.mem {
		if addr > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.String())
	}
	return b.String()
}

func (img *Image) String() string { return img.Hex() }

// Dump writes the image as rows of 16 cells prefixed with their address.
func (img *Image) Dump(w io.Writer) error {
	for row := 0; row < Size; row += 16 {
		cells := make([]string, 16)
		for i := range cells {
			cells[i] = fmt.Sprintf("%-2s", img.mem[row+i])
		}
		if _, err := fmt.Fprintf(w, "%02X: %s\n", row, strings.Join(cells, " ")); err != nil {
			return err
		}
	}
	return nil
}

// wireImage is the CBOR shape of a finished image.
type wireImage struct {
	Memory     []byte `cbor:"1,keyasint"`
	CodeLimit  int    `cbor:"2,keyasint"`
	StackBase  int    `cbor:"3,keyasint"`
	StackLimit int    `cbor:"4,keyasint"`
	HeapLimit  int    `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// MarshalCBOR encodes a fully resolved image and its region pointers.
func (img *Image) MarshalCBOR() ([]byte, error) {
	mem, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(wireImage{
		Memory:     mem[:],
		CodeLimit:  img.codeLimit,
		StackBase:  img.stackBase,
		StackLimit: img.stackLimit,
		HeapLimit:  img.heapLimit,
	})
}

// UnmarshalCBOR restores an image written by MarshalCBOR and checks its
// region pointers.
func (img *Image) UnmarshalCBOR(data []byte) error {
	var w wireImage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("image: unmarshal: %w", err)
	}
	if len(w.Memory) != Size {
		return fmt.Errorf("image: unmarshal: %w: memory is %d bytes", ErrOutOfBounds, len(w.Memory))
	}
	var restored Image
	for addr, b := range w.Memory {
		restored.mem[addr] = Byte(b)
	}
	restored.codeLimit = w.CodeLimit
	restored.stackBase = w.StackBase
	restored.stackLimit = w.StackLimit
	restored.stackReady = w.StackBase >= 0
	restored.heapLimit = w.HeapLimit
	if err := restored.Check(); err != nil {
		return fmt.Errorf("image: unmarshal: %w", err)
	}
	*img = restored
	return nil
}

// FromBytes wraps raw memory, such as a bin artifact, as a resolved image
// with an empty code region. It is meant for execution only.
func FromBytes(mem [Size]byte) *Image {
	img := &Image{codeLimit: -1, stackBase: -1, stackLimit: -1, heapLimit: Size}
	for addr, b := range mem {
		img.mem[addr] = Byte(b)
	}
	return img
}
