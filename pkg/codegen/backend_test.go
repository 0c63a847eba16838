package codegen_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/g65/pkg/codegen"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/image"
	"github.com/xplshn/g65/pkg/vm"
)

const backendSource = `{ int a a = 1 + 2 print(a) }$ { print("two") }$`

func TestSelectBackend(t *testing.T) {
	for _, format := range []string{config.FormatHex, config.FormatBin, config.FormatCBOR} {
		if _, err := codegen.SelectBackend(format); err != nil {
			t.Errorf("SelectBackend(%q): %v", format, err)
		}
	}
	if _, err := codegen.SelectBackend("elf"); err == nil {
		t.Errorf("SelectBackend(\"elf\") succeeded")
	}
}

func TestHexAndBinBackends(t *testing.T) {
	cfg := config.NewConfig()
	results, rep := generate(t, backendSource, cfg)
	if rep.ErrorCount() > 0 || len(results) != 2 {
		t.Fatalf("%d result(s), diagnostics %v", len(results), rep.Diagnostics())
	}

	hex, err := (&codegen.HexBackend{}).Generate(results, cfg)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(hex.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("hex output has %d line(s); want 2", len(lines))
	}
	for i, line := range lines {
		if n := len(strings.Fields(line)); n != image.Size {
			t.Errorf("line %d has %d byte(s); want %d", i, n, image.Size)
		}
	}

	bin, err := (&codegen.BinBackend{}).Generate(results, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if bin.Len() != 2*image.Size {
		t.Fatalf("bin output is %d bytes; want %d", bin.Len(), 2*image.Size)
	}
	var outputs []string
	for i := range results {
		var mem [image.Size]byte
		copy(mem[:], bin.Bytes()[i*image.Size:])
		var out bytes.Buffer
		if _, err := vm.Run(context.Background(), image.FromBytes(mem), &out, vm.Options{MaxSteps: 1000}); err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, out.String())
	}
	if diff := cmp.Diff([]string{"3", "two"}, outputs); diff != "" {
		t.Errorf("bin program output mismatch (-want +got):\n%s", diff)
	}
}

func TestCBORBackend(t *testing.T) {
	cfg := config.NewConfig()
	results, _ := generate(t, backendSource, cfg)
	buf, err := (&codegen.CBORBackend{}).Generate(results, cfg)
	if err != nil {
		t.Fatal(err)
	}
	art, err := codegen.DecodeArtifact(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(art.Programs) != 2 {
		t.Fatalf("artifact holds %d program(s); want 2", len(art.Programs))
	}

	first := art.Programs[0]
	var names []string
	for _, s := range first.Statics {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	if diff := cmp.Diff([]string{"a"}, names); diff != "" {
		t.Errorf("named statics mismatch (-want +got):\n%s", diff)
	}

	var img image.Image
	if err := img.UnmarshalCBOR(first.Image); err != nil {
		t.Fatal(err)
	}
	if got, want := img.Hex(), results[0].Image.Hex(); got != want {
		t.Errorf("decoded image differs:\n got %s\nwant %s", got, want)
	}

	second := art.Programs[1]
	if len(second.Strings) != 1 || second.Strings[0].Value != "two" {
		t.Errorf("heap strings = %+v; want one \"two\"", second.Strings)
	}
}

func TestHeapStringWireShape(t *testing.T) {
	data, err := cbor.Marshal(codegen.HeapString{Value: "two", Addr: 0xEC})
	if err != nil {
		t.Fatal(err)
	}
	var fields map[int]any
	if err := cbor.Unmarshal(data, &fields); err != nil {
		t.Fatalf("heap string is not an integer-keyed map: %v", err)
	}
	want := map[int]any{1: "two", 2: uint64(0xEC)}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("wire fields mismatch (-want +got):\n%s", diff)
	}
}
