package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/0x7CFE/wasmer/errors"
)

var minimalWasm = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func isFormatErr(err error) bool {
	return errors.Is(err, &errors.Error{Kind: errors.KindFormat})
}

func TestArtifactRoundTrip(t *testing.T) {
	art := NewArtifact(DefaultFeatures(), minimalWasm)
	data := art.Encode()

	if !IsArtifact(data) {
		t.Fatal("encoded artifact not recognized by IsArtifact")
	}
	if IsArtifact(minimalWasm) {
		t.Error("raw wasm recognized as artifact")
	}

	got, err := DecodeArtifact(data)
	if err != nil {
		t.Fatalf("DecodeArtifact failed: %v", err)
	}
	if got.EngineVersion != Version {
		t.Errorf("EngineVersion = %q, want %q", got.EngineVersion, Version)
	}
	if got.Triple != HostTriple() {
		t.Errorf("Triple = %q, want %q", got.Triple, HostTriple())
	}
	if got.Features != DefaultFeatures() {
		t.Errorf("Features = %s, want %s", got.Features, DefaultFeatures())
	}
	if !bytes.Equal(got.Wasm, minimalWasm) {
		t.Error("payload did not round-trip")
	}
}

func TestDecodeArtifactRejects(t *testing.T) {
	valid := NewArtifact(DefaultFeatures(), minimalWasm).Encode()

	t.Run("bad_magic", func(t *testing.T) {
		if _, err := DecodeArtifact(minimalWasm); !isFormatErr(err) {
			t.Errorf("expected format error, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		for _, cut := range []int{12, 14, 20, len(valid) - 1} {
			if cut >= len(valid) {
				continue
			}
			if _, err := DecodeArtifact(valid[:cut]); !isFormatErr(err) {
				t.Errorf("truncation at %d: expected format error, got %v", cut, err)
			}
		}
	})

	t.Run("corrupt_payload", func(t *testing.T) {
		data := bytes.Clone(valid)
		data[len(data)-1] ^= 0xFF
		_, err := DecodeArtifact(data)
		if !isFormatErr(err) || !strings.Contains(err.Error(), "checksum") {
			t.Errorf("expected checksum error, got %v", err)
		}
	})

	t.Run("trailing_bytes", func(t *testing.T) {
		data := append(bytes.Clone(valid), 0x00)
		if _, err := DecodeArtifact(data); !isFormatErr(err) {
			t.Errorf("expected format error, got %v", err)
		}
	})

	t.Run("newer_major", func(t *testing.T) {
		art := NewArtifact(DefaultFeatures(), minimalWasm)
		art.EngineVersion = "2.0.0"
		_, err := DecodeArtifact(art.Encode())
		if !isFormatErr(err) || !strings.Contains(err.Error(), "engine") {
			t.Errorf("expected version mismatch, got %v", err)
		}
	})

	t.Run("same_major_newer_minor_ok", func(t *testing.T) {
		art := NewArtifact(DefaultFeatures(), minimalWasm)
		art.EngineVersion = "1.999.0"
		if _, err := DecodeArtifact(art.Encode()); err != nil {
			t.Errorf("same-major artifact rejected: %v", err)
		}
	})

	t.Run("invalid_version", func(t *testing.T) {
		art := NewArtifact(DefaultFeatures(), minimalWasm)
		art.EngineVersion = "not-a-version"
		if _, err := DecodeArtifact(art.Encode()); !isFormatErr(err) {
			t.Errorf("expected format error, got %v", err)
		}
	})

	t.Run("wrong_triple", func(t *testing.T) {
		art := NewArtifact(DefaultFeatures(), minimalWasm)
		art.Triple = "riscv64-plan9"
		_, err := DecodeArtifact(art.Encode())
		if !isFormatErr(err) || !strings.Contains(err.Error(), "host") {
			t.Errorf("expected triple mismatch, got %v", err)
		}
	})

	t.Run("unknown_features", func(t *testing.T) {
		art := NewArtifact(Features(1<<31), minimalWasm)
		if _, err := DecodeArtifact(art.Encode()); !isFormatErr(err) {
			t.Errorf("expected format error, got %v", err)
		}
	})
}
