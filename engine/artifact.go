package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	goruntime "runtime"

	"github.com/coreos/go-semver/semver"

	"github.com/0x7CFE/wasmer/errors"
)

// Version is this engine's semantic version. Artifacts record the version
// that produced them; loading rejects artifacts from a different major.
const Version = "1.3.0"

// ArtifactFormatVersion is the container layout revision.
const ArtifactFormatVersion uint16 = 1

const artifactMagic = "\x00wasmer-go\x00"

var engineVersion = semver.New(Version)

// HostTriple identifies the platform an artifact was produced on.
func HostTriple() string {
	arch := goruntime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + goruntime.GOOS
}

// Artifact is the serialized module container consumed by the object-file
// backend: compatibility metadata wrapped around a core wasm payload.
type Artifact struct {
	EngineVersion string
	Triple        string
	Features      Features
	Wasm          []byte
}

// NewArtifact wraps a core wasm binary in a container stamped with the
// current engine version and host platform.
func NewArtifact(features Features, wasm []byte) *Artifact {
	return &Artifact{
		EngineVersion: Version,
		Triple:        HostTriple(),
		Features:      features,
		Wasm:          wasm,
	}
}

// IsArtifact reports whether data begins with the artifact magic. Raw wasm
// binaries and arbitrary files return false.
func IsArtifact(data []byte) bool {
	return len(data) >= len(artifactMagic) && string(data[:len(artifactMagic)]) == artifactMagic
}

// Encode serializes the container:
//
//	magic | format u16 | version str | triple str | features u32 |
//	sha256(payload) | payload len (leb128) | payload
//
// Strings carry a one-byte length prefix; integers are little-endian.
func (a *Artifact) Encode() []byte {
	out := make([]byte, 0, len(artifactMagic)+64+len(a.Wasm))
	out = append(out, artifactMagic...)
	out = binary.LittleEndian.AppendUint16(out, ArtifactFormatVersion)
	out = append(out, byte(len(a.EngineVersion)))
	out = append(out, a.EngineVersion...)
	out = append(out, byte(len(a.Triple)))
	out = append(out, a.Triple...)
	out = binary.LittleEndian.AppendUint32(out, uint32(a.Features))
	sum := sha256.Sum256(a.Wasm)
	out = append(out, sum[:]...)
	out = binary.AppendUvarint(out, uint64(len(a.Wasm)))
	out = append(out, a.Wasm...)
	return out
}

// DecodeArtifact parses and validates a container. Every malformed or
// incompatible input yields a format error; the payload is not interpreted
// beyond its checksum.
func DecodeArtifact(data []byte) (*Artifact, error) {
	if !IsArtifact(data) {
		return nil, errors.Format("not an artifact: bad magic", nil)
	}
	r := data[len(artifactMagic):]

	if len(r) < 2 {
		return nil, errors.Format("artifact truncated in header", nil)
	}
	format := binary.LittleEndian.Uint16(r)
	r = r[2:]
	if format != ArtifactFormatVersion {
		return nil, errors.Format(fmt.Sprintf("unsupported artifact format version %d", format), nil)
	}

	version, r, err := readArtifactString(r, "engine version")
	if err != nil {
		return nil, err
	}
	v, serr := semver.NewVersion(version)
	if serr != nil {
		return nil, errors.Format(fmt.Sprintf("invalid engine version %q", version), serr)
	}
	if v.Major != engineVersion.Major {
		return nil, errors.Format(
			fmt.Sprintf("artifact built by engine %s, this engine is %s", version, Version), nil)
	}

	triple, r, err := readArtifactString(r, "target triple")
	if err != nil {
		return nil, err
	}
	if triple != HostTriple() {
		return nil, errors.Format(
			fmt.Sprintf("artifact targets %s, host is %s", triple, HostTriple()), nil)
	}

	if len(r) < 4+sha256.Size {
		return nil, errors.Format("artifact truncated before payload", nil)
	}
	features := Features(binary.LittleEndian.Uint32(r))
	r = r[4:]
	if unknown := features &^ allFeatures(); unknown != 0 {
		return nil, errors.Format("artifact requires features unknown to this engine", nil)
	}
	var sum [sha256.Size]byte
	copy(sum[:], r)
	r = r[sha256.Size:]

	payloadLen, n := binary.Uvarint(r)
	if n <= 0 {
		return nil, errors.Format("artifact payload length is malformed", nil)
	}
	r = r[n:]
	if uint64(len(r)) != payloadLen {
		return nil, errors.Format(
			fmt.Sprintf("artifact payload is %d bytes, header declares %d", len(r), payloadLen), nil)
	}

	got := sha256.Sum256(r)
	if !bytes.Equal(got[:], sum[:]) {
		return nil, errors.Format("artifact checksum mismatch", nil)
	}

	return &Artifact{
		EngineVersion: version,
		Triple:        triple,
		Features:      features,
		Wasm:          r,
	}, nil
}

func readArtifactString(r []byte, what string) (string, []byte, error) {
	if len(r) < 1 {
		return "", nil, errors.Format("artifact truncated in header", nil)
	}
	n := int(r[0])
	r = r[1:]
	if len(r) < n {
		return "", nil, errors.Format(fmt.Sprintf("artifact truncated in %s", what), nil)
	}
	return string(r[:n]), r[n:], nil
}
