// Package trace reads and writes recorded input traces: the raw sample
// batches a platform backend delivered, with the buffer epoch and gesture
// gate in force for each batch. Traces drive offline replay and are
// validated against an embedded JSON Schema before decoding.
package trace

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/crypto/blake2b"

	"dabflow/internal/ingress"
	"dabflow/internal/input"
)

// Version is the trace format version this package reads and writes.
const Version = 1

const schemaURL = "https://dabflow.dev/schema/trace-v1.schema.json"

//go:embed schema/trace-v1.schema.json
var schemaJSON []byte

// ErrInvalidTrace is returned when a trace fails schema validation or
// cannot be decoded.
var ErrInvalidTrace = errors.New("trace: invalid trace")

// Canvas is the canvas size the trace was recorded against.
type Canvas struct {
	WidthPx  float64 `json:"width_px"`
	HeightPx float64 `json:"height_px"`
}

// Batch is one delivery from the platform input buffer.
type Batch struct {
	BufferEpoch uint64            `json:"buffer_epoch"`
	Gate        ingress.GateState `json:"gate"`
	Samples     []input.Sample    `json:"samples"`
}

// Trace is a recorded input session.
type Trace struct {
	Version int     `json:"version"`
	Name    string  `json:"name,omitempty"`
	Canvas  *Canvas `json:"canvas,omitempty"`
	Batches []Batch `json:"batches"`
}

// New returns an empty trace at the current version.
func New(name string) *Trace {
	return &Trace{Version: Version, Name: name, Batches: []Batch{}}
}

// Append records a batch. The samples slice is copied.
func (t *Trace) Append(epoch uint64, gate ingress.GateState, samples []input.Sample) {
	t.Batches = append(t.Batches, Batch{
		BufferEpoch: epoch,
		Gate:        gate,
		Samples:     append([]input.Sample(nil), samples...),
	})
}

// SampleCount returns the number of samples across all batches.
func (t *Trace) SampleCount() int {
	n := 0
	for _, b := range t.Batches {
		n += len(b.Samples)
	}
	return n
}

// Strokes returns the number of distinct stroke ids that have a down.
func (t *Trace) Strokes() int {
	seen := make(map[uint64]struct{})
	for _, b := range t.Batches {
		for _, s := range b.Samples {
			if s.Phase == input.PhaseDown {
				seen[s.StrokeID] = struct{}{}
			}
		}
	}
	return len(seen)
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add trace schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks raw trace JSON against the trace schema.
func Validate(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	return nil
}

// Decode validates and decodes trace JSON.
func Decode(data []byte) (*Trace, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	return &t, nil
}

// Read decodes a trace from r.
func Read(r io.Reader) (*Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return Decode(data)
}

// Load reads and decodes the trace file at path.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Encode serializes the trace as indented JSON.
func (t *Trace) Encode() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Write encodes t to w.
func Write(w io.Writer, t *Trace) error {
	data, err := t.Encode()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// Save writes t to path.
func Save(path string, t *Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Digest returns the hex BLAKE2b-256 digest of the trace's compact JSON
// encoding. Two traces with the same batches have the same digest
// regardless of how their files were formatted.
func (t *Trace) Digest() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode trace: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
