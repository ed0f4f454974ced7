// Package template implements the template registry: content-addressed
// persistence of graph snapshots as checksummed bundles, versioning,
// instantiation back into live graphs, and the structural/value diff engine.
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Meta describes a stored template.
type Meta struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// ForecastSpec is a declarative forecast recipe recorded in a bundle and
// applied at instantiation: each target item node is wrapped in a forecast
// node named <node><suffix>.
type ForecastSpec struct {
	Method     string    `json:"method"` // fixed | curve | historical_average | average_value
	Rate       float64   `json:"rate,omitempty"`
	Curve      []float64 `json:"curve,omitempty"`
	BasePeriod string    `json:"base_period"`
	Periods    []string  `json:"periods"`
	Nodes      []string  `json:"nodes,omitempty"`  // empty means every item node
	Suffix     string    `json:"suffix,omitempty"` // defaults to "_fc"
}

// PreprocessOp is a single preprocessing step.
type PreprocessOp struct {
	Op      string   `json:"op"`                // copy_forward | ensure_signed
	Nodes   []string `json:"nodes,omitempty"`   // ensure_signed only
	Periods []string `json:"periods,omitempty"` // copy_forward only; empty means all
	Suffix  string   `json:"suffix,omitempty"`  // ensure_signed only
}

// PreprocessingSpec is an ordered pipeline applied at instantiation, before
// any forecast recipe.
type PreprocessingSpec struct {
	Ops []PreprocessOp `json:"ops"`
}

// Bundle is an immutable persisted graph snapshot. Checksum is the lowercase
// hex SHA-256 of the canonical JSON encoding of GraphDict.
type Bundle struct {
	Meta          Meta               `json:"meta"`
	GraphDict     map[string]any     `json:"graph_dict"`
	Checksum      string             `json:"checksum"`
	Forecast      *ForecastSpec      `json:"forecast,omitempty"`
	Preprocessing *PreprocessingSpec `json:"preprocessing,omitempty"`
}

// ID returns the bundle's template id, "<name>_<version>".
func (b *Bundle) ID() string {
	return TemplateID(b.Meta.Name, b.Meta.Version)
}

// TemplateID builds the registry key for a name and version.
func TemplateID(name, version string) string {
	return fmt.Sprintf("%s_%s", name, version)
}

// Checksum computes the lowercase hex SHA-256 of the canonical JSON encoding
// of graphDict. encoding/json marshals map keys sorted with compact
// separators, which is the canonical form.
func Checksum(graphDict map[string]any) (string, error) {
	canonical, err := json.Marshal(graphDict)
	if err != nil {
		return "", ferrors.Wrap(err, ferrors.CodeInvalidPayload, "graph dict is not serializable")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// NewBundle builds a bundle over graphDict, computing its checksum.
func NewBundle(meta Meta, graphDict map[string]any) (*Bundle, error) {
	checksum, err := Checksum(graphDict)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Meta:      meta,
		GraphDict: graphDict,
		Checksum:  checksum,
	}, nil
}

// Verify recomputes the checksum and fails with a validation error on
// mismatch. A bundle failing this check is corrupt and must be rejected.
func (b *Bundle) Verify() error {
	computed, err := Checksum(b.GraphDict)
	if err != nil {
		return err
	}
	if computed != b.Checksum {
		return ferrors.New(ferrors.CodeChecksumMismatch,
			"bundle %q checksum mismatch: stored %s, computed %s",
			b.ID(), b.Checksum, computed)
	}
	return nil
}

// Encode serializes the bundle to JSON for storage.
func (b *Bundle) Encode() ([]byte, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload, "bundle is not serializable")
	}
	return payload, nil
}

// DecodeBundle parses a stored bundle and verifies its checksum.
func DecodeBundle(payload []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload, "bundle payload is not valid JSON")
	}
	if err := b.Verify(); err != nil {
		return nil, err
	}
	return &b, nil
}
