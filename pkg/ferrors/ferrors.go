// Package ferrors provides structured error handling for the fingraph core.
// It defines error codes and categories for every failure kind the graph,
// engine, metric registry, and template registry can produce, so callers can
// branch on category with errors.As instead of matching message strings.
package ferrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a unique error code within the fingraph error taxonomy
type ErrorCode string

// ErrorCategory groups error codes by subsystem
type ErrorCategory string

const (
	// CategoryConfiguration represents bad or missing definitions (CFG001-099)
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryCalculation represents node evaluation failures (CAL100-199)
	CategoryCalculation ErrorCategory = "calculation"
	// CategoryNode represents referential-integrity failures (NOD200-299)
	CategoryNode ErrorCategory = "node"
	// CategoryCycle represents circular-dependency failures (CYC300-399)
	CategoryCycle ErrorCategory = "cycle"
	// CategoryPeriod represents unknown/invalid period failures (PER400-499)
	CategoryPeriod ErrorCategory = "period"
	// CategoryValidation represents malformed payloads and integrity failures (VAL500-599)
	CategoryValidation ErrorCategory = "validation"
	// CategoryStrategy represents calculation-strategy misconfiguration (STR600-699)
	CategoryStrategy ErrorCategory = "strategy"
	// CategoryMetric represents metric-definition failures (MET700-799)
	CategoryMetric ErrorCategory = "metric"
)

const (
	// CodeUnknownMetric indicates a metric name with no registered definition.
	CodeUnknownMetric ErrorCode = "MET701"
	// CodeMetricInputMissing indicates metric inputs that resolve to no graph node.
	CodeMetricInputMissing ErrorCode = "MET702"
	// CodeCalculationFailed wraps any failure during node evaluation.
	CodeCalculationFailed ErrorCode = "CAL101"
	// CodeDivisionByZero indicates a zero divisor in a division strategy or formula.
	CodeDivisionByZero ErrorCode = "CAL102"
	// CodeNodeNotFound indicates a lookup of a name absent from the graph.
	CodeNodeNotFound ErrorCode = "NOD201"
	// CodeNodeWrongKind indicates an operation applied to an incompatible node kind.
	CodeNodeWrongKind ErrorCode = "NOD202"
	// CodeNodeExists indicates a name clash on registration.
	CodeNodeExists ErrorCode = "NOD203"
	// CodeCycleDetected indicates the dependency relation is not a DAG.
	CodeCycleDetected ErrorCode = "CYC301"
	// CodeUnknownPeriod indicates a period outside the graph's declared set.
	CodeUnknownPeriod ErrorCode = "PER401"
	// CodeInvalidPayload indicates a malformed import/export payload.
	CodeInvalidPayload ErrorCode = "VAL501"
	// CodeChecksumMismatch indicates a bundle failing its integrity check.
	CodeChecksumMismatch ErrorCode = "VAL502"
	// CodePathTraversal indicates a registry index entry escaping the store root.
	CodePathTraversal ErrorCode = "VAL503"
	// CodeUnknownStrategy indicates an unrecognized calculation method key.
	CodeUnknownStrategy ErrorCode = "STR601"
	// CodeBadStrategyConfig indicates strategy parameters failing validation.
	CodeBadStrategyConfig ErrorCode = "STR602"
	// CodeBadDefinition indicates an invalid or unrestorable configuration.
	CodeBadDefinition ErrorCode = "CFG001"
	// CodeTemplateExists indicates registration under an already-taken template id.
	CodeTemplateExists ErrorCode = "CFG002"
	// CodeTemplateNotFound indicates an unknown template id.
	CodeTemplateNotFound ErrorCode = "CFG003"
	// CodeFormulaSyntax indicates a formula string outside the supported grammar.
	CodeFormulaSyntax ErrorCode = "VAL504"
)

// Error is a structured fingraph error. Fields beyond Code/Category/Message
// are populated when the failing operation has them: NodeID and Period for
// evaluation failures, Metric for metric lookups, CyclePath for cycle reports.
type Error struct {
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	NodeID    string        `json:"node_id,omitempty"`
	Period    string        `json:"period,omitempty"`
	Metric    string        `json:"metric,omitempty"`
	CyclePath []string      `json:"cycle_path,omitempty"`
	Cause     error         `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.NodeID != "" {
		fmt.Fprintf(&b, " (node %q", e.NodeID)
		if e.Period != "" {
			fmt.Fprintf(&b, ", period %q", e.Period)
		}
		b.WriteString(")")
	}
	if len(e.CyclePath) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.CyclePath, " -> "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is/errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and formatted message
func New(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Category: categoryOf(code),
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error that records err as its cause. A nil err yields the
// same result as New.
func Wrap(err error, code ErrorCode, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = err
	return e
}

// WithNode attaches the failing node id
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithPeriod attaches the failing period
func (e *Error) WithPeriod(period string) *Error {
	e.Period = period
	return e
}

// WithMetric attaches the metric name
func (e *Error) WithMetric(metric string) *Error {
	e.Metric = metric
	return e
}

// WithCycle attaches the cycle path, first node repeated at the end
func (e *Error) WithCycle(path []string) *Error {
	e.CyclePath = path
	return e
}

// IsCategory reports whether err is (or wraps) a fingraph Error of the given
// category.
func IsCategory(err error, cat ErrorCategory) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Category == cat
}

// IsCode reports whether err is (or wraps) a fingraph Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code == code
}

func categoryOf(code ErrorCode) ErrorCategory {
	switch {
	case strings.HasPrefix(string(code), "CFG"):
		return CategoryConfiguration
	case strings.HasPrefix(string(code), "CAL"):
		return CategoryCalculation
	case strings.HasPrefix(string(code), "NOD"):
		return CategoryNode
	case strings.HasPrefix(string(code), "CYC"):
		return CategoryCycle
	case strings.HasPrefix(string(code), "PER"):
		return CategoryPeriod
	case strings.HasPrefix(string(code), "STR"):
		return CategoryStrategy
	case strings.HasPrefix(string(code), "MET"):
		return CategoryMetric
	default:
		return CategoryValidation
	}
}
