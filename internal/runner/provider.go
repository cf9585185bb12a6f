package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ScaleKind names a data-volume preset.
type ScaleKind uint8

const (
	Small ScaleKind = iota
	Medium
	Large
	Custom
)

// Scale is the number of root records a provider populates.
type Scale struct {
	Kind ScaleKind
	N    int64
}

var (
	ScaleSmall  = Scale{Kind: Small}
	ScaleMedium = Scale{Kind: Medium}
	ScaleLarge  = Scale{Kind: Large}
)

func CustomScale(n int64) Scale {
	return Scale{Kind: Custom, N: n}
}

// Records returns the record count the scale stands for.
func (s Scale) Records() int64 {
	switch s.Kind {
	case Small:
		return 100
	case Medium:
		return 1000
	case Large:
		return 10000
	default:
		return s.N
	}
}

func (s Scale) String() string {
	switch s.Kind {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return fmt.Sprintf("custom(%d)", s.N)
	}
}

// ParseScale accepts small, medium, large, custom(n) or a bare record count.
func ParseScale(s string) (Scale, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "small", "":
		return ScaleSmall, nil
	case "medium":
		return ScaleMedium, nil
	case "large":
		return ScaleLarge, nil
	}
	if inner, ok := strings.CutPrefix(s, "custom("); ok {
		s = strings.TrimSuffix(inner, ")")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return Scale{}, fmt.Errorf("invalid scale %q", s)
	}
	return CustomScale(n), nil
}

// Scenario is a named, reproducible data-volume configuration.
type Scenario struct {
	Name  string
	Scale Scale
}

// Handle identifies a scenario a provider has set up. State is owned by the
// provider.
type Handle struct {
	ID       string
	Scenario Scenario
	State    any
}

// Provider supplies schema and data for a scenario on one backend.
//
// SetupScenario returns a *SetupError on failure. Populate either seeds the
// whole scale or fails. Cleanup must accept the handle of a partially failed
// setup, including nil.
type Provider interface {
	SetupScenario(ctx context.Context, scenario Scenario) (*Handle, error)
	Populate(ctx context.Context, h *Handle, scale Scale) (int64, error)
	Cleanup(ctx context.Context, h *Handle) error
}

// SetupErrorKind distinguishes why a scenario could not be prepared.
type SetupErrorKind uint8

const (
	BackendUnreachable SetupErrorKind = iota + 1
	SchemaConflict
	PopulateFailed
)

func (k SetupErrorKind) String() string {
	switch k {
	case BackendUnreachable:
		return "backend unreachable"
	case SchemaConflict:
		return "schema conflict"
	case PopulateFailed:
		return "populate failed"
	}
	return "setup failed"
}

type SetupError struct {
	Kind     SetupErrorKind
	Scenario string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %s: %v", e.Scenario, e.Kind, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// WorkloadError wraps a failure raised by benchmark work. It is the only
// error Run returns.
type WorkloadError struct {
	Benchmark string
	Err       error
}

func (e *WorkloadError) Error() string {
	return fmt.Sprintf("workload %s: %v", e.Benchmark, e.Err)
}

func (e *WorkloadError) Unwrap() error { return e.Err }

// InstrumentationError is a collector failure that degrades a result.
type InstrumentationError struct {
	Instrument string
	Op         string
	Err        error
}

func (e *InstrumentationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Instrument, e.Op, e.Err)
}

func (e *InstrumentationError) Unwrap() error { return e.Err }

// AsSetupError classifies err as a setup failure of kind unless it already is one.
func AsSetupError(scenario string, kind SetupErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var se *SetupError
	if errors.As(err, &se) {
		return err
	}
	return &SetupError{Kind: kind, Scenario: scenario, Err: err}
}
