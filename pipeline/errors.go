package pipeline

import (
	"errors"

	"factorlab/factor"
	"factorlab/market"
)

// Stage names a step of the run.
type Stage string

const (
	StageConfig      Stage = "config"
	StageAcquire     Stage = "acquire"
	StageClean       Stage = "clean"
	StageReturns     Stage = "returns"
	StageStandardize Stage = "standardize"
	StageDiagnose    Stage = "diagnose"
	StageGate        Stage = "gate"
	StageExtract     Stage = "extract"
	StageRegress     Stage = "regress"
	StagePersist     Stage = "persist"
)

var (
	ErrConfig            = &AnalysisError{Code: "config", Message: "invalid configuration"}
	ErrAcquisition       = &AnalysisError{Code: "acquisition", Message: "data acquisition failed"}
	ErrAlignment         = &AnalysisError{Code: "alignment", Message: "returns and risk-free series do not overlap"}
	ErrDegenerateInput   = &AnalysisError{Code: "degenerate_input", Message: "cannot analyze input"}
	ErrNotConverged      = &AnalysisError{Code: "not_converged", Message: "factor extraction did not converge"}
	ErrMissingExtraction = &AnalysisError{Code: "missing_dependency", Message: "attribution requires a successful extraction"}
	ErrStorage           = &AnalysisError{Code: "storage", Message: "run log failed"}
)

// AnalysisError 分析错误：记录失败的阶段与原因
type AnalysisError struct {
	Stage   Stage
	Code    string
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = string(e.Stage) + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is matches on Code, so errors.Is(err, ErrAlignment) holds for any stage.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Code == e.Code
}

func fail(stage Stage, sentinel *AnalysisError, err error) *AnalysisError {
	return &AnalysisError{Stage: stage, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// classify maps errors from the numeric packages onto the taxonomy.
func classify(stage Stage, err error) error {
	var degenerate *factor.DegenerateInputError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &degenerate):
		return fail(stage, ErrDegenerateInput, err)
	case errors.Is(err, factor.ErrSingularCorrelation):
		return fail(stage, ErrDegenerateInput, err)
	case errors.Is(err, factor.ErrNotConverged):
		return fail(stage, ErrNotConverged, err)
	case errors.Is(err, factor.ErrMissingExtraction):
		return fail(stage, ErrMissingExtraction, err)
	case errors.Is(err, market.ErrNoOverlap):
		return fail(stage, ErrAlignment, err)
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return &AnalysisError{Stage: stage, Code: "internal", Message: "unexpected failure", Err: err}
}
