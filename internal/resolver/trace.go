package resolver

import (
	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// TraceRecorder accumulates the audit record for one address. It is the only
// writer of SearchMetadata: the orchestrator reports events and reads nothing
// back except through Finish.
type TraceRecorder struct {
	meta models.SearchMetadata
}

// NewTraceRecorder starts an empty trace with no accepted method.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{meta: models.SearchMetadata{
		AcceptedMethod: models.MethodNoneAccepted,
		ResultsByName:  make(map[models.SearchMethod]int),
	}}
}

// Append records one attempted method, updating the result counters and the
// accepted-method marker when the attempt carried an acceptance.
func (tr *TraceRecorder) Append(attempt models.SearchAttempt) {
	tr.meta.Attempts = append(tr.meta.Attempts, attempt)
	if attempt.ResultCount > 0 {
		tr.meta.ResultsTotal += attempt.ResultCount
		tr.meta.ResultsByName[attempt.Method] += attempt.ResultCount
	}
	if attempt.Accepted {
		tr.meta.AcceptedMethod = attempt.Method
		tr.meta.Successful = true
	}
}

// Skip records a method that did not run, with the precise reason, so the
// trace always explains every method in the fallback order.
func (tr *TraceRecorder) Skip(method models.SearchMethod, query, reason string) {
	tr.meta.Attempts = append(tr.meta.Attempts, models.SearchAttempt{
		Method:          method,
		Query:           query,
		ResultStatus:    models.StatusSkipped,
		RejectionReason: reason,
	})
}

// RecordFuzzy stores the fuzzy street match outcome alongside the attempts.
func (tr *TraceRecorder) RecordFuzzy(best *models.StreetCandidate, scored []models.StreetCandidate) {
	tr.meta.FuzzyStreet = best
	tr.meta.FuzzyScored = scored
}

// Finish seals the trace. The final error is recorded only when no method
// was accepted.
func (tr *TraceRecorder) Finish(finalError string) models.SearchMetadata {
	if !tr.meta.Successful {
		tr.meta.FinalError = finalError
	}
	if len(tr.meta.ResultsByName) == 0 {
		tr.meta.ResultsByName = nil
	}
	return tr.meta
}
