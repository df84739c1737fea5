// Package resolver sequences the fallback search methods for one address and
// runs batches of addresses through a bounded worker pool.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oceanstate-routing/pinpoint/internal/interpolator"
	"github.com/oceanstate-routing/pinpoint/internal/lookup"
	"github.com/oceanstate-routing/pinpoint/internal/matcher"
	"github.com/oceanstate-routing/pinpoint/internal/metrics"
	"github.com/oceanstate-routing/pinpoint/internal/models"
	"github.com/oceanstate-routing/pinpoint/internal/validator"
)

// ErrExhausted classifies the terminal not-found outcome for one address.
var ErrExhausted = errors.New("no accepted result after all search methods")

// Normalizer is the repair pipeline boundary.
type Normalizer interface {
	Normalize(ctx context.Context, raw models.RawAddress) models.TaggedAddress
}

// Cache is the address-result cache boundary.
type Cache interface {
	CachedRecord(ctx context.Context, raw string) (*models.ResolutionRecord, error)
	StoreRecord(ctx context.Context, raw string, record models.ResolutionRecord) error
}

// StreetSource supplies the fuzzy-matching candidate pool for a ZIP.
type StreetSource interface {
	DistinctStreetsInZip(ctx context.Context, zip string) ([]string, error)
}

// Orchestrator resolves one raw address through the fixed fallback order,
// stopping at the first validator acceptance. It owns the only mutable state
// of a resolution (the trace) and never fails: every outcome is a record.
type Orchestrator struct {
	log          *slog.Logger
	normalizer   Normalizer
	gateway      lookup.Gateway
	matcher      *matcher.Matcher
	interp       *interpolator.Interpolator
	validator    *validator.Validator
	streets      StreetSource
	cache        Cache
	metrics      *metrics.Metrics
	queryTimeout time.Duration
}

// NewOrchestrator wires the resolution pipeline. The cache may be nil, in
// which case every address is resolved from scratch.
func NewOrchestrator(
	log *slog.Logger,
	normalizer Normalizer,
	gateway lookup.Gateway,
	streetMatcher *matcher.Matcher,
	interp *interpolator.Interpolator,
	check *validator.Validator,
	streets StreetSource,
	cache Cache,
	mtr *metrics.Metrics,
	queryTimeout time.Duration,
) *Orchestrator {
	const defaultTimeout = 15 * time.Second
	if queryTimeout <= 0 {
		queryTimeout = defaultTimeout
	}
	return &Orchestrator{
		log:          log,
		normalizer:   normalizer,
		gateway:      gateway,
		matcher:      streetMatcher,
		interp:       interp,
		validator:    check,
		streets:      streets,
		cache:        cache,
		metrics:      mtr,
		queryTimeout: queryTimeout,
	}
}

// Resolve runs the full pipeline for one raw address and returns its record.
// It never returns an error: failures are captured inside the record so a
// batch is never aborted by one bad address.
func (o *Orchestrator) Resolve(ctx context.Context, raw models.RawAddress) models.ResolutionRecord {
	start := time.Now()

	if strings.TrimSpace(raw.Address) == "" {
		return models.ResolutionRecord{
			Raw: raw,
			Search: models.SearchMetadata{
				AcceptedMethod: models.MethodNoneAccepted,
				FinalError:     "empty address",
			},
			ElapsedMs: time.Since(start).Milliseconds(),
		}
	}

	if o.cache != nil {
		cached, err := o.cache.CachedRecord(ctx, raw.Address)
		if err != nil {
			o.log.ErrorContext(ctx, "cache lookup failed", "address", raw.Address, "error", err)
		} else if cached != nil {
			o.log.DebugContext(ctx, "address answered from cache", "address", raw.Address)
			o.metrics.CacheHits.Inc()
			record := *cached
			record.Raw = raw
			record.TagMetadata.FromCache = true
			record.ElapsedMs = time.Since(start).Milliseconds()
			return record
		}
	}

	tagged := o.normalizer.Normalize(ctx, raw)
	trace := NewTraceRecorder()

	final := o.runMethods(ctx, tagged, trace)

	record := models.ResolutionRecord{
		Raw:         raw,
		TagMetadata: tagged,
		Search:      trace.Finish(ErrExhausted.Error()),
		FinalResult: final,
		ElapsedMs:   time.Since(start).Milliseconds(),
	}

	if o.cache != nil && record.Search.Successful {
		if err := o.cache.StoreRecord(ctx, raw.Address, record); err != nil {
			o.log.ErrorContext(ctx, "failed to store record in cache", "address", raw.Address, "error", err)
		}
	}
	return record
}

// runMethods walks the fixed fallback order, returning the first accepted
// candidate or nil on exhaustion. Every method leaves exactly one attempt in
// the trace, skipped methods included.
func (o *Orchestrator) runMethods(ctx context.Context, tagged models.TaggedAddress, trace *TraceRecorder) *models.CandidateResult {
	// Method 1: free-text query with the fully repaired string.
	if tagged.RepairedAddress == "" {
		trace.Skip(models.MethodFreeText, "", "empty repaired address")
	} else {
		query := lookup.Query{FreeText: tagged.RepairedAddress}
		if res := o.attemptGateway(ctx, models.MethodFreeText, query, tagged, trace); res != nil {
			return res
		}
	}

	// Method 2: house number + street + ZIP.
	if tagged.MissingHouseNumber || tagged.MissingStreetName || tagged.MissingZip {
		trace.Skip(models.MethodNumberStreetZip, "", "missing house number, street, or zip")
	} else {
		query := lookup.Query{
			HouseNumber: tagged.HouseNumber,
			Street:      tagged.StreetName,
			Zip:         tagged.Zip,
		}
		if res := o.attemptGateway(ctx, models.MethodNumberStreetZip, query, tagged, trace); res != nil {
			return res
		}
	}

	// Method 3: house number + street + city + state.
	if tagged.MissingHouseNumber || tagged.MissingStreetName || tagged.MissingCity || tagged.MissingState {
		trace.Skip(models.MethodNumberStreetCity, "", "missing house number, street, city, or state")
	} else {
		query := lookup.Query{
			HouseNumber: tagged.HouseNumber,
			Street:      tagged.StreetName,
			City:        tagged.City,
			State:       tagged.State,
		}
		if res := o.attemptGateway(ctx, models.MethodNumberStreetCity, query, tagged, trace); res != nil {
			return res
		}
	}

	// Method 4: fuzzy street match within the ZIP, then a structured query
	// with the matched street. The match also gates method 5.
	var matchedStreet *models.StreetCandidate
	switch {
	case tagged.MissingZip || tagged.MissingStreetName:
		trace.Skip(models.MethodFuzzyStreetZip, "", "missing zip or street name")
	default:
		streets, err := o.streets.DistinctStreetsInZip(ctx, tagged.Zip)
		if err != nil {
			trace.Append(models.SearchAttempt{
				Method:       models.MethodFuzzyStreetZip,
				Query:        tagged.Zip,
				ResultStatus: models.StatusError,
				Error:        fmt.Sprintf("street pool query failed: %v", err),
			})
			break
		}
		best, scored := o.matcher.BestMatch(tagged.StreetName, streets)
		trace.RecordFuzzy(best, scored)
		if best == nil {
			trace.Skip(models.MethodFuzzyStreetZip, tagged.Zip, "no street match above similarity threshold")
			break
		}
		matchedStreet = best
		query := lookup.Query{
			HouseNumber: tagged.HouseNumber,
			Street:      best.Name,
			Zip:         tagged.Zip,
		}
		if res := o.attemptGateway(ctx, models.MethodFuzzyStreetZip, query, tagged, trace); res != nil {
			return res
		}
	}

	// Method 5: geometric fallback against the range database, only when
	// method 4 produced a plausible street.
	switch {
	case matchedStreet == nil:
		trace.Skip(models.MethodRangeInterpolation, "", "no fuzzy street match")
	case tagged.MissingHouseNumber:
		trace.Skip(models.MethodRangeInterpolation, "", "missing house number")
	default:
		if res := o.attemptInterpolation(ctx, tagged, matchedStreet.Name, trace); res != nil {
			return res
		}
	}
	return nil
}

// attemptGateway executes one lookup method with timing, error capture, and
// per-candidate validation. Returns the accepted candidate or nil.
func (o *Orchestrator) attemptGateway(
	ctx context.Context,
	method models.SearchMethod,
	query lookup.Query,
	tagged models.TaggedAddress,
	trace *TraceRecorder,
) *models.CandidateResult {
	callCtx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	start := time.Now()
	candidates, err := o.gateway.Search(callCtx, query)
	elapsed := time.Since(start)
	o.metrics.MethodSeconds.WithLabelValues(string(method)).Observe(elapsed.Seconds())

	attempt := models.SearchAttempt{
		Method:    method,
		Query:     query.Describe(),
		ElapsedMs: elapsed.Milliseconds(),
	}

	if err != nil {
		o.log.ErrorContext(ctx, "lookup method failed", "method", method, "error", err)
		o.metrics.LookupErrors.Inc()
		attempt.ResultStatus = models.StatusError
		attempt.Error = err.Error()
		trace.Append(attempt)
		return nil
	}
	if len(candidates) == 0 {
		attempt.ResultStatus = models.StatusNoneFound
		trace.Append(attempt)
		return nil
	}

	attempt.ResultStatus = models.StatusReturned
	attempt.ResultCount = len(candidates)
	attempt.Candidates = candidates

	for i := range candidates {
		accepted, reason, detail := o.validator.Check(candidates[i], tagged)
		if accepted {
			attempt.Accepted = true
			attempt.RejectionReason = ""
			attempt.RejectionDetail = ""
			trace.Append(attempt)
			o.metrics.MethodAccepted.WithLabelValues(string(method)).Inc()
			result := candidates[i]
			return &result
		}
		// The last rejection explains the attempt.
		attempt.RejectionReason = reason
		attempt.RejectionDetail = detail
	}
	trace.Append(attempt)
	return nil
}

// attemptInterpolation runs the range-database fallback as one attempt.
func (o *Orchestrator) attemptInterpolation(
	ctx context.Context,
	tagged models.TaggedAddress,
	street string,
	trace *TraceRecorder,
) *models.CandidateResult {
	callCtx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	start := time.Now()
	candidate, err := o.interp.Locate(callCtx, tagged.Zip, "%"+street+"%", tagged.HouseNumber)
	elapsed := time.Since(start)
	o.metrics.MethodSeconds.WithLabelValues(string(models.MethodRangeInterpolation)).Observe(elapsed.Seconds())

	attempt := models.SearchAttempt{
		Method:    models.MethodRangeInterpolation,
		Query:     fmt.Sprintf("%s %s, %s", tagged.HouseNumber, street, tagged.Zip),
		ElapsedMs: elapsed.Milliseconds(),
	}

	switch {
	case errors.Is(err, interpolator.ErrNoRanges):
		attempt.ResultStatus = models.StatusNoneFound
	case err != nil:
		o.log.ErrorContext(ctx, "range interpolation failed", "error", err)
		attempt.ResultStatus = models.StatusError
		attempt.Error = err.Error()
	case candidate == nil:
		attempt.ResultStatus = models.StatusNoneFound
	default:
		attempt.ResultStatus = models.StatusReturned
		attempt.ResultCount = 1
		attempt.Candidates = []models.CandidateResult{*candidate}
		accepted, reason, detail := o.validator.Check(*candidate, tagged)
		if accepted {
			attempt.Accepted = true
			trace.Append(attempt)
			o.metrics.MethodAccepted.WithLabelValues(string(models.MethodRangeInterpolation)).Inc()
			return candidate
		}
		attempt.RejectionReason = reason
		attempt.RejectionDetail = detail
	}
	trace.Append(attempt)
	return nil
}
