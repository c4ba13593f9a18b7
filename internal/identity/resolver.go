package identity

//go:generate mockgen -source=resolver.go -destination=mocks/mocks.go -package=mocks Prober,Extractor,Directory,AuditPublisher

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mfrid/internal/directory"
	"mfrid/internal/platform/metrics"
	"mfrid/internal/smartcard/certificate"
	"mfrid/internal/smartcard/probe"
	"mfrid/pkg/platform/audit"
	"mfrid/pkg/requestcontext"
)

const tracerName = "mfrid/internal/identity"

// Prober reports whether a card is ready to read.
type Prober interface {
	Probe(ctx context.Context) probe.Result
}

// Extractor reads and parses the card's certificate subject.
type Extractor interface {
	Extract(ctx context.Context) (*certificate.Subject, error)
}

// Directory looks up rank and title for a card holder.
type Directory interface {
	Available() bool
	Lookup(ctx context.Context, name, uid string) (*directory.Record, error)
}

// AuditPublisher records one event per resolution attempt.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Resolver runs probe, extract, directory lookup and merge in sequence.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	prober    Prober
	extractor Extractor
	directory Directory

	auditor AuditPublisher
	hasher  *audit.Hasher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = t
	}
}

// WithAuditor emits an audit event per attempt. The hasher pseudonymises
// the card UID before it leaves the process.
func WithAuditor(p AuditPublisher, hasher *audit.Hasher) Option {
	return func(r *Resolver) {
		r.auditor = p
		r.hasher = hasher
	}
}

func NewResolver(p Prober, e Extractor, d Directory, opts ...Option) *Resolver {
	r := &Resolver{
		prober:    p,
		extractor: e,
		directory: d,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hasher == nil {
		r.hasher = audit.NewHasher("")
	}
	return r
}

// Resolve runs one attempt. It never returns a Go error: every failure is a
// categorized ResolutionError on the result.
func (r *Resolver) Resolve(ctx context.Context) Resolution {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "identity.Resolve")
	defer span.End()

	res := r.resolve(ctx)

	result := "success"
	if res.Err != nil {
		result = string(res.Err.Category)
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Code)
		r.logger.InfoContext(ctx, "identity resolution failed",
			"category", string(res.Err.Category),
			"code", res.Err.Code,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		span.SetAttributes(
			attribute.String("identity.branch", res.Identity.Branch),
			attribute.Bool("identity.directory_enriched", res.Identity.DirectoryEnriched),
		)
		r.logger.InfoContext(ctx, "identity resolved",
			"branch", res.Identity.Branch,
			"directory_enriched", res.Identity.DirectoryEnriched,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	r.metrics.IncrementResolution(result)
	r.emitAudit(ctx, res, time.Since(start))
	return res
}

func (r *Resolver) resolve(ctx context.Context) Resolution {
	res := Resolution{DirectoryAvailable: r.directory.Available()}

	res.Probe = r.probe(ctx)
	switch res.Probe.Outcome {
	case probe.OutcomeToolMissing:
		res.Err = errToolMissing(res.Probe.Err)
		return res
	case probe.OutcomeNoReader:
		if res.Probe.Err != nil {
			res.Err = errSlotListing(res.Probe.Err)
		} else {
			res.Err = errNoReader()
		}
		return res
	case probe.OutcomeNoCard:
		res.Err = errNoCard(res.Probe.Ambiguous)
		return res
	case probe.OutcomeCardPresent:
	default:
		res.Err = errInternal("unknown probe outcome " + res.Probe.Outcome.String())
		return res
	}

	subject, err := r.extract(ctx)
	if err != nil {
		res.Err = errUnreadable(err)
		return res
	}
	if subject.Ambiguous {
		res.Warnings = append(res.Warnings, CategoryParseAmbiguous)
		r.logger.WarnContext(ctx, "certificate common name does not follow LAST.FIRST.MIDDLE",
			"category", string(CategoryParseAmbiguous),
		)
	}

	uid := subject.UID
	if uid == certificate.UnknownUID {
		uid = ""
	}
	var rec *directory.Record
	switch {
	case !res.DirectoryAvailable:
		res.Warnings = append(res.Warnings, CategoryDirectoryUnavailable)
	case subject.FullName == "" && uid == "":
		r.metrics.IncrementDirectoryLookup("skipped")
	default:
		rec, err = r.lookup(ctx, subject.FullName, uid)
		if err != nil {
			res.Warnings = append(res.Warnings, CategoryDirectoryUnavailable)
			r.logger.WarnContext(ctx, "directory lookup unavailable, continuing with certificate data",
				"category", string(CategoryDirectoryUnavailable),
				"error", err,
			)
		}
	}
	res.DirectoryFound = rec != nil

	res.Identity = Merge(subject, rec)
	return res
}

func (r *Resolver) probe(ctx context.Context) probe.Result {
	ctx, span := r.tracer.Start(ctx, "smartcard.Probe")
	defer span.End()
	defer r.metrics.ObserveStep("probe", time.Now())

	res := r.prober.Probe(ctx)
	r.metrics.IncrementProbeOutcome(res.Outcome.String())
	span.SetAttributes(
		attribute.String("probe.outcome", res.Outcome.String()),
		attribute.Bool("probe.ambiguous", res.Ambiguous),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	return res
}

func (r *Resolver) extract(ctx context.Context) (*certificate.Subject, error) {
	ctx, span := r.tracer.Start(ctx, "smartcard.Extract")
	defer span.End()
	defer r.metrics.ObserveStep("extract", time.Now())

	subject, err := r.extractor.Extract(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "certificate unreadable")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("certificate.ambiguous", subject.Ambiguous))
	return subject, nil
}

func (r *Resolver) lookup(ctx context.Context, name, uid string) (*directory.Record, error) {
	ctx, span := r.tracer.Start(ctx, "directory.Lookup")
	defer span.End()
	defer r.metrics.ObserveStep("directory", time.Now())

	rec, err := r.directory.Lookup(ctx, name, uid)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("directory.found", rec != nil))
	return rec, err
}

func (r *Resolver) emitAudit(ctx context.Context, res Resolution, elapsed time.Duration) {
	if r.auditor == nil {
		return
	}
	event := audit.Event{
		Action:     audit.EventIdentityResolved,
		Timestamp:  requestcontext.Now(ctx).UTC(),
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
		Decision:   "success",
		DurationMS: elapsed.Milliseconds(),
	}
	if res.Err != nil {
		event.Action = audit.EventResolutionFailed
		event.Decision = string(res.Err.Category)
		event.Reason = res.Err.Code
	} else {
		event.SubjectIDHash = r.hasher.Hash(res.Identity.UID)
		event.Branch = res.Identity.Branch
		event.DirectoryEnriched = res.Identity.DirectoryEnriched
	}
	// The event outlives the request; a caller that gave up still gets audited.
	if err := r.auditor.Emit(context.WithoutCancel(ctx), event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
}
