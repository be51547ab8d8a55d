package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fortunemagnet/internal/logging"
	"fortunemagnet/internal/model"
	"fortunemagnet/internal/signedurl"
)

// Stage names a step of an upload run.
type Stage string

const (
	StageGuard    Stage = "guard"
	StagePick     Stage = "pick"
	StageTicket   Stage = "ticket"
	StageUpload   Stage = "upload"
	StageProbe    Stage = "dimension-probe"
	StageFinalize Stage = "finalize"
	StageDone     Stage = "done"
	// StageUnknown tags failures raised outside the tagged stages.
	StageUnknown Stage = "unknown"
)

// Status is the outcome of a run.
type Status string

const (
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Result describes one upload run. On StatusError, Stage names where it failed.
type Result struct {
	Status    Status
	Stage     Stage
	Err       error
	FortuneID string
	Bucket    string
	Path      string
	Mime      string
	Width     int
	Height    int
	Size      int64
	SignedURL string
	Replaced  bool
}

// API is the server side of the pipeline.
type API interface {
	RequestTicket(ctx context.Context, fortuneID, mime string) (map[string]any, error)
	Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResponse, error)
}

// MediaLookup is implemented by APIs that can report the photo currently
// attached to a fortune. With a signed URL cache configured, the
// orchestrator uses it to evict the URLs of the photo being replaced.
type MediaLookup interface {
	GetMedia(ctx context.Context, fortuneID string) (*model.MediaRecord, error)
}

// Orchestrator runs ticket, upload, dimension-probe and finalize in order.
// At most one run per fortune is active; a concurrent call returns a
// cancelled result without touching the network.
type Orchestrator struct {
	api           API
	uploader      Uploader
	defaultBucket string
	urls          *signedurl.Cache
	log           *logging.Logger
	tracer        trace.Tracer
	stages        *prometheus.CounterVec
	probe         func([]byte) (int, int, error)

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for per-stage log lines.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = l.With("photo_upload") }
}

// WithSignedURLCache evicts the read URLs of the photo a successful run replaces.
func WithSignedURLCache(c *signedurl.Cache) Option {
	return func(o *Orchestrator) { o.urls = c }
}

// WithRegisterer registers the stage counter on reg. An already registered
// counter is reused.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) {
		if err := reg.Register(o.stages); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					o.stages = existing
				}
			}
		}
	}
}

// WithProbe replaces the dimension probe.
func WithProbe(p func([]byte) (int, int, error)) Option {
	return func(o *Orchestrator) { o.probe = p }
}

// NewOrchestrator constructs an Orchestrator. defaultBucket fills tickets
// that do not name one.
func NewOrchestrator(api API, uploader Uploader, defaultBucket string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:           api,
		uploader:      uploader,
		defaultBucket: defaultBucket,
		log:           logging.Nop(),
		tracer:        otel.Tracer("fortunemagnet/internal/upload"),
		probe:         ProbeDimensions,
		inflight:      make(map[string]struct{}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photo_upload_stage_total",
			Help: "Photo upload stage outcomes.",
		}, []string{"stage", "status"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PickAndUpload asks picker for a photo and uploads it. A cancelled pick
// yields a cancelled result.
func (o *Orchestrator) PickAndUpload(ctx context.Context, fortuneID string, picker Picker) Result {
	return o.run(ctx, fortuneID, func(ctx context.Context) (Payload, *Result) {
		p, err := picker.Pick(ctx)
		if errors.Is(err, ErrPickCancelled) {
			o.stage(fortuneID, StagePick, "cancelled", 0, nil)
			return Payload{}, &Result{Status: StatusCancelled, Stage: StagePick, FortuneID: fortuneID}
		}
		if err != nil {
			o.stage(fortuneID, StagePick, "error", 0, err)
			return Payload{}, &Result{Status: StatusError, Stage: StagePick, Err: err, FortuneID: fortuneID}
		}
		return p, nil
	})
}

// Upload uploads p as the photo of fortuneID.
func (o *Orchestrator) Upload(ctx context.Context, fortuneID string, p Payload) Result {
	return o.run(ctx, fortuneID, func(context.Context) (Payload, *Result) { return p, nil })
}

// InFlight reports whether a run for fortuneID is active.
func (o *Orchestrator) InFlight(fortuneID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[fortuneID]
	return ok
}

func (o *Orchestrator) acquire(fortuneID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[fortuneID]; busy {
		return false
	}
	o.inflight[fortuneID] = struct{}{}
	return true
}

func (o *Orchestrator) release(fortuneID string) {
	o.mu.Lock()
	delete(o.inflight, fortuneID)
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, fortuneID string, source func(context.Context) (Payload, *Result)) (res Result) {
	if !o.acquire(fortuneID) {
		o.stage(fortuneID, StageGuard, "cancelled", 0, nil)
		return Result{Status: StatusCancelled, Stage: StageGuard, FortuneID: fortuneID}
	}

	ctx, span := o.tracer.Start(ctx, "photo.upload", trace.WithAttributes(attribute.String("fortune.id", fortuneID)))
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			o.stage(fortuneID, StageUnknown, "error", 0, err)
			res = Result{Status: StatusError, Stage: StageUnknown, Err: err, FortuneID: fortuneID}
		}
		if res.Status == StatusError {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Stage))
		}
		span.SetAttributes(attribute.String("upload.status", string(res.Status)))
		span.End()
		o.release(fortuneID)
	}()

	p, early := source(ctx)
	if early != nil {
		return *early
	}
	return o.pipeline(ctx, fortuneID, p)
}

func (o *Orchestrator) pipeline(ctx context.Context, fortuneID string, p Payload) Result {
	fail := func(stage Stage, err error) Result {
		return Result{Status: StatusError, Stage: stage, Err: err, FortuneID: fortuneID, Mime: p.ContentType, Size: int64(len(p.Data))}
	}

	prev := o.currentMedia(ctx, fortuneID)

	start := time.Now()
	raw, err := o.api.RequestTicket(ctx, fortuneID, p.ContentType)
	if err != nil {
		o.stage(fortuneID, StageTicket, "error", time.Since(start), err)
		return fail(StageTicket, err)
	}
	o.stage(fortuneID, StageTicket, "success", time.Since(start), nil)

	ticket, err := Normalize(raw, o.defaultBucket)
	if err != nil {
		o.stage(fortuneID, StageTicket, "error", 0, err)
		return fail(StageTicket, err)
	}
	o.log.Info("ticket_normalized", merge(ticket.Debug.Fields(), map[string]any{"fortune_id": fortuneID}))

	start = time.Now()
	if err := o.uploader.Execute(ctx, ticket, p); err != nil {
		o.stage(fortuneID, StageUpload, "error", time.Since(start), err)
		return fail(StageUpload, err)
	}
	o.stage(fortuneID, StageUpload, "success", time.Since(start), nil)

	// Probe failures are not retried and surface untagged.
	w, h, err := o.probe(p.Data)
	if err != nil {
		o.stage(fortuneID, StageProbe, "error", 0, err)
		return fail(StageUnknown, err)
	}
	o.stage(fortuneID, StageProbe, "success", 0, nil)

	size := int64(len(p.Data))
	start = time.Now()
	fin, err := o.api.Finalize(ctx, FinalizeRequest{
		FortuneID: fortuneID,
		Bucket:    ticket.Bucket,
		Path:      ticket.Path,
		Mime:      p.ContentType,
		Width:     &w,
		Height:    &h,
		SizeBytes: &size,
	})
	if err != nil {
		o.stage(fortuneID, StageFinalize, "error", time.Since(start), err)
		return fail(StageFinalize, err)
	}
	o.stage(fortuneID, StageFinalize, "success", time.Since(start), nil)

	if prev != nil {
		o.urls.ClearFor(prev.Bucket, prev.Path)
	}

	o.stage(fortuneID, StageDone, "success", 0, nil)
	return Result{
		Status:    StatusDone,
		Stage:     StageDone,
		FortuneID: fortuneID,
		Bucket:    ticket.Bucket,
		Path:      ticket.Path,
		Mime:      p.ContentType,
		Width:     w,
		Height:    h,
		Size:      size,
		SignedURL: fin.SignedURL,
		Replaced:  fin.Replaced,
	}
}

// currentMedia returns the record a successful run will replace, or nil
// when there is no cache to clean up or nothing is attached yet. Lookup
// failures only cost a stale cache entry, so they do not fail the run.
func (o *Orchestrator) currentMedia(ctx context.Context, fortuneID string) *model.MediaRecord {
	lookup, ok := o.api.(MediaLookup)
	if o.urls == nil || !ok {
		return nil
	}
	rec, err := lookup.GetMedia(ctx, fortuneID)
	if err != nil {
		if !errors.Is(err, ErrNoMedia) {
			o.log.Log(map[string]any{
				"level":      "warn",
				"event":      "previous_media_lookup_failed",
				"fortune_id": fortuneID,
				"error":      err,
			})
		}
		return nil
	}
	return rec
}

func (o *Orchestrator) stage(fortuneID string, stage Stage, status string, d time.Duration, err error) {
	o.stages.WithLabelValues(string(stage), status).Inc()
	fields := map[string]any{
		"fortune_id":  fortuneID,
		"stage":       string(stage),
		"duration_ms": d.Milliseconds(),
	}
	if err != nil {
		o.log.Error("upload_stage", err, fields)
		return
	}
	fields["outcome"] = status
	o.log.Info("upload_stage", fields)
}

func merge(a, b map[string]any) map[string]any {
	for k, v := range b {
		a[k] = v
	}
	return a
}
