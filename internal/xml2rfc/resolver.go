package xml2rfc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bibxml/pkg/models"
)

type Method string

const (
	MethodManual   Method = "manual"
	MethodAuto     Method = "auto"
	MethodFallback Method = "fallback"
)

// Methods is the fixed order in which stages run and are reported.
var Methods = []Method{MethodManual, MethodAuto, MethodFallback}

// Metric outcome labels.
const (
	OutcomeSuccess         = "success"
	OutcomeSuccessFallback = "success_fallback"
	OutcomeNotFound        = "not_found"
)

// Outcome records one attempted stage.
type Outcome struct {
	Method Method `json:"method"`
	Config string `json:"config"`
	Error  string `json:"error"`
}

// ManualLookup finds the manual mapping for an exact subpath.
type ManualLookup interface {
	Get(ctx context.Context, subpath string) (*models.ManualPathMap, error)
}

// CitationBuilder builds an item for a mapped docid.
type CitationBuilder interface {
	BuildCitationForDocID(ctx context.Context, id, doctype string) (*models.BibliographicItem, error)
}

// SnapshotLookup finds a fallback snapshot by canonical subpath.
type SnapshotLookup interface {
	Get(ctx context.Context, subpath string) (*models.Snapshot, error)
}

type Serializer interface {
	Serialize(item *models.BibliographicItem, anchor string) (string, error)
}

// MetricsSink counts resolutions by subpath and outcome label.
type MetricsSink interface {
	Increment(subpath, outcome string)
}

// EventSink receives every finished resolution.
type EventSink interface {
	Publish(r *Report)
}

// Request is one compat lookup. Subpath is "<dirname>/<file>" as requested;
// Anchor drives lookups; AnchorOverride, when set, is written to the output.
type Request struct {
	Subpath        string
	Anchor         string
	AnchorOverride string
}

// Dirname returns the directory segment of the subpath.
func (r Request) Dirname() string {
	parts := strings.Split(r.Subpath, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// Report is the result of one resolution. XML is empty when every
// stage failed.
type Report struct {
	Subpath  string
	Anchor   string
	Outcomes []Outcome
	Item     *models.BibliographicItem
	XML      string
}

func (r *Report) Found() bool { return r.XML != "" }

// UsedFallback reports whether the XML came from a snapshot.
func (r *Report) UsedFallback() bool { return r.Found() && r.Item == nil }

func (r *Report) Outcome(m Method) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Method == m {
			return o, true
		}
	}
	return Outcome{}, false
}

// MetricLabel is the final outcome label of the resolution.
func (r *Report) MetricLabel() string {
	switch {
	case !r.Found():
		return OutcomeNotFound
	case r.UsedFallback():
		return OutcomeSuccessFallback
	default:
		return OutcomeSuccess
	}
}

// MethodsHeader is the X-Resolution-Methods value.
func (r *Report) MethodsHeader() string { return methodsHeader() }

// methodsHeader lists every method in execution order, whether or not it ran.
func methodsHeader() string {
	names := make([]string, len(Methods))
	for i, m := range Methods {
		names[i] = string(m)
	}
	return strings.Join(names, ";")
}

// OutcomesHeader is the X-Resolution-Outcomes value: one "config,error"
// slot per method. The manual stage always runs, so its slot is "," when
// no mapping exists; later stages that did not run are empty.
func (r *Report) OutcomesHeader() string {
	slots := make([]string, len(Methods))
	for i, m := range Methods {
		if o, ok := r.Outcome(m); ok {
			slots[i] = o.Config + "," + o.Error
		} else if m == MethodManual {
			slots[i] = ","
		}
	}
	return strings.Join(slots, ";")
}

// FailureMessage lists every attempted stage.
func (r *Report) FailureMessage() string {
	tried := make([]string, 0, len(r.Outcomes))
	for _, m := range Methods {
		if o, ok := r.Outcome(m); ok {
			tried = append(tried, fmt.Sprintf("%s (%s): %s", o.Method, o.Config, o.Error))
		}
	}
	return "Error resolving bibliographic item. Tried methods: " + strings.Join(tried, ", ")
}

type EngineConfig struct {
	Aliases    *Aliases
	Fetchers   *Registry
	Manual     ManualLookup
	Citations  CitationBuilder
	Snapshots  SnapshotLookup
	Serializer Serializer
	Metrics    MetricsSink
	Events     EventSink
	Logger     *slog.Logger

	// InternalRequester is the X-Requested-With value of internal tooling,
	// whose requests skip the second metrics increment.
	InternalRequester string
}

// Engine runs the manual, auto and fallback stages in order. It is
// read-only after construction.
type Engine struct {
	EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Aliases == nil {
		cfg.Aliases = NewAliases(nil)
	}
	if cfg.Fetchers == nil {
		cfg.Fetchers, _ = NewRegistry()
	}
	if cfg.Serializer == nil {
		cfg.Serializer = XMLSerializer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{EngineConfig: cfg}
}

// Resolve runs the stages for req. It never fails; the report carries
// either XML or the per-stage errors.
func (e *Engine) Resolve(ctx context.Context, req Request) *Report {
	rep := &Report{Subpath: req.Subpath, Anchor: req.Anchor}

	if item, xmlRepr, ok := e.resolveManual(ctx, req, rep); ok {
		rep.Item, rep.XML = item, xmlRepr
		return rep
	}
	if item, xmlRepr, ok := e.resolveAuto(ctx, req, rep); ok {
		rep.Item, rep.XML = item, xmlRepr
		return rep
	}
	rep.XML = e.resolveFallback(ctx, req, rep)
	return rep
}

// ResolveAndRecord resolves req and emits metrics and events. requestedWith
// is the caller's X-Requested-With value.
func (e *Engine) ResolveAndRecord(ctx context.Context, req Request, requestedWith string) *Report {
	rep := e.Resolve(ctx, req)

	if e.Metrics != nil {
		label := rep.MetricLabel()
		if label != OutcomeSuccess {
			e.Metrics.Increment(req.Subpath, label)
		}
		if e.InternalRequester == "" || requestedWith != e.InternalRequester {
			e.Metrics.Increment(req.Subpath, label)
		}
	}
	if e.Events != nil {
		e.Events.Publish(rep)
	}
	return rep
}

func (e *Engine) resolveManual(ctx context.Context, req Request, rep *Report) (*models.BibliographicItem, string, bool) {
	if e.Manual == nil {
		return nil, "", false
	}
	mapping, err := e.Manual.Get(ctx, req.Subpath)
	if err != nil {
		e.Logger.Error("manual map lookup failed", "subpath", req.Subpath, "stage", MethodManual, "error", err)
		return nil, "", false
	}
	if mapping == nil || mapping.DocID == "" {
		return nil, "", false
	}

	out := Outcome{Method: MethodManual, Config: mapping.DocID}
	defer func() { rep.Outcomes = append(rep.Outcomes, out) }()

	if e.Citations == nil {
		out.Error = models.KindNotFound.String()
		return nil, "", false
	}
	item, err := e.Citations.BuildCitationForDocID(ctx, mapping.DocID, "")
	if err != nil {
		out.Error = models.KindOf(err).String()
		e.Logger.Warn("manually mapped docid did not resolve",
			"subpath", req.Subpath, "stage", MethodManual, "config", mapping.DocID, "error", err)
		return nil, "", false
	}

	xmlRepr, err := e.Serializer.Serialize(item, req.AnchorOverride)
	if err != nil {
		out.Error = "serialization problem"
		e.Logger.Error("serialize manual item failed", "subpath", req.Subpath, "config", mapping.DocID, "error", err)
		return nil, "", false
	}
	return item, xmlRepr, true
}

func (e *Engine) resolveAuto(ctx context.Context, req Request, rep *Report) (*models.BibliographicItem, string, bool) {
	out := Outcome{Method: MethodAuto}
	defer func() { rep.Outcomes = append(rep.Outcomes, out) }()

	fetcher, err := e.fetcherFor(req.Dirname())
	if err != nil {
		out.Error = fmt.Sprintf("%s (%s)", models.KindNotFound, err)
		e.Logger.Warn("no fetcher for directory", "subpath", req.Subpath, "stage", MethodAuto, "error", err)
		return nil, "", false
	}
	out.Config = fetcher.Name()

	item, err := fetcher.Resolve(ctx, req.Anchor)
	if err == nil && item == nil {
		err = models.NotFound("%s returned no item for %s", fetcher.Name(), req.Anchor)
	}
	if err != nil {
		switch models.KindOf(err) {
		case models.KindInvalid:
			out.Error = models.KindInvalid.String()
			e.Logger.Warn("item found for xml2rfc path did not validate",
				"subpath", req.Subpath, "stage", MethodAuto, "config", out.Config, "error", err)
		default:
			out.Error = fmt.Sprintf("%s (%s)", models.KindNotFound, err)
			e.Logger.Info("unable to resolve xml2rfc path automatically",
				"subpath", req.Subpath, "stage", MethodAuto, "config", out.Config, "error", err)
		}
		return nil, "", false
	}

	xmlRepr, err := e.Serializer.Serialize(item, req.AnchorOverride)
	if err != nil {
		out.Error = "serialization problem"
		e.Logger.Error("serialize fetched item failed", "subpath", req.Subpath, "config", out.Config, "error", err)
		return nil, "", false
	}
	return item, xmlRepr, true
}

func (e *Engine) fetcherFor(dirname string) (Fetcher, error) {
	dataset, err := e.Aliases.Unalias(dirname)
	if err != nil {
		if f, ok := e.Fetchers.Get(dirname); ok {
			return f, nil
		}
		return nil, err
	}
	f, ok := e.Fetchers.Get(dataset)
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for %s", dataset)
	}
	return f, nil
}

func (e *Engine) resolveFallback(ctx context.Context, req Request, rep *Report) string {
	out := Outcome{Method: MethodFallback}
	defer func() { rep.Outcomes = append(rep.Outcomes, out) }()

	xmlRepr, err := e.ObtainFallbackXML(ctx, req.Subpath, req.AnchorOverride)
	if err != nil {
		e.Logger.Warn("fallback lookup failed", "subpath", req.Subpath, "stage", MethodFallback, "error", err)
	}
	if xmlRepr == "" {
		out.Error = "not indexed"
	}
	return xmlRepr
}

// ObtainFallbackXML returns the snapshot for the canonical form of subpath
// with its anchor replaced when anchor is set. An empty result means no
// snapshot is available.
func (e *Engine) ObtainFallbackXML(ctx context.Context, subpath, anchor string) (string, error) {
	if e.Snapshots == nil {
		return "", nil
	}
	canonical, err := CanonicalSubpath(e.Aliases, subpath)
	if err != nil {
		return "", err
	}
	snap, err := e.Snapshots.Get(ctx, canonical)
	if err != nil {
		return "", err
	}
	if snap == nil {
		return "", nil
	}
	if anchor != "" {
		return ReplaceAnchor(snap.XMLRepr, anchor), nil
	}
	return snap.XMLRepr, nil
}
