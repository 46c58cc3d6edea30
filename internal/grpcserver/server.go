package grpcserver

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"bibxml/internal/xml2rfc"
	"bibxml/pkg/models"
)

// RefGetter reads one indexed record.
type RefGetter interface {
	Get(ctx context.Context, dataset, ref string) (*models.RefData, error)
}

type Server struct {
	Engine *xml2rfc.Engine
	Refs   RefGetter
	Logger *slog.Logger
}

func NewServer(engine *xml2rfc.Engine, refs RefGetter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Engine: engine, Refs: refs, Logger: logger}
}

func (s *Server) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	dirname := strings.Trim(strings.TrimSpace(req.Dirname), "/")
	anchor := strings.TrimSpace(req.Anchor)
	if dirname == "" || anchor == "" {
		return nil, status.Error(codes.InvalidArgument, "dirname and anchor required")
	}
	if strings.Contains(dirname, "/") || strings.Contains(anchor, "/") {
		return nil, status.Error(codes.InvalidArgument, "dirname and anchor must not contain '/'")
	}

	rep := s.Engine.ResolveAndRecord(ctx, xml2rfc.Request{
		Subpath:        dirname + "/reference." + anchor + ".xml",
		Anchor:         anchor,
		AnchorOverride: strings.TrimSpace(req.AnchorOverride),
	}, requestedWith(ctx))

	resp := &ResolveResponse{
		Found:    rep.Found(),
		XML:      rep.XML,
		Methods:  rep.MethodsHeader(),
		Outcomes: rep.OutcomesHeader(),
	}
	if !rep.Found() {
		resp.Message = rep.FailureMessage()
	}
	return resp, nil
}

func (s *Server) GetRef(ctx context.Context, req *GetRefRequest) (*GetRefResponse, error) {
	if req == nil || strings.TrimSpace(req.Dataset) == "" || strings.TrimSpace(req.Ref) == "" {
		return nil, status.Error(codes.InvalidArgument, "dataset and ref required")
	}

	rd, err := s.Refs.Get(ctx, strings.TrimSpace(req.Dataset), strings.TrimSpace(req.Ref))
	if err != nil {
		s.Logger.Error("grpc get ref failed", "dataset", req.Dataset, "ref", req.Ref, "error", err)
		return nil, status.Error(codes.Internal, "get failed")
	}
	if rd == nil {
		return nil, status.Errorf(codes.NotFound, "Unable to find ref %s in dataset %s", req.Ref, strings.ToLower(req.Dataset))
	}
	return &GetRefResponse{Dataset: rd.Dataset, Ref: rd.Ref, Body: rd.Body}, nil
}

func requestedWith(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("x-requested-with"); len(v) > 0 {
		return v[0]
	}
	return ""
}
