package grpcclient

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// OCRServer is the server API for the OCR service.
type OCRServer interface {
	Recognize(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

var ocrServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OCRServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Recognize",
		Handler:    recognizeHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "betwatch/ocr/v1/ocr.proto",
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OCRServer).Recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecognizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OCRServer).Recognize(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterOCRServer registers srv on s.
func RegisterOCRServer(s grpc.ServiceRegistrar, srv OCRServer) {
	s.RegisterService(&ocrServiceDesc, srv)
}

// Service serves a local Recognizer over gRPC.
type Service struct {
	rec         ocr.Recognizer
	defaultLang string
}

// NewService wraps rec. Requests without a language use defaultLang.
func NewService(rec ocr.Recognizer, defaultLang string) *Service {
	return &Service{rec: rec, defaultLang: defaultLang}
}

// Recognize implements OCRServer.
func (s *Service) Recognize(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	img, err := ocr.DecodeImage(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	lang := s.defaultLang
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(LanguageKey); len(v) > 0 && v[0] != "" {
			lang = v[0]
		}
	}

	text, err := s.rec.Recognize(ctx, img, lang)
	if err != nil {
		return nil, toStatus(err)
	}
	trace.Logger(ctx).Debug("ocr: recognized", "lang", lang, "chars", len(text))
	return wrapperspb.String(text), nil
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.OCRExtractFailed, err.Error())
	}
	return appErr.GRPCStatus().Err()
}

// NewServer builds a gRPC server exposing svc plus the standard health service.
func NewServer(svc OCRServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(trace.UnaryServerInterceptor())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterOCRServer(s, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	slog.Debug("ocr service registered", "service", ServiceName)
	return s
}
