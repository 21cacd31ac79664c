package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"henry/internal/normalize"
	"henry/internal/session"
)

// Server implements StorefrontServer on top of the session registry.
type Server struct {
	registry *session.Registry
}

var _ StorefrontServer = (*Server)(nil)

func NewServer(registry *session.Registry) *Server {
	return &Server{registry: registry}
}

// NewGRPCServer returns a grpc.Server with the storefront registered and unary calls logged.
func NewGRPCServer(srv StorefrontServer) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	RegisterStorefrontServer(s, srv)
	return s
}

// NormalizeProducts normalizes the raw upstream body under "payload".
func (s *Server) NormalizeProducts(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	payload, ok := in.AsMap()["payload"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "payload is required")
	}
	products, recognized := normalize.NormalizeProducts(payload)
	return toStruct(map[string]any{"products": products, "recognized": recognized})
}

// GetCart returns the cart of "sessionId", refreshed from the commerce API when "refresh" is
// set.
func (s *Server) GetCart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	sess, err := s.registry.Get(ctx, fields["sessionId"].GetStringValue())
	if errors.Is(err, session.ErrMissingID) {
		return nil, status.Error(codes.InvalidArgument, "sessionId is required")
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	if fields["refresh"].GetBoolValue() {
		if err := sess.RefreshCart(ctx); err != nil {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
	}
	return toStruct(sess.Cart().Snapshot())
}

// toStruct round-trips v through JSON so that its json tags decide the field names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := logrus.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("gRPC call failed")
	} else {
		entry.Debug("gRPC call served")
	}
	return resp, err
}
