package grpcclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/verifai/internal/backend"
	"github.com/example/verifai/internal/imageprocessor"
	"github.com/example/verifai/internal/logging"
	"github.com/example/verifai/internal/verification"
)

// VerifyMethod is the full gRPC method name served by the image processor.
// Requests and replies are google.protobuf.Struct messages.
const VerifyMethod = "/imageprocessor.ImageProcessor/Verify"

// DialImageProcessor returns a backend that delegates to the remote image
// processor at addr.
func DialImageProcessor(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*ImageProcessor, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...) //nolint:staticcheck
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_image_processor", "", err)
		logger.Error("failed to dial image processor", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewImageProcessor(conn, logger), conn, nil
}

// ImageProcessor is a backend served by a remote gRPC image processor.
type ImageProcessor struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewImageProcessor wraps an established connection.
func NewImageProcessor(conn grpc.ClientConnInterface, logger *zap.Logger) *ImageProcessor {
	return &ImageProcessor{conn: conn, logger: logger.Named("grpc_image_processor")}
}

// Name implements backend.Backend.
func (g *ImageProcessor) Name() string { return "grpc" }

// Predict implements backend.Backend.
func (g *ImageProcessor) Predict(ctx context.Context, req verification.Request) (backend.RawPrediction, error) {
	img, err := imageprocessor.Decode(req.Image)
	if err != nil {
		return backend.RawPrediction{}, err
	}

	in, err := structpb.NewStruct(map[string]any{
		"object_class": req.ObjectClass,
		"mime_type":    img.MIMEType,
		"image_data":   base64.StdEncoding.EncodeToString(img.Data),
	})
	if err != nil {
		return backend.RawPrediction{}, verification.WrapError(verification.ErrBackendTransportFailure, "encode request", err)
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, VerifyMethod, in, out); err != nil {
		wrapped := logging.NewOperationError("grpcclient.verify", "", err)
		g.logger.Error("image processor call failed", zap.Error(wrapped), zap.String("object_class", req.ObjectClass))
		return backend.RawPrediction{}, verification.WrapError(verification.ErrBackendTransportFailure, "image processor", callError(ctx, err))
	}
	return backend.RawPrediction{Fields: out.AsMap()}, nil
}

// callError maps deadline and cancellation statuses back onto the context
// errors so callers can match them with errors.Is.
func callError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	case codes.Canceled:
		return fmt.Errorf("%w: %v", context.Canceled, err)
	}
	return err
}
