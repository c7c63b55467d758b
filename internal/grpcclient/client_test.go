package grpcclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/verifai/internal/normalizer"
	"github.com/example/verifai/internal/verification"
)

func startProcessor(t *testing.T, handle func(method string, in *structpb.Struct) (*structpb.Struct, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		in := &structpb.Struct{}
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		out, err := handle(method, in)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testImage(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestImageProcessorPredict(t *testing.T) {
	var gotMethod string
	var gotIn map[string]any
	conn := startProcessor(t, func(method string, in *structpb.Struct) (*structpb.Struct, error) {
		gotMethod = method
		gotIn = in.AsMap()
		return structpb.NewStruct(map[string]any{
			"status":     "verified",
			"confidence": 87.5,
			"summary":    "Texture analysis consistent with genuine material.",
			"details": []any{
				map[string]any{"agent": "Texture Agent", "finding": "Weave density nominal", "status": "success"},
			},
		})
	})

	proc := NewImageProcessor(conn, zap.NewNop())
	raw, err := proc.Predict(context.Background(), verification.Request{Image: testImage(t), ObjectClass: "handbag"})
	require.NoError(t, err)

	assert.Equal(t, VerifyMethod, gotMethod)
	assert.Equal(t, "handbag", gotIn["object_class"])
	assert.Equal(t, "image/png", gotIn["mime_type"])

	resp, err := normalizer.Normalize("handbag", raw)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, resp.Status)
	assert.Equal(t, 87.5, resp.Confidence)
	assert.Equal(t, "Live Verification for Handbag", resp.Title)
	assert.Equal(t, "Texture Agent", resp.Details[0].Agent)
}

func TestImageProcessorTransportFailure(t *testing.T) {
	conn := startProcessor(t, func(string, *structpb.Struct) (*structpb.Struct, error) {
		return nil, status.Error(codes.Unavailable, "model warming up")
	})

	_, err := NewImageProcessor(conn, zap.NewNop()).Predict(context.Background(), verification.Request{Image: testImage(t), ObjectClass: "handbag"})
	assert.ErrorIs(t, err, verification.ErrBackendTransportFailure)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestImageProcessorDeadlineExceeded(t *testing.T) {
	conn := startProcessor(t, func(string, *structpb.Struct) (*structpb.Struct, error) {
		time.Sleep(300 * time.Millisecond)
		return &structpb.Struct{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewImageProcessor(conn, zap.NewNop()).Predict(ctx, verification.Request{Image: testImage(t), ObjectClass: "handbag"})
	assert.ErrorIs(t, err, verification.ErrBackendTransportFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallErrorMapsStatusCodes(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, callError(ctx, status.Error(codes.DeadlineExceeded, "upstream deadline")), context.DeadlineExceeded)
	assert.ErrorIs(t, callError(ctx, status.Error(codes.Canceled, "cancelled")), context.Canceled)

	plain := status.Error(codes.Internal, "boom")
	assert.Equal(t, plain, callError(ctx, plain))
}

func TestImageProcessorRejectsBadImage(t *testing.T) {
	called := false
	conn := startProcessor(t, func(string, *structpb.Struct) (*structpb.Struct, error) {
		called = true
		return &structpb.Struct{}, nil
	})

	_, err := NewImageProcessor(conn, zap.NewNop()).Predict(context.Background(), verification.Request{Image: "", ObjectClass: "handbag"})
	assert.ErrorIs(t, err, verification.ErrInvalidImage)
	assert.False(t, called)
}
