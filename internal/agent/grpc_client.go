package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/needle/internal/domain"
)

// GenerateMethod is the full method name of the remote reply service.
const GenerateMethod = "/needle.reply.v1.ReplyService/Generate"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errMissingReply             = errors.New("response has no reply field")
)

// GrpcClient asks a remote reply service for assistant messages.
type GrpcClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the reply service and waits until the
// connection is ready.
func NewGrpcClient(ctx context.Context, cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reply service at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("reply service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to reply service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Generate calls the remote service with the message and history.
func (c *GrpcClient) Generate(ctx context.Context, text string, history []domain.Message) (string, error) {
	req, err := encodeRequest(text, history)
	if err != nil {
		return "", err
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, GenerateMethod, req, resp); err != nil {
		c.logger.Error("Generate call failed", "address", c.addr, "error", err)
		return "", fmt.Errorf("generate request failed: %w", err)
	}

	reply, ok := resp.GetFields()["reply"]
	if !ok {
		return "", errMissingReply
	}
	return reply.GetStringValue(), nil
}

// encodeRequest builds the request struct {message, history: [{role, content}]}.
func encodeRequest(text string, history []domain.Message) (*structpb.Struct, error) {
	turns := make([]any, 0, len(history))
	for _, m := range history {
		turns = append(turns, map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	req, err := structpb.NewStruct(map[string]any{
		"message": text,
		"history": turns,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	return req, nil
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("failed to close gRPC connection", "error", err)
		return err
	}
	return nil
}
