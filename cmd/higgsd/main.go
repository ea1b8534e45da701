// Command higgsd runs the voxel region replication service: one QUIC
// listener, one workload registry shared by every connection, one TLS
// identity baked in at build time.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"higgsd/internal/blobstore"
	"higgsd/internal/blobstore/azureblob"
	"higgsd/internal/blobstore/gcs"
	"higgsd/internal/blobstore/memory"
	"higgsd/internal/blobstore/s3"
	"higgsd/internal/cert"
	"higgsd/internal/config"
	"higgsd/internal/logging"
	"higgsd/internal/session"
	"higgsd/internal/transport"
	"higgsd/internal/workload"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	opts, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	certMgr, err := cert.Load(opts.TLSCertPEM, opts.TLSKeyPEM)
	if err != nil {
		return fmt.Errorf("load TLS identity: %w", err)
	}

	blobClient, err := openBlobClient(ctx, opts)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := workload.New(blobClient, logger)

	listener, err := transport.Listen(":"+opts.Port, certMgr.TLSConfig())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("listening", "addr", listener.Addr().String(), "backend", opts.Backend)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptConnections(ctx, listener, registry, logger)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := listener.Close(); err != nil {
		logger.Error("listener close error", "error", err)
	}
	wg.Wait()

	if err := registry.Close(context.Background()); err != nil {
		logger.Error("registry close error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// acceptConnections accepts QUIC connections until ctx is canceled or the
// listener is closed, spawning one Session per accepted bidirectional
// stream.
func acceptConnections(ctx context.Context, listener *transport.Listener, registry *workload.Registry, logger *slog.Logger) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", "error", err)
			continue
		}
		go serveConnection(ctx, conn, registry, logger)
	}
}

func serveConnection(ctx context.Context, conn *transport.Conn, registry *workload.Registry, logger *slog.Logger) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		logger.Warn("accept stream failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	sess := session.New(stream, registry, logger)
	logger.Info("session started", "client_id", sess.ID(), "remote", conn.RemoteAddr())
	sess.Run(ctx)
	logger.Info("session ended", "client_id", sess.ID())
}

func openBlobClient(ctx context.Context, opts config.Options) (blobstore.Client, error) {
	switch opts.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendS3:
		return s3.New(ctx, opts.S3Region)
	case config.BackendAzureBlob:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure default credential: %w", err)
		}
		return azureblob.New(opts.AzureServiceURL, cred)
	case config.BackendGCS:
		return gcs.New(ctx)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", opts.Backend)
	}
}
