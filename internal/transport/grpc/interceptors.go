package grpc

import (
	"context"
	"log/slog"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Deadlines caps how long a unary handler may run. A method listed in
// PerMethod gets its own cap; the rest get Default. A caller deadline that
// is already tighter wins.
type Deadlines struct {
	Default   time.Duration
	PerMethod map[string]time.Duration
}

func (d Deadlines) limit(method string) time.Duration {
	if v, ok := d.PerMethod[method]; ok && v > 0 {
		return v
	}
	if d.Default > 0 {
		return d.Default
	}
	return 10 * time.Second
}

// Unary bounds every unary call. Streams are left alone: WatchCalendar
// lives as long as its client.
func (d Deadlines) Unary() grpclib.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d.limit(info.FullMethod))
		defer cancel()
		return handler(ctx, req)
	}
}

// Method is the full gRPC method name for an rpc of SchedulingService.
func Method(rpc string) string {
	return "/" + ServiceName + "/" + rpc
}

func AccessLog(log *slog.Logger) grpclib.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		log.DebugContext(ctx, "rpc handled",
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Duration("elapsed", time.Since(started)),
		)
		return resp, err
	}
}
