// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// New returns a JSON logger writing to stdout, tagged with the service name.
func New(service, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, service, level)
}

func NewWithWriter(w io.Writer, service, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(level)})
	return slog.New(h).With(slog.String("service", service))
}

// Level accepts slog's own names, offsets included ("debug", "WARN+2"),
// plus "warning". Anything else logs at info.
func Level(name string) slog.Level {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Database groups where a DSN points, in URL or keyword form, under "db".
// Credentials never reach the log.
func Database(dsn string) slog.Attr {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return slog.Group("db", slog.Bool("parsed", false))
	}
	return slog.Group("db",
		slog.String("host", cfg.Host),
		slog.Int("port", int(cfg.Port)),
		slog.String("name", cfg.Database),
		slog.String("user", cfg.User),
	)
}
