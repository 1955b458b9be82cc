package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// ensureInstanceID дает процессу стабильный id на время жизни:
// hostname и короткий суффикс, чтобы реплики не сливались в одну.
func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "classroom"
	}
	return host + "-" + uuid.New().String()[:8]
}

func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Int("pid", os.Getpid()),
		slog.Time("started_at", time.Now()),
	}
}

// Единые ключи доменных сущностей в логах всех пакетов сервиса.

func Channel(name string) slog.Attr { return slog.String("channel", name) }

func Participant(id string) slog.Attr { return slog.String("participant_id", id) }

func Conn(id string) slog.Attr { return slog.String("conn_id", id) }
