package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"clinical-intake/internal/log"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL. It announces
// saved narratives so any server instance can push them to stream clients.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
	Logger  *log.Logger
}

// NewNotifier constructs a new Notifier. The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable; dsn is needed because
// listening holds a dedicated connection.
func NewNotifier(db *sql.DB, dsn, channel string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Notifier{DB: db, DSN: dsn, Channel: channel, Logger: logger}
}

// Notify sends a notification to the channel with the record ID.
func (n *Notifier) Notify(ctx context.Context, recordID string) error {
	_, err := n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, recordID)
	return err
}

// Listen yields record IDs as they are received on the channel until ctx is
// cancelled, at which point the returned channel is closed.
func (n *Notifier) Listen(ctx context.Context) (<-chan string, error) {
	logger := n.Logger.With("channel", n.Channel)
	listener := pq.NewListener(n.DSN, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithError(err).Warn("listener event", "event", int(ev))
		}
	})
	if err := listener.Listen(n.Channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", pq.QuoteIdentifier(n.Channel), err)
	}

	ch := make(chan string)
	go func() {
		defer func() {
			_ = listener.Close()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case note := <-listener.Notify:
				// A nil notification means the connection was re-established;
				// anything sent meanwhile is lost.
				if note == nil {
					logger.Info("listener reconnected")
					continue
				}
				select {
				case ch <- note.Extra:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()
	return ch, nil
}
