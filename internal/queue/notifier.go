package queue

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Channel is the postgres notification channel carrying export job IDs.
const Channel = "export_jobs"

// Notifier publishes job IDs with pg_notify so that every instance
// listening on Channel hears about them. Workers race to claim the job row;
// one wins.
type Notifier struct {
	db       *gorm.DB
	listener *pq.Listener
}

// NewNotifier opens a listener connection on dsn
func NewNotifier(db *gorm.DB, dsn string) (*Notifier, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).WithField("event", ev).Warn("export listener problem")
		}
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, report)
	if err := listener.Listen(Channel); err != nil {
		listener.Close()
		return nil, errors.Wrapf(err, "listen on %s", Channel)
	}
	return &Notifier{db: db, listener: listener}, nil
}

// Dispatch publishes a job ID to every listening instance
func (n *Notifier) Dispatch(ctx context.Context, jobID string) error {
	return errors.Wrap(
		n.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", Channel, jobID).Error,
		"notify export job",
	)
}

// Run feeds received job IDs into q until ctx ends.
func (n *Notifier) Run(ctx context.Context, q *Queue) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case notification := <-n.listener.Notify:
			// nil after a reconnect; stale recovery covers anything missed
			if notification == nil {
				continue
			}
			if err := q.Dispatch(ctx, notification.Extra); err != nil {
				log.WithError(err).WithField("job_id", notification.Extra).Warn("failed to queue notified export job")
			}
		case <-ping.C:
			if err := n.listener.Ping(); err != nil {
				log.WithError(err).Warn("export listener ping failed")
			}
		}
	}
}

func (n *Notifier) Close() error {
	return n.listener.Close()
}
