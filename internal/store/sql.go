package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"securechat/internal/models"
)

// SQLStore keeps messages in the messages table of a mysql or sqlite
// database. Other processes may write to the same table, so besides
// announcing its own inserts it polls a row fingerprint and announces any
// difference it sees.
type SQLStore struct {
	db       *sql.DB
	log      logrus.FieldLogger
	notifier *Notifier

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type fingerprint struct {
	count int64
	maxID int64
}

// NewSQL wraps a migrated database. A positive pollInterval starts the
// fingerprint poller; it runs until Close. The baseline fingerprint is read
// before NewSQL returns, so any later write is announced.
func NewSQL(db *sql.DB, pollInterval time.Duration, log logrus.FieldLogger) *SQLStore {
	s := &SQLStore{
		db:       db,
		log:      log,
		notifier: NewNotifier(),
		stop:     make(chan struct{}),
	}
	if pollInterval > 0 {
		last, err := s.fingerprint(context.Background())
		if err != nil {
			s.log.WithError(err).Warn("initial message fingerprint failed")
		}
		s.wg.Add(1)
		go s.poll(pollInterval, last)
	}
	return s
}

func (s *SQLStore) Add(ctx context.Context, msg models.Message) (models.Message, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (text, created_at) VALUES (?, ?)",
		msg.Text, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	s.notifier.Notify()
	return models.Message{
		ID:        strconv.FormatInt(id, 10),
		Text:      msg.Text,
		CreatedAt: time.Unix(0, msg.CreatedAt.UnixNano()).UTC(),
	}, nil
}

func (s *SQLStore) List(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, created_at FROM messages ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			id        int64
			text      string
			createdAt int64
		)
		if err := rows.Scan(&id, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, models.Message{
			ID:        strconv.FormatInt(id, 10),
			Text:      text,
			CreatedAt: time.Unix(0, createdAt).UTC(),
		})
	}
	return messages, rows.Err()
}

func (s *SQLStore) Changes() (<-chan struct{}, func()) {
	return s.notifier.Subscribe()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLStore) fingerprint(ctx context.Context) (fingerprint, error) {
	var fp fingerprint
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(id), 0) FROM messages").Scan(&fp.count, &fp.maxID)
	return fp, err
}

func (s *SQLStore) poll(interval time.Duration, last fingerprint) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			fp, err := s.fingerprint(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.WithError(err).Warn("message fingerprint failed")
				}
				continue
			}
			if fp != last {
				last = fp
				s.notifier.Notify()
			}
		}
	}
}
