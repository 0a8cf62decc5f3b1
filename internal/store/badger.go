package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"securechat/internal/models"
)

const badgerPrefix = "msg:"

// document is the stored form of a message.
type document struct {
	ID        string `cbor:"id"`
	Text      string `cbor:"text"`
	CreatedAt int64  `cbor:"createdAt"`
}

// BadgerStore keeps messages in an embedded badger database. Badger holds
// an exclusive lock on its directory, so every writer lives in this process
// and the in-process notifier sees every change.
type BadgerStore struct {
	db       *badger.DB
	log      logrus.FieldLogger
	notifier *Notifier
}

// OpenBadger opens (or creates) the database at path. An empty path keeps
// everything in memory.
func OpenBadger(path string, log logrus.FieldLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log.WithField("component", "badger")})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return NewBadger(db, log), nil
}

func NewBadger(db *badger.DB, log logrus.FieldLogger) *BadgerStore {
	return &BadgerStore{db: db, log: log, notifier: NewNotifier()}
}

// badgerKey is "msg:{unix_nano, 19 digits}:{uuid}". The zero padding makes
// lexicographic key order chronological and the uuid separates messages
// created in the same nanosecond.
func badgerKey(doc document) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", badgerPrefix, doc.CreatedAt, doc.ID))
}

func (s *BadgerStore) Add(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if s.db.IsClosed() {
		return models.Message{}, ErrClosed
	}
	doc := document{
		ID:        uuid.NewString(),
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt.UnixNano(),
	}
	value, err := cbor.Marshal(doc)
	if err != nil {
		return models.Message{}, fmt.Errorf("encode message: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(doc), value)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	s.notifier.Notify()
	return toMessage(doc), nil
}

func (s *BadgerStore) List(ctx context.Context) ([]models.Message, error) {
	if s.db.IsClosed() {
		return nil, ErrClosed
	}
	messages := make([]models.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc document
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &doc)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, toMessage(doc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *BadgerStore) Changes() (<-chan struct{}, func()) {
	return s.notifier.Subscribe()
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	s.log.Info("closing badger")
	return s.db.Close()
}

// badgerLogger demotes badger's chatty info output to debug.
type badgerLogger struct {
	logrus.FieldLogger
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func toMessage(doc document) models.Message {
	return models.Message{
		ID:        doc.ID,
		Text:      doc.Text,
		CreatedAt: time.Unix(0, doc.CreatedAt).UTC(),
	}
}
