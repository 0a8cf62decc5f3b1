package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/models"
)

type storeFactory func(t *testing.T) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		DriverBadger: func(t *testing.T) Store {
			log, _ := test.NewNullLogger()
			s, err := OpenBadger(t.TempDir(), log)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		DriverSQLite: func(t *testing.T) Store {
			log, _ := test.NewNullLogger()
			s, err := Open(context.Background(), Options{
				Driver: DriverSQLite,
				DSN:    filepath.Join(t.TempDir(), "chat.db"),
			}, log)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestListIsOrderedByCreatedAt(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			s := open(t)
			ctx := context.Background()
			at := time.Date(2024, 11, 30, 12, 0, 0, 0, time.UTC)

			// inserted out of order, as racing senders would
			for _, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
				_, err := s.Add(ctx, models.Message{Text: offset.String(), CreatedAt: at.Add(offset)})
				req.NoError(err)
			}

			messages, err := s.List(ctx)
			req.NoError(err)
			req.Len(messages, 3)
			req.Equal([]string{"0s", "1m0s", "2m0s"}, []string{messages[0].Text, messages[1].Text, messages[2].Text})
			for i, m := range messages {
				req.NotEmpty(m.ID)
				req.True(m.CreatedAt.Equal(at.Add(time.Duration(i)*time.Minute)), m.CreatedAt)
			}
		})
	}
}

func TestAddReturnsStoredRecord(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			s := open(t)
			ctx := context.Background()
			at := time.Now()

			added, err := s.Add(ctx, models.Message{ID: "ignored", Text: "ciphertext", CreatedAt: at})
			req.NoError(err)
			req.NotEqual("ignored", added.ID)
			req.Equal("ciphertext", added.Text)
			req.True(added.CreatedAt.Equal(at))

			messages, err := s.List(ctx)
			req.NoError(err)
			req.Equal([]models.Message{added}, messages)
		})
	}
}

func TestEmptyListIsNotNil(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			messages, err := open(t).List(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, messages)
			assert.Empty(t, messages)
		})
	}
}

func TestAddAnnouncesChange(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			changes, release := s.Changes()
			defer release()

			_, err := s.Add(context.Background(), models.Message{Text: "x", CreatedAt: time.Now()})
			require.NoError(t, err)

			select {
			case <-changes:
			case <-time.After(time.Second):
				t.Fatal("no change notification after Add")
			}
		})
	}
}

func TestSQLStoreSeesForeignWrites(t *testing.T) {
	req := require.New(t)
	log, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := Open(context.Background(), Options{
		Driver:       DriverSQLite,
		DSN:          path,
		PollInterval: 10 * time.Millisecond,
	}, log)
	req.NoError(err)
	defer s.Close()

	changes, release := s.Changes()
	defer release()

	// another client writing straight to the table
	other, err := sql.Open("sqlite3", path)
	req.NoError(err)
	defer other.Close()
	_, err = other.Exec("INSERT INTO messages (text, created_at) VALUES (?, ?)", "foreign", time.Now().UnixNano())
	req.NoError(err)

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not report the foreign insert")
	}
	messages, err := s.List(context.Background())
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("foreign", messages[0].Text)
}

func TestSQLStoreSeesWritesRightAfterOpen(t *testing.T) {
	log, _ := test.NewNullLogger()
	for i := 0; i < 5; i++ {
		path := filepath.Join(t.TempDir(), "chat.db")
		s, err := Open(context.Background(), Options{
			Driver:       DriverSQLite,
			DSN:          path,
			PollInterval: 10 * time.Millisecond,
		}, log)
		require.NoError(t, err)
		changes, release := s.Changes()

		other, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		_, err = other.Exec("INSERT INTO messages (text, created_at) VALUES (?, ?)", "early", time.Now().UnixNano())
		require.NoError(t, err)

		select {
		case <-changes:
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: insert made right after open was never announced", i)
		}
		release()
		require.NoError(t, other.Close())
		require.NoError(t, s.Close())
	}
}

func TestClosedBadgerStore(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := OpenBadger("", log)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Add(context.Background(), models.Message{Text: "x", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.List(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)
}

func TestUnknownDriver(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := Open(context.Background(), Options{Driver: "mongo"}, log)
	assert.ErrorContains(t, err, "mongo")
}
