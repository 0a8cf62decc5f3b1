package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/crypt"
	"securechat/internal/models"
	"securechat/internal/store"
)

func TestPrintsDecryptedTable(t *testing.T) {
	req := require.New(t)
	color.Disable()
	dsn := filepath.Join(t.TempDir(), "chat.db")
	log, _ := test.NewNullLogger()

	st, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite, DSN: dsn}, log)
	req.NoError(err)
	ct, err := crypt.Encrypt("hello table", "k")
	req.NoError(err)
	_, err = st.Add(context.Background(), models.Message{Text: ct, CreatedAt: time.Now()})
	req.NoError(err)
	_, err = st.Add(context.Background(), models.Message{Text: "corrupt", CreatedAt: time.Now()})
	req.NoError(err)
	req.NoError(st.Close())

	var out bytes.Buffer
	req.NoError(run([]string{"--driver", "sqlite", "--dsn", dsn, "--key", "k"}, &out))

	assert.Contains(t, out.String(), "hello table")
	assert.Contains(t, out.String(), crypt.Sentinel)
	assert.Contains(t, out.String(), "CREATED")
}

func TestParseFlags(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	o, err := parseFlags([]string{"-f", "--driver", "mysql", "--dsn", "user:pw@/chat"})
	require.NoError(t, err)
	assert.True(t, o.follow)
	assert.Equal(t, "mysql", o.driver)
	assert.Equal(t, crypt.DefaultKey, o.key)
	assert.Equal(t, 2*time.Second, o.poll)

	o, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Zero(t, o.poll)

	_, err = parseFlags([]string{"--nope"})
	assert.Error(t, err)
}

func TestFollowRejectsBadger(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	_, err := parseFlags([]string{"--follow"})
	assert.ErrorIs(t, err, errFollowBadger)
	_, err = parseFlags([]string{"-f", "--driver", "badger"})
	assert.ErrorIs(t, err, errFollowBadger)

	o, err := parseFlags([]string{"-f", "--driver", "sqlite", "--dsn", "chat.db"})
	require.NoError(t, err)
	assert.True(t, o.follow)
}
