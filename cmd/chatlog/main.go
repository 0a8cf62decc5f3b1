// Command chatlog prints the decrypted message stream as a table.
//
//	chatlog --driver sqlite --dsn chat.db --key "$ENCRYPTION_KEY" --follow
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"securechat/internal/crypt"
	"securechat/internal/feed"
	"securechat/internal/models"
	"securechat/internal/store"
)

var errFollowBadger = errors.New("--follow needs a shared store (mysql or sqlite); badger is locked by the running server")

type options struct {
	driver     string
	dsn        string
	badgerPath string
	key        string
	follow     bool
	poll       time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chatlog: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Driver:       opts.driver,
		DSN:          opts.dsn,
		BadgerPath:   opts.badgerPath,
		PollInterval: opts.poll,
	}, log)
	if err != nil {
		return err
	}
	defer st.Close()

	cipher, err := crypt.NewCipher(opts.key, "", log)
	if err != nil {
		return err
	}

	if !opts.follow {
		messages, err := st.List(ctx)
		if err != nil {
			return err
		}
		printTable(out, cipher, messages)
		return nil
	}

	sub, err := feed.Subscribe(ctx, st, log)
	if err != nil {
		return err
	}
	defer sub.Close()
	for snap := range sub.C() {
		fmt.Fprintf(out, "\n%s\n", color.Bold.Sprintf("snapshot #%d (%d messages)", snap.Seq, len(snap.Messages)))
		printTable(out, cipher, snap.Messages)
	}
	return nil
}

func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("chatlog", pflag.ContinueOnError)
	var o options
	fs.StringVar(&o.driver, "driver", envOr("STORE_DRIVER", store.DriverBadger), "store driver: badger, mysql or sqlite")
	fs.StringVar(&o.dsn, "dsn", os.Getenv("DB_DSN"), "mysql or sqlite DSN")
	fs.StringVar(&o.badgerPath, "badger-path", envOr("BADGER_PATH", "data/messages"), "badger directory")
	fs.StringVar(&o.key, "key", envOr("ENCRYPTION_KEY", crypt.DefaultKey), "shared encryption key")
	fs.BoolVarP(&o.follow, "follow", "f", false, "keep printing as messages arrive (mysql and sqlite only)")
	fs.DurationVar(&o.poll, "poll", 2*time.Second, "change poll interval for SQL stores")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.follow && (o.driver == store.DriverBadger || o.driver == "") {
		// badger locks its directory to the one process writing it
		return options{}, errFollowBadger
	}
	if !o.follow {
		o.poll = 0
	}
	return o, nil
}

func printTable(out io.Writer, cipher *crypt.Cipher, messages []models.Message) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Created", "Text"})
	table.SetAutoWrapText(false)
	for _, m := range messages {
		text := cipher.Decrypt(m.Text)
		if text == crypt.Sentinel {
			text = color.Red.Sprint(text)
		}
		table.Append([]string{m.ID, m.CreatedAt.Local().Format(time.DateTime), text})
	}
	table.Render()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
