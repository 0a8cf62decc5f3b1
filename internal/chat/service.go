// Package chat implements the chat page: submitting encrypted messages and
// rendering the live, decrypted message list.
package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"securechat/internal/apperr"
	"securechat/internal/crypt"
	"securechat/internal/models"
	"securechat/internal/store"
)

const DefaultMaxLength = 4096

var (
	ErrEmptyMessage   = apperr.InvalidArg("content required")
	ErrMessageTooLong = apperr.InvalidArg("message too long")
)

// Service encrypts outgoing messages and decrypts stored ones for display.
type Service struct {
	store     store.Store
	cipher    *crypt.Cipher
	clock     store.Clock
	maxLength int
	log       logrus.FieldLogger
}

type Option func(*Service)

func WithClock(clock store.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMaxLength caps a message at n runes; n <= 0 removes the cap.
func WithMaxLength(n int) Option {
	return func(s *Service) { s.maxLength = n }
}

func NewService(st store.Store, cipher *crypt.Cipher, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		cipher:    cipher,
		clock:     time.Now,
		maxLength: DefaultMaxLength,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send encrypts input and appends it to the stream, stamped with the
// current time. Input that is blank once trimmed is rejected with
// ErrEmptyMessage and nothing is written; otherwise the text is stored as
// typed.
func (s *Service) Send(ctx context.Context, input string) (models.Message, error) {
	if strings.TrimSpace(input) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if s.maxLength > 0 && utf8.RuneCountInString(input) > s.maxLength {
		return models.Message{}, ErrMessageTooLong
	}

	ciphertext, err := s.cipher.Encrypt(input)
	if err != nil {
		s.log.WithError(err).Error("encrypting message failed")
		return models.Message{}, apperr.Internal("failed to encrypt message", err)
	}
	msg, err := s.store.Add(ctx, models.Message{Text: ciphertext, CreatedAt: s.clock()})
	if err != nil {
		s.log.WithError(err).Error("error sending message")
		return models.Message{}, apperr.Unavailable("failed to store message", err)
	}
	s.log.WithField("id", msg.ID).Debug("message stored")
	return msg, nil
}

// Messages returns the current stream, decrypted.
func (s *Service) Messages(ctx context.Context) ([]models.MessageView, error) {
	messages, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Unavailable("failed to load messages", err)
	}
	return s.Render(messages), nil
}

// Render decrypts each message on its own: a record that cannot be
// decrypted shows crypt.Sentinel and leaves the others untouched.
func (s *Service) Render(messages []models.Message) []models.MessageView {
	return lo.Map(messages, func(m models.Message, _ int) models.MessageView {
		return s.View(m)
	})
}

func (s *Service) View(m models.Message) models.MessageView {
	return models.MessageView{
		ID:        m.ID,
		Text:      s.cipher.Decrypt(m.Text),
		CreatedAt: m.CreatedAt,
	}
}

func (s *Service) Store() store.Store { return s.store }
