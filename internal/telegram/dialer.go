// Package telegram connects the gateway to Telegram over MTProto using gotd.
package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/gotd/td/session"
	gotd "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/yegors/telegate/internal/domain"
	sessionpkg "github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/internal/storage/sqlite"
	"github.com/yegors/telegate/pkg/logger"
)

// SessionStore persists MTProto session blobs between runs
type SessionStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Dialer opens MTProto connections. It implements session.Dialer.
type Dialer struct {
	store  SessionStore
	logger *logger.Logger

	mu   sync.RWMutex
	sink domain.UpdateSink
}

// NewDialer creates a dialer persisting session state in store
func NewDialer(store SessionStore, log *logger.Logger) *Dialer {
	return &Dialer{store: store, logger: log.Named("telegram")}
}

// SetSink routes incoming messages of every future connection to sink
func (d *Dialer) SetSink(sink domain.UpdateSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

func (d *Dialer) deliver(msg domain.Message) {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink != nil {
		sink.IncomingMessage(msg)
	}
}

// Dial starts a client, checks the stored authorization and returns once
// the update stream is running. The connection lives until Close or until
// the client stops on its own.
func (d *Dialer) Dial(ctx context.Context, cred sessionpkg.Credential) (domain.Conn, error) {
	slot := &sessionSlot{store: d.store, key: cred.Fingerprint()}
	if err := d.seed(ctx, slot, cred.Session); err != nil {
		return nil, err
	}

	c := &conn{
		dialer: d,
		peers:  newPeerCache(),
		ready:  make(chan error, 1),
		done:   make(chan struct{}),
		logger: d.logger.With(logger.String("fingerprint", slot.key)),
	}

	dispatcher := tg.NewUpdateDispatcher()
	c.registerHandlers(&dispatcher)
	gaps := updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  d.logger.Named("updates").Zap(),
	})

	client := gotd.NewClient(cred.APIID, cred.APIHash, gotd.Options{
		SessionStorage: slot,
		UpdateHandler:  gaps,
		Logger:         d.logger.Named("mtproto").Zap(),
	})
	c.client = client

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		defer close(c.done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return err
			}
			if !status.Authorized || status.User == nil {
				return domain.AuthError(nil, "telegram: session is not authorized")
			}

			c.self = status.User
			c.api = client.API()
			c.peers.apply([]tg.UserClass{status.User}, nil)

			return gaps.Run(ctx, c.api, status.User.ID, updates.AuthOptions{
				IsBot: status.User.Bot,
				OnStart: func(ctx context.Context) {
					c.signal(nil)
				},
			})
		})
		if runCtx.Err() == nil {
			c.logger.Warn("Client stopped", logger.Error(err))
		}
		if err == nil {
			err = errors.New("client stopped")
		}
		c.signal(classify(err, "connect"))
	}()

	select {
	case err := <-c.ready:
		if err != nil {
			c.Close()
			if domain.IsKind(err, domain.KindAuth) {
				d.forget(ctx, slot.key)
			}
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		c.Close()
		return nil, domain.ConnectionError(ctx.Err(), "telegram: connect abandoned")
	}
}

// seed imports the exported session string the first time a credential is
// used. Later runs resume from the stored blob, which carries updated keys.
func (d *Dialer) seed(ctx context.Context, slot *sessionSlot, exported string) error {
	if _, err := d.store.Load(ctx, slot.key); err == nil {
		return nil
	} else if !errors.Is(err, sqlite.ErrNotFound) {
		return domain.ConnectionError(err, "telegram: reading stored session")
	}

	data, err := session.TelethonSession(exported)
	if err != nil {
		return domain.AuthError(err, "telegram: session string is not a valid exported session")
	}
	loader := session.Loader{Storage: slot}
	if err := loader.Save(ctx, data); err != nil {
		return domain.ConnectionError(err, "telegram: storing imported session")
	}

	d.logger.Info("Imported session string", logger.String("fingerprint", slot.key), logger.Int("dc", data.DC))
	return nil
}

// forget drops the stored blob of a rejected authorization, so the next
// explicit connect imports the configured session string afresh instead of
// resuming revoked keys
func (d *Dialer) forget(ctx context.Context, key string) {
	if err := d.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		d.logger.Warn("Failed to drop rejected session", logger.String("fingerprint", key), logger.Error(err))
		return
	}
	d.logger.Info("Dropped rejected session", logger.String("fingerprint", key))
}

// sessionSlot adapts SessionStore to the storage interface of the client
type sessionSlot struct {
	store SessionStore
	key   string
}

func (s *sessionSlot) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.store.Load(ctx, s.key)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, session.ErrNotFound
	}
	return data, err
}

func (s *sessionSlot) StoreSession(ctx context.Context, data []byte) error {
	return s.store.Store(ctx, s.key, data)
}
