package client

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/omochice/room-chat-client/internal/config"
	"github.com/omochice/room-chat-client/internal/directory"
	"github.com/omochice/room-chat-client/internal/session"
	"github.com/omochice/room-chat-client/internal/store"
	"github.com/omochice/room-chat-client/internal/transport"
	"github.com/omochice/room-chat-client/internal/transport/gobwas"
	"github.com/omochice/room-chat-client/internal/transport/ws"
)

const sqliteFile = "roomchat.db"

// NewFromConfig wires a Client with the transport and store selected by
// cfg.
func NewFromConfig(cfg config.Config, presenter Presenter, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return nil, err
	}

	slot, closer, err := OpenSlot(cfg)
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	if closer != nil {
		closers = append(closers, closer)
	}

	var sessPresenter session.Presenter
	if presenter != nil {
		sessPresenter = presenter
	}
	sess, err := session.New(session.Options{
		Dialer:       NewDialer(cfg),
		Store:        store.New(slot, logger.With("component", "store")),
		Presenter:    sessPresenter,
		URL:          wsURL,
		Logger:       logger.With("component", "session"),
		WriteTimeout: cfg.WriteTimeout,
		CloseTimeout: cfg.CloseTimeout,
		PingInterval: cfg.PingInterval,
	})
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}

	dir := directory.New(cfg.APIBaseURL(),
		directory.WithTimeout(cfg.RequestTimeout),
		directory.WithLogger(logger.With("component", "directory")),
	)
	return New(Deps{
		Directory:      dir,
		Session:        sess,
		Presenter:      presenter,
		Logger:         logger,
		Closers:        closers,
		RequestTimeout: cfg.RequestTimeout,
	})
}

// NewDialer returns the websocket dialer named by cfg.Transport.
func NewDialer(cfg config.Config) transport.Dialer {
	switch cfg.Transport {
	case config.TransportGobwas:
		return &gobwas.Dialer{Timeout: cfg.RequestTimeout}
	default:
		return &ws.Dialer{}
	}
}

// OpenSlot opens the durable slot named by cfg.StoreBackend. The returned
// closer is nil when the backend holds no resources.
func OpenSlot(cfg config.Config) (store.Slot, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return store.NewMemorySlot(), nil, nil
	case config.StoreSQLite:
		if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create store dir: %w", err)
		}
		slot, err := store.OpenSQLiteSlot(filepath.Join(cfg.StoreDir, sqliteFile))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open transcript database: %w", err)
		}
		return slot, slot, nil
	default:
		slot, err := store.NewOSFileSlot(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return slot, nil, nil
	}
}
