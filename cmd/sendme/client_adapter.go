package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"sendme/internal/app"
	sendmeclient "sendme/internal/client"
	"sendme/internal/config"
	"sendme/internal/engine"
	"sendme/internal/logging"
	"sendme/internal/store"
	"sendme/internal/types"
	"sendme/internal/upload"
)

type clientFactory func() (commandClient, error)

// commandClient is everything the subcommands need from the backend and the
// local session. It also satisfies engine.Transport.
type commandClient interface {
	FetchAll(ctx context.Context) ([]*types.ServerRecord, error)
	SendText(ctx context.Context, content string, device types.Device) (*types.ServerRecord, error)
	UploadFile(ctx context.Context, file upload.File, device types.Device, onProgress func(loaded, total int64)) (*types.ServerRecord, error)
	UpdateText(ctx context.Context, id, content string, device types.Device) (*types.ServerRecord, error)
	DeleteMessage(ctx context.Context, id string) error
	Download(ctx context.Context, filePath string, w io.Writer) (int64, error)
	Login(ctx context.Context, username, password string) (*store.Session, error)
	Register(ctx context.Context, username, password string) (*sendmeclient.UserResponse, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (*store.Session, error)
	Settings() config.Config
	Logger() logging.Logger
	RunUI() error
	Close() error
}

type sendmeClientAdapter struct {
	client  *sendmeclient.Client
	cfg     config.Config
	repo    store.Repository
	logger  logging.Logger
	closers []io.Closer
}

func newSendmeClient() (commandClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	adapter := &sendmeClientAdapter{cfg: cfg, logger: logging.Nop()}
	if logPath, err := config.LogPath(); err == nil {
		if logger, closer, err := logging.Open(logPath, logging.ParseLevel(cfg.LogLevel())); err == nil {
			adapter.logger = logger
			adapter.closers = append(adapter.closers, closer)
		}
	}

	repo, err := openRepository(cfg)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	adapter.repo = repo
	adapter.closers = append(adapter.closers, repo)

	ctx := context.Background()
	client, err := sendmeclient.New(ctx, cfg, repo.Sessions(),
		sendmeclient.WithLogger(adapter.logger.With(logging.F("component", "client"))))
	if err != nil {
		adapter.Close()
		return nil, err
	}
	adapter.client = client
	return adapter, nil
}

func openRepository(cfg config.Config) (store.Repository, error) {
	sessionPath, err := config.SessionPath()
	if err != nil {
		return nil, err
	}
	dbPath, err := config.SessionDBPath()
	if err != nil {
		return nil, err
	}
	paths := store.RepositoryPaths{SessionPath: sessionPath, DBPath: dbPath}
	repo, err := store.OpenRepository(paths, cfg.StorageBackend())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := store.SeedRepositoryFromFiles(context.Background(), repo, paths); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func (c *sendmeClientAdapter) FetchAll(ctx context.Context) ([]*types.ServerRecord, error) {
	return c.client.FetchAll(ctx)
}

func (c *sendmeClientAdapter) SendText(ctx context.Context, content string, device types.Device) (*types.ServerRecord, error) {
	return c.client.SendText(ctx, content, device)
}

func (c *sendmeClientAdapter) UploadFile(ctx context.Context, file upload.File, device types.Device, onProgress func(loaded, total int64)) (*types.ServerRecord, error) {
	return c.client.UploadFile(ctx, file, device, onProgress)
}

func (c *sendmeClientAdapter) UpdateText(ctx context.Context, id, content string, device types.Device) (*types.ServerRecord, error) {
	return c.client.UpdateText(ctx, id, content, device)
}

func (c *sendmeClientAdapter) DeleteMessage(ctx context.Context, id string) error {
	return c.client.DeleteMessage(ctx, id)
}

func (c *sendmeClientAdapter) Download(ctx context.Context, filePath string, w io.Writer) (int64, error) {
	return c.client.Download(ctx, filePath, w)
}

// Login exchanges the credentials for a token and persists it for this
// server.
func (c *sendmeClientAdapter) Login(ctx context.Context, username, password string) (*store.Session, error) {
	resp, err := c.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	session := &store.Session{
		BaseURL:   c.client.BaseURL(),
		Username:  username,
		Token:     resp.AccessToken,
		TokenType: resp.TokenType,
	}
	if err := c.repo.Sessions().Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (c *sendmeClientAdapter) Register(ctx context.Context, username, password string) (*sendmeclient.UserResponse, error) {
	return c.client.Register(ctx, username, password)
}

func (c *sendmeClientAdapter) Logout(ctx context.Context) error {
	c.client.SetToken("")
	return c.repo.Sessions().Clear(ctx)
}

func (c *sendmeClientAdapter) Session(ctx context.Context) (*store.Session, error) {
	return c.repo.Sessions().Load(ctx)
}

func (c *sendmeClientAdapter) Settings() config.Config {
	return c.cfg
}

func (c *sendmeClientAdapter) Logger() logging.Logger {
	return c.logger
}

func (c *sendmeClientAdapter) RunUI() error {
	eng := newEngine(c)
	defer eng.Close()
	return app.Run(eng, app.Options{
		Remote:         c.client,
		RenderMarkdown: c.cfg.RenderMarkdown(),
		Title:          "SendMe · " + c.client.BaseURL(),
		Load:           true,
		Logger:         c.logger.With(logging.F("component", "ui")),
	})
}

func (c *sendmeClientAdapter) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

var _ engine.Transport = (*sendmeClientAdapter)(nil)
