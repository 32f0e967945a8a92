package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type eventConsumer interface {
	Run(ctx context.Context) error
}

type detachedWaiter interface {
	Wait(ctx context.Context) error
}

type ServiceParams struct {
	Logger     *logger.Logger
	Consumer   eventConsumer
	Dispatcher detachedWaiter
	Handler    http.Handler
	Addr       string
}

// Service runs the projection consumer next to the ops HTTP server and stops
// both when either fails or the context ends.
type Service struct {
	logg       *logger.Logger
	consumer   eventConsumer
	dispatcher detachedWaiter
	server     *http.Server
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Consumer == nil {
		return nil, fmt.Errorf("consumer required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("http handler required")
	}
	return &Service{
		logg:       params.Logger,
		consumer:   params.Consumer,
		dispatcher: params.Dispatcher,
		server: &http.Server{
			Addr:              params.Addr,
			Handler:           params.Handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.serve(ctx, listener)
}

func (s *Service) serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logg.Info(s.logg.WithField(gctx, "addr", listener.Addr().String()), "ops server listening")
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.consumer.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("projection consumer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		if err := s.dispatcher.Wait(shutdownCtx); err != nil {
			s.logg.Warn(shutdownCtx, "detached handlers still running at shutdown")
		}
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
