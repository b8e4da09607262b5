package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/mailbridge/mailbridge/config"
	"github.com/mailbridge/mailbridge/interfaces"
	"github.com/mailbridge/mailbridge/internal/enum"
	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/tracing"
)

const (
	connectTimeout = 30 * time.Second
	logoutTimeout  = 5 * time.Second
)

// IMAPService owns the single mail-server session. The relay is the
// only caller, so no locking guards the client handle.
type IMAPService struct {
	cfg             *config.IMAPConfig
	log             logger.Logger
	storage         interfaces.StorageService
	maxAttachmentMB float64

	client *client.Client
	state  enum.SessionState
}

func NewIMAPService(cfg *config.IMAPConfig, maxAttachmentMB float64, storage interfaces.StorageService, log logger.Logger) interfaces.IMAPService {
	return &IMAPService{
		cfg:             cfg,
		log:             log,
		storage:         storage,
		maxAttachmentMB: maxAttachmentMB,
		state:           enum.SessionDisconnected,
	}
}

func (s *IMAPService) State() enum.SessionState {
	return s.state
}

// Connect establishes a connection to the IMAP server and logs in.
// Dial and handshake failures are tagged transport; a rejected login
// is tagged auth and is not worth retrying.
func (s *IMAPService) Connect(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.Connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("server", s.cfg.Host)
	span.SetTag("port", s.cfg.Port)
	span.SetTag("tls", s.cfg.TLS)

	s.state = enum.SessionConnecting

	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if s.cfg.TLS {
		tlsConfig := &tls.Config{
			ServerName: s.cfg.Host,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}

	if err != nil {
		s.state = enum.SessionErrored
		err = er.Wrapf(er.KindTransport, err, "failed to connect to %s", serverAddr)
		tracing.TraceErr(span, err)
		return err
	}

	caps, err := c.Capability()
	if err != nil {
		c.Logout()
		s.state = enum.SessionErrored
		err = er.Wrap(er.KindTransport, err, "failed to get capabilities")
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("server.capabilities", fmt.Sprintf("%v", caps))

	// Bound the login exchange; normal operations run without a
	// client timeout afterwards.
	c.Timeout = connectTimeout

	err = c.Login(s.cfg.Username, s.cfg.Password)
	if err != nil {
		c.Logout()
		s.state = enum.SessionErrored
		err = er.Wrapf(er.KindAuth, err, "failed to login as %s", s.cfg.Username)
		tracing.TraceErr(span, err)
		return err
	}

	c.Timeout = 0

	s.client = c
	s.state = enum.SessionReady
	s.log.Infof("Connected and logged in to %s as %s", serverAddr, s.cfg.Username)
	span.SetTag("success", true)

	return nil
}

// EnsureReady verifies the existing session is still alive with a
// NOOP, reconnecting from scratch when it is not. A dropped session
// is never reused.
func (s *IMAPService) EnsureReady(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.EnsureReady")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.client != nil && s.state == enum.SessionReady {
		err := s.client.Noop()
		if err == nil {
			return nil
		}
		s.log.Warnf("Existing connection is broken: %v", err)
		s.state = enum.SessionErrored
		s.client = nil
	}

	return s.Connect(ctx)
}

// OpenMailbox selects the named folder read-write so fetches can flag
// messages seen.
func (s *IMAPService) OpenMailbox(ctx context.Context, name string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.OpenMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("mailbox", name)

	if s.client == nil {
		err := er.New(er.KindTransport, "no active session")
		tracing.TraceErr(span, err)
		return err
	}

	status, err := s.client.Select(name, false)
	if err != nil {
		err = er.Wrapf(er.KindProtocol, err, "failed to select mailbox %s", name)
		tracing.TraceErr(span, err)
		return err
	}

	span.SetTag("messages", status.Messages)
	return nil
}

// Disconnect logs out the current session. Idempotent; safe to call
// when nothing is connected.
func (s *IMAPService) Disconnect() error {
	if s.client == nil {
		if s.state != enum.SessionErrored {
			s.state = enum.SessionEnded
		}
		return nil
	}

	c := s.client
	s.client = nil

	c.Timeout = logoutTimeout

	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
		close(done)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warnf("Error during logout: %v", err)
		} else {
			s.log.Info("Logged out from IMAP server")
		}
	case <-time.After(logoutTimeout):
		s.log.Warn("Logout timed out")
	}

	s.state = enum.SessionEnded
	return nil
}
