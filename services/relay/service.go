package relay

import (
	"context"
	"sync/atomic"

	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/mailbridge/mailbridge/config"
	"github.com/mailbridge/mailbridge/interfaces"
	"github.com/mailbridge/mailbridge/internal/cron"
	"github.com/mailbridge/mailbridge/internal/enum"
	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/tracing"
)

// retentionDays is the fixed age window for the daily attachment
// sweep. Deliberately not a config knob.
const retentionDays = 7

// RelayService drives the poll cycle: ensure the session is ready,
// search, then fetch, forward and clean up per message. It owns the
// schedule and reacts to transport failures by recreating the
// session.
type RelayService struct {
	cfg     *config.Config
	log     logger.Logger
	imap    interfaces.IMAPService
	storage interfaces.StorageService
	gateway interfaces.GatewayService
	cron    *cron.CronManager

	state    enum.RelayState
	inFlight atomic.Bool
}

func NewRelayService(
	cfg *config.Config,
	log logger.Logger,
	imapService interfaces.IMAPService,
	storageService interfaces.StorageService,
	gatewayService interfaces.GatewayService,
) *RelayService {
	return &RelayService{
		cfg:     cfg,
		log:     log,
		imap:    imapService,
		storage: storageService,
		gateway: gatewayService,
		cron:    cron.NewCronManager(log),
		state:   enum.RelayIdle,
	}
}

func (s *RelayService) State() enum.RelayState {
	return s.state
}

// Start validates configuration, prepares storage, probes the gateway
// and begins polling. Any failure here is fatal: the relay must not
// enter Running half-configured. The first cycle runs immediately;
// the schedule takes over afterwards.
func (s *RelayService) Start(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "RelayService.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	s.state = enum.RelayInitializing

	if err := s.cfg.Validate(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.storage.EnsureRoot(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.gateway.ProbeState(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.log.Info("Gateway probe succeeded, instance is authorized")

	s.state = enum.RelayRunning

	// First cycle runs right away rather than one interval from now.
	s.RunCycle(ctx)

	err := s.cron.Start(s.cfg.AppConfig.PollIntervalSeconds,
		func() { s.RunCycle(context.Background()) },
		func() { s.RunSweep(context.Background()) },
	)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("Relay running: polling every %ds, forwarding to %s", s.cfg.AppConfig.PollIntervalSeconds, s.cfg.WhatsAppConfig.Destination)
	return nil
}

// Stop cancels the schedules and disconnects the session. An
// in-flight cycle is not waited for; it completes or fails on its
// own.
func (s *RelayService) Stop() {
	s.cron.Stop()
	if err := s.imap.Disconnect(); err != nil {
		s.log.Warnf("Disconnect during stop failed: %v", err)
	}
	s.state = enum.RelayStopped
	s.log.Info("Relay stopped")
}

// RunCycle executes one poll cycle. The in-flight flag keeps a slow
// cycle from being overlapped by the next tick; auth failures are
// surfaced loudly since credentials will not heal themselves, and
// transport failures tear the session down so the next tick starts
// fresh.
func (s *RelayService) RunCycle(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn("Previous poll cycle still running, skipping this tick")
		return
	}
	defer s.inFlight.Store(false)

	span, ctx := tracing.StartTracerSpan(ctx, "RelayService.RunCycle")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	err := s.runCycle(ctx)
	if err == nil {
		return
	}

	tracing.TraceErr(span, err)

	if er.IsAuth(err) {
		s.log.Errorf("Mail server rejected credentials, manual intervention required: %v", err)
		return
	}

	s.log.Errorf("Poll cycle failed: %v", err)

	if er.IsTransport(err) {
		s.log.Info("Transport failure, recreating mail session before next tick")
		if derr := s.imap.Disconnect(); derr != nil {
			s.log.Warnf("Teardown after transport failure: %v", derr)
		}
		if cerr := s.imap.Connect(ctx); cerr != nil {
			s.log.Errorf("Reconnect after transport failure: %v", cerr)
		}
	}
}

// runCycle is the session/search stage plus the per-message loop. An
// error before the loop aborts the cycle; per-message failures are
// contained inside processMessage.
func (s *RelayService) runCycle(ctx context.Context) error {
	if err := s.imap.EnsureReady(ctx); err != nil {
		return err
	}

	if err := s.imap.OpenMailbox(ctx, s.cfg.IMAPConfig.Mailbox); err != nil {
		return err
	}

	uids, err := s.imap.FindUnreadFromSenders(ctx, s.cfg.AppConfig.SenderAllowlist)
	if err != nil {
		return err
	}

	if len(uids) == 0 {
		return nil
	}
	s.log.Infof("Found %d unread message(s) to forward", len(uids))

	for _, uid := range uids {
		s.processMessage(ctx, uid)
	}

	return nil
}

// processMessage fetches, forwards and cleans up one message. Any
// failure is logged and reported to the destination best-effort, then
// the cycle moves on; one broken message never stalls the rest.
func (s *RelayService) processMessage(ctx context.Context, uid uint32) {
	span, ctx := tracing.StartTracerSpan(ctx, "RelayService.processMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("uid", uid)

	msg, err := s.imap.FetchMessage(ctx, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to fetch message %d: %v", uid, err)
		s.notifyFailure(ctx, uid)
		return
	}

	outcome, err := s.gateway.Forward(ctx, msg)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to forward message %d (%s): %v", uid, msg.Subject, err)
		s.notifyFailure(ctx, uid)
		return
	}

	span.LogFields(
		tracingLog.Int("attachments_forwarded", len(outcome.Attachments)),
		tracingLog.Int("attachments_skipped", len(msg.Skipped)),
	)
	s.log.Infof("Forwarded message %d (%s) with %d attachment(s)", uid, msg.Subject, len(msg.Attachments))

	// Forward succeeded: the local copies have served their purpose.
	for _, ref := range msg.Attachments {
		if err := s.storage.Remove(ctx, ref); err != nil {
			s.log.Warnf("Cleanup of %s failed, retention sweep will catch it: %v", ref.StoragePath, err)
		}
	}
}

// notifyFailure sends a best-effort failure notice to the chat
// destination. A failure sending the notice itself is only logged.
func (s *RelayService) notifyFailure(ctx context.Context, uid uint32) {
	notice := "⚠️ Failed to forward an incoming email, check the relay logs"
	if err := s.gateway.SendText(ctx, notice); err != nil {
		s.log.Warnf("Failed to send failure notice for message %d: %v", uid, err)
	}
}

// RunSweep runs the age-based retention sweep over the attachments
// directory, independent of per-message forward outcomes.
func (s *RelayService) RunSweep(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "RelayService.RunSweep")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if _, err := s.storage.Sweep(ctx, retentionDays); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Retention sweep failed: %v", err)
	}
}
