package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/mailbridge/mailbridge/config"
	"github.com/mailbridge/mailbridge/interfaces"
	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/models"
	"github.com/mailbridge/mailbridge/internal/tracing"
	"github.com/mailbridge/mailbridge/internal/utils"
)

// interSendDelay is the fixed pause after each successful attachment
// send and before the skip summary, to respect gateway rate limits.
const interSendDelay = 1 * time.Second

const requestTimeout = 60 * time.Second

const stateAuthorized = "authorized"

// WhatsAppService delivers forwarded mail to one chat destination
// over a green-api style HTTP gateway. All endpoints share the
// instance base path and carry the token in the path.
type WhatsAppService struct {
	cfg         *config.WhatsAppConfig
	log         logger.Logger
	httpClient  *http.Client
	destination string
	sendDelay   time.Duration
}

func NewWhatsAppService(cfg *config.WhatsAppConfig, log logger.Logger) interfaces.GatewayService {
	return &WhatsAppService{
		cfg:         cfg,
		log:         log,
		httpClient:  &http.Client{Timeout: requestTimeout},
		destination: utils.NormalizeChatAddress(cfg.Destination, cfg.DefaultCountryCode),
		sendDelay:   interSendDelay,
	}
}

func (s *WhatsAppService) apiURL(method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", s.cfg.APIBaseURL, s.cfg.InstanceID, method, s.cfg.Token)
}

func (s *WhatsAppService) mediaURL(method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", s.cfg.MediaBaseURL, s.cfg.InstanceID, method, s.cfg.Token)
}

// ProbeState checks the gateway instance is authorized. Anything else
// means sends would be rejected, so startup treats it as fatal.
func (s *WhatsAppService) ProbeState(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WhatsAppService.ProbeState")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL("getStateInstance"), nil)
	if err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build state request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		err = er.Wrap(er.KindGateway, err, "gateway state probe failed")
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = er.Newf(er.KindGateway, "gateway state probe returned status %d", resp.StatusCode)
		tracing.TraceErr(span, err)
		return err
	}

	var state struct {
		StateInstance string `json:"stateInstance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		err = er.Wrap(er.KindGateway, err, "failed to decode gateway state")
		tracing.TraceErr(span, err)
		return err
	}

	span.LogFields(tracingLog.String("state", state.StateInstance))
	if state.StateInstance != stateAuthorized {
		err = er.Newf(er.KindGateway, "gateway instance not authorized: state is %q", state.StateInstance)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// SendText delivers one text message to the configured destination.
func (s *WhatsAppService) SendText(ctx context.Context, body string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WhatsAppService.SendText")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("destination", s.destination)

	payload, err := json.Marshal(map[string]string{
		"chatId":  s.destination,
		"message": body,
	})
	if err != nil {
		return er.Wrap(er.KindGateway, err, "failed to encode text message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build send request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		err = er.Wrap(er.KindGateway, err, "text send failed")
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(resp.Body)
		err = er.Newf(er.KindGateway, "text send returned status %d: %s", resp.StatusCode, string(responseBody))
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// SendFile uploads one stored attachment with a caption.
func (s *WhatsAppService) SendFile(ctx context.Context, ref models.AttachmentRef, caption string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WhatsAppService.SendFile")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("filename", ref.Filename)
	span.SetTag("size", ref.Size)

	file, err := os.Open(ref.StoragePath)
	if err != nil {
		return er.Wrapf(er.KindGateway, err, "failed to open attachment %s", ref.StoragePath)
	}
	defer file.Close()

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	if err := writer.WriteField("chatId", s.destination); err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build upload form")
	}
	if err := writer.WriteField("fileName", ref.Filename); err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build upload form")
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build upload form")
	}

	part, err := writer.CreateFormFile("file", ref.Filename)
	if err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build upload form")
	}
	if _, err := io.Copy(part, file); err != nil {
		return er.Wrapf(er.KindGateway, err, "failed to read attachment %s", ref.StoragePath)
	}
	if err := writer.Close(); err != nil {
		return er.Wrap(er.KindGateway, err, "failed to finalize upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.mediaURL("sendFileByUpload"), &requestBody)
	if err != nil {
		return er.Wrap(er.KindGateway, err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		err = er.Wrapf(er.KindGateway, err, "file send failed for %s", ref.Filename)
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(resp.Body)
		err = er.Newf(er.KindGateway, "file send for %s returned status %d: %s", ref.Filename, resp.StatusCode, string(responseBody))
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// Forward delivers one message: rendered text first, then each
// attachment in original order, then a skip summary when the size
// gate dropped anything. A text-body failure aborts the forward with
// no file sends attempted; attachment failures are isolated.
func (s *WhatsAppService) Forward(ctx context.Context, msg *models.InboundMessage) (*models.ForwardOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WhatsAppService.Forward")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("uid", msg.UID)

	outcome := &models.ForwardOutcome{}

	if err := s.SendText(ctx, renderMessage(msg)); err != nil {
		tracing.TraceErr(span, err)
		return outcome, err
	}
	outcome.Sent = true

	for _, ref := range msg.Attachments {
		caption := fmt.Sprintf("%s (%s)", ref.Filename, humanize.Bytes(uint64(ref.Size)))
		if err := s.SendFile(ctx, ref, caption); err != nil {
			s.log.Errorf("Failed to forward attachment %s: %v", ref.Filename, err)
			tracing.TraceErr(span, err)
			notice := fmt.Sprintf("⚠️ Could not forward attachment %s", ref.Filename)
			if nerr := s.SendText(ctx, notice); nerr != nil {
				s.log.Warnf("Failed to send attachment failure notice: %v", nerr)
			}
			outcome.Attachments = append(outcome.Attachments, models.AttachmentResult{Filename: ref.Filename, Sent: false})
			continue
		}

		outcome.Attachments = append(outcome.Attachments, models.AttachmentResult{Filename: ref.Filename, Sent: true})
		s.pause(ctx)
	}

	if len(msg.Skipped) > 0 {
		s.pause(ctx)
		if err := s.SendText(ctx, renderSkipSummary(msg.Skipped)); err != nil {
			s.log.Warnf("Failed to send skipped-attachment summary: %v", err)
			tracing.TraceErr(span, err)
		} else {
			outcome.SkippedNotified = true
		}
	}

	return outcome, nil
}

func (s *WhatsAppService) pause(ctx context.Context) {
	if s.sendDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.sendDelay):
	case <-ctx.Done():
	}
}
