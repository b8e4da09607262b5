package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailbridge/mailbridge/config"
	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

// gatewayRecorder is a fake green-api instance that records every
// call it receives.
type gatewayRecorder struct {
	mu            sync.Mutex
	textBodies    []string
	fileUploads   []string
	state         string
	failTextSends int
	failFileFor   map[string]bool
}

func newGatewayRecorder() *gatewayRecorder {
	return &gatewayRecorder{state: "authorized", failFileFor: map[string]bool{}}
}

func (g *gatewayRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		switch {
		case strings.Contains(r.URL.Path, "getStateInstance"):
			json.NewEncoder(w).Encode(map[string]string{"stateInstance": g.state})

		case strings.Contains(r.URL.Path, "sendMessage"):
			if g.failTextSends > 0 {
				g.failTextSends--
				http.Error(w, "quota exceeded", http.StatusInternalServerError)
				return
			}
			var payload struct {
				ChatID  string `json:"chatId"`
				Message string `json:"message"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			g.textBodies = append(g.textBodies, payload.Message)
			json.NewEncoder(w).Encode(map[string]string{"idMessage": "msg-1"})

		case strings.Contains(r.URL.Path, "sendFileByUpload"):
			r.ParseMultipartForm(32 << 20)
			fileName := r.FormValue("fileName")
			if g.failFileFor[fileName] {
				http.Error(w, "upload rejected", http.StatusInternalServerError)
				return
			}
			g.fileUploads = append(g.fileUploads, fileName)
			json.NewEncoder(w).Encode(map[string]string{"idMessage": "msg-2"})

		default:
			http.NotFound(w, r)
		}
	})
}

func newTestService(t *testing.T, recorder *gatewayRecorder) *WhatsAppService {
	t.Helper()
	server := httptest.NewServer(recorder.handler())
	t.Cleanup(server.Close)

	cfg := &config.WhatsAppConfig{
		InstanceID:         "1101000001",
		Token:              "test-token",
		APIBaseURL:         server.URL,
		MediaBaseURL:       server.URL,
		Destination:        "081234567890",
		DefaultCountryCode: "62",
	}

	return &WhatsAppService{
		cfg:         cfg,
		log:         getLogger(),
		httpClient:  server.Client(),
		destination: "6281234567890@c.us",
		sendDelay:   0,
	}
}

func storedAttachment(t *testing.T, name string, content []byte) models.AttachmentRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("1748000000000_%s", name))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return models.AttachmentRef{
		ID:          "att_" + name,
		Filename:    name,
		StoragePath: path,
		ContentType: "application/octet-stream",
		Size:        int64(len(content)),
	}
}

func TestProbeStateAuthorized(t *testing.T) {
	recorder := newGatewayRecorder()
	service := newTestService(t, recorder)

	assert.NoError(t, service.ProbeState(context.Background()))
}

func TestProbeStateNotAuthorized(t *testing.T) {
	recorder := newGatewayRecorder()
	recorder.state = "notAuthorized"
	service := newTestService(t, recorder)

	err := service.ProbeState(context.Background())

	require.Error(t, err)
	assert.Equal(t, er.KindGateway, er.KindOf(err))
	assert.Contains(t, err.Error(), "notAuthorized")
}

func TestForwardTextOnlyMessage(t *testing.T) {
	recorder := newGatewayRecorder()
	service := newTestService(t, recorder)

	msg := &models.InboundMessage{
		UID:      1,
		From:     "alerts@example.com",
		Subject:  "Greetings",
		BodyText: "Hello",
	}

	outcome, err := service.Forward(context.Background(), msg)

	require.NoError(t, err)
	assert.True(t, outcome.Sent)
	assert.Empty(t, outcome.Attachments)

	// Exactly one text send, zero file sends.
	require.Len(t, recorder.textBodies, 1)
	assert.Empty(t, recorder.fileUploads)
	assert.Contains(t, recorder.textBodies[0], "Greetings")
	assert.Contains(t, recorder.textBodies[0], "Hello")
}

func TestForwardWithSentAndSkippedAttachments(t *testing.T) {
	recorder := newGatewayRecorder()
	service := newTestService(t, recorder)

	msg := &models.InboundMessage{
		UID:      2,
		From:     "alerts@example.com",
		Subject:  "Backup",
		BodyText: "see attached",
		Attachments: []models.AttachmentRef{
			storedAttachment(t, "small.zip", []byte("zip-bytes")),
		},
		Skipped: []models.SkippedAttachment{
			{Filename: "huge.iso", Size: 40 << 20, Reason: models.SkipReasonSizeLimit},
		},
	}

	outcome, err := service.Forward(context.Background(), msg)

	require.NoError(t, err)
	assert.True(t, outcome.Sent)
	require.Len(t, outcome.Attachments, 1)
	assert.True(t, outcome.Attachments[0].Sent)
	assert.True(t, outcome.SkippedNotified)

	// One body text, one file upload, one skip summary.
	require.Len(t, recorder.textBodies, 2)
	require.Len(t, recorder.fileUploads, 1)
	assert.Equal(t, "small.zip", recorder.fileUploads[0])

	summary := recorder.textBodies[1]
	assert.Contains(t, summary, "huge.iso")
	assert.Contains(t, summary, models.SkipReasonSizeLimit)
}

func TestForwardTextFailureAbortsAttachments(t *testing.T) {
	recorder := newGatewayRecorder()
	recorder.failTextSends = 1
	service := newTestService(t, recorder)

	msg := &models.InboundMessage{
		UID:      3,
		Subject:  "Doomed",
		BodyText: "will not arrive",
		Attachments: []models.AttachmentRef{
			storedAttachment(t, "never-sent.bin", []byte("data")),
		},
	}

	outcome, err := service.Forward(context.Background(), msg)

	require.Error(t, err)
	assert.Equal(t, er.KindGateway, er.KindOf(err))
	assert.False(t, outcome.Sent)

	// No file sends are attempted after the body fails.
	assert.Empty(t, recorder.fileUploads)
}

func TestForwardIsolatesAttachmentFailure(t *testing.T) {
	recorder := newGatewayRecorder()
	recorder.failFileFor["bad.bin"] = true
	service := newTestService(t, recorder)

	msg := &models.InboundMessage{
		UID:      4,
		Subject:  "Mixed",
		BodyText: "two files",
		Attachments: []models.AttachmentRef{
			storedAttachment(t, "bad.bin", []byte("bad")),
			storedAttachment(t, "good.bin", []byte("good")),
		},
	}

	outcome, err := service.Forward(context.Background(), msg)

	require.NoError(t, err)
	assert.True(t, outcome.Sent)
	require.Len(t, outcome.Attachments, 2)
	assert.False(t, outcome.Attachments[0].Sent)
	assert.True(t, outcome.Attachments[1].Sent)

	// The failed upload produced a failure notice, the second file
	// still went out.
	assert.Len(t, recorder.fileUploads, 1)
	require.Len(t, recorder.textBodies, 2)
	assert.Contains(t, recorder.textBodies[1], "bad.bin")
}

func TestRenderMessagePrefersPlainText(t *testing.T) {
	msg := &models.InboundMessage{
		From:     "a@example.com",
		Subject:  "Sub",
		BodyText: "plain body",
		BodyHTML: "<b>html body</b>",
	}

	rendered := renderMessage(msg)

	assert.Contains(t, rendered, "plain body")
	assert.NotContains(t, rendered, "html body")
	assert.NotContains(t, rendered, "Attachments:")
}

func TestRenderMessageStripsHTMLFallback(t *testing.T) {
	msg := &models.InboundMessage{
		From:     "a@example.com",
		Subject:  "Sub",
		BodyHTML: "<p>only <b>html</b> here</p>",
	}

	rendered := renderMessage(msg)

	assert.Contains(t, rendered, "only html here")
	assert.NotContains(t, rendered, "<p>")
}
