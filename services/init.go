package services

import (
	"github.com/mailbridge/mailbridge/config"
	"github.com/mailbridge/mailbridge/interfaces"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/services/imap"
	"github.com/mailbridge/mailbridge/services/relay"
	"github.com/mailbridge/mailbridge/services/storage"
	"github.com/mailbridge/mailbridge/services/whatsapp"
)

type Services struct {
	StorageService interfaces.StorageService
	IMAPService    interfaces.IMAPService
	GatewayService interfaces.GatewayService
	RelayService   *relay.RelayService
}

func InitServices(cfg *config.Config, log logger.Logger) *Services {
	storageService := storage.NewLocalStorageService(cfg.AppConfig.AttachmentsDir, log)
	imapService := imap.NewIMAPService(cfg.IMAPConfig, cfg.AppConfig.MaxAttachmentMB, storageService, log)
	gatewayService := whatsapp.NewWhatsAppService(cfg.WhatsAppConfig, log)

	return &Services{
		StorageService: storageService,
		IMAPService:    imapService,
		GatewayService: gatewayService,
		RelayService:   relay.NewRelayService(cfg, log, imapService, storageService, gatewayService),
	}
}
