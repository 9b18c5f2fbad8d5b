package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"google.golang.org/api/option"

	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/notify"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// BuildEmailSender picks SendGrid, then SES, then nothing. Both are optional.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if cfg == nil {
		return nil
	}
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg
	}
	if awsCfg != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{FromEmail: cfg.SESFromEmail}, logger); ses != nil {
			return ses
		}
	}
	return nil
}

// BuildStaffNotifier wires FCM push and staff email. Channels that are not
// configured are skipped; a notifier with no channels is a no-op.
func BuildStaffNotifier(ctx context.Context, cfg *appconfig.Config, tokens *notify.TokenCache, remover notify.TokenRemover, email notify.EmailSender, logger *logging.Logger) *notify.StaffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	notifierCfg := notify.StaffNotifierConfig{
		Tokens:  tokens,
		Remover: remover,
		Email:   email,
	}
	if cfg != nil {
		notifierCfg.Emails = cfg.StaffEmails
	}

	if cfg != nil && strings.TrimSpace(cfg.FCMProjectID) != "" {
		var opts []option.ClientOption
		if cfg.FCMCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FCMCredentialsFile))
		}
		pusher, err := notify.NewFCMPusher(ctx, cfg.FCMProjectID, logger, opts...)
		if err != nil {
			logger.Warn("fcm push disabled", "error", err)
		} else {
			notifierCfg.Pusher = pusher
		}
	}
	if notifierCfg.Pusher == nil && notifierCfg.Email == nil {
		logger.Warn("no staff notification channel configured")
	}
	return notify.NewStaffNotifier(notifierCfg, logger)
}
