package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/aatwiz/calendar-reminder/internal/channels/whatsapp"
	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// BuildNotifier returns the patient-facing notifier for NOTIFIER_CHANNEL
// behind a circuit breaker. When credentials are missing the notifier is
// still returned, unconfigured, so reminder runs report ErrNotConfigured.
func BuildNotifier(cfg *appconfig.Config, m *metrics.ReminderMetrics, logger *logging.Logger) notify.Notifier {
	var inner notify.Notifier
	switch cfg.NotifierChannel {
	case notify.ChannelSMS:
		sms, provider, reason := notify.BuildSMSNotifier(notify.ProviderSelectionConfig{
			Preference:       cfg.SMSProvider,
			TelnyxAPIKey:     cfg.TelnyxAPIKey,
			TelnyxProfileID:  cfg.TelnyxProfileID,
			TelnyxFromNumber: cfg.TelnyxFromNumber,
			TwilioAccountSID: cfg.TwilioAccountSID,
			TwilioAuthToken:  cfg.TwilioAuthToken,
			TwilioFromNumber: cfg.TwilioFromNumber,
		}, logger)
		if sms == nil {
			logger.Warn("sms notifier not configured", "reason", reason)
			sms = notify.NewTelnyxNotifier("", "", "", logger)
		} else {
			logger.Info("sms notifier selected", "provider", provider)
		}
		inner = sms
	default:
		if cfg.NotifierChannel != notify.ChannelWhatsApp {
			logger.Warn("unknown NOTIFIER_CHANNEL; using whatsapp", "channel", cfg.NotifierChannel)
		}
		client := whatsapp.NewClient(cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken)
		client.SetLanguage(cfg.TemplateLanguage)
		if cfg.WhatsAppGraphAPIBase != "" {
			client.SetGraphAPIBase(cfg.WhatsAppGraphAPIBase)
		}
		if !client.IsConfigured() {
			logger.Warn("whatsapp notifier not configured", "reason", "WHATSAPP_PHONE_NUMBER_ID or WHATSAPP_ACCESS_TOKEN missing")
		}
		inner = notify.NewWhatsAppNotifier(client, logger)
	}

	return notify.NewBreakerNotifier(inner, notify.BreakerConfig{
		FailureThreshold: uint32(max(cfg.BreakerFailureThreshold, 0)),
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}, m, logger)
}

// BuildStaffNotifier fans reschedule alerts out to every configured staff
// channel: email (SendGrid or SES), a text to STAFF_PHONE over the patient
// notifier, and an SQS queue.
func BuildStaffNotifier(cfg *appconfig.Config, deps *Deps, patient notify.Notifier, m *metrics.ReminderMetrics, logger *logging.Logger) *notify.MultiStaffNotifier {
	staff := notify.NewMultiStaffNotifier(m, logger)

	if cfg.StaffEmail != "" {
		switch cfg.EmailProvider {
		case "ses":
			if deps.AWS != nil {
				sender := notify.NewSESSender(sesv2.NewFromConfig(*deps.AWS), notify.SESConfig{
					FromEmail: cfg.SESFromEmail,
					FromName:  cfg.SESFromName,
				}, logger)
				if sender != nil {
					staff.Add("ses", notify.NewEmailStaffNotifier(sender, cfg.StaffEmail))
				}
			}
		default:
			sender := notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    cfg.SendGridAPIKey,
				FromEmail: cfg.SendGridFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
			if sender != nil {
				staff.Add("sendgrid", notify.NewEmailStaffNotifier(sender, cfg.StaffEmail))
			}
		}
	}

	if cfg.StaffPhone != "" && patient != nil {
		staff.Add(patient.Channel(), notify.NewTextStaffNotifier(patient, cfg.StaffPhone))
	}

	if cfg.StaffQueueURL != "" && deps.AWS != nil {
		staff.Add("sqs", notify.NewSQSStaffNotifier(sqs.NewFromConfig(*deps.AWS), cfg.StaffQueueURL))
	}

	if staff.Len() == 0 {
		logger.Warn("no staff notification channel configured; reschedule requests only update the calendar")
	}
	return staff
}
