package service

import (
	"time"

	"go.uber.org/zap"

	"whozere-relay/internal/archive"
	"whozere-relay/internal/config"
	"whozere-relay/internal/notify"
	"whozere-relay/internal/repository"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	repo     *repository.LoginRepository
	analyzer RiskAnalyzer
	notifier notify.Notifier
	settings config.Source
	location *time.Location
	mirrors  []archive.RecordMirror
	logger   *zap.Logger

	webhookService *WebhookService
	queryService   *QueryService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	repo *repository.LoginRepository,
	analyzer RiskAnalyzer,
	notifier notify.Notifier,
	settings config.Source,
	location *time.Location,
	mirrors []archive.RecordMirror,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		repo:     repo,
		analyzer: analyzer,
		notifier: notifier,
		settings: settings,
		location: location,
		mirrors:  mirrors,
		logger:   logger,
	}
}

// WebhookService returns the webhook service instance (singleton)
func (f *ServiceFactory) WebhookService() *WebhookService {
	if f.webhookService == nil {
		f.webhookService = NewWebhookService(
			f.repo,
			f.analyzer,
			f.notifier,
			f.settings,
			f.location,
			f.logger.Named("webhook"),
			WithMirrors(f.mirrors...),
		)
	}
	return f.webhookService
}

// QueryService returns the query service instance (singleton)
func (f *ServiceFactory) QueryService() *QueryService {
	if f.queryService == nil {
		f.queryService = NewQueryService(f.repo, f.location, f.logger.Named("query"))
	}
	return f.queryService
}
