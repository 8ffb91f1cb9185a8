package postgres

import (
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Licenses    ports.LicenseRepository
	Activations ports.ActivationRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Licenses:    &licenseRepository{db: db},
		Activations: &activationRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		EventDedup:  &eventDedupRepository{db: db},
	}
}
