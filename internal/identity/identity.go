package identity

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/config"
	"github.com/lkarthik76/ddnd/internal/models"
)

// New builds the identity attached to every outbound request.
//
// The driver id comes from the configuration when present. Otherwise a new
// upper-case UUID is generated, and written back to configPath only when
// identity.persist_driver_id is set.
func New(cfg *models.Config, configPath string, logger *zap.Logger) models.Identity {
	logger = logger.Named("identity")

	id := models.Identity{
		ShortUserID: cfg.Identity.ShortUserID,
		DriverID:    cfg.Identity.DriverID,
	}
	if id.ShortUserID == "" {
		id.ShortUserID = models.DefaultShortUserID
	}
	if id.DriverID != "" {
		return id
	}

	id.DriverID = NewDriverID()
	logger.Info("Generated driver id", zap.String("driver_id", id.DriverID))

	if cfg.Identity.PersistDriverID && configPath != "" {
		cfg.Identity.DriverID = id.DriverID
		if err := config.SaveConfig(cfg, configPath, logger); err != nil {
			logger.Warn("Failed to persist driver id", zap.Error(err))
		}
	}

	return id
}

// NewDriverID returns a random UUID in upper-case canonical form
func NewDriverID() string {
	return strings.ToUpper(uuid.NewString())
}
