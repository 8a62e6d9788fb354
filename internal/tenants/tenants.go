// Package tenants resolves the agency an import runs for and the credentials
// it runs with.
package tenants

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

// Credentials are the per-run secrets, tenant values first and process
// config second.
type Credentials struct {
	AIKey          string
	Model          string
	MediaAccountID string
	MediaToken     string
	MediaHash      string
}

// Validate reports the first missing credential as MISSING_CREDENTIALS.
func (c Credentials) Validate() error {
	switch {
	case c.AIKey == "":
		return common.ConfigurationError(common.CodeMissingCredentials, "AI API key is not configured")
	case c.MediaAccountID == "" || c.MediaToken == "" || c.MediaHash == "":
		return common.ConfigurationError(common.CodeMissingCredentials, "media storage credentials are not configured")
	}
	return nil
}

type Tenant struct {
	ID          string
	Name        string
	CreatorName string
	Credentials Credentials
}

type Service struct {
	repo     repository.TenantRepository
	fallback Credentials
	logger   *slog.Logger
}

func NewService(repo repository.TenantRepository, cfg *common.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger}
	if cfg != nil {
		s.fallback = Credentials{
			AIKey:          cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			MediaAccountID: cfg.Media.AccountID,
			MediaToken:     cfg.Media.APIToken,
			MediaHash:      cfg.Media.DeliveryHash,
		}
	}
	return s
}

// Resolve loads the tenant. An empty or unknown ID is USER_NO_LOCATION.
func (s *Service) Resolve(ctx context.Context, tenantID string) (*Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, common.ConfigurationError(common.CodeUserNoLocation, "no tenant selected for this import")
	}
	row, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ConfigurationError(common.CodeUserNoLocation, "tenant "+tenantID+" does not exist")
		}
		s.logger.Error("tenants.resolve.failed", "tenant_id", tenantID, "error", err)
		return nil, common.NewAppError(common.CodePersistenceFailed, "failed to load tenant", err)
	}
	return &Tenant{
		ID:          row.ID,
		Name:        row.Name,
		CreatorName: row.CreatorName,
		Credentials: s.credentialsFor(row),
	}, nil
}

func (s *Service) credentialsFor(t *entity.Tenant) Credentials {
	return Credentials{
		AIKey:          firstNonEmpty(t.AIAPIKey, s.fallback.AIKey),
		Model:          firstNonEmpty(t.AIModel, s.fallback.Model),
		MediaAccountID: firstNonEmpty(t.MediaAccountID, s.fallback.MediaAccountID),
		MediaToken:     firstNonEmpty(t.MediaAPIToken, s.fallback.MediaToken),
		MediaHash:      firstNonEmpty(t.MediaDeliveryHash, s.fallback.MediaHash),
	}
}

// ScrapeRules returns the saved rule texts for domain. A lookup failure
// degrades to no rules.
func (s *Service) ScrapeRules(ctx context.Context, tenantID, domain string) []string {
	if domain == "" {
		return nil
	}
	rules, err := s.repo.ScrapeRules(ctx, tenantID, domain)
	if err != nil {
		s.logger.Warn("tenants.rules.failed", "tenant_id", tenantID, "domain", domain, "error", err)
		return nil
	}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Rule)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
