package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Customer type selection methods used by the authorisation screen.
const (
	SelectionProfileSelection = "profile_selection"
	SelectionCookieData       = "cookie_data"
	SelectionCustomerUType    = "customer_utype"
)

// BNRConfig holds business nominated representative flags.
type BNRConfig struct {
	Enabled                            bool `mapstructure:"enabled"`
	PrioritizeSharableAccountsResponse bool `mapstructure:"prioritize_sharable_accounts_response"`
	ValidateAccountsOnRetrieval        bool `mapstructure:"validate_accounts_on_retrieval"`
}

// SecondaryUserConfig holds secondary (authorised) user flags.
type SecondaryUserConfig struct {
	Enabled                  bool `mapstructure:"enabled"`
	CeasingSharingEnabled    bool `mapstructure:"ceasing_sharing_enabled"`
	ValidateOnConsentRequest bool `mapstructure:"validate_on_consent_request"`
}

// DOMSConfig holds disclosure option management flags.
type DOMSConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthorizeConfig configures the authorisation screen data.
type AuthorizeConfig struct {
	CustomerTypeSelectionMethod string `mapstructure:"customer_type_selection_method"`
	CustomerTypeCookieName      string `mapstructure:"customer_type_cookie_name"`
	SharableAccountsURL         string `mapstructure:"sharable_accounts_url"`
}

// MetadataCacheConfig configures the periodical CDR register poll.
type MetadataCacheConfig struct {
	Enabled                   bool          `mapstructure:"enabled"`
	UpdateSchedule            string        `mapstructure:"update_schedule"`
	DataRecipientsStatusURL   string        `mapstructure:"data_recipients_status_url"`
	SoftwareProductsStatusURL string        `mapstructure:"software_products_status_url"`
	RetryCount                int           `mapstructure:"retry_count"`
	RetryWait                 time.Duration `mapstructure:"retry_wait"`
	CleanupEnabled            bool          `mapstructure:"cleanup_enabled"`
	BulkCleanup               bool          `mapstructure:"bulk_cleanup"`
	BulkCleanupHour           int           `mapstructure:"bulk_cleanup_hour"`
}

// MetricsConfig configures the analytics backend used for CDS metrics.
type MetricsConfig struct {
	AnalyticsURL   string        `mapstructure:"analytics_url"`
	AppName        string        `mapstructure:"app_name"`
	CacheEnabled   bool          `mapstructure:"cache_enabled"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CachePrefix    string        `mapstructure:"cache_prefix"`
	HistoricDays   int           `mapstructure:"historic_days"`
	HistoricMonths int           `mapstructure:"historic_months"`
}

// RevocationConfig configures data-holder initiated arrangement revocation.
type RevocationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BrandID        string        `mapstructure:"brand_id"`
	SigningKeyPath string        `mapstructure:"signing_key_path"`
	KeyID          string        `mapstructure:"key_id"`
	TokenLifetime  time.Duration `mapstructure:"token_lifetime"`
}

// TelemetryConfig configures gateway invocation-error telemetry.
type TelemetryConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	AccessTokenHashing bool `mapstructure:"access_token_hashing"`
	PublishAuthMetrics bool `mapstructure:"publish_auth_metrics"`
}

// CDS is the typed view over the CDS feature configuration.  Values come
// from an optional YAML file and can be overridden with CDS_* env vars
// (dots become underscores, e.g. CDS_BNR_ENABLED).
type CDS struct {
	BNR           BNRConfig           `mapstructure:"bnr"`
	SecondaryUser SecondaryUserConfig `mapstructure:"secondary_user"`
	DOMS          DOMSConfig          `mapstructure:"doms"`
	Authorize     AuthorizeConfig     `mapstructure:"authorize"`
	MetadataCache MetadataCacheConfig `mapstructure:"metadata_cache"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Revocation    RevocationConfig    `mapstructure:"revocation"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

func setCDSDefaults(v *viper.Viper) {
	v.SetDefault("bnr.enabled", true)
	v.SetDefault("bnr.prioritize_sharable_accounts_response", true)
	v.SetDefault("bnr.validate_accounts_on_retrieval", true)

	v.SetDefault("secondary_user.enabled", true)
	v.SetDefault("secondary_user.ceasing_sharing_enabled", true)
	v.SetDefault("secondary_user.validate_on_consent_request", true)

	v.SetDefault("doms.enabled", true)

	v.SetDefault("authorize.customer_type_selection_method", SelectionProfileSelection)
	v.SetDefault("authorize.customer_type_cookie_name", "customerUType")
	v.SetDefault("authorize.sharable_accounts_url", "http://localhost:9446/api/openbanking/backend-cds/services/bankaccounts/bankaccountservice/sharable-accounts")

	v.SetDefault("metadata_cache.enabled", true)
	v.SetDefault("metadata_cache.update_schedule", "@every 2m")
	v.SetDefault("metadata_cache.data_recipients_status_url", "https://api.cdr.gov.au/cdr-register/v1/banking/data-recipients/status")
	v.SetDefault("metadata_cache.software_products_status_url", "https://api.cdr.gov.au/cdr-register/v1/banking/data-recipients/brands/software-products/status")
	v.SetDefault("metadata_cache.retry_count", 3)
	v.SetDefault("metadata_cache.retry_wait", "2s")
	v.SetDefault("metadata_cache.cleanup_enabled", false)
	v.SetDefault("metadata_cache.bulk_cleanup", false)
	v.SetDefault("metadata_cache.bulk_cleanup_hour", 2)

	v.SetDefault("metrics.analytics_url", "http://localhost:7071/stores/query")
	v.SetDefault("metrics.app_name", "CDSMetricsApp")
	v.SetDefault("metrics.cache_enabled", true)
	v.SetDefault("metrics.cache_ttl", "24h")
	v.SetDefault("metrics.cache_prefix", "cds:metrics")
	v.SetDefault("metrics.historic_days", 7)
	v.SetDefault("metrics.historic_months", 12)

	v.SetDefault("revocation.enabled", true)
	v.SetDefault("revocation.brand_id", "")
	v.SetDefault("revocation.signing_key_path", "")
	v.SetDefault("revocation.key_id", "")
	v.SetDefault("revocation.token_lifetime", "5m")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.access_token_hashing", false)
	v.SetDefault("telemetry.publish_auth_metrics", true)
}

// LoadCDS reads the CDS feature configuration.  A missing file is not an
// error; defaults and env overrides still apply.
func LoadCDS(path string) (*CDS, error) {
	v := viper.New()
	setCDSDefaults(v)
	v.SetEnvPrefix("CDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read cds config %s: %w", path, err)
				}
			}
		}
	}

	var cds CDS
	if err := v.Unmarshal(&cds); err != nil {
		return nil, fmt.Errorf("decode cds config: %w", err)
	}
	switch cds.Authorize.CustomerTypeSelectionMethod {
	case SelectionProfileSelection, SelectionCookieData, SelectionCustomerUType:
	default:
		return nil, fmt.Errorf("unsupported customer_type_selection_method %q", cds.Authorize.CustomerTypeSelectionMethod)
	}
	if cds.MetadataCache.RetryCount < 1 {
		cds.MetadataCache.RetryCount = 1
	}
	if cds.MetadataCache.BulkCleanupHour < 0 || cds.MetadataCache.BulkCleanupHour > 23 {
		return nil, fmt.Errorf("bulk_cleanup_hour must be between 0 and 23, got %d", cds.MetadataCache.BulkCleanupHour)
	}
	if cds.Metrics.HistoricDays < 0 {
		return nil, fmt.Errorf("metrics.historic_days must not be negative, got %d", cds.Metrics.HistoricDays)
	}
	if cds.Metrics.HistoricMonths < 0 {
		return nil, fmt.Errorf("metrics.historic_months must not be negative, got %d", cds.Metrics.HistoricMonths)
	}
	return &cds, nil
}
