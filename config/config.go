package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	HTTP struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Comma separated origins allowed to call the API (Angular front end)
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:4200"`
	}

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"database/estatedesk.db"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}

	// DVF open-data transaction registry
	DVF struct {
		BaseURL string `env:"DVF_API_BASE_URL" envDefault:"https://apidf-preprod.cerema.fr/dvf_opendata/geomutations/"`

		// Optional bearer token
		Token string `env:"DVF_API_TOKEN"`

		// Per-request timeout
		Timeout time.Duration `env:"DVF_TIMEOUT" envDefault:"20s"`

		PageSize int `env:"DVF_PAGE_SIZE" envDefault:"500"`

		// Upper bound on followed "next" links per fetch
		MaxPages int `env:"DVF_MAX_PAGES" envDefault:"10"`
	}

	Geocoder struct {
		BaseURL string        `env:"GEOCODER_BASE_URL" envDefault:"https://api-adresse.data.gouv.fr/search/"`
		Timeout time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"5s"`
	}

	Comparables struct {
		// Days a computed comparables response stays valid
		CacheTTLDays int `env:"COMPARABLES_CACHE_TTL_DAYS" envDefault:"7"`

		RadiiMeters   []int `env:"COMPARABLES_RADII_METERS" envSeparator:"," envDefault:"1000,2000,3000,5000,7000,10000"`
		TargetCount   int   `env:"COMPARABLES_TARGET_COUNT" envDefault:"100"`
		LookbackYears int   `env:"COMPARABLES_LOOKBACK_YEARS" envDefault:"10"`

		MinPricePerSqm     float64 `env:"COMPARABLES_MIN_PRICE_PER_SQM" envDefault:"500"`
		LandMinPricePerSqm float64 `env:"COMPARABLES_LAND_MIN_PRICE_PER_SQM" envDefault:"1"`
	}

	OpenAI struct {
		// Empty key disables the provider; valuations then use the statistical fallback
		APIKey  string        `env:"OPENAI_API_KEY"`
		Model   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
		Timeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of transactions written in one database transaction
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"200ms"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
