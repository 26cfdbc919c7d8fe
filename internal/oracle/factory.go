package oracle

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ppiankov/scrapenet/internal/cache"
	"github.com/ppiankov/scrapenet/internal/httputil"
	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/util"
	"github.com/ppiankov/scrapenet/internal/worker"
)

// Deps are the shared resources handed to every oracle
type Deps struct {
	Client  *http.Client
	Limiter *worker.Limiter
	Robots  *util.RobotsChecker
	Cache   cache.Cache // nil disables caching
}

// NewDeps builds the shared resources from configuration
func NewDeps(cfg *model.Config) Deps {
	timeout := cfg.SpotCheck.LookupTimeout
	deps := Deps{
		Client:  httputil.NewClient(timeout, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
		Limiter: worker.NewLimiter(cfg.Oracle.RateLimit, cfg.Oracle.Burst),
		Robots:  util.NewRobotsChecker(cfg.HTTP.UserAgent, timeout, 0),
	}
	if cfg.Oracle.Cache.Enabled {
		deps.Cache = cache.NewLayeredCache(cfg.Oracle.Cache.MemoryTTL, cfg.Oracle.Cache.DiskDir, cfg.Oracle.Cache.DiskTTL)
	}
	return deps
}

// New creates the oracle configured for platform. An empty provider returns
// nil, which leaves the platform without spot checks.
func New(platform model.Platform, src model.OracleSource, userAgent string, deps Deps) (Oracle, error) {
	transport := &Transport{Client: deps.Client, Limiter: deps.Limiter, UserAgent: userAgent}

	var o Oracle
	switch strings.ToLower(src.Provider) {
	case "apify":
		key := src.APIKey
		if key == "" {
			key = os.Getenv("APIFY_API_KEY")
		}
		a, err := NewApify(src.BaseURL, src.ActorID, key, transport)
		if err != nil {
			return nil, err
		}
		o = a
	case "percipio":
		o = NewPercipio(src.BaseURL, transport)
	case "web":
		o = NewWeb(platform, src.BaseURL, transport, deps.Robots)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s (supported: apify, percipio, web)", src.Provider)
	}

	if deps.Cache != nil {
		o = NewCached(o, deps.Cache, string(platform), 0, KeyFuncFor(platform))
	}
	return o, nil
}

// NewAll creates the oracles of every platform that has one configured
func NewAll(cfg *model.Config, deps Deps) (map[model.Platform]Oracle, error) {
	sources := map[model.Platform]model.OracleSource{
		model.PlatformTwitter: cfg.Oracle.Twitter,
		model.PlatformReddit:  cfg.Oracle.Reddit,
	}
	out := make(map[model.Platform]Oracle)
	for platform, src := range sources {
		o, err := New(platform, src, cfg.HTTP.UserAgent, deps)
		if err != nil {
			return nil, fmt.Errorf("%s oracle: %w", platform, err)
		}
		if o != nil {
			out[platform] = o
		}
	}
	return out, nil
}
