package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dl-alexandre/icdl/internal/auth"
	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/session/drivesession"
	"github.com/dl-alexandre/icdl/internal/session/httpsession"
	"github.com/dl-alexandre/icdl/internal/session/s3session"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/dl-alexandre/icdl/pkg/version"
	"google.golang.org/api/drive/v3"
)

// openSession builds the configured backend wrapped in the retry decorator
// and the per-run listing cache
func openSession(ctx context.Context, cfg *config.Config, flags types.GlobalFlags, log logging.Logger) (session.Session, error) {
	backend, err := newBackend(ctx, cfg, flags, log)
	if err != nil {
		return nil, err
	}
	retry := session.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.GetRetryBaseDelay(),
		MaxDelay:   time.Duration(utils.MaxRetryDelayMs) * time.Millisecond,
	}
	return session.NewCache(session.WithRetry(backend, retry, log)), nil
}

func newBackend(ctx context.Context, cfg *config.Config, flags types.GlobalFlags, log logging.Logger) (session.Session, error) {
	switch flags.Backend {
	case utils.BackendHTTP:
		if flags.Endpoint == "" {
			return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument,
				"No endpoint configured. Use --endpoint or 'icdl config set endpoint <url>'").Err()
		}
		mgr, err := newAuthManager()
		if err != nil {
			return nil, err
		}
		creds, err := mgr.GetValidCredentials(ctx, flags.Profile)
		if err != nil {
			return nil, err
		}
		return httpsession.New(httpsession.Options{
			BaseURL: flags.Endpoint,
			Client:  mgr.GetHTTPClient(ctx, creds, baseTransport(cfg)),
			Logger:  log,
		})

	case utils.BackendDrive:
		mgr, err := newAuthManager()
		if err != nil {
			return nil, err
		}
		mgr.SetOAuthConfig(cfg.OAuthClientID, cfg.OAuthClientSecret, []string{drive.DriveReadonlyScope})
		creds, err := mgr.GetValidCredentials(ctx, flags.Profile)
		if err != nil {
			return nil, err
		}
		return drivesession.NewWithClient(ctx, mgr.GetHTTPClient(ctx, creds, baseTransport(cfg)), flags.Endpoint, log)

	case utils.BackendS3:
		if cfg.Bucket == "" {
			return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument,
				"No bucket configured. Use 'icdl config set bucket <name>'").Err()
		}
		return s3session.NewFromConfig(s3session.Options{
			Bucket:     cfg.Bucket,
			Region:     cfg.Region,
			Endpoint:   flags.Endpoint,
			HTTPClient: &http.Client{Transport: baseTransport(cfg)},
			Logger:     log,
		})
	}
	return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument,
		fmt.Sprintf("unknown backend: %s", flags.Backend)).Err()
}

func newAuthManager() (*auth.Manager, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	return auth.NewManager(dir), nil
}

// baseTransport bounds connection setup and response headers by the
// configured request timeout. Bodies stream without a deadline.
func baseTransport(cfg *config.Config) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = cfg.GetRequestTimeout()
	t.TLSHandshakeTimeout = cfg.GetRequestTimeout()

	var rt http.RoundTripper = &userAgentTransport{base: t, agent: version.Get().UserAgent()}
	if debugTransport != nil {
		rt = debugTransport.Wrap(rt)
	}
	return rt
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}
