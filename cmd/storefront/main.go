package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"github.com/redis/go-redis/v9"

	"github.com/safar/mute-store/internal/apiclient"
	"github.com/safar/mute-store/internal/cart"
	"github.com/safar/mute-store/internal/checkout"
	"github.com/safar/mute-store/internal/config"
	"github.com/safar/mute-store/internal/geocode"
	"github.com/safar/mute-store/internal/identity"
	"github.com/safar/mute-store/internal/logger"
	"github.com/safar/mute-store/internal/push"
	"github.com/safar/mute-store/internal/session"
	"github.com/safar/mute-store/internal/storefront"
)

func main() {
	deviceID := flag.String("device", "default", "device id that namespaces the stored session")
	providerSession := flag.String("provider-session", "", "identity provider session id to adopt (overrides IDENTITY_SESSION_ID)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "storefront", Format: "console", Output: os.Stderr})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      "console",
		Output:      os.Stderr,
	})

	backend, err := apiclient.New(cfg.Storefront.BackendURL, apiclient.WithTimeout(cfg.Storefront.RequestTimeout))
	if err != nil {
		logg.Error(ctx, "invalid backend url", err)
		os.Exit(1)
	}

	tokens, closeTokens, err := tokenStore(ctx, cfg.Redis, *deviceID, logg)
	if err != nil {
		logg.Error(ctx, "failed to open session storage", err)
		os.Exit(1)
	}
	defer closeTokens()

	bridgeOpts := []session.Option{
		session.WithLogger(logg),
		session.WithProviderSync(func(ctx context.Context, s session.ProviderSession) error {
			return backend.SyncProviderUser(ctx, apiclient.ProviderUser{ID: s.UserID, Email: s.Email, Name: s.Name})
		}),
	}
	var provider *identity.Clerk
	if cfg.Identity.SecretKey != "" {
		sessionID := cfg.Identity.SessionID
		if *providerSession != "" {
			sessionID = *providerSession
		}
		provider, err = identity.NewClerk(cfg.Identity.SecretKey,
			identity.WithBaseURL(cfg.Identity.BaseURL),
			identity.WithSessionID(sessionID),
			identity.WithHTTPClient(&http.Client{Timeout: cfg.Storefront.RequestTimeout}),
		)
		if err != nil {
			logg.Error(ctx, "invalid identity provider config", err)
			os.Exit(1)
		}
		bridgeOpts = append(bridgeOpts, session.WithIdentityProvider(provider))
	}
	bridge := session.NewBridge(tokens, backend, bridgeOpts...)
	if err := bridge.Init(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "starting signed out")
	}

	notifier := push.NewNotifier(nil, logg)
	if cfg.Push.Enabled {
		notifier = push.NewNotifier(push.NewExpoSender(cfg.Push.Endpoint, cfg.Push.AccessToken), logg)
	}
	defer notifier.Wait()

	store := cart.NewStore()
	flowOpts := []checkout.Option{
		checkout.WithSession(bridge),
		checkout.WithNotifier(notifier),
		checkout.WithLogger(logg),
		checkout.WithProcessingDelay(cfg.Storefront.ProcessingDelay),
	}
	if cfg.Geocode.APIKey != "" {
		geocoder, err := geocode.NewClient(cfg.Geocode.APIKey, geocode.WithBaseURL(cfg.Geocode.BaseURL))
		if err != nil {
			logg.Error(ctx, "invalid geocoding config", err)
			os.Exit(1)
		}
		flowOpts = append(flowOpts, checkout.WithGeocoder(geocoder))
	}
	flow := checkout.NewFlow(store, backend, flowOpts...)

	deps := storefront.Deps{
		Backend: backend,
		Cart:    store,
		Flow:    flow,
		Session: bridge,
		Devices: notifier,
		Logger:  logg,
		Out:     os.Stdout,
	}
	if provider != nil {
		deps.Provider = provider
	}
	app := storefront.NewApp(deps)
	if err := app.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		logg.Error(ctx, "storefront shell stopped", err)
		os.Exit(1)
	}
}

// tokenStore keeps the session in Redis when REDIS_URL is set, otherwise in
// process memory.
func tokenStore(ctx context.Context, cfg config.RedisConfig, deviceID string, logg *logger.Logger) (session.TokenStore, func(), error) {
	if cfg.URL == "" {
		return session.NewMemoryStore(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "close redis", err)
		}
	}
	return session.NewRedisStore(client, cfg.KeyPrefix, deviceID), closeFn, nil
}
