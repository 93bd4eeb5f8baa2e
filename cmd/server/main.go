package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-docs/internal/auth"
	"github.com/keithlinneman/linnemanlabs-docs/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-docs/internal/docshttp"
	"github.com/keithlinneman/linnemanlabs-docs/internal/docstore"
	"github.com/keithlinneman/linnemanlabs-docs/internal/health"
	"github.com/keithlinneman/linnemanlabs-docs/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-docs/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-docs/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-docs/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-docs/internal/prof"
	"github.com/keithlinneman/linnemanlabs-docs/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-docs/internal/secrets"
	"github.com/keithlinneman/linnemanlabs-docs/internal/session"
	v "github.com/keithlinneman/linnemanlabs-docs/internal/version"
	"github.com/keithlinneman/linnemanlabs-docs/internal/webassets"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

const (
	// sessionSecretBytes is the size of a generated session signing secret.
	sessionSecretBytes = 32
	// drainPeriod keeps serving after readiness fails so the load balancer
	// stops routing here before the listeners close.
	drainPeriod     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		return
	}

	cfg.FillFromEnv(flag.CommandLine, "DOCS_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf, vi.Released()); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lg, err := newLogger(conf, vi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	err = run(ctx, stop, conf, vi)
	if err != nil {
		L.Error(context.Background(), err, "server exited")
	}
	_ = lg.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, xerrors.Wrapf(err, "log level %q", conf.LogLevel)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stacktrace level %q", conf.StacktraceLevel)
	}
	links := 0
	if conf.IncludeErrorLinks {
		links = conf.MaxErrorLinks
	}
	return log.New(log.Options{
		App:        v.AppName,
		Version:    vi.Version,
		Level:      lvl,
		StackLevel: stackLvl,
		JSON:       conf.LogJSON,
		ErrorLinks: links,
	})
}

// run serves until ctx is cancelled, then drains and shuts down. stop
// releases the signal handler so a second signal can cut the drain short.
func run(ctx context.Context, stop func(), conf cfg.App, vi v.Info) error {
	L := log.FromContext(ctx)
	dataDir := conf.DataPath()

	startup := append(vi.LogFields(),
		"env", conf.Env,
		"data_dir", dataDir,
		"credentials_file", conf.CredentialsFile,
		"credentials_s3_bucket", conf.CredentialsS3Bucket,
		"credentials_s3_key", conf.CredentialsS3Key,
		"session_secret_ssm_param", conf.SessionSecretSSMParam,
		"session_ttl", conf.SessionTTL.String(),
		"secure_cookies", conf.SecureCookies,
		"login_rate", conf.LoginRate,
		"login_burst", conf.LoginBurst,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"max_document_bytes", conf.MaxDocumentBytes,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)
	L.Info(ctx, "initializing application", startup...)

	m := metrics.New()
	m.SetBuildInfo("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:   conf.EnablePyroscope,
		Server:    conf.PyroServer,
		TenantID:  conf.PyroTenantID,
		Component: "server",
		Build:     vi,
	})
	if err != nil {
		// profiling is optional, keep serving without it
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	// the collector runs on localhost, so the exporter connection is plaintext
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
		Env:      conf.Env,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}

	var awsCfg aws.Config
	if conf.NeedsAWS() {
		if awsCfg, err = config.LoadDefaultConfig(ctx); err != nil {
			return xerrors.Wrap(err, "load AWS config")
		}
	}

	codec, err := sessionCodec(ctx, conf, awsCfg, m)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(auth.Options{
		Source:   credentialSource(ctx, conf, awsCfg),
		Logger:   L.With("component", "auth"),
		Observer: m,
	})
	if err != nil {
		return xerrors.Wrap(err, "auth service")
	}

	if err := docstore.EnsureRoot(dataDir); err != nil {
		return xerrors.Wrapf(err, "prepare storage directory %s", dataDir)
	}
	store, err := docstore.New(docstore.Options{
		Root:     dataDir,
		Logger:   L.With("component", "docstore"),
		Observer: m,
	})
	if err != nil {
		return xerrors.Wrap(err, "document store")
	}
	L.Info(ctx, "document storage ready", "root", store.Root())

	// a broken template fails startup instead of a request
	views, err := docshttp.NewViews(webassets.TemplatesFS())
	if err != nil {
		return xerrors.Wrap(err, "parse templates")
	}

	loginLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.LoginRate, conf.LoginBurst),
		ratelimit.WithDeniedHandler(docshttp.LoginThrottled(views)),
		ratelimit.WithOnDenied(deniedReporter(ctx, m, "login")),
	)
	publicLimiter := ratelimit.New(ctx,
		ratelimit.WithOnDenied(deniedReporter(ctx, m, "public")),
		ratelimit.WithOnFull(func() {
			m.IncLimiterFull("public")
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	docs, err := docshttp.New(&docshttp.Options{
		Logger:           L,
		Store:            store,
		Auth:             authSvc,
		Views:            views,
		StaticFS:         webassets.StaticFS(),
		LoginLimiter:     loginLimiter.Middleware,
		MaxDocumentBytes: conf.MaxDocumentBytes,
	})
	if err != nil {
		return xerrors.Wrap(err, "document handlers")
	}

	// ready only while not draining and the data dir takes writes
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), health.WritableDir(store.Root()))

	stopDocs, err := httpserver.Start(ctx, &httpserver.Options{
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Routes:       docs.RegisterRoutes,
		NotFound:     docs.NotFound(),
		SessionMW:    session.Middleware(session.Options{Codec: codec, Secure: conf.SecureCookies}),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  publicLimiter.Middleware,
		// url-encoded edits grow up to 3x, leave room for the form framing
		MaxBodyBytes: 3*conf.MaxDocumentBytes + 64<<10,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		Logger:       L,
	})
	if err != nil {
		return xerrors.Wrap(err, "start document listener")
	}

	// the admin listener also refuses public peers in case the security group
	// or load balancer ever sends traffic to it
	stopOps, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Build:        &vi,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		_ = stopDocs(context.Background())
		return xerrors.Wrap(err, "start admin listener")
	}

	if err := notifySystemd(); err != nil {
		// systemd kills us after its start timeout, keep serving until then
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	drain(bg, L, drainPeriod)

	shutdownCtx, cancel := context.WithTimeout(bg, shutdownTimeout)
	defer cancel()
	if err := stopDocs(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := stopOps(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	L.Info(bg, "shutdown complete")
	return nil
}

// sessionCodec signs with a secret from SSM when configured, so sessions
// survive restarts and work across instances. Otherwise the secret is random
// per process.
func sessionCodec(ctx context.Context, conf cfg.App, awsCfg aws.Config, m *metrics.Metrics) (*session.Codec, error) {
	var client secrets.SSMGetParameterAPI
	if conf.SessionSecretSSMParam != "" {
		client = ssm.NewFromConfig(awsCfg)
	}
	secret, source, err := secrets.SessionSecret(ctx, client, conf.SessionSecretSSMParam, sessionSecretBytes)
	if err != nil {
		return nil, xerrors.Wrapf(err, "session secret from %s", source)
	}
	m.SetSessionSecretSource(string(source))
	if source == secrets.SourceRandom {
		log.FromContext(ctx).Warn(ctx, "using a random session secret, sessions end on restart")
	}
	codec, err := session.NewCodec(secret, conf.SessionTTL)
	return codec, xerrors.Wrap(err, "session codec")
}

// credentialSource is read on every sign in, so edits to users.yml apply
// without a restart and an unreadable source at startup is only a warning.
func credentialSource(ctx context.Context, conf cfg.App, awsCfg aws.Config) auth.CredentialSource {
	var src auth.CredentialSource = auth.FileCredentials{Path: conf.CredentialsFile}
	if conf.UsesS3Credentials() {
		src = auth.S3Credentials{
			Client: s3.NewFromConfig(awsCfg),
			Bucket: conf.CredentialsS3Bucket,
			Key:    conf.CredentialsS3Key,
		}
	}
	if _, err := src.Load(ctx); err != nil {
		log.FromContext(ctx).Warn(ctx, "credential source not readable at startup, sign in will fail until it is", "error", err.Error())
	}
	return src
}

// deniedReporter counts every refusal and logs an address once until the
// limiter sweeps it.
func deniedReporter(ctx context.Context, m *metrics.Metrics, limiter string) func(string, bool) {
	L := log.FromContext(ctx)
	return func(ip string, first bool) {
		m.IncRateLimited(limiter)
		if first {
			L.Warn(ctx, "rate limit triggered", "limiter", limiter, "ip", ip)
		}
	}
}

// drain waits out the load balancer's health checks. A second signal ends
// the wait early.
func drain(ctx context.Context, L log.Logger, d time.Duration) {
	L.Info(ctx, "draining before shutdown", "period", d.String())
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)
	select {
	case <-time.After(d):
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}
