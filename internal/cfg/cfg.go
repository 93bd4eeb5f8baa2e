package cfg

import (
	"errors"
	"flag"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// Environments select the default storage directory.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

type App struct {
	Env                   string
	DataDir               string
	CredentialsFile       string
	CredentialsS3Bucket   string
	CredentialsS3Key      string
	SessionSecretSSMParam string
	SessionTTL            time.Duration
	SecureCookies         bool
	LoginRate             float64
	LoginBurst            int
	TrustedProxyHops      int
	MaxDocumentBytes      int64
	LogJSON               bool
	LogLevel              string
	HTTPPort              int
	AdminPort             int
	EnablePprof           bool
	EnablePyroscope       bool
	EnableTracing         bool
	PyroServer            string
	PyroTenantID          string
	OTLPEndpoint          string
	TraceSample           float64
	StacktraceLevel       string
	IncludeErrorLinks     bool
	MaxErrorLinks         int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.Env, "env", EnvProduction, "production|development|test, selects the default data dir")
	fs.StringVar(&c.DataDir, "data-dir", "", "document storage directory (default derived from -env)")
	fs.StringVar(&c.CredentialsFile, "credentials-file", "users.yml", "YAML file mapping usernames to bcrypt hashes")
	fs.StringVar(&c.CredentialsS3Bucket, "credentials-s3-bucket", "", "s3 bucket holding the credentials YAML (overrides -credentials-file)")
	fs.StringVar(&c.CredentialsS3Key, "credentials-s3-key", "", "s3 key of the credentials YAML")
	fs.StringVar(&c.SessionSecretSSMParam, "session-secret-ssm-param", "", "ssm SecureString with the session signing secret (random per process when empty)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 12*time.Hour, "session cookie lifetime")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", true, "set the Secure attribute on the session cookie")
	fs.Float64Var(&c.LoginRate, "login-rate", 0.2, "sign in attempts per second per client IP")
	fs.IntVar(&c.LoginBurst, "login-burst", 5, "sign in attempt burst per client IP")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the server whose X-Forwarded-For is trusted (0..8)")
	fs.Int64Var(&c.MaxDocumentBytes, "max-document-bytes", 1<<20, "largest accepted document edit")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
}

// DataPath returns the storage directory: -data-dir when set, otherwise
// ./test/data for the test environment and ./data for everything else.
func (c App) DataPath() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if c.Env == EnvTest {
		return filepath.Join("test", "data")
	}
	return "data"
}

// UsesS3Credentials reports whether credentials come from S3 instead of disk.
func (c App) UsesS3Credentials() bool {
	return c.CredentialsS3Bucket != ""
}

// NeedsAWS reports whether any configured source requires an AWS config.
func (c App) NeedsAWS() bool {
	return c.UsesS3Credentials() || c.SessionSecretSSMParam != ""
}

// FillFromEnv applies PREFIX_FOO_BAR to flag "foo-bar" unless the flag was
// given on the command line. An env value the flag rejects is reported through
// logf and the default stays.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	onCLI := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { onCLI[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		val, ok := os.LookupEnv(key)
		switch {
		case !ok:
		case onCLI[f.Name]:
			logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, val)
		default:
			prev := f.Value.String()
			if err := fs.Set(f.Name, val); err != nil {
				_ = fs.Set(f.Name, prev)
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// problems collects every invalid setting so a bad deploy reports them all at
// once.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, xerrors.Newf(format, args...))
}

// Validate reports every out-of-range or inconsistent setting. released is
// true for stamped release builds, which may not turn secure cookies off.
func Validate(c App, released bool) error {
	if released && !c.SecureCookies {
		return xerrors.New("release build requires secure-cookies=true")
	}
	var p problems
	c.checkStorage(&p)
	c.checkSignIn(&p)
	c.checkListeners(&p)
	c.checkTelemetry(&p)
	return errors.Join(p...)
}

func (c App) checkStorage(p *problems) {
	switch c.Env {
	case EnvProduction, EnvDevelopment, EnvTest:
	default:
		p.addf("invalid ENV %q (must be production, development or test)", c.Env)
	}
	if strings.TrimSpace(c.DataPath()) == "" {
		p.addf("DATA_DIR must not be blank")
	}
	if c.MaxDocumentBytes < 1 || c.MaxDocumentBytes > 64<<20 {
		p.addf("invalid MAX_DOCUMENT_BYTES %d (must be 1..67108864)", c.MaxDocumentBytes)
	}
}

func (c App) checkSignIn(p *problems) {
	switch {
	case c.UsesS3Credentials() && c.CredentialsS3Key == "":
		p.addf("CREDENTIALS_S3_KEY required when CREDENTIALS_S3_BUCKET is set")
	case !c.UsesS3Credentials() && c.CredentialsS3Key != "":
		p.addf("CREDENTIALS_S3_BUCKET required when CREDENTIALS_S3_KEY is set")
	case !c.UsesS3Credentials() && c.CredentialsFile == "":
		p.addf("CREDENTIALS_FILE is required")
	}
	if c.SessionTTL < time.Minute || c.SessionTTL > 30*24*time.Hour {
		p.addf("invalid SESSION_TTL %s (must be 1m..720h)", c.SessionTTL)
	}
	if c.LoginRate <= 0 {
		p.addf("invalid LOGIN_RATE %.3f (must be > 0)", c.LoginRate)
	}
	if c.LoginBurst < 1 {
		p.addf("invalid LOGIN_BURST %d (must be >= 1)", c.LoginBurst)
	}
	// the hop count decides which address the sign in limiter keys on
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		p.addf("invalid TRUSTED_PROXY_HOPS %d (must be 0..8)", c.TrustedProxyHops)
	}
}

func (c App) checkListeners(p *problems) {
	for name, port := range map[string]int{"HTTP_PORT": c.HTTPPort, "ADMIN_PORT": c.AdminPort} {
		if port < 1 || port > 65535 {
			p.addf("invalid %s %d (must be 1..65535)", name, port)
		}
	}
	if c.AdminPort == c.HTTPPort {
		p.addf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
}

func (c App) checkTelemetry(p *problems) {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		p.addf("invalid LOG_LEVEL %q: %v", c.LogLevel, err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			p.addf("invalid STACKTRACE_LEVEL %q: %v", c.StacktraceLevel, err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		p.addf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		p.addf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	// the gRPC exporter wants host:port without a scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			p.addf("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			p.addf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" {
			p.addf("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if err != nil || u.Scheme == "" || u.Host == "" {
			p.addf("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			p.addf("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}
}
