package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Outcome is the verdict for one probed route
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeSkipped Outcome = "skipped"
)

// Result describes one probed route
type Result struct {
	Route    Route
	URL      string
	Status   int
	Duration time.Duration
	Title    string
	Outcome  Outcome
	Reason   string
	SpanID   string
}

// Config controls a Prober
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	Retries           int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	// BreakerThreshold is the number of consecutive transport failures
	// after which the remaining routes are skipped
	BreakerThreshold uint32
	TenantID         string
	UserID           string
}

// DefaultConfig returns settings suitable for a local dev server
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:5173",
		Timeout:          10 * time.Second,
		Retries:          2,
		RetryWaitMin:     250 * time.Millisecond,
		RetryWaitMax:     2 * time.Second,
		BreakerThreshold: 3,
	}
}

// Prober checks that SPA routes are served
type Prober struct {
	cfg     Config
	client  *resty.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// NewProber creates a prober against cfg.BaseURL. Every probe is recorded as
// a span on tracer.
func NewProber(cfg Config, tracer *tracing.Tracer, logger *zap.Logger) (*Prober, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https, got %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	// Retries happen below resty so the breaker sees one outcome per route
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = retryLogger{logger.Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", "sitetrace-routetest/1.0").
		SetHeader("Accept", "text/html,application/xhtml+xml")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	breaker := resilience.New("routes", resilience.Settings{
		Timeout:     time.Hour,
		ReadyToTrip: resilience.ConsecutiveFailures(cfg.BreakerThreshold),
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("route breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Prober{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		limiter: limiter,
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// Run probes routes in order. All probes share one trace, rooted at a
// "route-test" span.
func (p *Prober) Run(ctx context.Context, routes []Route) Report {
	tc := p.tracer.CreateTraceContext("route-test", "", p.cfg.TenantID, p.cfg.UserID)
	tc.SpanID = ""

	started := time.Now()
	report, _ := tracing.WithTracing(ctx, p.tracer, "route-test", tc,
		func(ctx context.Context, span tracing.Span, log *tracing.TracedLogger) (Report, error) {
			log.Tag(
				attribute.String("probe.base_url", p.cfg.BaseURL),
				attribute.Int("probe.routes", len(routes)),
			)

			report := Report{
				BaseURL: p.cfg.BaseURL,
				TraceID: span.TraceID,
				Started: started,
				Results: make([]Result, 0, len(routes)),
			}
			for _, route := range routes {
				report.Results = append(report.Results, p.probe(ctx, route))
			}
			report.Elapsed = time.Since(started)

			if failed := report.Failed(); failed > 0 {
				return report, fmt.Errorf("%d of %d routes failed", failed, len(routes))
			}
			return report, nil
		})
	return report
}

func (p *Prober) probe(ctx context.Context, route Route) Result {
	tc, _ := tracing.TraceFromContext(ctx)
	operation := "GET " + route.Path

	result, _ := tracing.WithTracing(ctx, p.tracer, operation, tc,
		func(ctx context.Context, span tracing.Span, log *tracing.TracedLogger) (Result, error) {
			log.Tag(
				attribute.String(tracing.TagSpanKind, "client"),
				attribute.String("route.path", route.Path),
				attribute.String("route.name", route.Name),
				attribute.String("route.portal", string(route.Portal)),
			)

			res := Result{
				Route:  route,
				URL:    p.cfg.BaseURL + route.Path,
				SpanID: span.SpanID,
			}

			if err := p.limiter.Wait(ctx); err != nil {
				res.Outcome = OutcomeSkipped
				res.Reason = err.Error()
				log.Tag(attribute.String("probe.outcome", string(res.Outcome)))
				return res, nil
			}

			outgoing, _ := tracing.TraceFromContext(ctx)
			resp, err := resilience.Execute(p.breaker, func() (*resty.Response, error) {
				req := p.client.R().SetContext(ctx)
				tracing.InjectTraceContext(outgoing, func(key, value string) {
					req.SetHeader(key, value)
				})
				return req.Get(route.Path)
			})

			switch {
			case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
				res.Outcome = OutcomeSkipped
				res.Reason = "target unreachable, probing stopped"
				log.Warn("probe skipped", attribute.String("reason", res.Reason))
				log.Tag(attribute.String("probe.outcome", string(res.Outcome)))
				return res, nil
			case err != nil:
				res.Outcome = OutcomeFail
				res.Reason = err.Error()
				log.Tag(attribute.String("probe.outcome", string(res.Outcome)))
				return res, fmt.Errorf("request %s: %w", route.Path, err)
			}

			res.Status = resp.StatusCode()
			res.Duration = resp.Time()
			log.Tag(
				attribute.Int("http.status_code", res.Status),
				attribute.Int64("http.response_size", resp.Size()),
			)

			body := resp.Body()
			isHTML := mimetype.Detect(body).Is("text/html")
			if isHTML {
				res.Title = pageTitle(body)
			}

			if reason := checkResponse(route, res.Status, isHTML, resp.Header().Get("Content-Type")); reason != "" {
				res.Outcome = OutcomeFail
				res.Reason = reason
				log.Tag(attribute.String("probe.outcome", string(res.Outcome)))
				return res, errors.New(reason)
			}

			res.Outcome = OutcomePass
			log.Tag(attribute.String("probe.outcome", string(res.Outcome)))
			return res, nil
		})

	return result
}

func checkResponse(route Route, status int, isHTML bool, contentType string) string {
	if status != route.WantStatus() {
		return fmt.Sprintf("expected status %d, got %d", route.WantStatus(), status)
	}
	if route.WantHTML() && !isHTML {
		if contentType == "" {
			contentType = "unknown content"
		}
		return fmt.Sprintf("expected an HTML document, got %s", contentType)
	}
	return ""
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// retryLogger adapts zap to retryablehttp.LeveledLogger
type retryLogger struct {
	log *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.log.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }
