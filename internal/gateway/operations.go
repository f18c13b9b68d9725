package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/infra/breaker"
	"github.com/vietddude/registrygw/internal/infra/cache"
	"github.com/vietddude/registrygw/internal/infra/cert"
	"github.com/vietddude/registrygw/internal/infra/registry"
	"github.com/vietddude/registrygw/internal/infra/retry"
	"github.com/vietddude/registrygw/internal/infra/soap"
	"github.com/vietddude/registrygw/internal/metrics"
)

// Response is the domain payload of a registry answer.
type Response struct {
	Operation domain.Operation `json:"operation"`
	XML       string           `json:"xml"`
	Status    *soap.Status     `json:"status,omitempty"`
}

// BatchResult is the processing state of a submitted batch.
type BatchResult struct {
	Protocol    string             `json:"protocol"`
	Status      domain.BatchStatus `json:"status"`
	Code        int                `json:"code"`
	Description string             `json:"description,omitempty"`
	Occurrences []soap.Occurrence  `json:"occurrences,omitempty"`
	XML         string             `json:"xml"`
}

// Receipt acknowledges an accepted batch submission.
type Receipt struct {
	Protocol    string             `json:"protocol"`
	Status      domain.BatchStatus `json:"status"`
	Code        int                `json:"code"`
	Description string             `json:"description,omitempty"`
	ReceivedAt  string             `json:"received_at,omitempty"`
	XML         string             `json:"xml"`
}

// CallOptions controls caching and retries of one call.
type CallOptions struct {
	Namespace domain.CacheNamespace // defaults to generic
	Key       string                // defaults to the operation and a body digest
	TTL       time.Duration         // 0 = namespace TTL
	NoCache   bool
	NoRetry   bool
}

// ConsultEmployer fetches the employer record of the configured employer.
func (g *Gateway) ConsultEmployer(ctx context.Context) domain.Result[Response] {
	body, err := employerBody(g.cfg.EmployerID)
	if err != nil {
		return domain.Fail[Response](err, g.now())
	}
	return execute(ctx, g, domain.OpConsultEmployer, body, CallOptions{
		Namespace: domain.NamespaceEmployer,
		Key:       g.cfg.EmployerID,
	}, decodeResponse(domain.OpConsultEmployer))
}

// ConsultEvents lists submitted events matching q.
func (g *Gateway) ConsultEvents(ctx context.Context, q domain.EventQuery) domain.Result[Response] {
	body, err := eventsBody(schemaConsultEvents, "consultaEventos", g.cfg.EmployerID, q)
	if err != nil {
		return domain.Fail[Response](err, g.now())
	}
	return execute(ctx, g, domain.OpConsultEvents, body, CallOptions{
		Namespace: domain.NamespaceEvents,
		Key:       queryKey(q),
	}, decodeResponse(domain.OpConsultEvents))
}

// rosterEventType is the admission event; its records form the employee roster.
const rosterEventType = "S-2200"

// ConsultRoster lists the admission events of the configured employer,
// cached separately from ad hoc event queries.
func (g *Gateway) ConsultRoster(ctx context.Context) domain.Result[Response] {
	body, err := eventsBody(schemaConsultEvents, "consultaEventos", g.cfg.EmployerID,
		domain.EventQuery{EventType: rosterEventType})
	if err != nil {
		return domain.Fail[Response](err, g.now())
	}
	return execute(ctx, g, domain.OpConsultEvents, body, CallOptions{
		Namespace: domain.NamespaceRoster,
		Key:       g.cfg.EmployerID,
	}, decodeResponse(domain.OpConsultEvents))
}

// ConsultEventIDs lists the identifiers of submitted events matching q.
func (g *Gateway) ConsultEventIDs(ctx context.Context, q domain.EventQuery) domain.Result[Response] {
	body, err := eventsBody(schemaConsultIDs, "consultaIdentificadoresEvts", g.cfg.EmployerID, q)
	if err != nil {
		return domain.Fail[Response](err, g.now())
	}
	return execute(ctx, g, domain.OpConsultEventIDs, body, CallOptions{
		Namespace: domain.NamespaceEvents,
		Key:       "ids:" + queryKey(q),
	}, decodeResponse(domain.OpConsultEventIDs))
}

// ConsultBatch returns the processing state of a batch by protocol.
func (g *Gateway) ConsultBatch(ctx context.Context, protocol string) domain.Result[BatchResult] {
	if protocol == "" {
		return domain.Fail[BatchResult](failure.New(failure.InvalidPayload, "empty protocol"), g.now())
	}
	body, err := batchStatusBody(protocol)
	if err != nil {
		return domain.Fail[BatchResult](err, g.now())
	}
	return execute(ctx, g, domain.OpConsultBatch, body, CallOptions{
		Namespace: domain.NamespaceBatches,
		Key:       protocol,
	}, func(p *soap.Payload) (BatchResult, error) {
		out := BatchResult{Protocol: protocol, Status: domain.BatchUnknown, XML: p.XML}
		if p.Status != nil {
			out.Status = p.Status.BatchStatus()
			out.Code = p.Status.Code
			out.Description = p.Status.Description
			out.Occurrences = p.Status.Occurrences
		}
		return out, nil
	})
}

// SubmitBatch sends a batch of event documents. Submissions go through the
// breaker only: they are attempted once and never cached.
func (g *Gateway) SubmitBatch(ctx context.Context, eventsXML string) domain.Result[Receipt] {
	body, err := submitBody(g.cfg.EmployerID, g.cfg.TransmitterID, eventsXML)
	if err != nil {
		return domain.Fail[Receipt](err, g.now())
	}
	return execute(ctx, g, domain.OpSubmitBatch, body, CallOptions{
		NoCache: true,
		NoRetry: true,
	}, func(p *soap.Payload) (Receipt, error) {
		out := Receipt{
			Protocol:   p.Find("protocoloEnvio"),
			Status:     domain.BatchUnknown,
			ReceivedAt: p.Find("dhRecepcao"),
			XML:        p.XML,
		}
		if p.Status != nil {
			out.Status = p.Status.BatchStatus()
			out.Code = p.Status.Code
			out.Description = p.Status.Description
		}
		if out.Protocol == "" {
			return out, failure.New(failure.BatchRejected, "registry returned no protocol").WithOp(string(domain.OpSubmitBatch))
		}
		return out, nil
	})
}

// Call invokes any configured operation with a caller-built body.
func (g *Gateway) Call(ctx context.Context, op domain.Operation, body string, opts CallOptions) domain.Result[Response] {
	if opts.Namespace == "" {
		opts.Namespace = domain.NamespaceGeneric
	}
	if opts.Key == "" {
		opts.Key = bodyKey(op, body)
	}
	if op == domain.OpSubmitBatch {
		opts.NoCache = true
		opts.NoRetry = true
	}
	return execute(ctx, g, op, body, opts, decodeResponse(op))
}

// CertificateInfo loads the certificate and summarizes it.
func (g *Gateway) CertificateInfo(ctx context.Context) domain.Result[cert.Info] {
	info, err := g.certs.Info(ctx)
	if err != nil {
		return domain.Fail[cert.Info](err, g.now())
	}
	return domain.Succeed(info, domain.OriginLive, g.now())
}

// BreakerStats snapshots the breaker of every operation.
func (g *Gateway) BreakerStats() map[domain.Operation]breaker.Stats {
	out := make(map[domain.Operation]breaker.Stats, len(g.breakers))
	for op, b := range g.breakers {
		out[op] = b.Stats()
	}
	return out
}

// Breaker returns the breaker guarding op.
func (g *Gateway) Breaker(op domain.Operation) *breaker.Breaker {
	return g.breakers[op]
}

// MonitorStats snapshots the endpoint monitors of the HTTPS client.
func (g *Gateway) MonitorStats() map[domain.Operation]registry.MonitorStats {
	if g.client == nil {
		return nil
	}
	return g.client.MonitorStats()
}

// ClearCache removes the entries of ns, or of every namespace when ns is empty.
func (g *Gateway) ClearCache(ctx context.Context, ns domain.CacheNamespace) error {
	namespaces := []domain.CacheNamespace{ns}
	if ns == "" {
		namespaces = domain.CacheNamespaces
	}
	for _, n := range namespaces {
		if err := g.cache.Clear(ctx, n); err != nil {
			return fmt.Errorf("clear %s: %w", n, err)
		}
	}
	return nil
}

// bodyKey keys generic calls by a SHA-256 of the body so keys stay short
// enough for the postgres primary key.
func bodyKey(op domain.Operation, body string) string {
	sum := sha256.Sum256([]byte(body))
	return string(op) + ":" + hex.EncodeToString(sum[:])
}

func decodeResponse(op domain.Operation) func(*soap.Payload) (Response, error) {
	return func(p *soap.Payload) (Response, error) {
		return Response{Operation: op, XML: p.XML, Status: p.Status}, nil
	}
}

// execute runs cache → breaker → retry → client for one operation and
// converts the outcome into a Result.
func execute[T any](
	ctx context.Context,
	g *Gateway,
	op domain.Operation,
	body string,
	opts CallOptions,
	decode func(*soap.Payload) (T, error),
) domain.Result[T] {
	ctx, span := g.tracer.Start(ctx, "registry."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("registry.operation", string(op)),
			attribute.String("registry.environment", string(g.cfg.Environment)),
		),
	)
	defer span.End()

	ep, ok := g.cfg.Endpoints.Lookup(g.cfg.Environment, op)
	b, known := g.breakers[op]
	if !ok || !known {
		err := failure.New(failure.Unknown, "no endpoint configured for %s", op)
		span.SetStatus(codes.Error, err.Error())
		return domain.Fail[T](err, g.now())
	}
	req := registry.Request{
		Operation: op,
		Endpoint: registry.Endpoint{
			URL:       ep.URL,
			Namespace: ep.Namespace,
			Method:    ep.Method,
			Action:    ep.SOAPAction(),
		},
		Body: body,
	}

	attempt := func(ctx context.Context) (T, error) {
		payload, err := g.caller.Call(ctx, req)
		if err != nil {
			var zero T
			return zero, err
		}
		return decode(payload)
	}

	fetch := func(ctx context.Context) (T, error) {
		return breaker.Run(ctx, b, string(op), func(ctx context.Context) (T, error) {
			if opts.NoRetry {
				return attempt(ctx)
			}
			res, err := retry.Do(ctx, g.retryOptions(op), attempt)
			span.SetAttributes(attribute.Int("registry.attempts", res.Attempts))
			return res.Data, err
		})
	}

	var (
		data   T
		origin = domain.OriginLive
		err    error
	)
	if opts.NoCache {
		data, err = fetch(ctx)
	} else {
		var lookup cache.Lookup[T]
		lookup, err = cache.GetWithFallback(ctx, g.cache, opts.Namespace, opts.Key, fetch, opts.TTL)
		data, origin = lookup.Data, lookup.Origin
	}

	now := g.now()
	if err != nil {
		result := domain.Fail[T](err, now)
		span.SetAttributes(attribute.String("registry.error_code", string(result.Err.Code)))
		span.SetStatus(codes.Error, string(result.Err.Code))
		g.logger.Warn("Registry call failed",
			"operation", op,
			"code", result.Err.Code,
			"retryable", result.Err.Retryable,
			"error", err,
		)
		return result
	}

	span.SetAttributes(attribute.String("registry.origin", string(origin)))
	if origin == domain.OriginExpiredCache {
		g.logger.Warn("Registry unavailable, answered from expired cache", "operation", op)
	}
	return domain.Succeed(data, origin, now)
}

func (g *Gateway) retryOptions(op domain.Operation) retry.Options {
	opts := g.retry
	opts.OnRetry = func(a retry.Attempt) {
		metrics.RetriesTotal.WithLabelValues(string(op)).Inc()
		g.logger.Debug("Retrying registry call",
			"operation", op,
			"attempt", a.Number,
			"delay", a.Delay,
			"error", a.Err,
		)
	}
	return opts
}
