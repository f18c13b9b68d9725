package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/infra/cert"
	"github.com/vietddude/registrygw/internal/infra/cert/certtest"
)

const okResponse = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
<ConsultarIdentificadorCadastroResponse><ConsultarIdentificadorCadastroResult>
<eSocial><retorno><status><cdResposta>201</cdResposta><descResposta>OK</descResposta></status>
<nmRazao>ACME</nmRazao></retorno></eSocial>
</ConsultarIdentificadorCadastroResult></ConsultarIdentificadorCadastroResponse>
</s:Body></s:Envelope>`

const faultResponse = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>
<faultcode>s:Client.InvalidEvent</faultcode><faultstring>Evento invalido</faultstring>
</s:Fault></s:Body></s:Envelope>`

type fixture struct {
	srv    *httptest.Server
	hits   atomic.Int32
	client *Client
	cert   *certtest.Fixture
}

func newFixture(t *testing.T, certOpts certtest.Options, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{cert: certtest.Issue(t, certOpts)}

	f.srv = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		handler(w, r)
	}))
	f.srv.TLS = &tls.Config{
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  f.cert.CAPool(),
	}
	f.srv.StartTLS()
	t.Cleanup(f.srv.Close)

	roots := x509.NewCertPool()
	roots.AddCert(f.srv.Certificate())

	provider := cert.NewProvider(cert.Source{Data: f.cert.PFX, Passphrase: f.cert.Passphrase})
	client, err := NewClient(Config{
		Environment: domain.EnvStaging,
		EmployerID:  "12345678901",
		Timeout:     5 * time.Second,
		RootCAs:     roots,
	}, provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	f.client = client
	return f
}

func (f *fixture) request() Request {
	return Request{
		Operation: domain.OpConsultEmployer,
		Endpoint: Endpoint{
			URL:       f.srv.URL + "/ConsultarIdentificadorCadastro.svc",
			Namespace: "http://example.test/ns",
			Method:    "ConsultarIdentificadorCadastro",
			Action:    "http://example.test/ns/ConsultarIdentificadorCadastro",
		},
		Body: "<consulta><nrInsc>12345678901</nrInsc></consulta>",
	}
}

func TestCall_Success(t *testing.T) {
	f := newFixture(t, certtest.Options{CommonName: "ACME:12345678901"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, `"http://example.test/ns/ConsultarIdentificadorCadastro"`, r.Header.Get("SOAPAction"))
		assert.NotEmpty(t, r.Header.Get(HeaderAuthToken))
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		require.NotEmpty(t, r.TLS.PeerCertificates)
		assert.Equal(t, "ACME:12345678901", r.TLS.PeerCertificates[0].Subject.CommonName)

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<v1:tpAmb>2</v1:tpAmb>")
		assert.Contains(t, string(body), "<v1:ideTransmissor>12345678901</v1:ideTransmissor>")
		assert.Contains(t, string(body), "<nrInsc>12345678901</nrInsc>")

		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, okResponse)
	})

	payload, err := f.client.Call(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, "eSocial", payload.Element.Tag)
	assert.Contains(t, payload.XML, "<nmRazao>ACME</nmRazao>")
	require.NotNil(t, payload.Status)
	assert.Equal(t, 201, payload.Status.Code)

	stats := f.client.MonitorStats()[domain.OpConsultEmployer]
	assert.Equal(t, "healthy", stats.Status)
	assert.Equal(t, 1, stats.RequestsLast1Hour)
}

func TestCall_FaultInServerError(t *testing.T) {
	f := newFixture(t, certtest.Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, faultResponse)
	})

	_, err := f.client.Call(context.Background(), f.request())
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.InvalidEvent, fe.Code)
	assert.False(t, failure.Retryable(err))
	assert.Equal(t, "ConsultarIdentificadorCadastro", fe.Op)
}

func TestCall_HTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   failure.Code
	}{
		{http.StatusUnauthorized, failure.AuthenticationFailed},
		{http.StatusForbidden, failure.AccessDenied},
		{http.StatusBadRequest, failure.InvalidPayload},
		{http.StatusBadGateway, failure.ServerUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f := newFixture(t, certtest.Options{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, "<html>error</html>")
			})
			_, err := f.client.Call(context.Background(), f.request())
			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, fe.Code)
			assert.Equal(t, tt.status, fe.StatusCode)
		})
	}
}

func TestCall_ThrottledEndpointFailsFast(t *testing.T) {
	f := newFixture(t, certtest.Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := f.client.Call(context.Background(), f.request())
	require.Error(t, err)
	assert.Equal(t, failure.ServerUnavailable, failure.Classify(err))
	assert.True(t, failure.Retryable(err))

	_, err = f.client.Call(context.Background(), f.request())
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.ServerUnavailable, fe.Code)
	assert.Greater(t, fe.RetryAfter, time.Minute)
	assert.Equal(t, int32(1), f.hits.Load(), "second call must not reach the server")
}

func TestCall_ExpiredCertificateNeverHitsNetwork(t *testing.T) {
	f := newFixture(t, certtest.Options{
		NotBefore: time.Now().Add(-48 * time.Hour),
		NotAfter:  time.Now().Add(-time.Hour),
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be called")
	})

	_, err := f.client.Call(context.Background(), f.request())
	assert.Equal(t, failure.CertificateExpired, failure.Classify(err))
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestCall_ResponseStatusRejected(t *testing.T) {
	f := newFixture(t, certtest.Options{}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<Envelope><Body><ConsultarIdentificadorCadastroResponse><ConsultarIdentificadorCadastroResult>
<retorno><cdResposta>501</cdResposta><descResposta>Solicitacao incorreta</descResposta></retorno>
</ConsultarIdentificadorCadastroResult></ConsultarIdentificadorCadastroResponse></Body></Envelope>`)
	})

	_, err := f.client.Call(context.Background(), f.request())
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.InvalidPayload, fe.Code)
	assert.Equal(t, 501, fe.Details["cdResposta"])
}

func TestCall_DeadlineCancelsRequest(t *testing.T) {
	f := newFixture(t, certtest.Options{}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.client.Call(ctx, f.request())
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, failure.Timeout, failure.Classify(err))
}

func TestCall_ConnectionRefused(t *testing.T) {
	f := newFixture(t, certtest.Options{}, func(w http.ResponseWriter, r *http.Request) {})
	req := f.request()
	req.Endpoint.URL = "https://127.0.0.1:1/svc"

	_, err := f.client.Call(context.Background(), req)
	assert.Equal(t, failure.ConnectionRefused, failure.Classify(err))
	assert.True(t, failure.Retryable(err))
}

func TestNewClient_TLSSettings(t *testing.T) {
	fx := certtest.Issue(t, certtest.Options{})
	provider := cert.NewProvider(cert.Source{Data: fx.PFX, Passphrase: fx.Passphrase})

	_, err := NewClient(Config{Environment: domain.EnvProduction, InsecureSkipVerify: true}, provider)
	assert.Error(t, err)

	_, err = NewClient(Config{Environment: domain.EnvStaging, InsecureSkipVerify: true}, provider)
	assert.NoError(t, err)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: fx.CA.Raw}), 0o600))
	_, err = NewClient(Config{Environment: domain.EnvProduction, CAFile: caFile}, provider)
	assert.NoError(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("nothing"), 0o600))
	_, err = NewClient(Config{CAFile: empty}, provider)
	assert.Error(t, err)
}

func TestMonitor_RetryAfter(t *testing.T) {
	m := NewMonitor()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.RecordThrottle(http.StatusTooManyRequests, "")
	assert.Equal(t, StatusThrottled, m.Status())
	assert.Equal(t, time.Minute, m.RetryAfter())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StatusHealthy, m.Status())

	m.RecordFailure()
	m.RecordFailure()
	m.RecordFailure()
	assert.Equal(t, StatusDegraded, m.Status())
	m.RecordRequest(10 * time.Millisecond)
	assert.Equal(t, StatusHealthy, m.Status())

	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("soon", now))
}
