package config

import (
	"time"

	"github.com/vietddude/registrygw/internal/core/domain"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultPort             = 8080
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultMaxAttempts      = 3
	DefaultInitialDelay     = time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultMultiplier       = 2.0
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
	DefaultDecayInterval    = 10
	DefaultCacheTTL         = 24 * time.Hour
	DefaultWarnDays         = 30
	DefaultRevocationTTL    = 6 * time.Hour
	DefaultStaleRetention   = 7 * 24 * time.Hour
)

const (
	nsConsultEmployer = "http://www.esocial.gov.br/servicos/empregador/consultaidentificadorcadastro/v1_0_0"
	nsConsultEvents   = "http://www.esocial.gov.br/servicos/empregador/consultaeventos/v1_0_0"
	nsConsultIDs      = "http://www.esocial.gov.br/servicos/empregador/consultaridentificadoreventos/v1_0_0"
	nsConsultBatch    = "http://www.esocial.gov.br/servicos/empregador/lote/eventos/envio/consulta/retornoProcessamento/v1_1_0"
	nsSubmitBatch     = "http://www.esocial.gov.br/servicos/empregador/lote/eventos/envio/v1_1_0"
)

func endpointsFor(queryHost, submitHost string) map[domain.Operation]EndpointConfig {
	return map[domain.Operation]EndpointConfig{
		domain.OpConsultEmployer: {
			URL:       queryHost + "/ServicoConsultarIdentificadorCadastro/ConsultarIdentificadorCadastro.svc",
			Namespace: nsConsultEmployer,
			Method:    "ConsultarIdentificadorCadastro",
		},
		domain.OpConsultEvents: {
			URL:       queryHost + "/ServicoConsultarEventos/ConsultarEventos.svc",
			Namespace: nsConsultEvents,
			Method:    "ConsultarEventos",
		},
		domain.OpConsultEventIDs: {
			URL:       queryHost + "/ServicoConsultarIdentificadorEventos/ConsultarIdentificadorEventos.svc",
			Namespace: nsConsultIDs,
			Method:    "ConsultarIdentificadorEventos",
		},
		domain.OpConsultBatch: {
			URL:       submitHost + "/servicos/empregador/consultarloteeventos/WsConsultarLoteEventos.svc",
			Namespace: nsConsultBatch,
			Method:    "ConsultarLoteEventos",
		},
		domain.OpSubmitBatch: {
			URL:       submitHost + "/servicos/empregador/enviarloteeventos/WsEnviarLoteEventos.svc",
			Namespace: nsSubmitBatch,
			Method:    "EnviarLoteEventos",
		},
	}
}

// DefaultEndpoints returns the built-in endpoint table for both environments.
func DefaultEndpoints() EndpointTable {
	return EndpointTable{
		domain.EnvProduction: endpointsFor(
			"https://webservices.consulta.esocial.gov.br",
			"https://webservices.envio.esocial.gov.br",
		),
		domain.EnvStaging: endpointsFor(
			"https://webservices.producaorestrita.esocial.gov.br",
			"https://webservices.producaorestrita.esocial.gov.br",
		),
	}
}
