package domain

import "fmt"

// Environment selects the registry deployment a client talks to.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
)

// EnvironmentFlags maps an Environment to the tpAmb flag sent in every envelope.
var EnvironmentFlags = map[Environment]int{
	EnvProduction: 1,
	EnvStaging:    2,
}

// ParseEnvironment accepts the English names and the registry's own
// spellings ("producao", "homologacao").
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "production", "producao", "prod", "1":
		return EnvProduction, nil
	case "staging", "homologacao", "restricted", "2", "":
		return EnvStaging, nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

// Flag returns the tpAmb value for the environment.
func (e Environment) Flag() int {
	if f, ok := EnvironmentFlags[e]; ok {
		return f
	}
	return EnvironmentFlags[EnvStaging]
}

// IsProduction reports whether e is the production registry.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// Operation names a registry web service, used as the endpoint table key.
type Operation string

const (
	OpConsultEmployer Operation = "consultaEmpregador"
	OpConsultEvents   Operation = "consultaEventos"
	OpConsultEventIDs Operation = "consultaIdentificador"
	OpConsultBatch    Operation = "consultaLote"
	OpSubmitBatch     Operation = "enviarLote"
)

// Operations lists every operation the gateway knows how to call.
var Operations = []Operation{
	OpConsultEmployer,
	OpConsultEvents,
	OpConsultEventIDs,
	OpConsultBatch,
	OpSubmitBatch,
}
