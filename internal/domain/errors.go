// Package domain: taxonomia de erros do ciclo de vida fiscal.
//
// Erros locais (validação, credencial) nunca chegam à camada de rede.
// Rejeições da autoridade carregam cStat e xMotivo EXATOS, nunca parafraseados,
// para que auditorias posteriores encontrem literalmente o que a SEFAZ disse.
package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError campo obrigatório ausente ou inválido; corrigível pelo chamador.
type ValidationError struct {
	Campo  string
	Motivo string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validação: campo %q: %s", e.Campo, e.Motivo)
}

// TotalsMismatch o total declarado pelo chamador diverge do recomputado a partir dos itens.
type TotalsMismatch struct {
	Declarado   decimal.Decimal
	Recomputado decimal.Decimal
}

func (e *TotalsMismatch) Error() string {
	return fmt.Sprintf("totais divergentes: declarado %s, recomputado %s",
		e.Declarado.StringFixed(2), e.Recomputado.StringFixed(2))
}

// CredentialError certificado ilegível, senha incorreta ou vigência expirada.
type CredentialError struct {
	Motivo string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credencial: %s: %v", e.Motivo, e.Err)
	}
	return "credencial: " + e.Motivo
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransmissionError falha de rede persistente após esgotar as tentativas.
type TransmissionError struct {
	Operacao   string
	Tentativas int
	Err        error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("transmissão: %s falhou após %d tentativa(s): %v",
		e.Operacao, e.Tentativas, e.Err)
}

func (e *TransmissionError) Unwrap() error { return e.Err }

// InterpretationError resposta da autoridade indecifrável pelas três camadas de parse.
// Corpo guarda a resposta bruta íntegra para análise forense.
type InterpretationError struct {
	Corpo []byte
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("interpretação: resposta da autoridade não reconhecida (%d bytes)", len(e.Corpo))
}

// ProtocolRejection a autoridade recusou explicitamente a operação.
// CStat e XMotivo são preservados exatamente como recebidos.
type ProtocolRejection struct {
	CStat   string
	XMotivo string
}

func (e *ProtocolRejection) Error() string {
	return fmt.Sprintf("rejeição SEFAZ [%s]: %s", e.CStat, e.XMotivo)
}

// DuplicateEvent reuso de sequência de evento ou de numeração já registrada.
type DuplicateEvent struct {
	Sequencia int
	CStat     string
	XMotivo   string
}

func (e *DuplicateEvent) Error() string {
	return fmt.Sprintf("evento duplicado (sequência %d) [%s]: %s", e.Sequencia, e.CStat, e.XMotivo)
}

// AuthorizationTimeout polling de autorização esgotado. Desfecho AMBÍGUO: a nota
// pode ou não ter sido autorizada no lado da SEFAZ; o chamador deve consultar a
// chave antes de assumir qualquer resultado.
type AuthorizationTimeout struct {
	Recibo    string
	Consultas int
}

func (e *AuthorizationTimeout) Error() string {
	return fmt.Sprintf("autorização: recibo %s sem desfecho após %d consulta(s)", e.Recibo, e.Consultas)
}

// IsLocal informa se o erro é local (validação ou credencial) e portanto jamais
// deve gerar chamada de rede nem retry.
func IsLocal(err error) bool {
	var ve *ValidationError
	var tm *TotalsMismatch
	var ce *CredentialError
	return errors.As(err, &ve) || errors.As(err, &tm) || errors.As(err, &ce)
}
