// Primitiva única de retry/backoff do engine. Consolida os loops de espera que
// o fluxo de emissão precisa em dois usos: re-tentativa de falha de REDE nas
// chamadas SOAP e agenda crescente do polling de autorização.
//
// Rejeições de protocolo (a SEFAZ respondeu, mas recusou) NUNCA passam por aqui.

package sefaz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexopdv/nfe-engine/internal/domain"
)

// ErrRede marca falhas de transporte (timeout, conexão recusada, resposta HTTP
// de gateway). Só erros com esta marca são re-tentados.
var ErrRede = errors.New("falha de rede")

// errRede embrulha um erro de transporte preservando a causa original.
func errRede(err error) error {
	return fmt.Errorf("%w: %v", ErrRede, err)
}

// Backoff parâmetros do retry exponencial. Valor puro, sem estado mutável:
// pode ser compartilhado por todas as operações e goroutines.
type Backoff struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Delay devolve a espera antes da tentativa n (1-based). A primeira tentativa
// não espera; a partir da segunda cresce geometricamente.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(b.BaseDelay)
	for i := 2; i < attempt; i++ {
		d *= b.Multiplier
	}
	return time.Duration(d)
}

// Execute roda fn até MaxAttempts vezes enquanto o erro for de rede (ErrRede).
// Qualquer outro erro é devolvido imediatamente, sem nova tentativa. Esgotadas
// as tentativas, devolve TransmissionError com a última causa.
func (b Backoff) Execute(ctx context.Context, operacao string, fn func(context.Context) error) error {
	max := b.MaxAttempts
	if max < 1 {
		max = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	bb := b
	bb.Multiplier = mult

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if d := bb.Delay(attempt); d > 0 {
			if err := aguardar(ctx, d); err != nil {
				return err
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRede) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &domain.TransmissionError{Operacao: operacao, Tentativas: max, Err: lastErr}
}

// AgendaPolling agenda de espera crescente para a consulta assíncrona de
// autorização (e qualquer confirmação de evento futura).
type AgendaPolling struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// Wait bloqueia pela espera da consulta n (1-based), respeitando o contexto.
func (a AgendaPolling) Wait(ctx context.Context, consulta int) error {
	d := float64(a.InitialDelay)
	mult := a.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < consulta; i++ {
		d *= mult
	}
	return aguardar(ctx, time.Duration(d))
}

func aguardar(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
