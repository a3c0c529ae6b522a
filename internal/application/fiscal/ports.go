// Portas de saída do caso de uso fiscal. A porta de transmissão (Transmissor)
// vive junto da implementação SOAP em infrastructure/sefaz; aqui ficam as
// portas de credencial e de arquivamento de artefatos.

package fiscal

import (
	"context"
	"crypto/tls"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

// Credenciais resolve o certificado digital do emitente. A implementação
// concreta carrega do disco (CertRef da empresa); testes injetam um
// certificado gerado na hora.
type Credenciais interface {
	Certificado(ctx context.Context, emp *entity.Empresa) (tls.Certificate, error)
}

// ArmazemArtefatos arquiva os artefatos de cada desfecho: XML autorizado,
// registro JSON do resultado e retornos de evento. Falha de arquivamento não
// reverte o desfecho fiscal; o chamador apenas loga.
type ArmazemArtefatos interface {
	// SalvarAutorizada grava o XML assinado de uma nota autorizada.
	SalvarAutorizada(ctx context.Context, nota *entity.NotaFiscal) error
	// SalvarDesfecho grava o registro JSON do desfecho (qualquer estado).
	SalvarDesfecho(ctx context.Context, nota *entity.NotaFiscal) error
	// SalvarEvento grava o retorno bruto de um evento homologado.
	SalvarEvento(ctx context.Context, nota *entity.NotaFiscal, ev *entity.EventoFiscal, bruto []byte) error
	// SalvarInutilizacao grava o retorno bruto de uma inutilização homologada.
	SalvarInutilizacao(ctx context.Context, inut *repository.Inutilizacao, bruto []byte) error
}
