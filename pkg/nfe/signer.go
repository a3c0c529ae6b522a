// Package nfe: interface para assinatura digital de documentos XML (XMLDSig, NF-e).

package nfe

import "crypto/tls"

// Signer assina um XML de NF-e e devolve o XML com a assinatura injetada
// como irmã de infNFe, conforme o MOC.
type Signer interface {
	// Sign recebe o XML da nota (sem assinatura) e o certificado com chave privada,
	// e retorna o XML com o nó ds:Signature referenciando #NFe{chave}.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
