// Serviço de assinatura digital enveloped do layout NFe 4.00. A Signature é
// inserida como irmã de infNFe, dentro do elemento NFe, apontando para
// URI="#NFe<chave>".
//
// A assinatura é determinística: mesmo documento e mesma chave produzem bytes
// idênticos (RSA PKCS#1 v1.5 não usa salt e nenhum carimbo de hora entra no
// SignedInfo).

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/nexopdv/nfe-engine/internal/domain"
	pkgnfe "github.com/nexopdv/nfe-engine/pkg/nfe"
)

// Service implementa pkg/nfe.Signer para o layout NFe.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

var _ pkgnfe.Signer = (*Service)(nil)

// Sign assina o XML e injeta o nó Signature após infNFe.
func (s *Service) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("sefaz: XML vazio")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, &domain.CredentialError{Motivo: "chave privada não é RSA"}
	}
	if len(cert.Certificate) == 0 {
		return nil, &domain.CredentialError{Motivo: "certificado vazio"}
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, &domain.CredentialError{Motivo: "parsear certificado", Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("sefaz: parsear XML: %w", err)
	}
	raiz := doc.Root()
	if raiz == nil {
		return nil, fmt.Errorf("sefaz: documento sem raiz")
	}
	inf := localizarInfNFe(raiz)
	if inf == nil {
		return nil, fmt.Errorf("sefaz: elemento infNFe não encontrado")
	}
	id := inf.SelectAttrValue("Id", "")
	if id == "" {
		return nil, fmt.Errorf("sefaz: infNFe sem atributo Id")
	}

	// 1) digest C14N do subtree infNFe
	subtree, err := serializarSubtree(inf)
	if err != nil {
		return nil, err
	}
	canonico, err := canonicalizar(subtree)
	if err != nil {
		return nil, fmt.Errorf("sefaz: canonicalizar infNFe: %w", err)
	}
	digest := sha1.Sum(canonico)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo canônico assinado com RSA-SHA1
	signedInfoXML := buildSignedInfo(id, digestB64)
	canonicoSI, err := canonicalizar([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("sefaz: canonicalizar SignedInfo: %w", err)
	}
	hashSI := sha1.Sum(canonicoSI)
	valor, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, hashSI[:])
	if err != nil {
		return nil, fmt.Errorf("sefaz: assinar SignedInfo: %w", err)
	}

	// 3) montar Signature e injetar após infNFe
	sigXML := buildSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(valor),
		base64.StdEncoding.EncodeToString(x509Cert.Raw))

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(sigXML); err != nil {
		return nil, fmt.Errorf("sefaz: parsear Signature: %w", err)
	}
	raiz.AddChild(sigDoc.Root())

	doc.WriteSettings.CanonicalEndTags = true
	return doc.WriteToBytes()
}

// localizarInfNFe aceita infNFe direto sob a raiz ou sob NFe (caso nfeProc).
func localizarInfNFe(raiz *etree.Element) *etree.Element {
	if raiz.Tag == "infNFe" {
		return raiz
	}
	for _, filho := range raiz.ChildElements() {
		if filho.Tag == "infNFe" {
			return filho
		}
		if filho.Tag == "NFe" {
			if inf := localizarInfNFe(filho); inf != nil {
				return inf
			}
		}
	}
	return nil
}

// serializarSubtree serializa o elemento isolado, propagando o namespace da
// raiz: sozinho, infNFe perderia a declaração xmlns herdada.
func serializarSubtree(el *etree.Element) ([]byte, error) {
	copia := el.Copy()
	if copia.SelectAttr("xmlns") == nil {
		copia.CreateAttr("xmlns", "http://www.portalfiscal.inf.br/nfe")
	}
	doc := etree.NewDocument()
	doc.SetRoot(copia)
	doc.WriteSettings.CanonicalEndTags = true
	return doc.WriteToBytes()
}

func canonicalizar(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(id, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="#` + id + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference></SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, valorB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + valorB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}
