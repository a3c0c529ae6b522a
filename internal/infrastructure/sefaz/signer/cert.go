// Carga e validação do certificado digital A1 (.pfx/PKCS#12 ou par PEM).

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/nexopdv/nfe-engine/internal/domain"
)

// LoadFromP12 carrega certificado e chave privada de um arquivo .pfx/.p12.
// A senha pode ser vazia se o arquivo não for protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, &domain.CredentialError{Motivo: "ler arquivo pfx", Err: err}
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, &domain.CredentialError{Motivo: "decodificar pfx", Err: err}
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carrega certificado e chave de arquivos PEM separados ou combinados.
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, &domain.CredentialError{Motivo: "carregar PEM", Err: err}
	}
	return cert, nil
}

// ValidarVigencia confere que o certificado cobre o instante de referência e
// que a chave privada é RSA. Falha aqui impede qualquer tentativa de
// transmissão; a nota nunca sai do processo em memória.
func ValidarVigencia(cert tls.Certificate, instante time.Time) error {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return &domain.CredentialError{Motivo: "certificado vazio"}
		}
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return &domain.CredentialError{Motivo: "parsear certificado", Err: err}
		}
		leaf = parsed
	}
	if instante.Before(leaf.NotBefore) {
		return &domain.CredentialError{
			Motivo: fmt.Sprintf("certificado ainda não vigente (válido a partir de %s)", leaf.NotBefore.Format("2006-01-02")),
		}
	}
	if instante.After(leaf.NotAfter) {
		return &domain.CredentialError{
			Motivo: fmt.Sprintf("certificado expirado em %s", leaf.NotAfter.Format("2006-01-02")),
		}
	}
	if _, ok := cert.PrivateKey.(*rsa.PrivateKey); !ok {
		return &domain.CredentialError{Motivo: "chave privada não é RSA"}
	}
	return nil
}
