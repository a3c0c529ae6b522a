package signer

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
)

// Provider resolve o certificado de cada emitente a partir do CertRef
// (caminho do .pfx ou .pem relativo ao diretório base). Implementa
// fiscal.Credenciais. Certificados carregados ficam em cache; a validação de
// vigência roda a cada chamada, de modo que um certificado que expira com o
// processo de pé passa a ser recusado na hora.
type Provider struct {
	baseDir string
	senha   string

	mu    sync.Mutex
	cache map[string]tls.Certificate
}

func NewProvider(baseDir, senha string) *Provider {
	return &Provider{
		baseDir: baseDir,
		senha:   senha,
		cache:   make(map[string]tls.Certificate),
	}
}

// Certificado carrega (ou devolve do cache) o certificado da empresa e valida
// a vigência no instante atual.
func (p *Provider) Certificado(_ context.Context, emp *entity.Empresa) (tls.Certificate, error) {
	if emp == nil || emp.CertRef == "" {
		return tls.Certificate{}, &domain.CredentialError{Motivo: "empresa sem certificado configurado"}
	}

	p.mu.Lock()
	cert, ok := p.cache[emp.CertRef]
	p.mu.Unlock()

	if !ok {
		caminho := emp.CertRef
		if !filepath.IsAbs(caminho) {
			caminho = filepath.Join(p.baseDir, caminho)
		}
		var err error
		if strings.HasSuffix(caminho, ".pem") {
			cert, err = LoadFromPEM(caminho, "")
		} else {
			cert, err = LoadFromP12(caminho, p.senha)
		}
		if err != nil {
			return tls.Certificate{}, err
		}
		p.mu.Lock()
		p.cache[emp.CertRef] = cert
		p.mu.Unlock()
	}

	if err := ValidarVigencia(cert, time.Now()); err != nil {
		return tls.Certificate{}, err
	}
	return cert, nil
}
