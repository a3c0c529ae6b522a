// Arquivamento de artefatos fiscais em disco. O layout segue a convenção de
// guarda por emitente, ambiente e competência:
//
//	{base}/empresa_{id}/{ambiente}/{modelo}/Autorizados/AAAA/MM/{chave}.xml
//	{base}/empresa_{id}/{ambiente}/{modelo}/Eventos/{chave}-{tipo}-{seq}.xml
//	{base}/empresa_{id}/{ambiente}/{modelo}/Inutilizadas/{serie}-{de}-{ate}.xml
//	{base}/empresa_{id}/{ambiente}/{modelo}/Desfechos/{chave}.json
//
// O XML autorizado é imutável por obrigação legal de guarda; escrita usa
// arquivo temporário + rename para nunca deixar artefato truncado.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

// FileStore implementa fiscal.ArmazemArtefatos sobre o sistema de arquivos.
type FileStore struct {
	base string
}

func NewFileStore(base string) *FileStore {
	return &FileStore{base: base}
}

// desfecho registro JSON do resultado de uma tentativa de emissão.
type desfecho struct {
	Chave      string    `json:"chave"`
	Modelo     string    `json:"modelo"`
	Serie      int64     `json:"serie"`
	Numero     int64     `json:"numero"`
	Estado     string    `json:"estado"`
	Recibo     string    `json:"recibo,omitempty"`
	Protocolo  string    `json:"protocolo,omitempty"`
	UltimoErro string    `json:"ultimo_erro,omitempty"`
	GravadoEm  time.Time `json:"gravado_em"`
}

func (s *FileStore) SalvarAutorizada(_ context.Context, nota *entity.NotaFiscal) error {
	dir := filepath.Join(s.dirModelo(nota.EmpresaID, ambienteNome(nota.Emitente), nota.Modelo),
		"Autorizados", nota.Emissao.Format("2006"), nota.Emissao.Format("01"))
	return escrever(filepath.Join(dir, nota.Chave+".xml"), nota.XMLAssinado)
}

func (s *FileStore) SalvarDesfecho(_ context.Context, nota *entity.NotaFiscal) error {
	d := desfecho{
		Chave:      nota.Chave,
		Modelo:     nota.Modelo,
		Serie:      nota.Serie,
		Numero:     nota.Numero,
		Estado:     nota.Estado,
		Recibo:     nota.Recibo,
		Protocolo:  nota.Protocolo,
		UltimoErro: nota.UltimoErro,
		GravadoEm:  time.Now(),
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("serializar desfecho: %w", err)
	}
	dir := filepath.Join(s.dirModelo(nota.EmpresaID, ambienteNome(nota.Emitente), nota.Modelo), "Desfechos")
	return escrever(filepath.Join(dir, nota.Chave+".json"), data)
}

func (s *FileStore) SalvarEvento(_ context.Context, nota *entity.NotaFiscal, ev *entity.EventoFiscal, bruto []byte) error {
	dir := filepath.Join(s.dirModelo(nota.EmpresaID, ambienteNome(nota.Emitente), nota.Modelo), "Eventos")
	nome := fmt.Sprintf("%s-%s-%02d.xml", nota.Chave, ev.Tipo, ev.Sequencia)
	return escrever(filepath.Join(dir, nome), bruto)
}

func (s *FileStore) SalvarInutilizacao(_ context.Context, inut *repository.Inutilizacao, bruto []byte) error {
	dir := filepath.Join(s.base, "empresa_"+inut.EmpresaID, "Inutilizadas")
	nome := fmt.Sprintf("%03d-%09d-%09d.xml", inut.Serie, inut.NumeroInicial, inut.NumeroFinal)
	return escrever(filepath.Join(dir, nome), bruto)
}

func (s *FileStore) dirModelo(empresaID, ambiente, modelo string) string {
	return filepath.Join(s.base, "empresa_"+empresaID, ambiente, modelo)
}

func ambienteNome(emp *entity.Empresa) string {
	if emp != nil && emp.Ambiente == "1" {
		return "producao"
	}
	return "homologacao"
}

// escrever grava via arquivo temporário + rename atômico no mesmo diretório.
func escrever(destino string, data []byte) error {
	dir := filepath.Dir(destino)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("criar diretório %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("criar temporário: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("gravar %s: %w", destino, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fechar temporário: %w", err)
	}
	if err := os.Rename(tmp.Name(), destino); err != nil {
		return fmt.Errorf("renomear para %s: %w", destino, err)
	}
	return nil
}
