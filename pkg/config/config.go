package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa a configuração da aplicação (leitura via Viper de env e opcionalmente arquivo).
type Config struct {
	App  AppConfig
	DB   DBConfig
	HTTP HTTPConfig
	NFe  NFeConfig
}

// NFeConfig configuração do engine de emissão NF-e/NFC-e (SEFAZ).
type NFeConfig struct {
	Ambiente     string // "1" = Produção, "2" = Homologação
	UF           string // Sigla da UF autorizadora (SP, MG, RS, ...)
	VersaoSchema string // Versão do layout NF-e (ex: "4.00") — entrada de configuração, não constante
	CertPath     string // Caminho do certificado A1 (.pfx/.p12) ou .pem
	CertKeyPath  string // Caminho da chave privada .pem (se CertPath for só o certificado)
	CertPassword string // Senha do .pfx
	EndpointURL  string // Override do endpoint SOAP (vazio = tabela por UF/ambiente)
	StoragePath  string // Diretório raiz para XMLs autorizados/eventos e registros de desfecho

	Timeout          time.Duration // Timeout de conexão/leitura por chamada SOAP
	RetryMaxAttempts int           // Teto de tentativas para falha de REDE (rejeição de protocolo não re-tenta)
	RetryBaseDelay   time.Duration // Delay inicial do backoff exponencial
	PollInitialDelay time.Duration // Espera antes da primeira consulta de recibo
	PollMultiplier   float64       // Fator de crescimento entre consultas
	PollMaxAttempts  int           // Máximo de consultas de recibo antes de AuthorizationTimeout
	MaxConcurrent    int           // Limite de ciclos de emissão simultâneos
}

// AppConfig configuração geral da aplicação.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuração do PostgreSQL.
// Se DatabaseURL não estiver vazio, é usado como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devolve o DSN a usar: DATABASE_URL se definido, senão o construído com DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devolve o connection string do PostgreSQL com URL encoding para caracteres especiais.
func (c DBConfig) DSN() string {
	userInfo := url.UserPassword(c.User, c.Password)
	u := &url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// HTTPConfig configuração do servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devolve o endereço de escuta (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lê a configuração de variáveis de ambiente (e opcionalmente de arquivo).
// As env vars têm prioridade. Nomes esperados: APP_ENV, DB_HOST, NFE_AMBIENTE, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: arquivo de configuração (.env ou config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos erro se não existir

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "nfe-engine"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "nfe_engine"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		NFe: NFeConfig{
			Ambiente:         getString(v, "NFE_AMBIENTE", "2"),
			UF:               getString(v, "NFE_UF", "SP"),
			VersaoSchema:     getString(v, "NFE_VERSAO_SCHEMA", "4.00"),
			CertPath:         getString(v, "NFE_CERT_PATH", ""),
			CertKeyPath:      getString(v, "NFE_CERT_KEY_PATH", ""),
			CertPassword:     getString(v, "NFE_CERT_PASSWORD", ""),
			EndpointURL:      getString(v, "NFE_ENDPOINT_URL", ""),
			StoragePath:      getString(v, "NFE_STORAGE_PATH", "./storage"),
			Timeout:          getDuration(v, "NFE_TIMEOUT", 60*time.Second),
			RetryMaxAttempts: getInt(v, "NFE_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:   getDuration(v, "NFE_RETRY_BASE_DELAY", 2*time.Second),
			PollInitialDelay: getDuration(v, "NFE_POLL_INITIAL_DELAY", 3*time.Second),
			PollMultiplier:   getFloat(v, "NFE_POLL_MULTIPLIER", 1.5),
			PollMaxAttempts:  getInt(v, "NFE_POLL_MAX_ATTEMPTS", 5),
			MaxConcurrent:    getInt(v, "NFE_MAX_CONCURRENT", 4),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return def
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		if d, err := time.ParseDuration(v.GetString(key)); err == nil {
			return d
		}
	}
	return def
}
