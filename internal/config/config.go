package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/rpcgate/internal/util"
)

// DefaultPath es el archivo de configuración si no se indica otro (CONFIG_PATH).
const DefaultPath = "./config.json"

// Los campos usan camelCase para aceptar el config.json histórico del gateway:
// JSON es YAML válido, así que el mismo decoder sirve para ambos.
type Config struct {
	Port       int         `yaml:"port"`
	RateLimit  RateLimit   `yaml:"rateLimit"`
	APIKeys    []string    `yaml:"apiKeys"`
	RemoteKeys RemoteKeys  `yaml:"remoteKeys"`
	GodAPIKey  string      `yaml:"godApiKey"`
	Node       Node        `yaml:"node"`
	Check      Check       `yaml:"check"`
	Methods    []string    `yaml:"methods"`
	Cache      []CacheRule `yaml:"cache"`
	CacheStore CacheStore  `yaml:"cacheStore"`
	Redis      Redis       `yaml:"redis"`
	Logs       Logs        `yaml:"logs"`
	CORS       CORS        `yaml:"cors"`
	Admin      Admin       `yaml:"admin"`
	// BodyLimit en bytes.
	BodyLimit int64 `yaml:"bodyLimit"`

	// errores de variables de entorno mal formadas; los reporta Validate
	envErrs []error
}

type RateLimit struct {
	WindowMs int64  `yaml:"windowMs"`
	Max      int    `yaml:"max"`
	Store    string `yaml:"store"` // memory | redis
}

func (r RateLimit) Window() time.Duration { return ms(r.WindowMs) }

type RemoteKeys struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Authorization string `yaml:"authorization"`
	Interval      int64  `yaml:"interval"`   // ms
	RetryDelay    int64  `yaml:"retryDelay"` // ms
	Timeout       int64  `yaml:"timeout"`    // ms
}

func (r RemoteKeys) IntervalDuration() time.Duration   { return ms(r.Interval) }
func (r RemoteKeys) RetryDelayDuration() time.Duration { return ms(r.RetryDelay) }
func (r RemoteKeys) TimeoutDuration() time.Duration    { return ms(r.Timeout) }

type Node struct {
	URL                string `yaml:"url"`
	Key                string `yaml:"key"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	Timeout            int64  `yaml:"timeout"` // ms, 0 = sin límite
}

func (n Node) TimeoutDuration() time.Duration { return ms(n.Timeout) }

// Check: métodos que la key de monitoreo puede llamar aunque no estén en Methods.
type Check struct {
	Methods []string `yaml:"methods"`
	Key     string   `yaml:"key"`
}

type CacheRule struct {
	Method   string `yaml:"method"`
	Duration int64  `yaml:"duration"` // ms
}

func (c CacheRule) TTL() time.Duration { return ms(c.Duration) }

type CacheStore struct {
	Kind          string `yaml:"kind"` // memory | redis
	Capacity      uint64 `yaml:"capacity"`
	MaxEntryBytes int    `yaml:"maxEntryBytes"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Logs struct {
	Output     string `yaml:"output"` // stdout | file | none
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
	Level      string `yaml:"level"`
	Env        string `yaml:"env"` // dev | prod
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Admin struct {
	Addr string `yaml:"addr"`
}

// Addr retorna la dirección de escucha del gateway.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// RedisRequired indica si algún componente usa Redis.
func (c *Config) RedisRequired() bool {
	return c.RateLimit.Store == StoreRedis || c.CacheStore.Kind == StoreRedis
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// DefaultMethods es la allow-list histórica del gateway.
var DefaultMethods = []string{
	"dna_identity",
	"dna_ceremonyIntervals",
	"dna_epoch",
	"dna_isValidationReady",
	"dna_wordsSeed",
	"dna_getBalance",
	"flip_getRaw",
	"flip_getKeys",
	"flip_words",
	"flip_shortHashes",
	"flip_longHashes",
	"flip_privateEncryptionKeyCandidates",
	"flip_sendPrivateEncryptionKeysPackage",
	"flip_sendPublicEncryptionKey",
	"flip_wordPairs",
	"flip_rawSubmit",
	"bcn_syncing",
	"bcn_getRawTx",
	"bcn_sendRawTx",
	"bcn_transaction",
	"ipfs_cid",
}

// Load lee el archivo (si existe), aplica defaults y variables de entorno.
// Un archivo inexistente no es error: se usan defaults + env.
// No valida; el caller decide cuándo llamar a Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// sin archivo
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.RateLimit.WindowMs == 0 {
		c.RateLimit.WindowMs = 1000
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 10
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = StoreMemory
	}
	if c.APIKeys == nil {
		c.APIKeys = []string{}
	}
	if c.RemoteKeys.Interval == 0 {
		c.RemoteKeys.Interval = 60000
	}
	if c.RemoteKeys.RetryDelay == 0 {
		c.RemoteKeys.RetryDelay = 5000
	}
	if c.RemoteKeys.Timeout == 0 {
		c.RemoteKeys.Timeout = 10000
	}
	if len(c.Methods) == 0 {
		c.Methods = append([]string(nil), DefaultMethods...)
	}
	if c.CacheStore.Kind == "" {
		c.CacheStore.Kind = StoreMemory
	}
	if c.CacheStore.Capacity == 0 {
		c.CacheStore.Capacity = 2000
	}
	if c.CacheStore.MaxEntryBytes == 0 {
		c.CacheStore.MaxEntryBytes = 1 << 20
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "rpcgate"
	}
	if c.Logs.Output == "" {
		c.Logs.Output = "none"
	}
	if c.Logs.File == "" {
		c.Logs.File = "access.log"
	}
	if c.Logs.MaxSizeMB == 0 {
		c.Logs.MaxSizeMB = 100
	}
	if c.Logs.MaxBackups == 0 {
		c.Logs.MaxBackups = 5
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Logs.Env == "" {
		c.Logs.Env = "prod"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":9090"
	}
	if c.BodyLimit == 0 {
		c.BodyLimit = 2 << 20
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return i, true, nil
}

// getEnvFlag interpreta "1"/"0" (y cualquier número: distinto de cero es true)
// además de los valores de strconv.ParseBool.
func getEnvFlag(key string) (bool, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return false, false
	}
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b, true
}

func getEnvJSONList(key string) ([]string, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false, fmt.Errorf("%s must be a JSON array of strings: %w", key, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, true, nil
}

// applyEnvOverrides: pisa el archivo con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok, err := getEnvInt("PORT"); err != nil {
		c.envErrs = append(c.envErrs, err)
	} else if ok {
		c.Port = v
	}
	if v, ok, err := getEnvJSONList("AVAILABLE_KEYS"); err != nil {
		c.envErrs = append(c.envErrs, err)
	} else if ok {
		c.APIKeys = v
	}

	// REMOTE KEYS
	if v, ok := getEnvFlag("REMOTE_KEYS_ENABLED"); ok {
		c.RemoteKeys.Enabled = v
	}
	if v, ok := getEnvStr("REMOTE_KEYS_URL"); ok {
		c.RemoteKeys.URL = v
	}
	if v, ok := getEnvStr("REMOTE_KEYS_AUTH"); ok {
		c.RemoteKeys.Authorization = v
	}

	if v, ok := getEnvStr("GOD_API_KEY"); ok {
		c.GodAPIKey = v
	}

	// NODE
	if v, ok := getEnvStr("IDENA_URL"); ok {
		c.Node.URL = v
	}
	if v, ok := getEnvStr("IDENA_KEY"); ok {
		c.Node.Key = v
	}

	// LOGS
	if v, ok := getEnvStr("LOGS_OUTPUT"); ok {
		c.Logs.Output = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Logs.Level = v
	}
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.Logs.Env = strings.ToLower(v)
	}

	// STORES
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.CacheStore.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("RATE_STORE"); ok {
		c.RateLimit.Store = strings.ToLower(v)
	}

	if v, ok := getEnvStr("ADMIN_ADDR"); ok {
		c.Admin.Addr = v
	}
}

// Validate agrega todos los problemas de configuración en un solo error.
func (c *Config) Validate() error {
	var err error
	for _, e := range c.envErrs {
		err = multierr.Append(err, e)
	}

	if c.Port <= 0 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Node.URL == "" {
		err = multierr.Append(err, errors.New("node.url (IDENA_URL) is required"))
	} else if u, perr := url.Parse(c.Node.URL); perr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("node.url %q is not an absolute URL", c.Node.URL))
	}
	if c.RateLimit.WindowMs <= 0 {
		err = multierr.Append(err, errors.New("rateLimit.windowMs must be positive"))
	}
	if c.RateLimit.Max <= 0 {
		err = multierr.Append(err, errors.New("rateLimit.max must be positive"))
	}
	if c.RemoteKeys.Enabled && c.RemoteKeys.URL == "" {
		err = multierr.Append(err, errors.New("remoteKeys.url (REMOTE_KEYS_URL) is required when remote keys are enabled"))
	}
	if c.RemoteKeys.Interval < 0 || c.RemoteKeys.RetryDelay < 0 {
		err = multierr.Append(err, errors.New("remoteKeys interval and retryDelay must not be negative"))
	}
	if !knownStore(c.RateLimit.Store) {
		err = multierr.Append(err, fmt.Errorf("rateLimit.store %q must be memory or redis", c.RateLimit.Store))
	}
	if !knownStore(c.CacheStore.Kind) {
		err = multierr.Append(err, fmt.Errorf("cacheStore.kind %q must be memory or redis", c.CacheStore.Kind))
	}
	if c.RedisRequired() && c.Redis.Addr == "" {
		err = multierr.Append(err, errors.New("redis.addr (REDIS_ADDR) is required by the selected stores"))
	}
	for i, r := range c.Cache {
		if r.Method == "" || r.Duration <= 0 {
			err = multierr.Append(err, fmt.Errorf("cache[%d]: method and a positive duration are required", i))
		}
	}
	switch c.Logs.Output {
	case "stdout", "file", "none":
	default:
		err = multierr.Append(err, fmt.Errorf("logs.output %q must be stdout, file or none", c.Logs.Output))
	}
	if c.BodyLimit <= 0 {
		err = multierr.Append(err, errors.New("bodyLimit must be positive"))
	}
	return err
}

func knownStore(s string) bool {
	return s == StoreMemory || s == StoreRedis
}

// Masked retorna una copia con los secretos enmascarados, para logs y `config print`.
func (c *Config) Masked() Config {
	m := *c
	m.envErrs = nil
	m.APIKeys = util.MaskKeys(c.APIKeys)
	m.GodAPIKey = util.MaskKey(c.GodAPIKey)
	m.Node.Key = util.MaskKey(c.Node.Key)
	m.Node.URL = util.MaskURLUserinfo(c.Node.URL)
	m.Check.Key = util.MaskKey(c.Check.Key)
	m.RemoteKeys.Authorization = util.MaskKey(c.RemoteKeys.Authorization)
	if c.Redis.Password != "" {
		m.Redis.Password = "***"
	}
	return m
}

// YAML serializa la configuración enmascarada.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Masked())
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
