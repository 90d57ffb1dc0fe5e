package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type UpstreamCfg struct {
	CatastroBase   string
	InspireParcel  string
	InspireBuild   string
	WMS            string
	FichePDF       string
	SigpacPrint    string
	SigpacWMS      string
	Retries        int
	RetryBackoff   time.Duration
	RequestsPerSec float64
}

type JobsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr                string
	LogLevel            string
	LogConsole          bool
	MetricsEnabled      bool
	MaxBatch            int
	OutputDir           string
	LayersDir           string
	LayerCatalogFile    string
	Upstream            UpstreamCfg
	LayerDelay          time.Duration
	BatchDelay          time.Duration
	WMSSize             int
	RedisAddr           string
	LayerCacheTTL       time.Duration
	CacheOpTimeout      time.Duration
	H3Res               int
	LocalLayerCacheSize int
	OverlayEnabled      bool
	OverlayMapWidth     int
	OrthoWidth          int
	CompositeEnabled    bool
	Jobs                JobsCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 9)
	if res < 0 || res > 15 {
		res = 9
	}

	base := strings.TrimRight(getenv("CATASTRO_BASE", "https://ovc.catastro.meh.es"), "/")

	return Config{
		Addr:             getenv("ADDR", ":8081"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		MetricsEnabled:   getbool("METRICS_ENABLED", true),
		MaxBatch:         getint("MAX_BATCH", 50),
		OutputDir:        getenv("OUTPUT_DIR", "outputs"),
		LayersDir:        getenv("LAYERS_DIR", "capas"),
		LayerCatalogFile: getenv("LAYER_CATALOG_FILE", ""),
		Upstream: UpstreamCfg{
			CatastroBase:   base,
			InspireParcel:  getenv("INSPIRE_CP_URL", base+"/INSPIRE/wfsCP.aspx"),
			InspireBuild:   getenv("INSPIRE_BU_URL", base+"/INSPIRE/wfsBU.aspx"),
			WMS:            getenv("WMS_URL", base+"/Cartografia/WMS/ServidorWMS.aspx"),
			FichePDF:       getenv("FICHE_PDF_URL", "https://www1.sedecatastro.gob.es/CYCBienInmueble/SECImprimirCroquisYDatos.aspx"),
			SigpacPrint:    getenv("SIGPAC_PRINT_URL", "https://sigpac.mapa.gob.es/sigpublico/visor/imprimir"),
			SigpacWMS:      getenv("SIGPAC_WMS_URL", "https://wms.mapa.gob.es/wms-inspire/sigpac"),
			Retries:        getint("RETRIES", 2),
			RetryBackoff:   getduration("RETRY_BACKOFF", time.Second),
			RequestsPerSec: getfloat("UPSTREAM_RPS", 4),
		},
		LayerDelay:          getduration("LAYER_DELAY", 800*time.Millisecond),
		BatchDelay:          getduration("BATCH_DELAY", time.Second),
		WMSSize:             getint("WMS_SIZE", 1600),
		RedisAddr:           getenv("REDIS_ADDR", ""),
		LayerCacheTTL:       getduration("LAYER_CACHE_TTL", 24*time.Hour),
		CacheOpTimeout:      getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		H3Res:               res,
		LocalLayerCacheSize: getint("LOCAL_LAYER_CACHE_SIZE", 16),
		OverlayEnabled:      getbool("OVERLAY_ENABLED", true),
		OverlayMapWidth:     getint("OVERLAY_MAP_WIDTH", 800),
		OrthoWidth:          getint("ORTHO_WIDTH", 640),
		CompositeEnabled:    getbool("COMPOSITE_ENABLED", true),
		Jobs: JobsCfg{
			Enabled: getbool("JOBS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "parcel-jobs"),
			GroupID: getenv("KAFKA_GROUP_ID", "catastro-workers"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
