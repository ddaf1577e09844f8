package settings

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

var Settings *AppSettings

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

func NewSettings() *AppSettings {
	settings := AppSettings{
		Domain:         getEnvOrDefault("RUNKEEPER_DOMAIN", "localhost"),
		Port:           getEnvOrDefault("RUNKEEPER_PORT", ":8080"),
		DatabaseDriver: getEnvOrDefault("RUNKEEPER_DB_DRIVER", DriverSQLite),
		SQLiteDatabase: getEnvOrDefault("RUNKEEPER_DB_PATH", "file:.///db.sqlite"),
		PostgresURL:    getEnvOrDefault("RUNKEEPER_POSTGRES_URL", ""),
		DataDir:        getEnvOrDefault("RUNKEEPER_DATA_DIR", "data"),
		JobsDir:        getEnvOrDefault("RUNKEEPER_JOBS_DIR", "jobs"),
		LogLevel:       getEnvOrDefault("RUNKEEPER_LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("RUNKEEPER_LOG_FORMAT", "text"),
		KafkaBrokers:   splitList(getEnvOrDefault("RUNKEEPER_KAFKA_BROKERS", "")),
		KafkaTopic:     getEnvOrDefault("RUNKEEPER_KAFKA_TOPIC", "runkeeper.builds"),
		SFTPAddr:       getEnvOrDefault("RUNKEEPER_SFTP_ADDR", ""),
		SFTPUser:       getEnvOrDefault("RUNKEEPER_SFTP_USER", ""),
		SFTPKeyPath:    getEnvOrDefault("RUNKEEPER_SFTP_KEY_PATH", ""),
		SFTPRoot:       getEnvOrDefault("RUNKEEPER_SFTP_ROOT", "/var/lib/runkeeper/artifacts"),
	}
	if !strings.HasPrefix(settings.Port, ":") {
		settings.Port = ":" + settings.Port
	}
	return &settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	items := make([]string, 0)
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

type AppSettings struct {
	Domain         string
	Port           string
	DatabaseDriver string
	SQLiteDatabase string
	PostgresURL    string
	DataDir        string
	JobsDir        string
	LogLevel       string
	LogFormat      string
	KafkaBrokers   []string
	KafkaTopic     string
	SFTPAddr       string
	SFTPUser       string
	SFTPKeyPath    string
	SFTPRoot       string
}

func (as *AppSettings) BaseURL() string {
	if as.Domain == "localhost" {
		return fmt.Sprintf("http://%s%s", as.Domain, as.Port)
	} else {
		return fmt.Sprintf("https://%s", as.Domain)
	}
}

// DataSourceName returns the DSN for the configured driver. The readonly
// flag only affects SQLite.
func (as *AppSettings) DataSourceName(readonly bool) string {
	if as.DatabaseDriver == DriverPostgres {
		return as.PostgresURL
	}
	return as.SQLiteDbString(readonly)
}

func (as *AppSettings) SQLiteDbString(readonly bool) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_cache_size", "-20000")
	params.Add("_foreign_keys", "ON")
	if readonly {
		params.Add("mode", "ro")
	} else {
		params.Add("_txlock", "IMMEDIATE")
		params.Add("mode", "rwc")
	}

	return as.SQLiteDatabase + "?" + params.Encode()
}

// ConfigureLogger applies the level and format settings to l.
func (as *AppSettings) ConfigureLogger(l *log.Logger) error {
	level, err := log.ParseLevel(as.LogLevel)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	switch as.LogFormat {
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", as.LogFormat)
	}
	return nil
}

func ReadDotenv(path string) {
	re := regexp.MustCompile(`^[^0-9][A-Z0-9_]+=.+$`)
	f, err := os.Open(path)
	if err != nil {
		log.Println("err opening dotenv:", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[0] != '#' && re.Match(line) {
			name, value, _ := strings.Cut(string(line), "=")
			name = strings.TrimSpace(name)
			value = strings.TrimSpace(value)
			value = strings.Trim(value, `"`)
			os.Setenv(name, value)
		}
	}
}
