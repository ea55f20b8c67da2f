package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/app"
)

// Load читает .env из рабочего каталога, затем файл VEGSHOP_CONFIG_FILE и окружение процесса.
// Окружение имеет приоритет над файлом; .env не перетирает уже заданные переменные.
func Load() (app.Config, Lookup, []string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return app.Config{}, nil, nil, err
	}

	fileLookup, err := LoadFile(os.Getenv(EnvConfigFile))
	if err != nil {
		return app.Config{}, nil, nil, err
	}
	lookup := Chain(os.LookupEnv, fileLookup)

	cfg, warnings := FromEnv(lookup)
	return cfg, lookup, warnings, nil
}

// SetupLogger настраивает формат и уровень логирования.
func SetupLogger(lookup Lookup) {
	if format, _ := lookup(EnvLogFormat); strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warn("unknown log level, using info")
			return
		}
		log.SetLevel(level)
	}
}
