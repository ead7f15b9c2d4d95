package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080" validate:"gt=0,lte=65535"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	HistoryBuffer   int           `env:"HISTORY_BUFFER_SIZE,default=256" validate:"gt=0"`
	HistoryPageSize int           `env:"HISTORY_PAGE_SIZE,default=50" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081" validate:"gt=0,lte=65535"`
}

func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
