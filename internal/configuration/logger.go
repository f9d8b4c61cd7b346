package configuration

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Development mode logs human readable
// lines at debug level unless a level is given.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrap(err, "logger.level")
		}
		zc.Level = level
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}
