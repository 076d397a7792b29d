package observability

import (
	"io"

	"github.com/danmuck/memdev/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the process logger from cfg, tags it with app and installs
// it as the global zerolog logger. The closer releases any log file.
func InitLogger(app string, cfg logging.Config) (zerolog.Logger, io.Closer, error) {
	base, closer, err := logging.Build(cfg)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	logger := base.With().Str("app", app).Logger()
	log.Logger = logger
	return logger, closer, nil
}
