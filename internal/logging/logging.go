package logging

import (
	"io"
	"os"
	"sync"

	"twovue/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	writerMu sync.RWMutex
	writer   io.Writer = os.Stdout
)

// Init configures the global zerolog logger. A LOG_FILE that cannot be
// opened falls back to stdout and is reported once the logger is live.
func Init(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	var fileErr error
	if cfg.File != "" {
		fw, err := newSizeLimitedWriter(cfg.File, cfg.MaxMB)
		if err != nil {
			fileErr = err
		} else {
			out = io.MultiWriter(os.Stdout, fw)
		}
	}
	setWriter(out)

	var console io.Writer = out
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: out}
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(console).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger

	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", cfg.File).Msg("log file unavailable, using stdout")
	}
}

// Writer returns the raw sink behind the global logger, for components that
// log through log/slog (request logging).
func Writer() io.Writer {
	writerMu.RLock()
	defer writerMu.RUnlock()
	return writer
}

func setWriter(w io.Writer) {
	writerMu.Lock()
	writer = w
	writerMu.Unlock()
}
