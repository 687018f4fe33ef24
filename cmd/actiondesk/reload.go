package main

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/rendis/actiondesk/internal/logging"
)

// handlerSwapper is an http.Handler whose target can be replaced while
// serving. In-flight requests finish on the handler they started with.
type handlerSwapper struct {
	mu      sync.RWMutex
	handler http.Handler
}

func newHandlerSwapper(h http.Handler) *handlerSwapper {
	return &handlerSwapper{handler: h}
}

func (s *handlerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	h.ServeHTTP(w, r)
}

func (s *handlerSwapper) Swap(h http.Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// reloader applies config changes that do not need a restart: the log
// level and the detection mode.
type reloader struct {
	mu      sync.Mutex
	current Config
	level   *slog.LevelVar
	swapper *handlerSwapper
	// rebuild returns a fresh request pipeline for cfg.
	rebuild func(cfg Config) (http.Handler, error)
	logger  *slog.Logger
}

// apply diffs next against the running config and applies what it can.
func (r *reloader) apply(next Config) configDiff {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := diffConfigs(r.current, next)
	if d.empty() {
		return d
	}
	if d.LogLevelChanged {
		r.level.Set(logging.ParseLevel(next.LogLevel))
		r.current.LogLevel = next.LogLevel
		r.logger.Info("log level changed", slog.String("level", next.LogLevel))
	}
	if d.DetectionChanged {
		candidate := r.current
		candidate.Detection = next.Detection
		h, err := r.rebuild(candidate)
		if err != nil {
			r.logger.Error("detection reload failed", slog.String("mode", next.Detection.Mode), slog.String("error", err.Error()))
		} else {
			r.swapper.Swap(h)
			r.current.Detection = next.Detection
			r.logger.Info("detection mode changed", slog.String("mode", next.Detection.Mode))
		}
	}
	if len(d.RestartNeeded) > 0 {
		r.logger.Warn("config changed, restart required", slog.Any("keys", d.RestartNeeded))
	}
	return d
}

// watch re-reads the config file on change and applies it. Invalid edits
// are logged and ignored.
func (r *reloader) watch(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decodeConfig(v)
		if err != nil {
			r.logger.Error("config reload rejected", slog.String("file", e.Name), slog.String("error", err.Error()))
			return
		}
		r.apply(next)
	})
	v.WatchConfig()
}
