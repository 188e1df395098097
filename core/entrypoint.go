package core

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/ratemesh/perf"
	"github.com/encodeous/ratemesh/state"
	"github.com/encodeous/tint"
	"github.com/lightningnetwork/lnd/clock"
	slogmulti "github.com/samber/slog-multi"
)

func setupDebugging(addr string) {
	if addr == "" {
		return
	}
	// expvar serves /debug/vars and perf serves /debug/metrics on the default mux
	go func() {
		log.Println(http.ListenAndServe(addr, nil))
	}()
}

func readNodeConfig(nodePath string) (*state.NodeCfg, error) {
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	return state.ParseNodeCfg(file)
}

// Bootstrap manages the lifetime of the whole application. The router is restarted with a fresh
// configuration on SIGHUP, but Bootstrap is only called once.
func Bootstrap(nodePath, logPath, debugAddr string, verbose bool) {
	setupDebugging(debugAddr)
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	for {
		nodeCfg, err := readNodeConfig(nodePath)
		if err != nil {
			panic(err)
		}
		if logPath != "" {
			nodeCfg.LogPath = logPath
		}
		restart, err := Start(*nodeCfg, level, nil, nil)
		if err != nil {
			panic(err)
		}
		if !restart {
			break
		}
	}
}

func newLogger(ncfg state.NodeCfg, logLevel slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: ncfg.Id,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if ncfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(ncfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(ncfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start runs the router until it is stopped, and reports whether it should be started again with a
// reloaded configuration. bc may be nil, in which case routes are computed but never sent. ready, if
// not nil, is called once the modules are initialized and before the main loop starts.
func Start(ncfg state.NodeCfg, logLevel slog.Level, bc Broadcaster, ready func(*state.State)) (bool, error) {
	ctx, cancel := context.WithCancelCause(context.Background())

	dispatch := make(chan func(env *state.State) error, state.DispatchBacklog)

	logger, err := newLogger(ncfg, logLevel)
	if err != nil {
		cancel(err)
		return false, err
	}
	ncfg.ApplyDefaults()

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			NodeCfg:         ncfg,
			Log:             logger,
			Clock:           clock.NewDefaultClock(),
		},
	}
	s.Log.Info("init modules")
	err = initModules(&s, bc)
	if err != nil {
		cancel(err)
		return false, err
	}
	s.Log.Info("init modules complete")
	if ready != nil {
		ready(&s)
	}

	s.Log.Info("ratemesh has been initialized. To gracefully exit, send SIGINT or Ctrl+C. To reload the config, send SIGHUP.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			if sig == syscall.SIGHUP {
				s.Reloading.Store(true)
				s.Cancel(errors.New("reloading configuration"))
				return
			}
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	err = MainLoop(&s, dispatch)
	if err != nil {
		return false, err
	}
	if s.Reloading.Load() {
		s.Log.Info("Restarting ratemesh...")
		return true, nil
	}
	return false, nil
}

func initModules(s *state.State, bc Broadcaster) error {
	var modules []state.NyModule
	modules = append(modules, &RatesRouter{Broadcaster: bc})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > time.Millisecond*4 {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
