// Command greentic-gui is the developer harness for the GUI SDK: it runs
// the SDK's entry points against a backend from the command line and can
// serve the stub backend for local work.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/greentic-ai-org/greentic-gui/pkg/binding"
	"github.com/greentic-ai-org/greentic-gui/pkg/config"
	"github.com/greentic-ai-org/greentic-gui/pkg/gui"
	"github.com/greentic-ai-org/greentic-gui/pkg/guiserver"
	"github.com/greentic-ai-org/greentic-gui/pkg/logging"
	"github.com/greentic-ai-org/greentic-gui/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = gui.Version
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("greentic-gui", flag.ContinueOnError)
	configPath := global.String("config", "", "path to the harness configuration file")
	global.Usage = func() { printUsage(global) }
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(global)
		return errors.New("a subcommand is required")
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		return err
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "version":
		fmt.Printf("greentic-gui %s (commit %s, built %s)\n", version, commit, buildDate)
		return nil
	case "serve":
		return cmdServe(cfg, cmdArgs)
	case "attach":
		return cmdAttach(cfg, cmdArgs)
	case "send-message":
		return cmdSendMessage(cfg, cmdArgs)
	case "send-event":
		return cmdSendEvent(cfg, cmdArgs)
	case "session":
		return cmdSession(cfg, cmdArgs)
	default:
		printUsage(global)
		return fmt.Errorf("unknown subcommand %q", cmd)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: greentic-gui [-config FILE] <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Subcommands:")
	fmt.Fprintln(os.Stderr, "  version       print version information")
	fmt.Fprintln(os.Stderr, "  serve         run the stub backend")
	fmt.Fprintln(os.Stderr, "  attach        bind a worker onto an HTML document and print the result")
	fmt.Fprintln(os.Stderr, "  send-message  post a worker message and print the reply")
	fmt.Fprintln(os.Stderr, "  send-event    post a telemetry event")
	fmt.Fprintln(os.Stderr, "  session       establish a session and print the response")
	fmt.Fprintln(os.Stderr, "")
	fs.PrintDefaults()
}

// newSDK builds an SDK instance from the harness configuration and runs
// Init against the configured backend.
func newSDK(ctx context.Context, cfg *config.Config) (*gui.SDK, func(), error) {
	cleanup := func() {}

	var logger *logging.Logger
	if cfg.LogFile != "" {
		var err error
		logger, err = logging.NewLogger(cfg.LogFile)
		if err != nil {
			return nil, cleanup, err
		}
		logger.SetMinLevel(logging.ParseLevel(cfg.LogLevel))
	}

	if cfg.Trace {
		tp, err := telemetry.NewTracerProvider("greentic-gui", version)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tp.Shutdown(shutdownCtx)
			logger.Close()
		}
	} else {
		cleanup = func() { logger.Close() }
	}

	sdk, err := gui.New(gui.SDKOptions{
		Logger:         logger,
		NetworkLogPath: cfg.NetworkLog,
	})
	if err != nil {
		return nil, cleanup, err
	}

	sdk.Init(ctx, gui.Options{
		Origin:           cfg.Origin,
		TenantDomain:     cfg.TenantDomain,
		DocumentPath:     cfg.DocumentPath,
		ConfigURL:        cfg.Endpoints.Config,
		EventsURL:        cfg.Endpoints.Events,
		WorkerMessageURL: cfg.Endpoints.WorkerMessage,
		SessionURL:       cfg.Endpoints.Session,
	})
	return sdk, cleanup, nil
}

func cmdServe(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bind := fs.String("bind", cfg.Serve.Bind, "listen address")
	tenant := fs.String("tenant", cfg.Serve.TenantDomain, "tenant domain served by the config endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var logger *logging.Logger
	if cfg.LogFile != "" {
		var err error
		logger, err = logging.NewLogger(cfg.LogFile)
		if err != nil {
			return err
		}
		defer logger.Close()
	} else {
		logger = logging.NewWriterLogger(os.Stderr)
	}
	logger.SetMinLevel(logging.ParseLevel(cfg.LogLevel))

	srv, err := guiserver.New(guiserver.Config{
		TenantDomain:  *tenant,
		SessionSecret: []byte(cfg.Serve.SessionSecret),
		EventInterval: cfg.Serve.EventInterval,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              *bind,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(logging.CategoryServer, "server.listening", "stub backend listening", map[string]any{
			"bind": *bind,
		})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func cmdAttach(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("attach", flag.ContinueOnError)
	htmlPath := fs.String("html", "", "HTML document to annotate")
	selector := fs.String("selector", "", "CSS selector of the worker's element")
	workerID := fs.String("worker", "", "worker id to bind")
	routes := fs.String("routes", "", "comma-separated route list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *htmlPath == "" {
		return errors.New("-html is required")
	}

	f, err := os.Open(*htmlPath)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", *htmlPath, err)
	}

	ctx := context.Background()
	sdk, cleanup, err := newSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer sdk.Close()

	if _, err := sdk.AttachWorker(doc, binding.Attachment{
		WorkerID: *workerID,
		Selector: *selector,
		Routes:   parseRoutes(*routes),
	}); err != nil {
		return err
	}

	html, err := doc.Html()
	if err != nil {
		return err
	}
	fmt.Println(html)
	return nil
}

func cmdSendMessage(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("send-message", flag.ContinueOnError)
	workerID := fs.String("worker", "", "worker id to address")
	payload := fs.String("payload", "", "JSON payload to deliver")
	if err := fs.Parse(args); err != nil {
		return err
	}

	decoded, err := parseJSONFlag("payload", *payload)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sdk, cleanup, err := newSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer sdk.Close()

	reply, err := sdk.SendWorkerMessage(ctx, gui.MessageOptions{
		WorkerID: *workerID,
		Payload:  decoded,
	})
	if err != nil {
		return err
	}
	return printJSON(reply)
}

func cmdSendEvent(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("send-event", flag.ContinueOnError)
	eventType := fs.String("type", "", "event type to report")
	metadata := fs.String("metadata", "", "JSON metadata object")
	if err := fs.Parse(args); err != nil {
		return err
	}

	decoded, err := parseJSONFlag("metadata", *metadata)
	if err != nil {
		return err
	}
	meta, ok := decoded.(map[string]any)
	if decoded != nil && !ok {
		return errors.New("-metadata must be a JSON object")
	}

	ctx := context.Background()
	sdk, cleanup, err := newSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer sdk.Close()

	if err := sdk.SendEvent(ctx, gui.EventOptions{EventType: *eventType, Metadata: meta}); err != nil {
		return err
	}
	fmt.Println("event sent")
	return nil
}

func cmdSession(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to establish the session for")
	team := fs.String("team", "", "optional team name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	sdk, cleanup, err := newSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer sdk.Close()

	resp, err := sdk.StartSession(ctx, gui.SessionOptions{UserID: *userID, Team: *team})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// parseRoutes splits a comma-separated route flag, dropping empty parts.
func parseRoutes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	routes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			routes = append(routes, trimmed)
		}
	}
	return routes
}

func parseJSONFlag(name, value string) (any, error) {
	if value == "" {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return nil, fmt.Errorf("-%s is not valid JSON: %w", name, err)
	}
	return decoded, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
