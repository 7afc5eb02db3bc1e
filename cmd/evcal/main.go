package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"evcal/internal/build"
	"evcal/internal/config"
	"evcal/internal/fetch"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath   string
	in           string
	out          string
	decode       bool
	expand       bool
	days         int
	serve        bool
	hashPassword bool
	verbose      bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	var err error
	switch {
	case flags.hashPassword:
		err = runHashPassword()
	case flags.serve:
		err = runServe(flags)
	case flags.decode:
		err = runDecode(flags)
	case flags.expand:
		err = runExpand(flags)
	default:
		err = runEncode(flags)
	}
	if err != nil {
		appLog.Error("evcal failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "evcal.yaml", "Path to serve-mode config file")
	flag.StringVar(&cfg.in, "in", "", "Input: event definition YAML, or an .ics file/URL for -decode/-expand")
	flag.StringVar(&cfg.out, "out", "", "Output path (default stdout)")
	flag.BoolVar(&cfg.decode, "decode", false, "Decode an .ics input into a definition YAML dump")
	flag.BoolVar(&cfg.expand, "expand", false, "List concrete occurrences within the coming window")
	flag.IntVar(&cfg.days, "days", 30, "Window in days for -expand")
	flag.BoolVar(&cfg.serve, "serve", false, "Publish the calendar over HTTP with scheduled refresh")
	flag.BoolVar(&cfg.hashPassword, "hash-password", false, "Generate an argon2id password hash for basic auth")
	flag.BoolVar(&cfg.verbose, "v", false, "Enable debug logging")

	flag.Parse()
	return cfg
}

// runEncode builds the definition file and writes the encoded calendar.
func runEncode(flags flagConfig) error {
	if flags.in == "" {
		return errors.New("-in <definition.yaml> is required")
	}

	doc, err := build.New().LoadFile(flags.in)
	if err != nil {
		return err
	}
	data, err := ics.Encode(doc)
	if err != nil {
		return err
	}
	appLog.Debug("encoded calendar", "events", len(doc.Events), "bytes", len(data))
	return writeOutput(flags.out, data)
}

// runDecode reads an .ics file or URL and dumps the decoded document as a
// definition YAML, so foreign calendars can be edited and re-encoded.
func runDecode(flags flagConfig) error {
	data, err := readICSInput(flags.in)
	if err != nil {
		return err
	}

	doc, err := ics.Decode(data)
	if err != nil {
		return err
	}
	if err := ics.Validate(doc); err != nil {
		// The dump is still useful for inspecting broken documents.
		appLog.Error("decoded document fails validation", err)
	}

	out, err := yaml.Marshal(build.Describe(doc))
	if err != nil {
		return err
	}
	return writeOutput(flags.out, out)
}

// runExpand lists concrete occurrences for the coming window.
func runExpand(flags flagConfig) error {
	doc, err := loadAnyInput(flags.in)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := ics.Expand(doc, ics.ExpandConfig{
		DisplayLocation: time.Local,
		RangeStart:      now.AddDate(0, 0, -1),
		RangeEnd:        now.AddDate(0, 0, flags.days),
	})
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, occ := range result.Occurrences {
		when := occ.Start.Format("2006-01-02 15:04")
		if occ.AllDay {
			when = occ.Start.Format("2006-01-02") + " (all day)"
		}
		fmt.Fprintf(&b, "%s  %s", when, occ.Summary)
		if occ.Location != "" {
			fmt.Fprintf(&b, " @ %s", occ.Location)
		}
		b.WriteByte('\n')
	}
	for _, uid := range result.TruncatedUIDs {
		appLog.Info("occurrence list truncated", "uid", uid)
	}
	return writeOutput(flags.out, []byte(b.String()))
}

// runServe publishes the calendar and rebuilds it on the configured cron
// schedule until SIGINT/SIGTERM.
func runServe(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	srv := web.NewServer(conf)
	if err := srv.Refresh(); err != nil {
		// Keep serving; the next scheduled refresh may succeed once the
		// definition file is fixed.
		appLog.Error("initial calendar load failed", err)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		if err := srv.Refresh(); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("bad refresh schedule %q: %w", conf.RefreshCron, err)
	}
	sched.Start()
	defer sched.Stop()

	httpSrv := &http.Server{
		Addr:    conf.Listen,
		Handler: srv.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("serving calendar", "listen", "http://"+conf.Listen, "definition", conf.DefinitionFile)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func runHashPassword() error {
	fmt.Fprint(os.Stderr, "Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if len(password) == 0 {
		return errors.New("password must not be empty")
	}
	if string(password) != string(confirm) {
		return errors.New("passwords do not match")
	}

	hash, err := web.HashPassword(string(password))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// readICSInput loads .ics bytes from a file path or an http(s) URL.
func readICSInput(in string) ([]byte, error) {
	if in == "" {
		return nil, errors.New("-in <file-or-url> is required")
	}
	if strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		body, fromCache, err := fetch.NewFetcher("").Fetch(ctx, in)
		if err != nil {
			return nil, err
		}
		appLog.Debug("fetched calendar", "url", fetch.Redact(in), "from_cache", fromCache)
		return body, nil
	}
	return os.ReadFile(in)
}

// loadAnyInput accepts either a definition YAML or an .ics file/URL,
// picking the decoder by suffix.
func loadAnyInput(in string) (*model.CalendarDocument, error) {
	if strings.HasSuffix(in, ".yaml") || strings.HasSuffix(in, ".yml") {
		return build.New().LoadFile(in)
	}
	data, err := readICSInput(in)
	if err != nil {
		return nil, err
	}
	return ics.Decode(data)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
