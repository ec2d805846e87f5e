// Package main provides the entry point for the OAuth callback server.
// The server hosts a small setup page, captures the provider redirect carrying the
// authorization code, exchanges it for tokens and stores the resulting account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/oauth-callback/internal/auth/antigravity"
	"github.com/router-for-me/oauth-callback/internal/browser"
	"github.com/router-for-me/oauth-callback/internal/buildinfo"
	"github.com/router-for-me/oauth-callback/internal/callback"
	"github.com/router-for-me/oauth-callback/internal/config"
	"github.com/router-for-me/oauth-callback/internal/logging"
	"github.com/router-for-me/oauth-callback/internal/util"
	"github.com/router-for-me/oauth-callback/internal/watcher"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	fmt.Printf("oauth-callback Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var configPath string
	var openBrowser bool
	var copyAuthURL bool
	var sshHint bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&openBrowser, "open-browser", false, "Open the setup page in the local browser")
	flag.BoolVar(&copyAuthURL, "copy-auth-url", false, "Copy the authorization URL to the clipboard")
	flag.BoolVar(&sshHint, "ssh-hint", false, "Print SSH tunnel instructions for remote hosts")

	flag.CommandLine.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage of %s\n", os.Args[0])
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			s := fmt.Sprintf("  -%s", f.Name)
			name, unquoteUsage := flag.UnquoteUsage(f)
			if name != "" {
				s += " " + name
			}
			s += "\n    " + unquoteUsage
			if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
				s += fmt.Sprintf(" (default %s)", f.DefValue)
			}
			_, _ = fmt.Fprint(out, s+"\n")
		})
	}

	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}
	lookupEnv := newEnvLookup(os.LookupEnv)

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	if errEnv := cfg.ApplyEnv(os.LookupEnv); errEnv != nil {
		log.Warnf("ignoring invalid environment overrides: %v", errEnv)
	}

	if errLog := logging.ConfigureLogOutput(cfg); errLog != nil {
		log.Errorf("failed to configure log output: %v", errLog)
		return
	}
	util.SetLogLevel(cfg)

	resolvedAuthDir, err := util.ResolveAuthDir(cfg.AuthDir)
	if err != nil {
		log.Errorf("failed to resolve auth directory: %v", err)
		return
	}
	cfg.AuthDir = resolvedAuthDir

	if strings.TrimSpace(cfg.ClientSecret) == "" {
		log.Warn("OAUTH_CLIENT_SECRET is not set; the token exchange will be rejected by the provider")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = antigravity.ClientID
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := util.WritablePath()
	if baseDir == "" {
		baseDir = wd
	}
	selection, err := selectStore(ctx, lookupEnv, cfg.AuthDir, baseDir)
	if err != nil {
		log.Errorf("failed to configure credential store: %v", err)
		return
	}
	defer selection.Close()
	if errInit := selection.store.Initialize(ctx); errInit != nil {
		log.Errorf("failed to initialize %s credential store: %v", selection.kind, errInit)
		return
	}
	logAccountCount := func() {
		records, errList := selection.store.ListAccounts(ctx)
		if errList != nil {
			log.Warnf("credential store: failed to list accounts: %v", errList)
			return
		}
		log.Infof("%s credential store holds %d account(s)", selection.kind, len(records))
	}
	logAccountCount()

	builder := antigravity.NewAuthURLBuilder(clientID, cfg.Host, cfg.Port)
	client := antigravity.NewClient(antigravity.ClientOptions{
		ClientID:     clientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  builder.RedirectURI(),
		HTTPClient:   util.SetProxy(cfg.ProxyURL, &http.Client{}),
		Timeout:      cfg.ExchangeTimeout(),
	})
	server := callback.New(callback.Options{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Builder:   builder,
		Exchanger: client,
		Store:     selection.store,
	})
	if errStart := server.Start(); errStart != nil {
		log.Warn("callback listener is not running; waiting for shutdown signal")
	}

	if openBrowser {
		if errOpen := browser.OpenURL(server.SetupURL()); errOpen != nil {
			log.Warnf("failed to open browser: %v", errOpen)
		}
	}
	if copyAuthURL {
		if errCopy := browser.CopyToClipboard(builder.URL()); errCopy != nil {
			log.Warnf("failed to copy authorization URL: %v", errCopy)
		} else {
			log.Info("authorization URL copied to clipboard")
		}
	}
	if sshHint {
		util.PrintSSHTunnelInstructions(os.Stdout, cfg.Port, util.GetIPAddress())
	}

	fileWatcher, err := watcher.NewWatcher(configPath, selection.watchDir, func(newCfg *config.Config) {
		log.Debugf("config reloaded, debug=%t", newCfg.Debug)
	}, logAccountCount)
	if err != nil {
		log.Warnf("failed to create config watcher: %v", err)
	} else {
		fileWatcher.SetConfig(cfg)
		if errWatch := fileWatcher.Start(ctx); errWatch != nil {
			log.Warnf("failed to start config watcher: %v", errWatch)
		}
		defer func() {
			if errStop := fileWatcher.Stop(); errStop != nil {
				log.Warnf("failed to stop config watcher: %v", errStop)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("received %s, shutting down", sig)

	if errStop := server.Stop(); errStop != nil {
		log.Warnf("failed to stop callback listener: %v", errStop)
	}
}
