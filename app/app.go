/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/wren-im/wren/auth"
	"github.com/wren-im/wren/c2s"
	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/storage"
	"github.com/wren-im/wren/storage/repository"
	"github.com/wren-im/wren/version"
)

const defaultShutDownWaitTime = time.Duration(5) * time.Second

var logoStr = []string{
	`   __  _  _______   ____   ____  `,
	`   \ \/ \/ /\_  __\_/ __ \ /    \ `,
	`    \     /  |  |  \  ___/|   |  \`,
	`     \/\_/   |__|   \___  >___|  /`,
	`                        \/     \/ `,
}

const usageStr = `
Usage: wren [options]

Server Options:
    -c, --config <file>    Configuration file path
Common Options:
    -h, --help             Show this message
    -v, --version          Show version
`

// Application encapsulates a wren server application.
type Application struct {
	output           io.Writer
	args             []string
	repContainer     repository.Container
	c2sSrv           *c2s.C2S
	waitStopCh       chan os.Signal
	shutDownWaitSecs time.Duration
}

// New returns a runnable application given an output and a command line arguments array.
func New(output io.Writer, args []string) *Application {
	return &Application{
		output:           output,
		args:             args,
		waitStopCh:       make(chan os.Signal, 1),
		shutDownWaitSecs: defaultShutDownWaitTime,
	}
}

// Run runs the wren application until either a stop signal is received
// or an error occurs.
func (a *Application) Run() error {
	if len(a.args) == 0 {
		return errors.New("empty command-line arguments")
	}
	var configFile string
	var showVersion, showUsage bool

	fs := flag.NewFlagSet("wren", flag.ExitOnError)
	fs.SetOutput(a.output)

	fs.BoolVar(&showUsage, "help", false, "Show this message")
	fs.BoolVar(&showUsage, "h", false, "Show this message")
	fs.BoolVar(&showVersion, "version", false, "Print version information.")
	fs.BoolVar(&showVersion, "v", false, "Print version information.")
	fs.StringVar(&configFile, "config", "/etc/wren/wren.yml", "Configuration file path.")
	fs.StringVar(&configFile, "c", "/etc/wren/wren.yml", "Configuration file path.")
	fs.Usage = func() {
		for i := range logoStr {
			_, _ = fmt.Fprintf(a.output, "%s\n", logoStr[i])
		}
		_, _ = fmt.Fprintf(a.output, "%s\n", usageStr)
	}
	_ = fs.Parse(a.args[1:])

	// print usage
	if showUsage {
		fs.Usage()
		return nil
	}
	// print version
	if showVersion {
		_, _ = fmt.Fprintf(a.output, "wren version: %v\n", version.ApplicationVersion)
		return nil
	}
	// load configuration
	var cfg Config
	if err := cfg.FromFile(configFile); err != nil {
		return err
	}
	// create PID file
	if err := a.createPIDFile(cfg.PIDFile); err != nil {
		return err
	}
	// initialize logger
	if err := log.Initialize(&cfg.Logger); err != nil {
		return err
	}

	// show wren's fancy logo
	a.printLogo()

	// initialize storage
	repContainer, err := storage.New(&cfg.Storage)
	if err != nil {
		return err
	}
	a.repContainer = repContainer

	// start serving c2s...
	a.c2sSrv = c2s.New(&cfg.C2S, &cfg.Modules, a.verifier(&cfg.Auth), nil)
	if _, err := a.c2sSrv.Start(); err != nil {
		return err
	}

	// ...wait for stop signal to shutdown
	sig := a.waitForStopSignal()
	log.Infof("received %s signal... shutting down...", sig.String())

	return a.gracefullyShutdown()
}

// verifier selects the credential validation backend. A configured
// shared secret takes precedence over the user repository.
func (a *Application) verifier(cfg *auth.Config) auth.Verifier {
	if len(cfg.Secret) > 0 {
		return auth.NewSharedSecretVerifier(cfg.Secret)
	}
	return auth.NewRepositoryVerifier(a.repContainer.User())
}

func (a *Application) createPIDFile(pidFile string) error {
	if len(pidFile) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(pidFile), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(pidFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	currentPid := os.Getpid()
	if _, err := file.WriteString(strconv.FormatInt(int64(currentPid), 10)); err != nil {
		return err
	}
	return nil
}

func (a *Application) printLogo() {
	for i := range logoStr {
		log.Infof("%s", logoStr[i])
	}
	log.Infof("")
	log.Infof("wren %v\n", version.ApplicationVersion)
}

func (a *Application) waitForStopSignal() os.Signal {
	signal.Notify(a.waitStopCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	return <-a.waitStopCh
}

func (a *Application) gracefullyShutdown() error {
	// wait until application has been shut down
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(a.shutDownWaitSecs))
	defer cancel()

	select {
	case <-a.shutdown(ctx):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Application) shutdown(ctx context.Context) <-chan bool {
	c := make(chan bool, 1)
	go func() {
		if _, err := a.c2sSrv.Stop(); err != nil {
			log.Error(err)
		}
		if err := a.repContainer.Close(ctx); err != nil {
			log.Error(err)
		}
		log.Shutdown()
		c <- true
	}()
	return c
}
