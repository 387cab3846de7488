// Botronka is a small companion robot runtime: an event bus ties the
// microphone pipeline, the language agent, the motion engine, and the
// hardware workers together around one shared arbitration store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/app"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/config.yaml", "path to the config file")
	noAudio := pflag.Bool("no-audio", false, "disable the microphone pipeline")
	noLLM := pflag.Bool("no-llm", false, "disable the language model collaborator")
	envFile := pflag.String("env-file", ".env", "optional .env file with secrets")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	// Secrets (LLM API key and friends) come from the environment; the
	// .env file is a convenience for development and may be absent.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", *envFile, err)
	}

	log.Init(*logLevel)

	a, err := app.New(app.Options{
		ConfigPath: *configPath,
		NoAudio:    *noAudio,
		NoLLM:      *noLLM,
	})
	if err != nil {
		log.Error("configuration error", "err", err)
		os.Exit(1)
	}

	if err := a.Init(); err != nil {
		log.Error("initialization failed", "err", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "err", err)
		os.Exit(1)
	}
}
