package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/bot"
	"github.com/tazhate/orgassist/internal/logging"
	"github.com/tazhate/orgassist/internal/plugins/caldav"
	"github.com/tazhate/orgassist/internal/plugins/core"
	"github.com/tazhate/orgassist/internal/plugins/ics"
	"github.com/tazhate/orgassist/internal/plugins/tasks"
	"github.com/tazhate/orgassist/internal/scheduler"
)

var RunCmd = cli.Command{
	Name:  "run",
	Usage: "Start the assistant and its Telegram bot",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "test",
			Usage: "Initialize, but don't start the bot",
		},
	},
	Action: run,
}

var AgendaCmd = cli.Command{
	Name:   "agenda",
	Usage:  "Read every source once and print the agenda",
	Action: printAgenda,
}

var PluginsCmd = cli.Command{
	Name:  "plugins",
	Usage: "List the available plugins",
	Action: func(c *cli.Context) error {
		fmt.Println(strings.Join(registry().List(), "\n"))
		return nil
	},
}

func registry() *assistant.Registry {
	reg := assistant.NewRegistry()
	for name, f := range map[string]assistant.Factory{
		core.Name:   core.New,
		caldav.Name: caldav.New,
		ics.Name:    ics.New,
		tasks.Name:  tasks.New,
	} {
		if err := reg.Register(name, f); err != nil {
			panic(err)
		}
	}
	return reg
}

// setup loads the configuration and builds an assistant with its plugins
// registered but not yet initialized.
func setup(c *cli.Context) (*config.Config, *assistant.Assistant, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, config.Errorf("log.level", "%v", err)
	}
	if c.GlobalBool("debug") {
		level = logging.LevelDebug
	}
	logging.SetLevel(level)

	sched := scheduler.New(cfg.Timezone)
	a := assistant.New(cfg.Name, cfg.Timezone, sched)
	if err := a.Setup(registry(), cfg.Plugins); err != nil {
		return nil, nil, err
	}
	logging.Info("main", "%s is serving %s with plugins: %s",
		cfg.Name, cfg.Boss.Name, strings.Join(a.Plugins(), ", "))
	return cfg, a, nil
}

func run(c *cli.Context) error {
	cfg, a, err := setup(c)
	if err != nil {
		return explain(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testOnly := c.Bool("test") || c.GlobalBool("test")
	var tgBot *bot.Bot
	if !testOnly {
		if tgBot, err = bot.New(cfg, a); err != nil {
			return explain(err)
		}
	}

	if err := a.Initialize(ctx); err != nil {
		return explain(err)
	}
	if testOnly {
		log.Println("Configuration OK")
		return nil
	}

	sched := a.Scheduler()
	sched.Start()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Printf("Bot error: %v", err)
			cancel()
		}
	}()

	log.Printf("%s started", cfg.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping bot: %v", err)
	}

	log.Printf("%s stopped", cfg.Name)
	return nil
}

func printAgenda(c *cli.Context) error {
	_, a, err := setup(c)
	if err != nil {
		return explain(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.Initialize(ctx); err != nil {
		return explain(err)
	}
	return a.Dispatch(assistant.NewMessage("agenda", "cli", func(text string) error {
		_, err := fmt.Fprintln(c.App.Writer, text)
		return err
	}))
}

// explain prefixes configuration problems so they read as such.
func explain(err error) error {
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return fmt.Errorf("while parsing your configuration file: %w", err)
	}
	return err
}
