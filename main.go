package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ombekk/dugong/db"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/federation"
	"github.com/ombekk/dugong/queue"
	"github.com/ombekk/dugong/util"
	"github.com/ombekk/dugong/web"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          util.Name,
	})

	conf, err := util.ReadConf()
	if err != nil {
		logger.Fatal("Failed to read configuration", "err", err)
	}
	logger.Info("Starting", "version", util.GetVersion(), "domain", conf.Conf.SslDomain)

	database, err := db.Open(conf.Conf.DbPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", "err", err)
	}
	defer database.Close()

	if err := bootstrapUsers(database, conf, logger); err != nil {
		logger.Fatal("Failed to bootstrap local users", "err", err)
	}

	engine := federation.NewEngine(database, conf, logger)
	dispatcher := queue.NewDispatcher(database, engine, conf.Conf.Workers, logger)
	engine.Bind(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)

	server := web.NewServer(database, engine, dispatcher, conf, logger)
	go func() {
		if err := server.Run(); err != nil {
			logger.Fatal("HTTP server failed", "err", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("Shutting down")
	cancel()

	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(30 * time.Second):
		logger.Warn("Workers did not drain in time")
	}
}

// bootstrapUsers makes sure every configured local user exists with a
// keypair. Existing actors are left untouched.
func bootstrapUsers(database *db.DB, conf *util.AppConfig, logger *log.Logger) error {
	for _, username := range conf.Conf.Users {
		existing, err := database.LocalActorByUsername(username)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		logger.Info("Creating local actor", "username", username)
		keys := util.GeneratePemKeypair()
		actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, username)

		err = database.CreateActor(&domain.Actor{
			Id:             uuid.New(),
			URI:            actorURI,
			Username:       username,
			Domain:         conf.Conf.SslDomain,
			InboxURI:       actorURI + "/inbox",
			SharedInboxURI: fmt.Sprintf("https://%s/inbox", conf.Conf.SslDomain),
			OutboxURI:      actorURI + "/outbox",
			FollowersURI:   actorURI + domain.FollowersSuffix,
			PublicKeyPem:   keys.Public,
			PrivateKeyPem:  keys.Private,
			Local:          true,
			FetchedAt:      time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
