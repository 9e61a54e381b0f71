package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/zsabin/PersistentB-Tree/server"
)

func main() {
	configPath := flag.String("config", "", "path to an INI config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	config := server.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = server.LoadConfig(*configPath); err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
	}

	service := server.NewService(config, log)
	if err := service.ListenAndServe(); err != nil {
		log.WithError(err).Error("service stopped")
		os.Exit(1)
	}
}
