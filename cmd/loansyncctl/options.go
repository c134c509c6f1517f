package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/loansync/loansync/metastore"
	"github.com/loansync/loansync/warehouse"
)

type postgresOptions struct {
	Host     string `long:"host" env:"HOST" default:"localhost" description:"Postgres host"`
	Port     int    `long:"port" env:"PORT" default:"5432" description:"Postgres port"`
	User     string `long:"user" env:"USER" default:"postgres" description:"Postgres user"`
	Password string `long:"password" env:"PASSWORD" default:"" description:"Postgres password"`
	Database string `long:"database" env:"DATABASE" default:"findata" description:"Postgres database holding tenant metadata"`
}

func (o postgresOptions) config() metastore.Config {
	return metastore.Config{
		Host:     o.Host,
		Port:     o.Port,
		User:     o.User,
		Password: o.Password,
		Database: o.Database,
	}
}

type clickhouseOptions struct {
	Host     string `long:"host" env:"HOST" default:"localhost" description:"ClickHouse host"`
	Port     int    `long:"port" env:"PORT" default:"9000" description:"ClickHouse native protocol port"`
	User     string `long:"user" env:"USER" default:"default" description:"ClickHouse user"`
	Password string `long:"password" env:"PASSWORD" default:"" description:"ClickHouse password"`
}

func (o clickhouseOptions) config() warehouse.Config {
	return warehouse.Config{
		Host:     o.Host,
		Port:     o.Port,
		User:     o.User,
		Password: o.Password,
	}
}

type redisOptions struct {
	Host     string `long:"host" env:"HOST" default:"localhost" description:"Redis host"`
	Port     int    `long:"port" env:"PORT" default:"6379" description:"Redis port"`
	Password string `long:"password" env:"PASSWORD" default:"" description:"Redis password"`
	DB       int    `long:"db" env:"DB" default:"0" description:"Redis database number"`
}

func (o redisOptions) client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", o.Host, o.Port),
		Password: o.Password,
		DB:       o.DB,
	})
}

type logOptions struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"text" choice:"json" description:"Logging output format"`
}

func (o logOptions) init() {
	if lvl, err := log.ParseLevel(o.Level); err == nil {
		log.SetLevel(lvl)
	}
	if o.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
}
