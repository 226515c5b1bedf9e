// Command campkeeper-hub runs the document relay that keeps multiple devices
// on the same campaign. It also mints access tokens:
//
//	campkeeper-hub token -campaign default -scopes doc:read,doc:write
package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/campkeeper/campkeeper/internal/httpapi"
)

type config struct {
	Addr         string `env:"CAMPKEEPER_HUB_ADDR" envDefault:":8080"`
	JWTSecret    string `env:"CAMPKEEPER_HUB_JWT_SECRET"`
	DataDir      string `env:"CAMPKEEPER_HUB_DATA_DIR"`
	MaxBodyBytes int64  `env:"CAMPKEEPER_HUB_MAX_BODY_BYTES"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("skipping .env: %v", err)
	}
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}

	logger := log.New(os.Stderr, "campkeeper-hub: ", log.LstdFlags)
	hub := httpapi.NewHub(httpapi.HubConfig{
		JWTSecret:    cfg.JWTSecret,
		DataDir:      cfg.DataDir,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	})

	logger.Printf("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, hub); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func runToken(cfg config, args []string) error {
	campaignID := "default"
	scopes := []string{httpapi.ScopeDocRead, httpapi.ScopeDocWrite}
	ttl := 90 * 24 * time.Hour
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-campaign":
			i++
			if i >= len(args) {
				return errors.New("-campaign needs a value")
			}
			campaignID = args[i]
		case "-scopes":
			i++
			if i >= len(args) {
				return errors.New("-scopes needs a value")
			}
			scopes = strings.Split(args[i], ",")
		case "-ttl":
			i++
			if i >= len(args) {
				return errors.New("-ttl needs a value")
			}
			parsed, err := time.ParseDuration(args[i])
			if err != nil {
				return err
			}
			ttl = parsed
		default:
			return fmt.Errorf("unknown flag %s", args[i])
		}
	}
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "dev-secret"
	}
	token, err := httpapi.IssueToken(secret, campaignID, scopes, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
