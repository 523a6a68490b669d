// Command token issues a bearer token for a principal, signed with the
// server's AH_AUTH_SECRET.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"auctionhouse.ai/internal/auth"
	"auctionhouse.ai/internal/chain"
)

type tokenEnv struct {
	Secret string `env:"AH_AUTH_SECRET,required"`
	Issuer string `env:"AH_AUTH_ISSUER" envDefault:"auctionhouse"`
}

func main() {
	var (
		principal = flag.String("principal", "", "address the token authenticates")
		ttl       = flag.Duration("ttl", 24*time.Hour, "token lifetime")
		envFile   = flag.String("env_file", ".env", "optional dotenv file")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load env file:", err)
		os.Exit(1)
	}
	var cfg tokenEnv
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "parse env:", err)
		os.Exit(2)
	}
	if _, err := chain.ValidateAddress(*principal); err != nil {
		fmt.Fprintln(os.Stderr, "principal:", err)
		os.Exit(2)
	}

	a, err := auth.New(auth.Config{Issuer: cfg.Issuer, Secret: []byte(cfg.Secret)})
	if err != nil {
		fmt.Fprintln(os.Stderr, "auth:", err)
		os.Exit(1)
	}
	tok, err := a.Issue(*principal, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
