package main

import (
	"flag"
	"log"
	"os"

	pg "github.com/NordCoder/upwatch/internal/repository/postgres"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "postgres connection string")
	flag.Parse()
	if *dsn == "" {
		log.Fatal("DB_DSN is empty")
	}

	if err := pg.Migrate(*dsn); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations: up OK")
}
