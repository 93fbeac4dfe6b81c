package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/stake-plus/fitbet/src/modules/httpapi"
)

var (
	subjectFlag = flag.String("sub", "operator", "Token subject, used as the rate limit key")
	ttlFlag     = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	token, err := httpapi.MintAdminToken([]byte(secret), *subjectFlag, *ttlFlag, time.Now())
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Println(token)
}
