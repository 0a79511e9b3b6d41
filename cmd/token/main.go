package main

import (
	"chat-relay/auth"
	"chat-relay/internal"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// token signs a JWT with the relay's secret, e.g. for a moderator:
//
//	token -username alice -roles moderator
func main() {
	username := flag.String("username", "", "Name shown as sender of the messages")
	roles := flag.String("roles", auth.ModeratorRole, "Comma separated roles")
	userID := flag.String("user-id", "", "User id, random when empty")
	flag.Parse()

	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *username == "" {
		log.Fatal("-username is required")
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	tokens := auth.NewTokenService(config.JWTSecret, config.JWTIssuer, config.AuthTokenDuration)
	token, err := tokens.GenerateToken(*userID, *username, lo.Compact(strings.Split(*roles, ",")))
	if err != nil {
		log.Fatalf("Token generation failed: %v", err)
	}
	fmt.Println(token)
}
