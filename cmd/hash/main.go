// Package main generates a new administrative API key. The service stores only
// the bcrypt hash (admin.api_key_hash / IAOS_ADMIN_API_KEY_HASH); the key itself
// is printed once and must be kept by the operator.
//
// Pass an existing key as the first argument to hash it instead.
package main

import (
	"fmt"
	"os"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) > 1 {
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), auth.BcryptCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
		return
	}

	key, hash, err := auth.GenerateAPIKey(auth.AdminKeyPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("key:  %s\nhash: %s\n", key, hash)
}
