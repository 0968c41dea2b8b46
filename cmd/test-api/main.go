// Package main is a post-deployment smoke test. It calls the unauthenticated
// system endpoints and the supplier session probe on a running server and exits
// non-zero if any of them returns an unexpected status.
//
// Usage: test-api [base-url]   (default http://localhost:8080)
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type probe struct {
	path string
	want int
}

var probes = []probe{
	{"/health", http.StatusOK},
	{"/ready", http.StatusOK},
	{"/version", http.StatusOK},
	{"/api/v1/supplier/session", http.StatusOK},
	{"/api/v1/supplier/progress", http.StatusUnauthorized},
}

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = strings.TrimRight(os.Args[1], "/")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := 0
	for _, p := range probes {
		resp, err := client.Get(base + p.path)
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", p.path, err)
			failed++
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		status := "ok  "
		if resp.StatusCode != p.want {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%s %s -> %d (want %d) %s\n", status, p.path, resp.StatusCode, p.want, strings.TrimSpace(string(body)))
	}

	if failed > 0 {
		os.Exit(1)
	}
}
