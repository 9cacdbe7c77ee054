package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// doAdminRequest hits one /admin/v1 endpoint, prints the response body and
// exits nonzero on transport errors or non-2xx statuses.
func doAdminRequest(method, baseURL, endpoint, farmID, body string) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + endpoint
	if farmID != "" {
		u += "?farm=" + url.QueryEscape(farmID)
	}

	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, u, rdr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if body != "" {
		req.Header.Set("content-type", "application/json")
	}

	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func adminFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	farmID := fs.String("farm", "", "farm id (default: server's default farm)")
	return fs, baseURL, farmID
}

func stateCmd(args []string) {
	fs, baseURL, farmID := adminFlags("state")
	_ = fs.Parse(args)
	doAdminRequest(http.MethodGet, *baseURL, "/admin/v1/state", *farmID, "")
}

func snapshotCmd(args []string) {
	fs, baseURL, farmID := adminFlags("snapshot")
	_ = fs.Parse(args)
	doAdminRequest(http.MethodPost, *baseURL, "/admin/v1/snapshot", *farmID, "")
}

func weatherCmd(args []string) {
	fs, baseURL, farmID := adminFlags("weather")
	kind := fs.String("kind", "", "weather kind: STORM|FROST|FROST_END|DISEASE")
	_ = fs.Parse(args)

	if strings.TrimSpace(*kind) == "" {
		fmt.Fprintln(os.Stderr, "missing -kind")
		os.Exit(2)
	}
	body := fmt.Sprintf(`{"kind":%q}`, strings.ToUpper(strings.TrimSpace(*kind)))
	doAdminRequest(http.MethodPost, *baseURL, "/admin/v1/weather", *farmID, body)
}
