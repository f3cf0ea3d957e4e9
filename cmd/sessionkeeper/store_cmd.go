package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/sessionkeeper/sessionkeeper/internal/session"
)

// handleDump prints the stored session map as JSON. Pretty-printed on a
// terminal, verbatim when piped or with --raw so scripts can parse it.
func handleDump(profile string, args []string) {
	rawOut := false
	for _, arg := range args {
		if arg == "--raw" {
			rawOut = true
		}
	}

	db := openSettingsDB(profile)
	if db == nil {
		fmt.Fprintln(os.Stderr, "Error: settings database unavailable")
		os.Exit(1)
	}
	defer db.Close()

	store := session.NewSessionStore(db)
	raw, err := store.Raw()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if raw == "" {
		fmt.Println("no saved sessions")
		return
	}

	if !rawOut && term.IsTerminal(int(os.Stdout.Fd())) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(raw), "", "  "); err == nil {
			fmt.Println(pretty.String())
			return
		}
	}
	fmt.Println(raw)
}

// handleDelete forgets a single window record by ID.
func handleDelete(profile string, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sessionkeeper delete <window-id>")
		os.Exit(1)
	}
	id := session.WindowID(args[0])

	db := openSettingsDB(profile)
	if db == nil {
		fmt.Fprintln(os.Stderr, "Error: settings database unavailable")
		os.Exit(1)
	}
	defer db.Close()

	store := session.NewSessionStore(db)
	if _, ok := store.Load()[id]; !ok {
		fmt.Fprintf(os.Stderr, "Error: no saved window %q\n", args[0])
		os.Exit(1)
	}

	store.DeleteWindow(id)
	fmt.Printf("Forgot window %s\n", args[0])
}

// handleClear wipes all saved window records after confirmation.
func handleClear(profile string, args []string) {
	force := false
	for _, arg := range args {
		if arg == "-f" || arg == "--force" {
			force = true
		}
	}

	db := openSettingsDB(profile)
	if db == nil {
		fmt.Fprintln(os.Stderr, "Error: settings database unavailable")
		os.Exit(1)
	}
	defer db.Close()

	store := session.NewSessionStore(db)
	n := len(store.Load())
	if n == 0 {
		fmt.Println("no saved sessions")
		return
	}

	if !force {
		fmt.Printf("Clear %d saved window record(s)? [y/N] ", n)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Cancelled")
			return
		}
	}

	store.Clear()
	fmt.Printf("Cleared %d window record(s)\n", n)
}
