package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/poolstation-bridge/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, entryID, email, password, token, poolID string
	var limit int
	flag.StringVar(&dbPath, "db", "data/poolstation.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: create-entry, show-entry, set-token, set-credentials, clear-reauth, readings")
	flag.StringVar(&entryID, "entry", "", "Config entry ID")
	flag.StringVar(&email, "email", "", "poolstation.net account email")
	flag.StringVar(&password, "password", "", "poolstation.net account password")
	flag.StringVar(&token, "token", "", "Session token")
	flag.StringVar(&poolID, "pool", "", "Pool ID for readings")
	flag.IntVar(&limit, "limit", 10, "Number of readings to show")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of poolstation-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/poolstation.db')")
		fmt.Println("  -cmd string\tCommand to run: create-entry, show-entry, set-token, set-credentials, clear-reauth, readings")
		fmt.Println("  -entry string\tConfig entry ID")
		fmt.Println("  -email string\tAccount email for create-entry and set-credentials")
		fmt.Println("  -password string\tAccount password for create-entry and set-credentials")
		fmt.Println("  -token string\tSession token for set-token")
		fmt.Println("  -pool string\tPool ID for readings")
		fmt.Println("  -limit int\tNumber of readings to show (default 10)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	needEntry := func() {
		if entryID == "" {
			fmt.Println("Error: entry ID is required")
			os.Exit(1)
		}
	}
	needCredentials := func() {
		if email == "" || password == "" {
			fmt.Println("Error: email and password are required")
			os.Exit(1)
		}
	}

	var err error
	switch command {
	case "create-entry":
		needCredentials()
		entry, cerr := db.CreateEntryCLI(dbPath, email, password)
		if cerr == nil {
			fmt.Printf("Created entry %s, set \"entry_id\" in config.json\n", entry.ID)
		}
		err = cerr
	case "show-entry":
		needEntry()
		entry, serr := db.ShowEntryCLI(dbPath, entryID)
		if serr == nil {
			printJSON(entry)
		}
		err = serr
	case "set-token":
		needEntry()
		err = db.SetTokenCLI(dbPath, entryID, token)
	case "set-credentials":
		needEntry()
		needCredentials()
		err = db.SetCredentialsCLI(dbPath, entryID, email, password)
	case "clear-reauth":
		needEntry()
		err = db.ClearReauthCLI(dbPath, entryID)
	case "readings":
		if poolID == "" {
			fmt.Println("Error: pool ID is required")
			os.Exit(1)
		}
		readings, rerr := db.RecentReadingsCLI(dbPath, poolID, limit)
		if rerr == nil {
			printJSON(readings)
		}
		err = rerr
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
