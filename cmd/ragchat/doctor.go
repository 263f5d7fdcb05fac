package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ragchat/internal/credstore"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your ragchat setup",
		Long: `Verifies that ragchat's configuration, credential database and chat
server are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("ragchat doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0

			// 1. Config file
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (using defaults)", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := readConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("config is invalid")
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// 3. Credential database
			dbPath := cfg.CredentialsPath()
			store, err := credstore.Open(ctx, dbPath, logger)
			if err != nil {
				printFail("Credential DB", err.Error())
				failed++
			} else {
				defer store.Close()
				if v, err := store.SchemaVersion(ctx); err != nil {
					printFail("Credential DB", err.Error())
					failed++
				} else {
					printPass("Credential DB", fmt.Sprintf("%s (schema v%d)", dbPath, v))
					passed++
				}

				// 4. Stored login
				cred, err := store.Load(ctx, cfg.Server.BaseURL)
				switch {
				case cfg.Server.Token != "":
					printPass("Login", "token from config")
					passed++
				case err != nil:
					printFail("Login", err.Error())
					failed++
				case cred == nil:
					printWarn("Login", "not logged in (run 'ragchat login')")
					warned++
				default:
					detail := "as " + cred.Username
					if !cred.LastUsedAt.IsZero() {
						detail += ", last used " + humanize.Time(cred.LastUsedAt)
					}
					printPass("Login", detail)
					passed++
				}
			}

			// 5. Server reachable
			if err := checkServer(ctx, cfg.Server.BaseURL); err != nil {
				printFail("Server", err.Error())
				failed++
			} else {
				printPass("Server", cfg.Server.BaseURL)
				passed++
			}

			// 6. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o700); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running ragchat.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nragchat should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! ragchat is ready to run.\n")
			}
			return nil
		},
	}
}

// checkServer reports whether anything answers HTTP at baseURL. Any status
// code counts as reachable.
func checkServer(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("bad base URL: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
