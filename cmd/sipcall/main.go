package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/code-100-precent/sipcall/internal/api"
	"github.com/code-100-precent/sipcall/internal/call"
	"github.com/code-100-precent/sipcall/internal/models"
	"github.com/code-100-precent/sipcall/pkg/cache"
	"github.com/code-100-precent/sipcall/pkg/config"
	"github.com/code-100-precent/sipcall/pkg/logger"
)

func main() {
	// 1. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig

	// 2. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 3. Open Local Database
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: glog.Default.LogMode(glog.Silent),
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}
	if err := models.Migrate(db); err != nil {
		logger.Error("database migration failed", zap.Error(err))
		return
	}

	// 4. Wire Client and Orchestrator
	localCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Error("cache setup failed", zap.Error(err))
		return
	}
	client := api.NewClient(api.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		Store:   models.NewCredentialStore(db),
		Cache:   localCache,
	})
	journal := models.NewCallJournal(db)
	orch := call.New(client, journal, call.Options{
		PollInterval:    cfg.PollInterval,
		DurationTick:    cfg.DurationTick,
		ResetDelay:      cfg.ResetDelay,
		ErrorClearDelay: cfg.ErrorClearDelay,
		HistoryLimit:    cfg.HistoryLimit,
	})
	defer orch.Close()

	logger.Info("sipcall client ready", zap.String("api", cfg.APIBaseURL))
	runShell(client, orch, journal)
}

// runShell is the thin presentation layer: it renders orchestrator snapshots
// and forwards commands. All call logic lives in internal/call.
func runShell(client *api.Client, orch *call.Orchestrator, journal *models.CallJournal) {
	ctx := context.Background()
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		switch fields[0] {
		case "login":
			if len(fields) < 3 {
				fmt.Println("usage: login <code> <redirect_uri>")
				break
			}
			if _, err := client.Authenticate(ctx, fields[1], fields[2]); err != nil {
				fmt.Println("login failed:", err)
				break
			}
			fmt.Println("logged in")
		case "logout":
			client.ClearCredential()
			fmt.Println("logged out")
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <number> [private]")
				break
			}
			privacy := len(fields) > 2 && fields[2] == "private"
			if err := orch.StartCall(ctx, fields[1], privacy); err != nil {
				fmt.Println("error:", err)
			}
		case "end":
			if err := orch.EndCall(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "mute":
			if err := orch.ToggleMute(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "hold":
			if err := orch.ToggleHold(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "status":
			printSnapshot(orch.Snapshot())
		case "history":
			page, err := orch.LoadHistory(ctx, 0)
			if err != nil {
				fmt.Println("error:", err)
				break
			}
			printHistory(page)
		case "recent":
			entries, err := journal.Recent(10)
			if err != nil {
				fmt.Println("error:", err)
				break
			}
			for _, e := range entries {
				fmt.Printf("%-20s %-12s %4ds\n", e.DestinationNumber, e.Status, e.DurationSec)
			}
		case "profile":
			profile, err := orch.Profile(ctx)
			if err != nil {
				fmt.Println("error:", err)
				break
			}
			fmt.Printf("%s <%s>\n", profile.DisplayName, profile.Email)
		case "help":
			printHelp()
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
		fmt.Print("> ")
	}
}

func printSnapshot(snap call.Snapshot) {
	fmt.Printf("status: %s", snap.Status.Display())
	if snap.Session != nil {
		fmt.Printf("  [%s -> %s]", snap.Session.CallID, snap.Session.DestinationNumber)
	}
	if snap.Status == call.StatusAnswered || snap.Status == call.StatusOnHold {
		fmt.Printf("  %d:%02d", snap.Duration/60, snap.Duration%60)
	}
	if snap.Muted {
		fmt.Print("  (muted)")
	}
	if snap.OnHold {
		fmt.Print("  (on hold)")
	}
	fmt.Println()
	if snap.Error != "" {
		fmt.Println("error:", snap.Error)
	}
}

func printHistory(page *api.CallHistoryPage) {
	if len(page.Calls) == 0 {
		fmt.Println("no call history available")
		return
	}
	for _, c := range page.Calls {
		dur := 0
		if c.DurationSeconds != nil {
			dur = *c.DurationSeconds
		}
		fmt.Printf("%-25s %-20s %-12s %4ds\n",
			c.InitiatedAt.Local().Format("2006-01-02 15:04:05"),
			c.DestinationNumber, c.Status, dur)
	}
	fmt.Printf("%d of %d", len(page.Calls), page.TotalCount)
	if page.HasMore {
		fmt.Print(" (more available)")
	}
	fmt.Println()
}

func printHelp() {
	fmt.Println(`commands:
  login <code> <redirect_uri>   exchange an OAuth2 code for tokens
  call <number> [private]       place a call
  end | mute | hold             control the current call
  status                        show call state
  history                       fetch call history from the backend
  recent                        show locally journaled calls
  profile                       show the signed-in user
  logout | quit`)
}
