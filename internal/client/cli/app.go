package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quillnotes/quill/internal/client/client"
	"github.com/quillnotes/quill/internal/client/config"
	"github.com/quillnotes/quill/internal/client/services"
	"github.com/quillnotes/quill/internal/client/store"
	"github.com/quillnotes/quill/internal/logging"

	_ "modernc.org/sqlite"
)

// Mode reflects connectivity as observed by the background watcher.
type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// App holds everything the interactive client needs: the local store,
// the API client, and the services layered on top.
type App struct {
	config *config.Config
	store  *store.Store
	auth   services.AuthService
	items  *services.ItemService
	export *services.ExportService
	engine *services.SyncEngine
	log    logging.Logger
	reader *bufio.Reader
	Mode   Mode
}

// NewApp opens the local database, recovers any interrupted upload
// queue, and wires the service layer.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	st, err := store.Open(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// a crash may have left dirty items outside the queue
	if err := st.RecoverPending(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("recover pending saves: %w", err)
	}

	api := client.NewHTTPClient(c.Endpoint, c.RequestTimeout)

	auth := services.NewAuthService(api, st.Metadata(), log)
	app := &App{
		config: c,
		store:  st,
		auth:   auth,
		items:  services.NewItemService(st, auth, log),
		export: services.NewExportService(st),
		engine: services.NewSyncEngine(st, api, auth, log),
		log:    log,
		reader: bufio.NewReader(os.Stdin),
	}
	return app, nil
}

// Run starts the REPL and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close(ctx)

	fmt.Println("Quill CLI (type 'help' for commands)")

	_ = a.Login(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.config.SyncInterval)
	go a.engine.Run(ctx, a.config.SyncInterval)

	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))
}

func (a *App) close(ctx context.Context) {
	if err := a.auth.Close(ctx); err != nil {
		a.log.Warn(ctx, "closing auth service", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn(ctx, "closing store", "error", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.auth.IsLoggedIn()
}

func (a *App) status() string {
	if a.Mode == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", a.Mode)
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		fmt.Printf("Switched to %s mode\n", mode)
	}
}

// StartOnlineStatusWatcher probes server reachability every interval and
// flips the connectivity Mode accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := a.auth.Ping(pingCtx)
			cancel()

			if err != nil {
				if a.Mode == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else {
				if a.Mode != ModeOnline {
					a.setMode(ModeOnline)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
