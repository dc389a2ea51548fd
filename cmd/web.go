package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"zagent/pkg/engine/session"
	"zagent/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	webHostFlag string
	webPortFlag int
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the WebSocket server backing the web UI",
	Run:   runWeb,
}

func init() {
	webCmd.Flags().StringVar(&webHostFlag, "host", "127.0.0.1", "Host to bind the WebSocket server to")
	webCmd.Flags().IntVar(&webPortFlag, "port", 28713, "Port to bind the WebSocket server to")
	rootCmd.AddCommand(webCmd)
}

func runWeb(cmd *cobra.Command, args []string) {
	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	deps, err := newWebServerDeps(workspaceRoot)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		os.Exit(1)
	}

	manager := session.NewManager(deps.Engine, deps.SessionStore, deps.ContextStore, deps.Registry, deps.ActiveModel)

	mux := http.NewServeMux()
	mux.Handle("/ws", manager)

	addr := fmt.Sprintf("%s:%d", webHostFlag, webPortFlag)
	srv := &http.Server{Addr: addr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Web", "shutdown signal received", map[string]interface{}{})
		os.Exit(130)
	}()

	logger.Info("Web", "websocket server listening", map[string]interface{}{"addr": addr})
	fmt.Printf("WebSocket server listening on ws://%s/ws\n", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
