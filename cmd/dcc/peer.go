package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/dcc/pkg/health"
	"github.com/cuemby/dcc/pkg/peer"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Peer node operations",
}

var peerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a peer and join its group",
	Long:  `Start a dcc peer: join a coordination group, compete for leadership, and serve/answer bucket work.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		uri, _ := cmd.Flags().GetString("uri")
		hostname, _ := cmd.Flags().GetString("hostname")
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		tyrant, _ := cmd.Flags().GetBool("tyrant")
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
		httpAddr, _ := cmd.Flags().GetString("http-addr")
		operatorEmail, _ := cmd.Flags().GetString("operator-email")
		guiBaseURL, _ := cmd.Flags().GetString("gui-base-url")
		smtpHost, _ := cmd.Flags().GetString("smtp-host")
		smtpPort, _ := cmd.Flags().GetInt("smtp-port")
		smtpUser, _ := cmd.Flags().GetString("smtp-user")
		smtpPass, _ := cmd.Flags().GetString("smtp-pass")
		smtpFrom, _ := cmd.Flags().GetString("smtp-from")
		chatWebhookURL, _ := cmd.Flags().GetString("chat-webhook-url")
		chatRoom, _ := cmd.Flags().GetString("chat-room")
		chatToken, _ := cmd.Flags().GetString("chat-token")

		if hostname == "" {
			h, err := os.Hostname()
			if err != nil {
				return fmt.Errorf("failed to resolve hostname: %w", err)
			}
			hostname = h
		}

		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		p, err := peer.New(peer.Config{
			Group:            group,
			SelfURI:          uri,
			Hostname:         hostname,
			DataDir:          dataDir,
			ConfigPath:       configPath,
			Tyrant:           tyrant,
			ContainerdSocket: containerdSocket,
			HTTPAddr:         httpAddr,
			OperatorEmail:    operatorEmail,
			GUIBaseURL:       guiBaseURL,
			SMTPHost:         smtpHost,
			SMTPPort:         smtpPort,
			SMTPUser:         smtpUser,
			SMTPPass:         smtpPass,
			SMTPFrom:         smtpFrom,
			ChatWebhookURL:   chatWebhookURL,
			ChatRoom:         chatRoom,
			ChatToken:        chatToken,
		})
		if err != nil {
			return fmt.Errorf("failed to build peer: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("failed to start peer: %w", err)
		}

		fmt.Printf("dcc peer %s listening on %s (group %q)\n", hostname, uri, group)
		if tyrant {
			fmt.Println("  mode: tyrant")
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		p.Stop(stopCtx)
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

var peerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a peer's local health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpAddr, _ := cmd.Flags().GetString("http-addr")

		tcp := health.NewTCPChecker(httpAddr).WithTimeout(2 * time.Second)
		if result := tcp.Check(cmd.Context()); !result.Healthy {
			return fmt.Errorf("peer at %s unreachable: %s", httpAddr, result.Message)
		}

		resp, err := http.Get("http://" + httpAddr + "/healthz")
		if err != nil {
			return fmt.Errorf("failed to reach health endpoint: %w", err)
		}
		defer resp.Body.Close()

		var status map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fmt.Errorf("failed to decode health response: %w", err)
		}
		encoded, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(encoded))
		return nil
	},
}

func init() {
	peerCmd.AddCommand(peerStartCmd)
	peerCmd.AddCommand(peerStatusCmd)

	peerStartCmd.Flags().String("group", "", "Coordination group name (required)")
	peerStartCmd.Flags().String("uri", "127.0.0.1:7420", "This peer's own dial address")
	peerStartCmd.Flags().String("hostname", "", "Worker hostname reported on claimed buckets (default: OS hostname)")
	peerStartCmd.Flags().String("config", "projects.yaml", "Project definitions file")
	peerStartCmd.Flags().String("data-dir", "./dcc-data", "Data directory for the store and coordination database")
	peerStartCmd.Flags().Bool("tyrant", false, "Unconditionally seize group leadership instead of negotiating for it")
	peerStartCmd.Flags().String("containerd-socket", "/run/containerd/containerd.sock", "containerd socket path")
	peerStartCmd.Flags().String("http-addr", "127.0.0.1:7421", "Address to serve /healthz and /metrics on")
	peerStartCmd.Flags().String("operator-email", "", "Address mailed on unrecoverable infra errors")
	peerStartCmd.Flags().String("gui-base-url", "", "Base URL prepended to bucket links in notifications")
	peerStartCmd.Flags().String("smtp-host", "", "SMTP host (notifications disabled if empty)")
	peerStartCmd.Flags().Int("smtp-port", 587, "SMTP port")
	peerStartCmd.Flags().String("smtp-user", "", "SMTP username")
	peerStartCmd.Flags().String("smtp-pass", "", "SMTP password")
	peerStartCmd.Flags().String("smtp-from", "dcc@localhost", "SMTP from address")
	peerStartCmd.Flags().String("chat-webhook-url", "", "Chat webhook URL (notifications disabled if empty)")
	peerStartCmd.Flags().String("chat-room", "", "Chat room/channel to post to")
	peerStartCmd.Flags().String("chat-token", "", "Chat webhook auth token")
	_ = peerStartCmd.MarkFlagRequired("group")

	peerStatusCmd.Flags().String("http-addr", "127.0.0.1:7421", "Address to query /healthz on")
}
