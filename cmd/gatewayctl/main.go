// Command gatewayctl runs the TAK<->Meshtastic gateway and manages the
// onboarding bundles new ATAK clients need to connect to it.
//
// Grounded on the teacher's cmd/main.go cobra root command plus
// PersistentPreRunE godotenv load, generalized to this gateway's two
// verbs (serve, export) instead of the teacher's single monolithic
// RunE.
package main

import (
	"archive/zip"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/johntiver92-beep/meshtastic-apple/internal/certstore"
	"github.com/johntiver92-beep/meshtastic-apple/internal/config"
	"github.com/johntiver92-beep/meshtastic-apple/internal/core"
	"github.com/johntiver92-beep/meshtastic-apple/internal/logging"
	"github.com/johntiver92-beep/meshtastic-apple/internal/radio"
	"github.com/johntiver92-beep/meshtastic-apple/internal/tlsserver"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "TAK <-> Meshtastic gateway",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		logging.Setup(cfg.Verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "path to a .env file to load (missing file is not an error)")
	rootCmd.AddCommand(serveCmd, exportCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the TLS server, mesh bridge and forwarder loop until interrupted",
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write an onboarding data package for a new ATAK client",
	RunE:  runExport,
}

func init() {
	serveCmd.Flags().String("radio-addr", "127.0.0.1:4403", "TCP address of the radio.Driver companion process")
	serveCmd.Flags().Uint32("node-id", 0x00000001, "this gateway's own mesh node id")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "bind address for the Prometheus /metrics endpoint")
	serveCmd.Flags().Bool("multicast", false, "also broadcast outbound CoT over UDP multicast")
	serveCmd.Flags().String("multicast-addr", tlsserver.DefaultMulticastAddress, "UDP multicast group:port to broadcast to")

	exportCmd.Flags().StringP("out", "o", "", "output zip path (defaults to <export-path>/onboarding.zip)")
	exportCmd.Flags().String("password", "", "PKCS#12 export password (required)")
	_ = exportCmd.MarkFlagRequired("password")
}

func runServe(cmd *cobra.Command, args []string) error {
	radioAddr, _ := cmd.Flags().GetString("radio-addr")
	nodeID, _ := cmd.Flags().GetUint32("node-id")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	useMulticast, _ := cmd.Flags().GetBool("multicast")
	multicastAddr, _ := cmd.Flags().GetString("multicast-addr")

	log := logging.For("gatewayctl")

	driver, err := radio.DialTCP(radioAddr, nodeID)
	if err != nil {
		return fmt.Errorf("gatewayctl: connect to radio at %s: %w", radioAddr, err)
	}
	defer driver.Close()

	reg := prometheus.NewRegistry()
	c, err := core.New(cfg, driver, reg)
	if err != nil {
		return fmt.Errorf("gatewayctl: build core: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		<-ctx.Done()
		_ = metricsSrv.Close()
	}()
	go func() {
		log.Info("metrics listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server exited", "error", err)
		}
	}()

	if useMulticast {
		events := c.EnableMulticast(64)
		bc := tlsserver.NewMulticastBroadcaster(multicastAddr, logging.For("multicast"))
		go func() {
			if err := bc.Run(ctx, events); err != nil && ctx.Err() == nil {
				log.Warn("multicast broadcaster exited", "error", err)
			}
		}()
	}

	log.Info("gateway starting", "listen", tlsserver.ListenAddress, "radio", radioAddr)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("gatewayctl: run: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	password, _ := cmd.Flags().GetString("password")
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Join(cfg.ExportOutputPath, "onboarding.zip")
	}

	store, err := certstore.Open(cfg.CertDir)
	if err != nil {
		return fmt.Errorf("gatewayctl: open cert store: %w", err)
	}
	defer store.Close()

	identity, err := store.ActiveServerIdentity()
	if err != nil {
		return fmt.Errorf("gatewayctl: no server identity configured in %s: %w", cfg.CertDir, err)
	}

	p12, err := certstore.ExportServerP12(identity, password)
	if err != nil {
		return fmt.Errorf("gatewayctl: export p12: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("gatewayctl: create output dir: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("gatewayctl: create %s: %w", out, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := writeZipEntry(zw, "client.p12", p12); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("gatewayctl: finalize zip: %w", err)
	}

	caCount := len(identity.Certificate) - 1

	tbl := table.New("File", "Contents")
	tbl.AddRow("client.p12", fmt.Sprintf("PKCS#12 identity + %d CA certificate(s), password-protected", caCount))
	tbl.Print()
	fmt.Println("wrote", out)
	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("gatewayctl: create zip entry %s: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
