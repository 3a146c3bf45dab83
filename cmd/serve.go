/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/
package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitcanon/ircbounce/pkg/bouncer"
	"github.com/bitcanon/ircbounce/pkg/config"
	"github.com/bitcanon/ircbounce/pkg/metrics"
)

var inetdMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bouncer",
	Long: `Run the bouncer.

The serve command starts the main ircbounce service: it listens for IRC
client connections, authenticates them against the configured connection
classes, and proxies each class to its IRC server. Clients may detach
and reattach at will; the upstream connection stays up in between.

Client -> ircbounce -> IRC server

The command loads its configuration from the config file (default:
./config.yaml) and reloads it when the file changes or when receiving a
SIGHUP signal. With --inetd the already-open connection on stdin is
served instead of opening a listener; the process exits when that
client disconnects.`,
	SilenceUsage: true, // avoid printing usage on errors
	RunE: func(cmd *cobra.Command, args []string) error {
		if cf := viper.ConfigFileUsed(); cf != "" {
			fmt.Fprintf(os.Stderr, "Config file: %s\n", cf)
		}
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"listen":  cfg.Listen,
			"classes": len(cfg.Classes),
		}).Info("starting ircbounce")

		if cfg.PIDFile != "" && !inetdMode {
			if err := writePIDFile(cfg.PIDFile); err != nil {
				return err
			}
			defer os.Remove(cfg.PIDFile)
		}

		srv := bouncer.New(cfg)

		if cfg.MetricsListen != "" {
			go func() {
				if err := metrics.Serve(cfg.MetricsListen); err != nil {
					log.WithError(err).Error("metrics listener failed")
				}
			}()
		}

		// Reload re-reads the file and rebinds live sessions; a config
		// that fails to parse or validate leaves the old one in place.
		reload := func(tag string) {
			if err := viper.ReadInConfig(); err != nil {
				log.WithError(err).Error("reload: re-reading config failed")
				return
			}
			newCfg, err := config.Load(viper.GetViper())
			if err != nil {
				log.WithError(err).Error("reload: keeping previous config")
				return
			}
			if newCfg.Listen != cfg.Listen {
				log.WithFields(log.Fields{
					"old": cfg.Listen,
					"new": newCfg.Listen,
				}).Warn("reload: listen changed, restart required")
			}
			srv.Reload(newCfg)
			cfg = newCfg
			log.WithField("trigger", tag).Info("reload: applied")
		}
		srv.OnReload(func() { reload("admin") })

		if viper.ConfigFileUsed() != "" {
			viper.WatchConfig()
			viper.OnConfigChange(func(e fsnotify.Event) {
				log.WithField("file", e.Name).Info("config: change detected")
				reload("fsnotify")
			})
		}

		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		go func() {
			for range hupCh {
				log.Info("signal: SIGHUP received, reloading config")
				reload("SIGHUP")
			}
		}()

		stopCh := make(chan os.Signal, 1)
		signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-stopCh
			log.Info("shutting down...")
			srv.Shutdown()
		}()

		if inetdMode {
			conn, err := stdinConn()
			if err != nil {
				return err
			}
			srv.ServeConn(conn)
			<-srv.Done()
			return nil
		}

		err = srv.ListenAndServe()
		// give sessions a moment to flush their QUITs
		time.Sleep(200 * time.Millisecond)
		return err
	},
}

// writePIDFile refuses to clobber a pid file owned by a live process.
func writePIDFile(path string) error {
	if b, err := os.ReadFile(path); err == nil {
		var pid int
		if _, err := fmt.Sscanf(string(b), "%d", &pid); err == nil && pid > 0 {
			if proc, err := os.FindProcess(pid); err == nil {
				if proc.Signal(syscall.Signal(0)) == nil {
					return fmt.Errorf("pid file %s: process %d still running", path, pid)
				}
			}
		}
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// stdinConn turns the inherited stdin socket into a net.Conn.
func stdinConn() (net.Conn, error) {
	f := os.NewFile(0, "stdin")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("inetd mode needs a socket on stdin: %w", err)
	}
	return conn, nil
}

func init() {
	serveCmd.Flags().BoolVar(&inetdMode, "inetd", false, "serve the connection on stdin and exit when it closes")
	rootCmd.AddCommand(serveCmd)
}
