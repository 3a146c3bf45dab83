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
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: "v1.0.0",
	Use:     "ircbounce",
	Short:   "Detachable IRC bouncer",
	Long: `Detachable IRC bouncer.

ircbounce sits between your IRC client and the network: it holds the
connection to the IRC server open on your behalf, so you can disconnect
and reconnect your client without losing your presence, channels or
message history. While you are away it logs traffic, optionally marks
you away, and replays what you missed when you come back. DCC chats and
transfers are proxied through the bouncer, with offline capture of
files sent to you while detached.

It is configurable via a YAML configuration file.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Show the search order in help text
	defaultCfgPath := "./config.yaml, ~/.ircbounce, /etc/ircbounce/config.yaml"

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (search order: %s)", defaultCfgPath))

	rootCmd.PersistentFlags().Bool("debug", false, "show debug info")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.SetVersionTemplate(`{{ printf "%s %s" .Name .Version }}`)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	// Env overrides
	replacer := strings.NewReplacer("-", "_", ".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix("IRCBOUNCE")
	viper.AutomaticEnv()

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	// 1) Explicit --config
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if ext := filepath.Ext(cfgFile); ext == "" {
			// No extension; assume YAML
			viper.SetConfigType("yaml")
		}
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file %q: %v\n", cfgFile, err)
		}
		return
	}

	// Helper to try a specific file
	tryFile := func(path string, assumeYAML bool) bool {
		if _, err := os.Stat(path); err != nil {
			return false
		}
		viper.SetConfigFile(path)
		if assumeYAML {
			viper.SetConfigType("yaml")
		}
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file %q: %v\n", path, err)
			return false
		}
		return true
	}

	// 2) ./config.yaml next to the executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		if tryFile(filepath.Join(exeDir, "config.yaml"), false) {
			return
		}
	}

	// 3) ~/.ircbounce (file without extension, YAML content)
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".ircbounce")
		if fi, err := os.Stat(path); err == nil {
			// a private session config should not be world-readable
			if fi.Mode().Perm()&0o077 != 0 {
				fmt.Fprintf(os.Stderr, "Ignoring %s: permissions too open (%o), want 0700 or tighter\n", path, fi.Mode().Perm())
			} else if tryFile(path, true) {
				return
			}
		}
	}

	// 4) /etc/ircbounce/config.yaml
	_ = tryFile("/etc/ircbounce/config.yaml", false)
}
