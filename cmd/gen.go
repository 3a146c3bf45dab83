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

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const exampleConfig = `# ircbounce configuration
#
# Global settings apply to the whole process; each entry under
# "connections" is one connection class a client can authenticate into
# with its password.

listen: ":57000"
#pid_file: /var/run/ircbounce.pid
#metrics_listen: ":9057"

# Seconds an unauthenticated client gets to log in.
client_timeout: 60
connect_timeout: 60
dns_timeout: 60

connections:
  - name: example
    # Plain text, or a bcrypt hash from "ircbounce hash".
    password: "changeme"
    servers:
      - irc.example.org:6667
      - irc2.example.org:6667
    join:
      - "#mychannel"

    server_retry: 15
    server_maxattempts: 0
    server_maxinitattempts: 5
    server_pingtimeout: 600
    channel_rejoin: 15

    # What happens while no client is attached.
    detach_nickname: ""
    away_message: ""
    ctcp_replies: yes

    # Message history kept for replay on attach.
    log_dir: ""
    chan_log:
      enabled: yes
      recall: 128
    private_log:
      enabled: yes
      recall: -1
    server_log:
      enabled: yes
      recall: 0

    # Mark up matching text in the replayed backlog.
    #recall_highlight:
    #  - pattern: yournick
    #    case_insensitive: yes
    #    bold: yes
    #  - pattern: "deploy|pager"
    #    kind: regex
    #    color: red
    #    channels: ["#ops*"]

    # DCC proxying.
    dcc_proxy_incoming: yes
    dcc_proxy_outgoing: yes
    dcc_proxy_ports: "57010-57020"
    dcc_proxy_timeout: 300
    #dcc_capture_directory: /var/spool/ircbounce

    # /DIRCPROXY admin commands this class may use.
    allow_persist: no
    allow_jump: yes
    allow_jump_new: no
    allow_die: no
`

var genCmd = &cobra.Command{
	Use:          "gen",
	Short:        "Print an example configuration file",
	Long:         "Print an annotated example configuration file to stdout.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Print(exampleConfig)
		return err
	},
}

var hashCmd = &cobra.Command{
	Use:          "hash",
	Short:        "Hash a connection password with bcrypt",
	Long:         "Hash a connection password with bcrypt, for use as the password field in the config file.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		if len(pw) == 0 {
			return fmt.Errorf("empty password")
		}
		hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(hashCmd)
}
