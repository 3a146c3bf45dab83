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
	"bufio"
	"fmt"
	"net"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bitcanon/ircbounce/pkg/config"
	"github.com/bitcanon/ircbounce/pkg/irc"
)

var (
	clientServer   string
	clientPassword string
	clientNick     string
)

// clientExample shows typical invocations in help text.
var clientExample = `  ircbounce client --nick alice
  ircbounce client --server bouncer.example.org:57000 --nick alice`

// clientCmd is a bare-bones line client, mainly for poking at a running
// bouncer without firing up a full IRC client.
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a bouncer and talk raw IRC",
	Long: `Connect to a bouncer (or any IRC server) and talk raw IRC.

Lines you type are sent verbatim; incoming traffic is printed as it
arrives and PINGs are answered automatically. A few conveniences:

  /msg <target> <text>   send a PRIVMSG
  /quit [message]        disconnect and exit

Anything else starting with / is sent with the slash stripped, so
"/join #chan" and "JOIN #chan" are equivalent.`,
	Example:      clientExample,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := clientServer
		if addr == "" {
			addr = "localhost" + config.DefaultListen
		}
		nick := clientNick
		if nick == "" {
			if u, err := user.Current(); err == nil {
				nick = u.Username
			} else {
				nick = "ircbounce"
			}
		}

		password := clientPassword
		if password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Password for %s: ", addr)
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			password = string(pw)
		}

		conn, err := net.DialTimeout("tcp", addr, 15*time.Second)
		if err != nil {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		defer conn.Close()
		fmt.Fprintf(os.Stderr, "Connected to %s\n", addr)

		send := func(format string, args ...any) {
			fmt.Fprintf(conn, format+"\r\n", args...)
		}

		if password != "" {
			send("PASS %s", password)
		}
		send("NICK %s", nick)
		send("USER %s 0 * :%s", nick, nick)

		// Reader: print everything, answer pings ourselves.
		done := make(chan struct{})
		go func() {
			defer close(done)
			sc := bufio.NewScanner(conn)
			for sc.Scan() {
				line := sc.Text()
				if answerPing(line, send) {
					continue
				}
				fmt.Printf("<- %s\n", line)
			}
		}()

		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}
			switch {
			case strings.HasPrefix(strings.ToLower(line), "/quit"):
				msg := strings.TrimSpace(line[len("/quit"):])
				if msg == "" {
					msg = "bye"
				}
				send("QUIT :%s", msg)
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				return nil
			case strings.HasPrefix(strings.ToLower(line), "/msg "):
				target, text, ok := strings.Cut(strings.TrimSpace(line[len("/msg "):]), " ")
				if !ok {
					fmt.Fprintln(os.Stderr, "usage: /msg <target> <text>")
					continue
				}
				send("PRIVMSG %s :%s", target, text)
			case strings.HasPrefix(line, "/"):
				send("%s", line[1:])
			default:
				send("%s", line)
			}
		}
		<-done
		return sc.Err()
	},
}

// answerPing replies to a server PING and reports whether the line was
// consumed. Unparseable lines (including blank keepalives) are left for
// the caller to print.
func answerPing(line string, send func(format string, args ...any)) bool {
	m := irc.ParseMessage(line)
	if m == nil || m.Command != "PING" {
		return false
	}
	send("PONG :%s", m.Text())
	return true
}

func init() {
	clientCmd.Flags().StringVar(&clientServer, "server", "", "bouncer address (default localhost"+config.DefaultListen+")")
	clientCmd.Flags().StringVar(&clientPassword, "password", "", "connection password (prompted if omitted)")
	clientCmd.Flags().StringVar(&clientNick, "nick", "", "nickname (default current username)")
	rootCmd.AddCommand(clientCmd)
}
