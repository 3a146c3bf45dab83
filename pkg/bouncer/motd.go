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
package bouncer

import (
	"bufio"
	"fmt"
	"os"

	"github.com/bitcanon/ircbounce/pkg/irc"
)

var motdLogo = []string{
	`  _          __                          `,
	` (_)______  / /  ___  __ _____  _______  `,
	` / / __/ _ \/ _ \/ _ \/ // / _ \/ __/ -_) `,
	`/_/_/  \__/_.__/\___/\_,_/_//_/\__/\__/  `,
}

// sendMOTD replays the bouncer's message of the day: optional logo, the
// configured file, and session statistics.
func (s *Session) sendMOTD() {
	cl := s.class
	s.numeric(irc.RplMOTDStart, fmt.Sprintf(":- %s Message of the Day -", bouncerName))

	if bool(*cl.MOTDLogo) {
		for _, line := range motdLogo {
			s.numeric(irc.RplMOTD, ":- "+line)
		}
		s.numeric(irc.RplMOTD, ":- ")
	}

	if cl.MOTDFile != "" {
		s.sendMOTDFile(cl.MOTDFile)
	}

	if bool(*cl.MOTDStats) {
		s.sendMOTDStats()
	}

	s.numeric(irc.RplEndOfMOTD, ":End of /MOTD command.")
}

func (s *Session) sendMOTDFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		s.log.WithError(err).Warn("cannot read motd file")
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s.numeric(irc.RplMOTD, ":- "+sc.Text())
	}
	s.numeric(irc.RplMOTD, ":- ")
}

func (s *Session) sendMOTDStats() {
	if s.serverName != "" {
		s.numeric(irc.RplMOTD, fmt.Sprintf(":- Connected to %s as %s", s.serverName, s.nickname))
	}
	live := 0
	for _, ch := range s.channels {
		if !ch.Inactive && !ch.Unjoined {
			live++
		}
	}
	s.numeric(irc.RplMOTD, fmt.Sprintf(":- On %d of %d channels, attached since %s",
		live, len(s.channels), s.startTime.Format("Mon Jan 2 15:04:05 2006")))
	if s.logDir != "" {
		s.numeric(irc.RplMOTD, ":- Session logs in "+s.logDir)
	}
	s.numeric(irc.RplMOTD, ":- ")
}
