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
package logfile

import (
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// RunProgram hands an entry to an external log program, fire and forget.
// The entry line is written to the program's stdin; the destination is
// passed as the only argument. Failures are logged, never propagated, and
// the program is never waited on synchronously.
func RunProgram(program string, e Entry) {
	cmd := exec.Command(program, e.Dest)
	cmd.Stdin = strings.NewReader(e.Line() + "\n")
	if err := cmd.Start(); err != nil {
		log.WithError(err).WithField("program", program).Warn("log program failed to start")
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.WithError(err).WithField("program", program).Debug("log program exited with error")
		}
	}()
}
