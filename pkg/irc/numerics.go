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
package irc

// Server reply and error numerics handled by the bouncer.
const (
	RplWelcome       = "001"
	RplYourHost      = "002"
	RplCreated       = "003"
	RplMyInfo        = "004"
	RplISupport      = "005"
	RplChannelModeIs = "324"
	RplMOTD          = "372"
	RplMOTDStart     = "375"
	RplEndOfMOTD     = "376"

	ErrNoSuchChannel    = "403"
	ErrCannotSendToChan = "405"
	ErrNoRecipient      = "411"
	ErrNoMOTD           = "422"
	ErrNoNicknameGiven  = "431"
	ErrErroneusNickname = "432"
	ErrNicknameInUse    = "433"
	ErrNickCollision    = "436"
	ErrUnavailResource  = "437"
	ErrNickTooFast      = "438"
	ErrNotRegistered    = "451"
	ErrPasswdMismatch   = "464"
	ErrChannelIsFull    = "471"
	ErrInviteOnlyChan   = "473"
	ErrBannedFromChan   = "474"
	ErrBadChannelKey    = "475"
	ErrBadChanMask      = "476"
	ErrNeedReggedNick   = "477"
)

// IsNumeric reports whether a command is a three-digit reply code.
func IsNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if command[i] < '0' || command[i] > '9' {
			return false
		}
	}
	return true
}
