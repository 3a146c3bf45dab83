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

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DCC sub-commands recognized inside a CTCP DCC payload.
const (
	DCCChat   = "CHAT"
	DCCSend   = "SEND"
	DCCResume = "RESUME"
	DCCAccept = "ACCEPT"
	DCCReject = "REJECT"
)

// DCCOffer is a parsed DCC CHAT or SEND payload:
//
//	DCC CHAT chat <addr> <port>
//	DCC SEND <filename> <addr> <port> [<size>]
//
// where <addr> is the IPv4 address as a 32-bit integer in decimal and
// <size> is optional.
type DCCOffer struct {
	Kind     string // DCCChat or DCCSend
	Filename string // SEND only; CHAT carries the literal "chat"
	Addr     net.IP
	Port     int
	Size     int64    // -1 when the offer did not carry a size
	Extra    []string // trailing parameters beyond the known ones, kept verbatim
}

// ParseDCCOffer parses the arguments of a CTCP DCC payload. Returns an
// error for sub-commands other than CHAT/SEND or for malformed fields.
func ParseDCCOffer(args string) (*DCCOffer, error) {
	fields := strings.Fields(args)
	if len(fields) < 4 {
		return nil, fmt.Errorf("dcc: short offer %q", args)
	}

	o := &DCCOffer{
		Kind:     strings.ToUpper(fields[0]),
		Filename: fields[1],
		Size:     -1,
	}
	if o.Kind != DCCChat && o.Kind != DCCSend {
		return nil, fmt.Errorf("dcc: not an offer: %s", fields[0])
	}

	addr, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("dcc: bad address %q: %w", fields[2], err)
	}
	o.Addr = IntToAddr(uint32(addr))

	port, err := strconv.Atoi(fields[3])
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("dcc: bad port %q", fields[3])
	}
	o.Port = port

	rest := fields[4:]
	if o.Kind == DCCSend && len(rest) > 0 {
		if size, err := strconv.ParseInt(rest[0], 10, 64); err == nil {
			o.Size = size
			rest = rest[1:]
		}
	}
	o.Extra = rest

	return o, nil
}

// Args renders the offer back into CTCP DCC argument form, preserving any
// extra trailing parameters.
func (o *DCCOffer) Args() string {
	fields := []string{
		o.Kind,
		o.Filename,
		strconv.FormatUint(uint64(AddrToInt(o.Addr)), 10),
		strconv.Itoa(o.Port),
	}
	if o.Kind == DCCSend && o.Size >= 0 {
		fields = append(fields, strconv.FormatInt(o.Size, 10))
	}
	fields = append(fields, o.Extra...)
	return strings.Join(fields, " ")
}

// DCCResumeReq is a parsed RESUME or ACCEPT payload:
//
//	DCC RESUME <filename> <port> <offset>
//	DCC ACCEPT <filename> <port> <offset>
type DCCResumeReq struct {
	Kind     string // DCCResume or DCCAccept
	Filename string
	Port     int
	Offset   int64
}

// ParseDCCResume parses the arguments of a DCC RESUME/ACCEPT payload.
func ParseDCCResume(args string) (*DCCResumeReq, error) {
	fields := strings.Fields(args)
	if len(fields) < 4 {
		return nil, fmt.Errorf("dcc: short resume %q", args)
	}

	r := &DCCResumeReq{
		Kind:     strings.ToUpper(fields[0]),
		Filename: fields[1],
	}
	if r.Kind != DCCResume && r.Kind != DCCAccept {
		return nil, fmt.Errorf("dcc: not a resume: %s", fields[0])
	}

	port, err := strconv.Atoi(fields[2])
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("dcc: bad port %q", fields[2])
	}
	r.Port = port

	offset, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || offset < 0 {
		return nil, fmt.Errorf("dcc: bad offset %q", fields[3])
	}
	r.Offset = offset

	return r, nil
}

// Args renders the request back into CTCP DCC argument form.
func (r *DCCResumeReq) Args() string {
	return fmt.Sprintf("%s %s %d %d", r.Kind, r.Filename, r.Port, r.Offset)
}

// AddrToInt converts an IPv4 address to the 32-bit integer form used on
// the DCC wire. Non-IPv4 addresses map to zero.
func AddrToInt(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// IntToAddr is the inverse of AddrToInt.
func IntToAddr(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// SafeBasename reduces a DCC filename to a bare file name: directory
// components (either separator style) are stripped, and names that would
// escape the capture directory collapse to "unnamed".
func SafeBasename(name string) string {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
