package wire

import (
	"bytes"
	"strings"
)

// AdminTerminator tells the decoder how to recognize the end of the next
// admin text response: a single line (version, maxqueue, shutdown) or a
// block terminated by a lone "." line (status, workers). The admin command
// handler sets this before the decoder sees the response, matching
// spec.md section 4.1 ("the admin handler tells the codec which response
// terminator to expect next").
type AdminTerminator int

const (
	// TerminatorNone means no admin text response is outstanding; any
	// bytes arriving are either a binary ECHO_RES frame or a protocol error.
	TerminatorNone AdminTerminator = iota
	TerminatorLine
	TerminatorBlock
)

// EncodeAdminLine renders a text admin command as the line it is sent as.
func EncodeAdminLine(command string) []byte {
	return []byte(command + "\n")
}

// decodeAdminLine pulls one newline-terminated line out of buf. ok is false
// if buf has no complete line yet.
func decodeAdminLine(buf []byte) (line string, consumed int, ok bool) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return "", 0, false
	}
	raw := buf[:idx]
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	return string(raw), idx + 1, true
}

// decodeAdminBlock accumulates lines from buf until a lone "." line, per
// the status/workers response format. It may consume multiple reads'
// worth of buffered bytes across calls; callers pass in previously
// accumulated lines and get back the full set once complete.
func decodeAdminBlock(buf []byte, accum []string) (lines []string, consumed int, ok bool) {
	total := 0
	lines = accum
	for {
		line, n, lineOK := decodeAdminLine(buf[total:])
		if !lineOK {
			return lines, total, false
		}
		total += n
		if line == "." {
			return lines, total, true
		}
		lines = append(lines, line)
	}
}

// StatusLine is one row of a `status` administrative response.
type StatusLine struct {
	Task             string
	Total            int
	Running          int
	AvailableWorkers int
}

// WorkerLine is one row of a `workers` administrative response.
type WorkerLine struct {
	FD        string
	IP        string
	ClientID  string
	Abilities []string
}

// ParseStatusBlock converts the raw lines of a `status` response (without
// the trailing ".") into structured rows. Per gearman.org, fields are
// tab-separated: function \t total \t running \t available_workers.
func ParseStatusBlock(lines []string) []StatusLine {
	out := make([]StatusLine, 0, len(lines))
	for _, l := range lines {
		parts := strings.Split(l, "\t")
		if len(parts) != 4 {
			continue
		}
		out = append(out, StatusLine{
			Task:             parts[0],
			Total:            atoiOr0(parts[1]),
			Running:          atoiOr0(parts[2]),
			AvailableWorkers: atoiOr0(parts[3]),
		})
	}
	return out
}

// ParseWorkersBlock converts the raw lines of a `workers` response into
// structured rows. Per gearman.org: fd ip client_id : ability ability ...
func ParseWorkersBlock(lines []string) []WorkerLine {
	out := make([]WorkerLine, 0, len(lines))
	for _, l := range lines {
		colonIdx := strings.Index(l, ":")
		head := l
		var abilities []string
		if colonIdx >= 0 {
			head = strings.TrimSpace(l[:colonIdx])
			rest := strings.TrimSpace(l[colonIdx+1:])
			if rest != "" {
				abilities = strings.Fields(rest)
			}
		}
		fields := strings.Fields(head)
		if len(fields) != 3 {
			continue
		}
		out = append(out, WorkerLine{FD: fields[0], IP: fields[1], ClientID: fields[2], Abilities: abilities})
	}
	return out
}

func atoiOr0(s string) int {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}
