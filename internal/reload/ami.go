package reload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// AMIClient runs CLI commands over the Asterisk Manager Interface. Each
// reload opens its own session: Login, Command, Logoff.
type AMIClient struct {
	Addr     string
	Username string
	Secret   string
	// DialTimeout bounds connection setup when ctx has no deadline.
	DialTimeout time.Duration

	seq atomic.Uint64
}

var (
	ErrAMIAuth     = errors.New("ami_authentication_failed")
	ErrAMIProtocol = errors.New("ami_protocol_error")
)

const endCommand = "--END COMMAND--"

func NewAMIClient(host string, port int, username, secret string) *AMIClient {
	return &AMIClient{
		Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		Username:    username,
		Secret:      secret,
		DialTimeout: 5 * time.Second,
	}
}

func (c *AMIClient) Reload(ctx context.Context, target string) Result {
	start := time.Now()
	command, err := Command(target)
	if err != nil {
		return failed(target, "", start, err)
	}
	output, err := c.Run(ctx, command)
	if err != nil {
		return failed(target, command, start, err)
	}
	return Result{
		Target:   target,
		Command:  command,
		OK:       !outputFailed(output),
		Detail:   output,
		Duration: time.Since(start),
	}
}

// Run executes one CLI command and returns its output.
func (c *AMIClient) Run(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", err
		}
	}
	// Unblock reads when ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	session := &amiSession{
		r:   textproto.NewReader(bufio.NewReader(conn)),
		w:   textproto.NewWriter(bufio.NewWriter(conn)),
		seq: &c.seq,
	}

	greeting, err := session.r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("%w: greeting: %v", ErrAMIProtocol, err)
	}
	if !strings.HasPrefix(greeting, "Asterisk Call Manager") {
		return "", fmt.Errorf("%w: unexpected greeting %q", ErrAMIProtocol, greeting)
	}

	login, err := session.action("Login", [][2]string{
		{"Username", c.Username},
		{"Secret", c.Secret},
		{"Events", "off"},
	})
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(login.fields["Response"], "Success") {
		return "", fmt.Errorf("%w: %s", ErrAMIAuth, login.fields["Message"])
	}

	resp, err := session.action("Command", [][2]string{{"Command", command}})
	if err != nil {
		return "", err
	}
	status := resp.fields["Response"]
	if !strings.EqualFold(status, "Success") && !strings.EqualFold(status, "Follows") {
		msg := resp.fields["Message"]
		if msg == "" {
			msg = status
		}
		return "", fmt.Errorf("%w: command %q: %s", ErrAMIProtocol, command, msg)
	}

	_, _ = session.action("Logoff", nil)
	return strings.Join(resp.output, "\n"), nil
}

type amiSession struct {
	r   *textproto.Reader
	w   *textproto.Writer
	seq *atomic.Uint64
}

type amiMessage struct {
	fields map[string]string
	output []string
}

func (s *amiSession) action(name string, headers [][2]string) (amiMessage, error) {
	actionID := strconv.FormatUint(s.seq.Add(1), 10)

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\nActionID: %s\r\n", name, actionID)
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	if _, err := s.w.W.WriteString(b.String()); err != nil {
		return amiMessage{}, err
	}
	if err := s.w.W.Flush(); err != nil {
		return amiMessage{}, err
	}

	for {
		msg, err := s.read()
		if err != nil {
			return amiMessage{}, fmt.Errorf("%w: %s: %v", ErrAMIProtocol, name, err)
		}
		if _, isEvent := msg.fields["Event"]; isEvent {
			continue
		}
		if id, ok := msg.fields["ActionID"]; ok && id != actionID {
			continue
		}
		return msg, nil
	}
}

// read consumes one message up to its terminating blank line. Both the
// legacy "Response: Follows ... --END COMMAND--" form and the "Output:"
// header form are accepted.
func (s *amiSession) read() (amiMessage, error) {
	msg := amiMessage{fields: map[string]string{}}
	for {
		line, err := s.r.ReadLine()
		if err != nil {
			return amiMessage{}, err
		}
		if line == "" {
			if len(msg.fields) == 0 && len(msg.output) == 0 {
				continue
			}
			return msg, nil
		}
		if strings.HasSuffix(line, endCommand) {
			if rest := strings.TrimSpace(strings.TrimSuffix(line, endCommand)); rest != "" {
				msg.output = append(msg.output, rest)
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if ok && isHeaderKey(key) {
			key = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(key))
			value = strings.TrimSpace(value)
			if key == "Output" {
				msg.output = append(msg.output, value)
				continue
			}
			if _, seen := msg.fields[key]; !seen {
				msg.fields[key] = value
				continue
			}
		}
		msg.output = append(msg.output, line)
	}
}

func isHeaderKey(key string) bool {
	if key == "" || strings.ContainsAny(key, " \t") {
		return false
	}
	for _, r := range key {
		if !(r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
