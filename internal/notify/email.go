package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type emailNotifier struct {
	send sendMailFunc
	addr string
	auth smtp.Auth
	from string
	to   []string
	now  func() time.Time
}

func NewEmail(host string, port int, from, to, username, password string) (Notifier, error) {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	switch {
	case host == "":
		return nil, fmt.Errorf("config.smtp_host is required")
	case port <= 0:
		return nil, fmt.Errorf("config.smtp_port must be > 0")
	case from == "":
		return nil, fmt.Errorf("config.from is required")
	case (username == "") != (password == ""):
		return nil, fmt.Errorf("config.username and config.password must be set together")
	}

	recipients := splitRecipients(to)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("config.to must include at least one recipient")
	}

	e := &emailNotifier{
		send: smtp.SendMail,
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
		to:   recipients,
		now:  time.Now,
	}
	if username != "" {
		e.auth = smtp.PlainAuth("", username, password, host)
	}
	return e, nil
}

func (e *emailNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	headers := []string{
		"From: " + e.from,
		"To: " + strings.Join(e.to, ", "),
		fmt.Sprintf("Subject: [sqlbackup] %s: %s (%s)", event.Status, event.DB, event.Trigger),
		"Date: " + e.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + buildEmailBody(event)

	if err := e.send(e.addr, e.auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail via %s: %w", e.addr, err)
	}
	return nil
}

func buildEmailBody(event Event) string {
	lines := []string{
		Summary(event),
		"",
		"db: " + event.DB,
		"status: " + event.Status,
		"trigger: " + event.Trigger,
	}
	if event.Filename != "" {
		lines = append(lines, "file: "+event.Filename)
	}
	if event.Bytes >= 0 {
		lines = append(lines, "size: "+humanize.Bytes(uint64(event.Bytes)))
	} else {
		lines = append(lines, "size: unknown")
	}
	lines = append(lines,
		fmt.Sprintf("remaining backups: %d", event.Remaining),
		fmt.Sprintf("deleted backups: %d", event.Deleted),
		"duration: "+event.Duration,
	)
	if event.Mirror != "" {
		lines = append(lines, "mirror: "+event.Mirror)
	}
	if event.MirrorError != "" {
		lines = append(lines, "mirror error: "+event.MirrorError)
	}
	if event.Error != "" {
		lines = append(lines, "failed at: "+event.Stage, "error: "+event.Error)
	}
	return strings.Join(lines, "\n")
}

func splitRecipients(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
}
