package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Thread carries the reply-threading data for a followup: the provider
// message id of the conversation's first message and the accumulated
// References chain.
type Thread struct {
	Key        string
	References string
}

// Outgoing is a single email handed to a Sender.
type Outgoing struct {
	Recipient string
	Subject   string
	Body      string

	// ReplyTo, when set, makes the message a reply on an existing
	// conversation. The adapter must emit the underlying reply headers;
	// dropping them breaks threading and is a defect, not a degraded mode.
	ReplyTo *Thread
}

// Sender transmits one email and reports the provider message id.
// Failures are classified with ErrTransient / ErrPermanent.
type Sender interface {
	Send(ctx context.Context, out Outgoing) (providerID string, err error)
}

// SMTPSender sends through an SMTP relay via gomail.
type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (s *SMTPSender) Send(ctx context.Context, out Outgoing) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", WrapTransient(err)
	}

	// SMTP never hands back an id, so we mint the RFC 5322 Message-ID
	// ourselves; it is exactly what reply headers need later.
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain())

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", out.Recipient)
	m.SetHeader("Subject", out.Subject)
	m.SetHeader("Message-ID", messageID)

	if out.ReplyTo != nil {
		m.SetHeader("In-Reply-To", out.ReplyTo.Key)
		references := out.ReplyTo.References
		if references == "" {
			references = out.ReplyTo.Key
		}
		m.SetHeader("References", references)
	}

	m.SetBody("text/html", out.Body)

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return "", Classify(err)
	}

	return messageID, nil
}

func (s *SMTPSender) domain() string {
	if i := strings.IndexByte(s.From, '@'); i >= 0 && i+1 < len(s.From) {
		return s.From[i+1:]
	}
	return s.Host
}

// Codes covering auth rejection and invalid/unroutable recipients.
var permanentSMTPCodes = []string{"501 ", "530 ", "535 ", "550 ", "551 ", "553 ", "554 "}

// Classify maps a raw SMTP/dial error onto the transient/permanent
// taxonomy. Known reject codes short-circuit; everything else defaults
// to transient so a flaky relay gets its retries.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrPermanent) {
		return err
	}

	msg := err.Error()
	for _, code := range permanentSMTPCodes {
		if strings.Contains(msg, code) {
			return WrapPermanent(err)
		}
	}

	// Dial failures, timeouts and unrecognized replies all land here.
	return WrapTransient(err)
}
