package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyPermanentCodes(t *testing.T) {
	cases := []string{
		"535 5.7.8 authentication credentials invalid",
		"550 5.1.1 no such user",
		"553 mailbox name not allowed",
	}
	for _, msg := range cases {
		err := Classify(errors.New(msg))
		if !errors.Is(err, ErrPermanent) {
			t.Errorf("expected %q to classify permanent, got %v", msg, err)
		}
		if errors.Is(err, ErrTransient) {
			t.Errorf("%q classified both transient and permanent", msg)
		}
	}
}

func TestClassifyNetworkErrorsTransient(t *testing.T) {
	err := Classify(fmt.Errorf("smtp dial: %w", timeoutErr{}))
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected net.Error to classify transient, got %v", err)
	}
}

func TestClassifyUnknownDefaultsTransient(t *testing.T) {
	err := Classify(errors.New("421 service not available, closing channel"))
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected unknown failure to classify transient, got %v", err)
	}
}

func TestClassifyKeepsExistingClassification(t *testing.T) {
	wrapped := WrapPermanent(errors.New("bad recipient"))
	if got := Classify(wrapped); !errors.Is(got, ErrPermanent) {
		t.Errorf("expected classification preserved, got %v", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSMTPSenderDomain(t *testing.T) {
	s := &SMTPSender{From: "outreach@talentreach.dev", Host: "smtp.local"}
	if got := s.domain(); got != "talentreach.dev" {
		t.Errorf("expected domain from sender address, got %q", got)
	}

	s = &SMTPSender{From: "bare-address", Host: "smtp.local"}
	if got := s.domain(); got != "smtp.local" {
		t.Errorf("expected host fallback, got %q", got)
	}
}

func TestSMTPSenderContextCancelled(t *testing.T) {
	s := &SMTPSender{Host: "localhost", Port: 1025, From: "x@y.z"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Send(ctx, Outgoing{Recipient: "a@b.c"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected transient error on cancelled context, got %v", err)
	}
}
