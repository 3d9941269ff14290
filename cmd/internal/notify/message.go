package notify

import (
	"net/url"
	"strings"

	"github.com/Emjay-16/aqi-project/cmd/identity"
)

// VerificationSubject is the subject line of verification emails ("Please verify your email").
const VerificationSubject = "กรุณายืนยันอีเมลของคุณ"

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// VerificationLink returns base + "/verify-email?token=<token>".
func VerificationLink(base, token string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return base + "/verify-email?token=" + url.QueryEscape(token)
}

// RenderVerification builds the verification email for n.
func RenderVerification(base string, n identity.VerificationNotice) Message {
	return Message{
		To:      n.Email,
		Subject: VerificationSubject,
		Body:    "กรุณาคลิกลิงก์นี้เพื่อยืนยันอีเมลของคุณ: " + VerificationLink(base, n.Token),
	}
}
