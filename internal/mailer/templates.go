package mailer

import (
	"fmt"
	"strings"
	"time"
)

func AccountLocked(email string, until time.Time) Message {
	return Message{
		To:      email,
		Subject: "Account locked after repeated failed logins",
		Body: fmt.Sprintf(
			"Your account was locked after too many failed login attempts.\n"+
				"It unlocks automatically at %s.\n"+
				"If this was not you, contact your administrator.",
			until.UTC().Format(time.RFC1123)),
	}
}

func TwoFactorEnabled(email string) Message {
	return Message{
		To:      email,
		Subject: "Two-factor authentication enabled",
		Body: "Two-factor authentication was just enabled for your account.\n" +
			"If this was not you, contact your administrator immediately.",
	}
}

func ContractExpiring(email, title, number string, daysLeft int, link string) Message {
	day := "days"
	if daysLeft == 1 {
		day = "day"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Contract %q (%s) expires in %d %s.\n", title, number, daysLeft, day)
	if link != "" {
		fmt.Fprintf(&b, "\nReview it here: %s\n", link)
	}
	return Message{
		To:      email,
		Subject: fmt.Sprintf("Contract %s expires in %d %s", number, daysLeft, day),
		Body:    b.String(),
	}
}
