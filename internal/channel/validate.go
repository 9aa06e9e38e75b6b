package channel

import (
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const (
	maxEmailLength = 254
	maxLocalLength = 64
	maxLabelLength = 63
)

var (
	localPartPattern = regexp.MustCompile("^[A-Za-z0-9!#$%&'*+/=?^_`{|}~-]+(\\.[A-Za-z0-9!#$%&'*+/=?^_`{|}~-]+)*$")
	labelPattern     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	tldPattern       = regexp.MustCompile(`^([a-z]{2,}|xn--[a-z0-9-]+)$`)

	// South African mobile numbers in national format: 0 followed by a 6, 7 or 8 and eight digits.
	phonePattern = regexp.MustCompile(`^0[6-8][0-9]{8}$`)
)

// ValidEmail reports whether s is a plain email address (no display name) with a
// dot-atom local part and a resolvable-looking domain. Internationalized domains are
// converted to their ASCII form before the label checks.
func ValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLength || strings.TrimSpace(s) != s {
		return false
	}

	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if len(local) > maxLocalLength || !localPartPattern.MatchString(local) {
		return false
	}

	ascii, err := idna.Lookup.ToASCII(strings.ToLower(domain))
	if err != nil || !validDomain(ascii) {
		return false
	}

	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" {
		return false
	}
	return addr.Address == s
}

func validDomain(domain string) bool {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > maxLabelLength || !labelPattern.MatchString(label) {
			return false
		}
	}
	return tldPattern.MatchString(labels[len(labels)-1])
}

// southAfricaCallingCode replaces the national trunk prefix in E.164 form.
const southAfricaCallingCode = "+27"

// ToE164 converts a number accepted by ValidPhone into E.164 form
// (0821234567 becomes +27821234567). Other input is returned unchanged.
func ToE164(phone string) string {
	if !ValidPhone(phone) {
		return phone
	}
	return southAfricaCallingCode + phone[1:]
}

// ValidPhone reports whether s is a mobile number in the South African numbering plan,
// written in national format (for example 0821234567).
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}
