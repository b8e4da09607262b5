package utils

import "strings"

// ChatAddressSuffix is the gateway's fixed chat-address suffix for
// individual destinations.
const ChatAddressSuffix = "@c.us"

// NormalizeChatAddress turns a raw destination into a gateway chat
// address: strip every non-digit, replace a leading "0" with the
// default country code, append the chat suffix. Total and idempotent
// on already-normalized input; malformed input yields a possibly
// meaningless address rather than an error.
func NormalizeChatAddress(raw, defaultCountryCode string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	number := digits.String()
	if strings.HasPrefix(number, "0") {
		number = defaultCountryCode + number[1:]
	}

	return number + ChatAddressSuffix
}
