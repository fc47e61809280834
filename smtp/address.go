package smtp

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// AddressRecord is the parsed form of a MAIL FROM / RCPT TO argument.
// Address may be empty (MAIL FROM:<>). Args maps an uppercased parameter
// key to either its value or the sentinel "true" when the parameter
// carried no "=value".
type AddressRecord struct {
	Address string
	Args    map[string]string
}

var addressLiteral = regexp.MustCompile(`^<[^<>]*>$`)

// parseAddressCommand implements the shared reverse-path/forward-path
// grammar of RFC 5321 §4.1.2 for "MAIL FROM:..." and "RCPT TO:...".
// expectedVerb is e.g. "mail from" or "rcpt to".
func parseAddressCommand(line string, expectedVerb string) (*AddressRecord, error) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return nil, ErrSyntax
	}
	left := strings.TrimSpace(line[:idx])
	remainder := strings.TrimSpace(line[idx+1:])

	if !strings.EqualFold(left, expectedVerb) {
		return nil, ErrSyntax
	}

	fields := strings.Fields(remainder)
	if len(fields) == 0 {
		return nil, ErrSyntax
	}

	addrToken, paramTokens := fields[0], fields[1:]
	if !addressLiteral.MatchString(addrToken) {
		return nil, ErrSyntax
	}
	body := addrToken[1 : len(addrToken)-1]

	address, err := decodeAddressBody(body)
	if err != nil {
		return nil, err
	}

	args := make(map[string]string, len(paramTokens))
	for _, tok := range paramTokens {
		key, value, found := strings.Cut(tok, "=")
		key = strings.ToUpper(key)
		if !found {
			value = "true"
		}
		args[key] = value
	}

	return &AddressRecord{Address: address, Args: args}, nil
}

// decodeAddressBody validates the "local@domain" body of an address
// literal and decodes the domain from punycode to Unicode. An empty body
// (MAIL FROM:<>) is permitted and returned unchanged.
func decodeAddressBody(body string) (string, error) {
	if body == "" {
		return "", nil
	}

	at := strings.LastIndex(body, "@")
	if at <= 0 || at == len(body)-1 {
		return "", ErrSyntax
	}
	local, domain := body[:at], body[at+1:]
	if strings.Count(body, "@") != 1 {
		return "", ErrSyntax
	}

	unicodeDomain, err := idna.ToUnicode(domain)
	if err != nil {
		// Not every domain is a valid A-label; fall back to the raw
		// bytes rather than reject an otherwise well-formed address.
		unicodeDomain = domain
	}

	return local + "@" + unicodeDomain, nil
}
