package tier1

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/smartpixl/smartpixl/internal/record"
)

// whoisServer is the IANA WHOIS server used for ASN/org lookups when no
// other tier has already resolved one (spec.md §4.6 tier 1). A dedicated
// WHOIS client was not found anywhere in the example pack; WHOIS is a
// trivial line-oriented TCP protocol (query + newline, read until EOF), so
// this stays a deliberate stdlib-only component (see DESIGN.md) rather than
// importing an unfamiliar one-off dependency for a handful of lines.
const whoisServer = "whois.iana.org:43"

// WHOIS performs a best-effort ASN/org lookup, skipping if an earlier tier 1
// analyzer already resolved an ASN (spec.md §4.6: "IP not already
// resolved"). Allowed to run asynchronously by the spec; here it runs
// inline with a short timeout since the pipeline has no separate async lane.
func WHOIS(ctx context.Context, rec record.Record) (record.Record, error) {
	if _, hasMM := rec.QueryParam("mmASN"); hasMM {
		return rec, nil
	}
	if _, hasIPAPI := rec.QueryParam("ipapiASN"); hasIPAPI {
		return rec, nil
	}
	if rec.RemoteAddress == "" {
		return rec, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	org, asn, err := queryWhois(lookupCtx, rec.RemoteAddress)
	if err != nil || (org == "" && asn == "") {
		return rec, nil
	}

	pairs := make([]record.Pair, 0, 2)
	if asn != "" {
		pairs = append(pairs, record.Pair{Name: "whoisASN", Value: asn})
	}
	if org != "" {
		pairs = append(pairs, record.Pair{Name: "whoisOrg", Value: org})
	}
	return rec.WithQueryParams(pairs...), nil
}

func queryWhois(ctx context.Context, ip string) (org, asn string, err error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", whoisServer)
	if err != nil {
		return "", "", fmt.Errorf("tier1: whois dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := fmt.Fprintf(conn, "%s\r\n", ip); err != nil {
		return "", "", fmt.Errorf("tier1: whois query: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "origin:") || strings.HasPrefix(lower, "originas:"):
			asn = strings.TrimSpace(line[strings.IndexByte(line, ':')+1:])
		case strings.HasPrefix(lower, "orgname:") || strings.HasPrefix(lower, "org-name:") || strings.HasPrefix(lower, "netname:"):
			org = strings.TrimSpace(line[strings.IndexByte(line, ':')+1:])
		}
	}
	return org, asn, scanner.Err()
}
