package tier1

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/smartpixl/smartpixl/internal/record"
)

// cloudHostnamePatterns are substrings that mark a reverse-DNS hostname as
// belonging to a known cloud/hosting provider (spec.md §4.6 tier 1).
var cloudHostnamePatterns = []string{
	"amazonaws.com", "googleusercontent.com", "azure.com",
	"digitalocean.com", "ovh.net", "linode.com", "cloudflare.com",
}

// RDNS performs a reverse DNS lookup on the capture IP with a 2s timeout,
// skipping (not retrying) on failure (spec.md §4.6 tier 1).
func RDNS(ctx context.Context, rec record.Record) (record.Record, error) {
	if rec.RemoteAddress == "" {
		return rec, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resolver := net.DefaultResolver
	names, err := resolver.LookupAddr(lookupCtx, rec.RemoteAddress)
	if err != nil || len(names) == 0 {
		return rec, nil
	}
	host := strings.TrimSuffix(names[0], ".")

	rec = rec.WithQueryParam("rdns", host)
	for _, pattern := range cloudHostnamePatterns {
		if strings.Contains(host, pattern) {
			rec = rec.WithQueryParam("rdnsCloud", "1")
			break
		}
	}
	return rec, nil
}
