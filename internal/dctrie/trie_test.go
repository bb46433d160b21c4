package dctrie

import (
	"net/netip"
	"testing"
)

func TestTrie_LookupHitAndMiss(t *testing.T) {
	b := NewBuilder()
	b.Add(netip.MustParsePrefix("203.0.113.0/24"), "A")
	b.Add(netip.MustParsePrefix("198.51.100.0/24"), "B")
	trie := b.Build()

	tag, ok := trie.Lookup(netip.MustParseAddr("203.0.113.42"))
	if !ok || tag != "A" {
		t.Errorf("Lookup(203.0.113.42) = %q, %v, want A, true", tag, ok)
	}

	tag, ok = trie.Lookup(netip.MustParseAddr("198.51.100.7"))
	if !ok || tag != "B" {
		t.Errorf("Lookup(198.51.100.7) = %q, %v, want B, true", tag, ok)
	}

	_, ok = trie.Lookup(netip.MustParseAddr("8.8.8.8"))
	if ok {
		t.Error("Lookup(8.8.8.8) should miss")
	}
}

func TestTrie_LongestPrefixMatch(t *testing.T) {
	b := NewBuilder()
	b.Add(netip.MustParsePrefix("10.0.0.0/8"), "broad")
	b.Add(netip.MustParsePrefix("10.1.0.0/16"), "narrow")
	trie := b.Build()

	tag, ok := trie.Lookup(netip.MustParseAddr("10.1.2.3"))
	if !ok || tag != "narrow" {
		t.Errorf("Lookup = %q, %v, want narrow, true (longest prefix)", tag, ok)
	}

	tag, ok = trie.Lookup(netip.MustParseAddr("10.2.2.3"))
	if !ok || tag != "broad" {
		t.Errorf("Lookup = %q, %v, want broad, true", tag, ok)
	}
}

func TestPublisher_AtomicSwap(t *testing.T) {
	p := NewPublisher()
	if _, ok := p.Current().Lookup(netip.MustParseAddr("1.1.1.1")); ok {
		t.Error("empty publisher should never hit")
	}

	b := NewBuilder()
	b.Add(netip.MustParsePrefix("1.1.1.0/24"), "X")
	p.Publish(b.Build())

	tag, ok := p.Current().Lookup(netip.MustParseAddr("1.1.1.1"))
	if !ok || tag != "X" {
		t.Errorf("after publish, Lookup = %q, %v, want X, true", tag, ok)
	}
}

func TestTrie_IPv6(t *testing.T) {
	b := NewBuilder()
	b.Add(netip.MustParsePrefix("2001:db8::/32"), "A")
	trie := b.Build()

	tag, ok := trie.Lookup(netip.MustParseAddr("2001:db8::1"))
	if !ok || tag != "A" {
		t.Errorf("Lookup(IPv6) = %q, %v, want A, true", tag, ok)
	}
}
