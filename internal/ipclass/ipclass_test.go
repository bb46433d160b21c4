package ipclass

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		addr string
		want Class
	}{
		{"203.0.113.9", Public},
		{"10.1.2.3", Private},
		{"127.0.0.1", Loopback},
		{"169.254.1.1", LinkLocal},
		{"100.64.0.5", CGNAT},
		{"224.0.0.1", Multicast},
		{"not-an-ip", Invalid},
		{"::1", Loopback},
		{"fc00::1", Private},
	}
	for _, c := range cases {
		if got := Classify(c.addr); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestClassify_IPv4MappedIPv6TreatedAsIPv4(t *testing.T) {
	if got := Classify("::ffff:10.1.2.3"); got != Private {
		t.Errorf("Classify(IPv4-mapped) = %v, want Private", got)
	}
}
