package relay

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		url  string
		want TransportKind
	}{
		{"wss://relay.damus.io", TransportStandard},
		{"ws://localhost:7447", TransportStandard},
		{"wss://nos.lol/", TransportStandard},
		{"ws://2jsnlhfnelig5acq6iacydmzdbdmg7xwunm4xl6qwbvzacw4lwrjmlyd.onion", TransportOnion},
		{"wss://somerelay.onion:8080/sub/path", TransportOnion},
		{"somerelay.onion", TransportOnion},
		{"SOMERELAY.ONION", TransportOnion},
		{"wss://relay.onion.", TransportOnion},
		{"wss://onionsoup.example.com", TransportStandard},
		{"wss://fake-onion.example.com", TransportStandard},
		{"", TransportStandard},
	}
	for _, tc := range cases {
		if got := Classify(tc.url); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.url, got, tc.want)
		}
	}
}

func TestPartitionPreservesOrder(t *testing.T) {
	urls := []string{
		"wss://a.example.com",
		"ws://first.onion",
		"wss://b.example.com",
		"ws://second.onion",
	}
	standard, onion := Partition(urls)

	wantStandard := []string{"wss://a.example.com", "wss://b.example.com"}
	wantOnion := []string{"ws://first.onion", "ws://second.onion"}
	if !reflect.DeepEqual(standard, wantStandard) {
		t.Errorf("standard = %v, want %v", standard, wantStandard)
	}
	if !reflect.DeepEqual(onion, wantOnion) {
		t.Errorf("onion = %v, want %v", onion, wantOnion)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"relay.damus.io", "wss://relay.damus.io"},
		{"wss://relay.damus.io/", "wss://relay.damus.io"},
		{"ws://somerelay.onion", "ws://somerelay.onion"},
		{"somerelay.onion", "wss://somerelay.onion"},
		{"  wss://nos.lol  ", "wss://nos.lol"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeURL(tc.in); got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
