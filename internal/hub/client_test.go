package hub

import (
	"encoding/json"
	"testing"
)

func newBareClient() *Client {
	return &Client{
		topics:  make(map[Topic]bool),
		symbols: make(map[string]bool),
	}
}

func TestClientCommandPairAlias(t *testing.T) {
	t.Parallel()

	var cmd clientCommand
	if err := json.Unmarshal([]byte(`{"action":"subscribe","pair":"BTC-PERP"}`), &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.pair() != "BTC-PERP" {
		t.Fatalf("pair() = %q, want BTC-PERP", cmd.pair())
	}

	cmd = clientCommand{Symbol: "ETH-PERP"}
	if cmd.pair() != "ETH-PERP" {
		t.Fatalf("pair() = %q, want symbol fallback", cmd.pair())
	}

	cmd = clientCommand{Pair: "BTC-PERP", Symbol: "ETH-PERP"}
	if cmd.pair() != "BTC-PERP" {
		t.Fatal("pair must win over symbol")
	}
}

func TestClientWantsSymbolFilter(t *testing.T) {
	t.Parallel()

	c := newBareClient()
	c.subscribe(TopicMarketData, "")

	// no filter: everything on the topic passes
	if !c.wants(TopicMarketData, "BTC-PERP") || !c.wants(TopicMarketData, "") {
		t.Fatal("unfiltered subscription must receive all symbols")
	}
	if c.wants(TopicOrders, "") {
		t.Fatal("unsubscribed topic must not match")
	}

	c.subscribe(TopicMarketData, "BTC-PERP")
	if !c.wants(TopicMarketData, "BTC-PERP") {
		t.Fatal("filtered symbol must pass")
	}
	if c.wants(TopicMarketData, "ETH-PERP") {
		t.Fatal("other symbols must be filtered out")
	}
	if !c.wants(TopicMarketData, "") {
		t.Fatal("symbol-less messages still fan out")
	}
}

func TestClientUnsubscribe(t *testing.T) {
	t.Parallel()

	c := newBareClient()
	c.subscribe(TopicMarketData, "BTC-PERP")
	c.subscribe(TopicOrders, "")

	// removing the symbol keeps the topic
	c.unsubscribe(TopicMarketData, "BTC-PERP")
	if !c.wants(TopicMarketData, "ETH-PERP") {
		t.Fatal("dropping the filter must widen the subscription")
	}

	c.unsubscribe(TopicOrders, "")
	if c.wants(TopicOrders, "") {
		t.Fatal("topic must be gone after unsubscribe")
	}
}
