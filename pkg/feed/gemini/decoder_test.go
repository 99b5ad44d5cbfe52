package gemini

import (
	"testing"

	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialMsg = `{"type":"update","eventId":5375461993,"socket_sequence":0,"events":[
{"type":"change","reason":"initial","price":"6748.70","delta":"0.037","remaining":"0.037","side":"bid"},
{"type":"change","reason":"initial","price":"6748.50","delta":"1.5","remaining":"1.5","side":"bid"},
{"type":"change","reason":"initial","price":"6748.71","delta":"4.27506690","remaining":"4.27506690","side":"ask"}]}`

func dec(t *testing.T, d *Decoder, raw string) []orderbook.Event {
	t.Helper()
	events, err := d.Decode([]byte(raw))
	require.NoError(t, err)
	return events
}

func TestDecodeInitialSnapshot(t *testing.T) {
	var seq Sequencer
	d := NewDecoder(&seq)

	events := dec(t, d, initialMsg)
	require.Len(t, events, 1)
	snap, ok := events[0].(orderbook.Snapshot)
	require.True(t, ok, "got %T", events[0])
	assert.Equal(t, uint64(1), snap.Sequence)
	require.Len(t, snap.Orders, 3)

	first := snap.Orders[0]
	assert.Equal(t, "bid:6748.7", first.ID)
	assert.Equal(t, orderbook.BID, first.Side)
	assert.True(t, first.Quantity.Equal(decimal.RequireFromString("0.037")))
	assert.Equal(t, orderbook.ASK, snap.Orders[2].Side)
}

func TestDecodeIncrementalChanges(t *testing.T) {
	var seq Sequencer
	d := NewDecoder(&seq)
	dec(t, d, initialMsg)

	events := dec(t, d, `{"type":"update","eventId":2,"socket_sequence":1,"events":[
		{"type":"trade","tid":1,"price":"6748.71","amount":"0.5","makerSide":"ask"},
		{"type":"change","side":"ask","price":"6748.71","remaining":"3.77506690","delta":"-0.5","reason":"trade"},
		{"type":"change","side":"bid","price":"6748.60","remaining":"2","delta":"2","reason":"place"},
		{"type":"change","side":"bid","price":"6748.50","remaining":"0","delta":"-1.5","reason":"cancel"}]}`)
	require.Len(t, events, 3)

	change, ok := events[0].(orderbook.Change)
	require.True(t, ok, "got %T", events[0])
	assert.Equal(t, "ask:6748.71", change.ID)
	assert.True(t, change.Quantity.Equal(decimal.RequireFromString("3.7750669")))

	added, ok := events[1].(orderbook.Add)
	require.True(t, ok, "got %T", events[1])
	assert.Equal(t, "bid:6748.6", added.ID)

	removed, ok := events[2].(orderbook.Remove)
	require.True(t, ok, "got %T", events[2])
	assert.Equal(t, "bid:6748.5", removed.ID)

	// sequences are strictly increasing across messages
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{events[0].Seq(), events[1].Seq(), events[2].Seq()})

	// a level removed earlier comes back as an Add
	events = dec(t, d, `{"type":"update","socket_sequence":2,"events":[
		{"type":"change","side":"bid","price":"6748.50","remaining":"1","delta":"1","reason":"place"}]}`)
	require.Len(t, events, 1)
	assert.IsType(t, orderbook.Add{}, events[0])
}

func TestDecodeHeartbeatAdvancesSequence(t *testing.T) {
	var seq Sequencer
	d := NewDecoder(&seq)
	dec(t, d, initialMsg)

	assert.Empty(t, dec(t, d, `{"type":"heartbeat","socket_sequence":1}`))
	assert.Empty(t, dec(t, d, `{"type":"heartbeat","socket_sequence":2}`))
	assert.Equal(t, uint64(1), seq.Current())
}

func TestDecodeSequenceGap(t *testing.T) {
	var seq Sequencer
	d := NewDecoder(&seq)
	dec(t, d, initialMsg)

	events, err := d.Decode([]byte(`{"type":"heartbeat","socket_sequence":3}`))
	assert.ErrorIs(t, err, errSequenceGap)
	require.Len(t, events, 1)
	gap, ok := events[0].(orderbook.Gap)
	require.True(t, ok)
	assert.Equal(t, GapSequence, gap.Reason)
	assert.Equal(t, uint64(2), gap.Sequence)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"type":`,
		"no sequence":      `{"type":"update","events":[]}`,
		"bad price":        `{"type":"update","socket_sequence":1,"events":[{"type":"change","side":"bid","price":"abc","remaining":"1"}]}`,
		"bad side":         `{"type":"update","socket_sequence":1,"events":[{"type":"change","side":"mid","price":"1","remaining":"1"}]}`,
		"negative remains": `{"type":"update","socket_sequence":1,"events":[{"type":"change","side":"ask","price":"1","remaining":"-1"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var seq Sequencer
			d := NewDecoder(&seq)
			dec(t, d, initialMsg)

			events, err := d.Decode([]byte(raw))
			require.Error(t, err)
			require.NotEmpty(t, events)
			gap, ok := events[len(events)-1].(orderbook.Gap)
			require.True(t, ok, "got %T", events[len(events)-1])
			assert.Equal(t, GapMalformed, gap.Reason)
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := &Config{URL: "wss://api.gemini.com/v1/marketdata/", Symbol: "BTCUSD", Heartbeat: true}
	u, err := cfg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.gemini.com/v1/marketdata/btcusd?heartbeat=true", u)

	_, err = (&Config{URL: "https://example.com"}).Endpoint()
	assert.Error(t, err)
}
