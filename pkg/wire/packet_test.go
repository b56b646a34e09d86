package wire

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

// TestEncodeDecodeRoundTrip checks decode(encode(p)) == p across a range of
// packets exercising every field: empty and populated variable headers,
// every supported property type, and empty/non-empty bodies.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Packet{
		{
			Type: TypeHello,
		},
		{
			Type:          TypeSend,
			TransactionID: 42,
			ProducerID:    7,
			Expiration:    1000,
			DeliveryTime:  2000,
			DeliveryCount: 3,
			Priority:      DefaultPriority,
			Encryption:    1,
			Flags:         FlagPersistent | FlagIsQueue | FlagSendAcknowledge,
			ConsumerID:    99,
			SysMessageID: SysMessageID{
				Sequence:  12345,
				IP:        [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 127, 0, 0, 1},
				Port:      7676,
				Timestamp: uint64(time.Now().UnixNano()),
			},
			VarHeaders: []VarHeader{
				{ID: VarHeaderDestination, Value: "orders.new"},
				{ID: VarHeaderMessageID, Value: "ID:1-2-3"},
				{ID: VarHeaderCorrelationID, Value: "corr-1"},
			},
			Properties: Properties{
				"str":   "hello world",
				"i32":   int32(-7),
				"i64":   int64(1 << 40),
				"bool1": true,
				"bool2": false,
				"f64":   3.14159,
				"bytes": []byte{0xDE, 0xAD, 0xBE, 0xEF},
			},
			Body: []byte("the quick brown fox jumps over the lazy dog"),
		},
		{
			Type:       TypeBytesMessage,
			VarHeaders: []VarHeader{{ID: VarHeaderReplyTo, Value: "replies.x"}},
			Properties: Properties{},
			Body:       nil,
		},
		{
			Type:       TypeAcknowledgeReply,
			Properties: Properties{PropStatus: int32(StatusOK)},
			Body:       bytes.Repeat([]byte{0x01}, 4096),
		},
	}

	for i, want := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, want, 0); err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if got.Type != want.Type {
			t.Errorf("case %d: Type = %v, want %v", i, got.Type, want.Type)
		}
		if got.TransactionID != want.TransactionID || got.ProducerID != want.ProducerID ||
			got.Expiration != want.Expiration || got.DeliveryTime != want.DeliveryTime ||
			got.DeliveryCount != want.DeliveryCount || got.Priority != want.Priority ||
			got.Encryption != want.Encryption || got.Flags != want.Flags ||
			got.ConsumerID != want.ConsumerID {
			t.Errorf("case %d: scalar header fields mismatch: got %+v want %+v", i, got, want)
		}
		if got.SysMessageID != want.SysMessageID {
			t.Errorf("case %d: SysMessageID = %+v, want %+v", i, got.SysMessageID, want.SysMessageID)
		}
		if len(want.VarHeaders) == 0 {
			want.VarHeaders = nil
		}
		if len(got.VarHeaders) == 0 {
			got.VarHeaders = nil
		}
		if !reflect.DeepEqual(got.VarHeaders, want.VarHeaders) {
			t.Errorf("case %d: VarHeaders = %+v, want %+v", i, got.VarHeaders, want.VarHeaders)
		}
		if len(want.Properties) == 0 {
			want.Properties = Properties{}
		}
		if len(got.Properties) == 0 {
			got.Properties = Properties{}
		}
		if !reflect.DeepEqual(got.Properties, want.Properties) {
			t.Errorf("case %d: Properties = %+v, want %+v", i, got.Properties, want.Properties)
		}
		if !bytes.Equal(got.Body, want.Body) {
			t.Errorf("case %d: Body = %q, want %q", i, got.Body, want.Body)
		}
	}
}

// TestDecodeRejectsBadMagic confirms a corrupted magic number yields
// ErrInvalidPacket rather than a partially-decoded Packet.
func TestDecodeRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Packet{Type: TypeHello}, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupt := buf.Bytes()
	corrupt[0] ^= 0xFF
	if _, err := Decode(bytes.NewReader(corrupt)); err == nil {
		t.Fatal("expected error decoding packet with corrupted magic, got nil")
	}
}

// TestDecodeRejectsInconsistentSizes confirms a packetSize field that
// disagrees with the properties offset/size is rejected.
func TestDecodeRejectsInconsistentSizes(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Packet{Type: TypeHello, Body: []byte("x")}, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw := buf.Bytes()
	// packetSize field is header bytes [8:12]; corrupt it to be too small.
	raw[8], raw[9], raw[10], raw[11] = 0, 0, 0, 1
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error decoding packet with inconsistent sizes, got nil")
	}
}
