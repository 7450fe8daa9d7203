package fastboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

func expect(t *testing.T, test, v, to string) {
	if v != to {
		t.Errorf("%s: expected \"%s\" to equal \"%s\".", test, v, to)
	}
}

func TestProtocolMarshallers(t *testing.T) {
	var (
		p        Protocol
		expected string
		b        []byte
		err      error
	)

	p = NET
	expected = fmt.Sprintf("\"%s\"", p)
	b, err = json.Marshal(p)
	if err != nil {
		t.Error(err)
	} else {
		expect(t, "Protocol_MarshallJSON", string(b), expected)
	}

	p = EXP
	expected = fmt.Sprintf("\"%s\"", p)
	b, err = json.Marshal(p)
	if err != nil {
		t.Error(err)
	} else {
		expect(t, "Protocol_MarshallJSON", string(b), expected)
	}
}

func TestProtocolUnmarshallers(t *testing.T) {
	var (
		p   Protocol
		b   *bytes.Buffer
		dec *json.Decoder
		err error
	)

	b = new(bytes.Buffer)
	b.WriteString("\"NET\"")
	dec = json.NewDecoder(b)
	err = dec.Decode(&p)
	if err != nil {
		t.Error(err)
	} else {
		expect(t, "Protocol_UnmarshallJSON", p.String(), NET.String())
	}

	b = new(bytes.Buffer)
	b.WriteString("\"EXP\"")
	dec = json.NewDecoder(b)
	err = dec.Decode(&p)
	if err != nil {
		t.Error(err)
	} else {
		expect(t, "Protocol_UnmarshallJSON", p.String(), EXP.String())
	}

	b = new(bytes.Buffer)
	b.WriteString("\"SPI\"")
	dec = json.NewDecoder(b)
	err = dec.Decode(&p)
	if err == nil {
		t.Error("expected an error decoding \"SPI\"")
	}
}
