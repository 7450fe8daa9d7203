package fastboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		name   string
		resp   string
		want   Protocol
		wantOK bool
	}{
		{"net", "ID:NET FP-CPU-2000 2.28", NET, true},
		{"exp", "ID:EXP FP-EXP-0091 0.48", EXP, true},
		{"lowercase", "id echo ID:exp board", EXP, true},
		{"leading garbage", "\x00\xffID: NET junk", NET, true},
		{"comma after token", "ID:EXP, FP-EXP-0091 v0.48", EXP, true},
		{"no marker", "EXP FP-EXP-0091", 0, false},
		{"unknown token", "ID:FOO bar", 0, false},
		{"empty", "", 0, false},
		{"marker at end", "junk ID:", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProtocol(tt.resp)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	proto, board, version, ok := ParseID("ID:EXP FP-EXP-0091 0.48")
	require.True(t, ok)
	assert.Equal(t, "EXP", proto)
	assert.Equal(t, "FP-EXP-0091", board)
	assert.Equal(t, "0.48", version)
}

func TestParseIDCommaTolerant(t *testing.T) {
	proto, board, version, ok := ParseID("ID:EXP, FP-EXP-0091 v0.48")
	require.True(t, ok)
	assert.NotEmpty(t, proto)
	assert.NotEmpty(t, board)
	assert.NotEmpty(t, version)
	assert.Equal(t, "EXP", proto)
	assert.Equal(t, "v0.48", version)
}

func TestParseIDTooShort(t *testing.T) {
	_, _, _, ok := ParseID("ID:EXP FP-EXP-0091")
	assert.False(t, ok)

	_, _, _, ok = ParseID("no marker here")
	assert.False(t, ok)
}

func TestParseNodeRecord(t *testing.T) {
	info, ok := ParseNodeRecord("stale bytes NN:03,Node3,2.10,5,6\r")
	require.True(t, ok)
	assert.Equal(t, "03", info.ID)
	assert.Equal(t, "Node3", info.Name)
	assert.Equal(t, "2.10", info.Firmware)
	assert.Equal(t, []string{"5", "6"}, info.Extra)
}

func TestParseNodeRecordLastOccurrenceWins(t *testing.T) {
	// buffers may hold a partial fragment of the previous reply
	info, ok := ParseNodeRecord("NN:02,Old,1.0\rNN:03,Node3,2.10")
	require.True(t, ok)
	assert.Equal(t, "03", info.ID)
	assert.Equal(t, "Node3", info.Name)
	assert.Nil(t, info.Extra)
}

func TestParseNodeRecordRejects(t *testing.T) {
	_, ok := ParseNodeRecord("NN:03,Node3")
	assert.False(t, ok)

	_, ok = ParseNodeRecord("no node record")
	assert.False(t, ok)
}

func TestTrimVersionTail(t *testing.T) {
	assert.Equal(t, "2.28", trimVersionTail("2.28\r"))
	assert.Equal(t, "0.48", trimVersionTail("0.48!"))
	assert.Equal(t, "1.0", trimVersionTail("1.0"))
	assert.Equal(t, "", trimVersionTail("vABC"))
}

func TestTrimMajorZeros(t *testing.T) {
	assert.Equal(t, "2.28", trimMajorZeros("02.28"))
	assert.Equal(t, "0.48", trimMajorZeros("00.48"))
	assert.Equal(t, "2.08", trimMajorZeros("2.08"))
	assert.Equal(t, "7", trimMajorZeros("007"))
	assert.Equal(t, "0", trimMajorZeros("000"))
}
